package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestReporter(t *testing.T) {
	t.Run("NewReporter", func(t *testing.T) {
		r := NewReporter(false)
		if r == nil {
			t.Fatal("NewReporter returned nil")
		}
		if r.quiet {
			t.Error("quiet should be false")
		}

		r = NewReporter(true)
		if !r.quiet {
			t.Error("quiet should be true")
		}
	})

	t.Run("SetStatus", func(t *testing.T) {
		r := NewReporter(false)
		r.SetStatus("test status")
		if r.status != "test status" {
			t.Errorf("expected 'test status', got %q", r.status)
		}
	})

	t.Run("SetProgress", func(t *testing.T) {
		r := NewReporter(false)
		r.SetProgress(0.5, "50%")
		if r.progress != 0.5 {
			t.Errorf("expected progress 0.5, got %f", r.progress)
		}
		if r.info != "50%" {
			t.Errorf("expected info '50%%', got %q", r.info)
		}
	})

	t.Run("Cancel", func(t *testing.T) {
		r := NewReporter(false)
		if r.IsCancelled() {
			t.Error("should not be cancelled initially")
		}
		r.Cancel()
		if !r.IsCancelled() {
			t.Error("should be cancelled after Cancel()")
		}
	})

	t.Run("SetCanCancel", func(t *testing.T) {
		r := NewReporter(false)
		// Should be a no-op, just ensure it doesn't panic
		r.SetCanCancel(true)
		r.SetCanCancel(false)
	})
}

func resetPackFlags() {
	packInput = nil
	packOutput = ""
	packPassword = ""
	packPasswordStdin = false
	packKeyFile = ""
	packRSAPubFile = ""
	packKeyBits = 256
	packCycles = 0
	packHash = "sha256"
	packCompress = "deflate"
	packQuiet = false
	packYes = false
}

func TestPackValidation(t *testing.T) {
	t.Run("missing input", func(t *testing.T) {
		resetPackFlags()
		packOutput = "out.mauz"

		cmd := packCmd
		err := cmd.RunE(cmd, []string{})
		if err == nil {
			t.Error("expected error for missing input")
		}
		if !strings.Contains(err.Error(), "input") {
			t.Errorf("error should mention input: %v", err)
		}
	})

	t.Run("missing output", func(t *testing.T) {
		resetPackFlags()
		packInput = []string{"whatever"}

		cmd := packCmd
		err := cmd.RunE(cmd, []string{})
		if err == nil {
			t.Error("expected error for missing output")
		}
		if !strings.Contains(err.Error(), "output") {
			t.Errorf("error should mention output: %v", err)
		}
	})

	t.Run("nonexistent input file", func(t *testing.T) {
		resetPackFlags()
		packInput = []string{"/nonexistent/file/path.txt"}
		packOutput = "out.mauz"

		cmd := packCmd
		err := cmd.RunE(cmd, []string{})
		if err == nil {
			t.Error("expected error for nonexistent file")
		}
		if !strings.Contains(err.Error(), "not found") {
			t.Errorf("error should mention not found: %v", err)
		}
	})

	t.Run("invalid compression", func(t *testing.T) {
		resetPackFlags()
		tmpFile := filepath.Join(t.TempDir(), "test.txt")
		if err := os.WriteFile(tmpFile, []byte("test"), 0644); err != nil {
			t.Fatal(err)
		}
		packInput = []string{tmpFile}
		packOutput = filepath.Join(t.TempDir(), "out.mauz")
		packCompress = "bogus"

		cmd := packCmd
		err := cmd.RunE(cmd, []string{})
		if err == nil {
			t.Error("expected error for invalid compression")
		}
		if !strings.Contains(err.Error(), "compress") {
			t.Errorf("error should mention compress: %v", err)
		}
	})

	t.Run("nonexistent key file", func(t *testing.T) {
		resetPackFlags()
		tmpFile := filepath.Join(t.TempDir(), "test.txt")
		if err := os.WriteFile(tmpFile, []byte("test"), 0644); err != nil {
			t.Fatal(err)
		}
		packInput = []string{tmpFile}
		packOutput = filepath.Join(t.TempDir(), "out.mauz")
		packKeyFile = "/nonexistent/keyfile.bin"

		cmd := packCmd
		err := cmd.RunE(cmd, []string{})
		if err == nil {
			t.Error("expected error for nonexistent key file")
		}
	})

	resetPackFlags()
}

func resetUnpackFlags() {
	unpackInput = ""
	unpackOutput = ""
	unpackPassword = ""
	unpackPasswordStdin = false
	unpackKeyFile = ""
	unpackKeyBits = 256
	unpackQuiet = false
}

func TestUnpackValidation(t *testing.T) {
	t.Run("missing input", func(t *testing.T) {
		resetUnpackFlags()
		unpackOutput = "out/"

		cmd := unpackCmd
		err := cmd.RunE(cmd, []string{})
		if err == nil {
			t.Error("expected error for missing input")
		}
		if !strings.Contains(err.Error(), "input") {
			t.Errorf("error should mention input: %v", err)
		}
	})

	t.Run("missing output", func(t *testing.T) {
		resetUnpackFlags()
		unpackInput = "archive.mauz"

		cmd := unpackCmd
		err := cmd.RunE(cmd, []string{})
		if err == nil {
			t.Error("expected error for missing output")
		}
		if !strings.Contains(err.Error(), "output") {
			t.Errorf("error should mention output: %v", err)
		}
	})

	t.Run("nonexistent input file", func(t *testing.T) {
		resetUnpackFlags()
		unpackInput = "/nonexistent/file.mauz"
		unpackOutput = "out/"

		cmd := unpackCmd
		err := cmd.RunE(cmd, []string{})
		if err == nil {
			t.Error("expected error for nonexistent file")
		}
		if !strings.Contains(err.Error(), "not found") {
			t.Errorf("error should mention not found: %v", err)
		}
	})

	t.Run("input is directory", func(t *testing.T) {
		resetUnpackFlags()
		tmpDir := t.TempDir()
		unpackInput = tmpDir
		unpackOutput = filepath.Join(t.TempDir(), "out")

		cmd := unpackCmd
		err := cmd.RunE(cmd, []string{})
		if err == nil {
			t.Error("expected error for directory input")
		}
		if !strings.Contains(err.Error(), "directory") {
			t.Errorf("error should mention directory: %v", err)
		}
	})

	resetUnpackFlags()
}

func TestGlobExpansion(t *testing.T) {
	tmpDir := t.TempDir()

	for _, name := range []string{"a.txt", "b.txt", "c.log"} {
		if err := os.WriteFile(filepath.Join(tmpDir, name), []byte("test"), 0644); err != nil {
			t.Fatal(err)
		}
	}

	t.Run("glob matches files", func(t *testing.T) {
		pattern := filepath.Join(tmpDir, "*.txt")
		matches, err := filepath.Glob(pattern)
		if err != nil {
			t.Fatal(err)
		}
		if len(matches) != 2 {
			t.Errorf("expected 2 matches, got %d", len(matches))
		}
	})

	t.Run("glob no matches", func(t *testing.T) {
		pattern := filepath.Join(tmpDir, "*.xyz")
		matches, err := filepath.Glob(pattern)
		if err != nil {
			t.Fatal(err)
		}
		if len(matches) != 0 {
			t.Errorf("expected 0 matches, got %d", len(matches))
		}
	})
}

func TestReporterOutput(t *testing.T) {
	t.Run("quiet mode suppresses output", func(t *testing.T) {
		r := NewReporter(true)
		r.SetStatus("test")
		r.SetProgress(0.5, "50%")

		old := os.Stderr
		r2, w, _ := os.Pipe()
		os.Stderr = w

		r.Update()
		r.Finish()

		w.Close()
		os.Stderr = old

		var buf bytes.Buffer
		buf.ReadFrom(r2)

		if buf.Len() != 0 {
			t.Errorf("quiet mode should not produce output, got: %q", buf.String())
		}
	})

	t.Run("PrintSuccess respects quiet", func(t *testing.T) {
		r := NewReporter(true)

		old := os.Stderr
		r2, w, _ := os.Pipe()
		os.Stderr = w

		r.PrintSuccess("success message")

		w.Close()
		os.Stderr = old

		var buf bytes.Buffer
		buf.ReadFrom(r2)

		if buf.Len() != 0 {
			t.Errorf("quiet mode should suppress success, got: %q", buf.String())
		}
	})

	t.Run("PrintError always outputs", func(t *testing.T) {
		r := NewReporter(true) // Even in quiet mode

		old := os.Stderr
		r2, w, _ := os.Pipe()
		os.Stderr = w

		r.PrintError("error message")

		w.Close()
		os.Stderr = old

		var buf bytes.Buffer
		buf.ReadFrom(r2)

		if !strings.Contains(buf.String(), "error message") {
			t.Errorf("PrintError should always output, got: %q", buf.String())
		}
	})
}

func TestVersionFlag(t *testing.T) {
	Version = "v1.0.0"
	rootCmd.Version = Version
	if rootCmd.Version != "v1.0.0" {
		t.Errorf("expected version v1.0.0, got %s", rootCmd.Version)
	}
}
