package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"mauz"
	archive "mauz/internal/mauz"

	"github.com/spf13/cobra"
)

func init() {
	unpackCmd.SilenceErrors = true
	unpackCmd.SilenceUsage = true
}

var unpackCmd = &cobra.Command{
	Use:   "unpack",
	Short: "Extract a MAUS stream or MAUZ archive to a directory",
	Long: `Extract every file entry of a MAUS stream or MAUZ archive into a
destination directory, recreating its directory structure.

Examples:
  # Unpack interactively (prompts for password if encrypted)
  mausctl unpack -i docs.mauz -o docs/

  # Unpack with password on command line
  mausctl unpack -i docs.mauz -o docs/ -p "mypassword"

  # Unpack with a raw key file instead of a password
  mausctl unpack -i data.mauz -o out/ --key-file key.bin`,
	RunE: runUnpack,
}

var (
	unpackInput         string
	unpackOutput        string
	unpackPassword      string
	unpackPasswordStdin bool
	unpackKeyFile       string
	unpackKeyBits       int
	unpackQuiet         bool
)

func init() {
	rootCmd.AddCommand(unpackCmd)

	unpackCmd.Flags().StringVarP(&unpackInput, "input", "i", "", "Input .mauz/.maus file")
	unpackCmd.Flags().StringVarP(&unpackOutput, "output", "o", "", "Destination directory")

	unpackCmd.Flags().StringVarP(&unpackPassword, "password", "p", "", "Decryption password")
	unpackCmd.Flags().BoolVarP(&unpackPasswordStdin, "password-stdin", "P", false, "Read password from stdin")
	unpackCmd.Flags().StringVar(&unpackKeyFile, "key-file", "", "Raw key file, if the archive was packed with one")
	unpackCmd.Flags().IntVar(&unpackKeyBits, "key-bits", 256, "AES key size in bits, must match how the archive was packed")

	unpackCmd.Flags().BoolVarP(&unpackQuiet, "quiet", "q", false, "Suppress progress output")

	_ = unpackCmd.MarkFlagRequired("input")
	_ = unpackCmd.MarkFlagRequired("output")
}

func runUnpack(cmd *cobra.Command, args []string) error {
	if unpackInput == "" {
		return fmt.Errorf("input path is required (-i)")
	}
	if unpackOutput == "" {
		return fmt.Errorf("output directory is required (-o)")
	}

	info, err := os.Stat(unpackInput)
	if err != nil {
		return fmt.Errorf("input file not found: %s", unpackInput)
	}
	if info.IsDir() {
		return fmt.Errorf("input must be a file, not a directory: %s", unpackInput)
	}

	in, err := os.Open(unpackInput)
	if err != nil {
		return fmt.Errorf("open input: %w", err)
	}
	defer in.Close()

	container, err := mauz.OpenRead(in, true)
	if err != nil {
		return fmt.Errorf("open %s: %w", unpackInput, err)
	}

	switch {
	case unpackKeyFile != "":
		key, err := os.ReadFile(unpackKeyFile)
		if err != nil {
			return fmt.Errorf("keyfile not found: %s", unpackKeyFile)
		}
		container.SetKey(key)
	case unpackPasswordStdin:
		password, err := ReadPasswordFromStdin()
		if err != nil {
			return err
		}
		container.SetPassword([]byte(password))
	case unpackPassword != "":
		container.SetPassword([]byte(unpackPassword))
	case container.IsEncrypted():
		password, err := ReadPasswordInteractive(false)
		if err != nil && err != ErrPasswordEmpty {
			return fmt.Errorf("password input: %w", err)
		}
		container.SetPassword([]byte(password))
	}

	if err := container.Decrypt(); err != nil {
		return fmt.Errorf("decrypt: %w", err)
	}

	reporter := NewReporter(unpackQuiet)
	globalReporter = reporter

	entries := container.Entries()
	if !unpackQuiet {
		fmt.Fprintf(os.Stderr, "Unpacking %d entr(ies) from %s\n", len(entries), unpackInput)
	}

	if err := os.MkdirAll(unpackOutput, 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	for i, e := range entries {
		destPath := filepath.Join(unpackOutput, filepath.FromSlash(e.Path))
		if !strings.HasPrefix(destPath, filepath.Clean(unpackOutput)+string(filepath.Separator)) && destPath != filepath.Clean(unpackOutput) {
			return fmt.Errorf("entry %q escapes output directory", e.Path)
		}

		switch e.Kind {
		case archive.EmptyDirectory:
			if err := os.MkdirAll(destPath, 0o755); err != nil {
				return fmt.Errorf("create directory %s: %w", destPath, err)
			}
		default:
			reporter.SetStatus(e.Path)
			reporter.SetProgress(float32(i)/float32(len(entries)), fmt.Sprintf("%d/%d", i+1, len(entries)))
			reporter.Update()

			if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
				return fmt.Errorf("create directory for %s: %w", destPath, err)
			}
			r, err := e.Container.Payload()
			if err != nil {
				reporter.PrintError("%v", err)
				return err
			}
			out, err := os.Create(destPath)
			if err != nil {
				reporter.PrintError("%v", err)
				return err
			}
			_, werr := io.Copy(out, r)
			cerr := out.Close()
			if werr != nil {
				reporter.PrintError("%v", werr)
				return werr
			}
			if cerr != nil {
				reporter.PrintError("%v", cerr)
				return cerr
			}
		}
	}
	reporter.Finish()

	if err := container.Close(); err != nil {
		reporter.PrintError("%v", err)
		return err
	}

	reporter.PrintSuccess("Unpacked %d entr(ies) into %s", len(entries), unpackOutput)
	return nil
}
