package patharbiter

import "testing"

func TestValidPath(t *testing.T) {
	valid := []string{"a", "a/b", "a/b/c", "a/b/", "dir with space"}
	for _, p := range valid {
		if !ValidPath(p) {
			t.Errorf("ValidPath(%q) = false, want true", p)
		}
	}
	invalid := []string{"", "/", ".", "..", "a/.", "a/..", "   ", "a/\x01b"}
	for _, p := range invalid {
		if ValidPath(p) {
			t.Errorf("ValidPath(%q) = true, want false", p)
		}
	}
}

func TestDirectoryThenFileCollision(t *testing.T) {
	a := New()
	if _, err := a.Insert("a/b/", EmptyDirectory, 0); err != nil {
		t.Fatalf("insert directory: %v", err)
	}
	if _, err := a.Insert("a/b", File, 1); err == nil {
		t.Fatalf("expected collision error inserting file over directory")
	}
}

func TestFileThenDirectoryCollision(t *testing.T) {
	a := New()
	if _, err := a.Insert("a/b", File, 0); err != nil {
		t.Fatalf("insert file: %v", err)
	}
	if _, err := a.Insert("a/b/", EmptyDirectory, 1); err == nil {
		t.Fatalf("expected collision error inserting directory over file")
	}
}

func TestEmptyDirectoryPruning(t *testing.T) {
	a := New()
	if _, err := a.Insert("a/b/", EmptyDirectory, 0); err != nil {
		t.Fatalf("insert directory: %v", err)
	}
	pruned, err := a.Insert("a/b/c", File, 1)
	if err != nil {
		t.Fatalf("insert file: %v", err)
	}
	if len(pruned) != 1 || pruned[0] != "a/b/" {
		t.Fatalf("pruned = %v, want [a/b/]", pruned)
	}
	if _, exists := a.entries["a/b/"]; exists {
		t.Fatalf("a/b/ should have been pruned")
	}
}

func TestFileCoveredByFileAncestor(t *testing.T) {
	a := New()
	if _, err := a.Insert("a/b", File, 0); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if _, err := a.Insert("a/b/c", File, 1); err == nil {
		t.Fatalf("expected covered-by-file error")
	}
}
