package scope

import (
	"os"
	"path/filepath"
	"testing"
)

func writeContext(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "context.json")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write context file: %v", err)
	}
	return path
}

func TestLoadAndLookup(t *testing.T) {
	path := writeContext(t, `{"DatabaseId":"db-1","branch_id":"br-2","userId":"us-3"}`)
	loader := NewLoader(path)

	ctx, err := loader.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if got := ctx.DatabaseID(); got != "db-1" {
		t.Errorf("DatabaseID = %q, want db-1", got)
	}
	if got := ctx.BranchID(); got != "br-2" {
		t.Errorf("BranchID = %q, want br-2", got)
	}
	if got := ctx.UserID(); got != "us-3" {
		t.Errorf("UserID = %q, want us-3", got)
	}
	if ctx.String() == "" {
		t.Error("expected non-empty serialized context")
	}
}

func TestLoadOnce(t *testing.T) {
	path := writeContext(t, `{"DatabaseId":"db-1"}`)
	loader := NewLoader(path)

	first, err := loader.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	// Mutating the file after the first load must not change the cache.
	if err := os.WriteFile(path, []byte(`{"DatabaseId":"changed"}`), 0o644); err != nil {
		t.Fatalf("rewrite context file: %v", err)
	}

	second, err := loader.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if first != second {
		t.Error("expected the same cached context instance")
	}
	if got := second.DatabaseID(); got != "db-1" {
		t.Errorf("DatabaseID = %q, want db-1", got)
	}
}

func TestLoadMissingFile(t *testing.T) {
	loader := NewLoader(filepath.Join(t.TempDir(), "absent.json"))
	if _, err := loader.Load(); err == nil {
		t.Fatal("expected error for missing context file")
	}
}

func TestLoadInvalidJSON(t *testing.T) {
	path := writeContext(t, `{not json`)
	loader := NewLoader(path)
	if _, err := loader.Load(); err == nil {
		t.Fatal("expected error for invalid JSON")
	}
}

func TestNumericIDs(t *testing.T) {
	path := writeContext(t, `{"DatabaseId":42}`)
	loader := NewLoader(path)
	ctx, err := loader.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got := ctx.DatabaseID(); got != "42" {
		t.Errorf("DatabaseID = %q, want 42", got)
	}
}
