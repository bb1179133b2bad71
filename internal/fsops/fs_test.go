package fsops

import (
	"os"
	"path/filepath"
	"testing"
)

func TestValidateRelPath(t *testing.T) {
	tests := []struct {
		name      string
		path      string
		wantError bool
	}{
		{name: "route directory", path: "src/app/api", wantError: false},
		{name: "dynamic route page", path: "src/app/templates/[shareId]/page.tsx", wantError: false},
		{name: "route group", path: "src/app/(dashboard)/settings/page.tsx", wantError: false},
		{name: "dot prefixed", path: ".hidden/file.txt", wantError: false},
		{name: "name starting with dots", path: "..stubs/file.ts", wantError: false},
		{name: "empty path", path: "", wantError: true},
		{name: "current directory", path: ".", wantError: true},
		{name: "absolute path", path: "/etc/hosts", wantError: true},
		{name: "parent traversal", path: "../api_backup", wantError: true},
		{name: "traversal in middle", path: "src/../../etc/hosts", wantError: true},
		{name: "cleans to current directory", path: "src/..", wantError: true},
	}

	fs := &RealFS{}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := fs.ValidateRelPath(tt.path)
			if (err != nil) != tt.wantError {
				t.Errorf("ValidateRelPath(%q) error = %v, wantError %v", tt.path, err, tt.wantError)
			}
		})
	}
}

func TestIsWithin(t *testing.T) {
	tests := []struct {
		root string
		path string
		want bool
	}{
		{root: "/repo/frontend", path: "/repo/frontend", want: true},
		{root: "/repo/frontend", path: "/repo/frontend/src/app", want: true},
		{root: "/repo/frontend", path: "/repo/frontend/../api_backup", want: false},
		{root: "/repo/frontend", path: "/repo/api_backup", want: false},
		{root: "/repo/frontend", path: "/repo/frontend-quarantine/x", want: false},
		{root: "/repo/frontend/src", path: "/repo/frontend/.quarantine", want: false},
	}

	for _, tt := range tests {
		if got := IsWithin(tt.root, tt.path); got != tt.want {
			t.Errorf("IsWithin(%q, %q) = %v, want %v", tt.root, tt.path, got, tt.want)
		}
	}
}

func TestRealFS_Exists(t *testing.T) {
	fs := &RealFS{}
	tmpDir := t.TempDir()

	t.Run("existing file", func(t *testing.T) {
		testFile := filepath.Join(tmpDir, "exists.txt")
		if err := os.WriteFile(testFile, []byte("test"), 0644); err != nil {
			t.Fatalf("failed to create test file: %v", err)
		}

		exists, err := fs.Exists(testFile)
		if err != nil {
			t.Errorf("Exists returned error: %v", err)
		}
		if !exists {
			t.Error("Exists should return true for existing file")
		}
	})

	t.Run("non-existing file", func(t *testing.T) {
		exists, err := fs.Exists(filepath.Join(tmpDir, "missing.txt"))
		if err != nil {
			t.Errorf("Exists returned error: %v", err)
		}
		if exists {
			t.Error("Exists should return false for non-existing file")
		}
	})

	t.Run("dangling symlink", func(t *testing.T) {
		link := filepath.Join(tmpDir, "dangling")
		if err := os.Symlink(filepath.Join(tmpDir, "nowhere"), link); err != nil {
			t.Fatalf("failed to create symlink: %v", err)
		}

		exists, err := fs.Exists(link)
		if err != nil {
			t.Errorf("Exists returned error: %v", err)
		}
		if !exists {
			t.Error("Exists should report a dangling symlink as present")
		}
	})
}

func TestRealFS_Move(t *testing.T) {
	fs := &RealFS{}

	t.Run("moves directory tree", func(t *testing.T) {
		tmpDir := t.TempDir()
		src := filepath.Join(tmpDir, "src", "app", "api")
		dst := filepath.Join(tmpDir, "quarantine", "src__app__api")
		writeFile(t, filepath.Join(src, "route.ts"), "export const GET = () => {}")
		if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
			t.Fatalf("failed to create quarantine dir: %v", err)
		}

		if err := fs.Move(src, dst); err != nil {
			t.Fatalf("Move failed: %v", err)
		}

		if _, err := os.Lstat(src); !os.IsNotExist(err) {
			t.Errorf("source should be gone after move, stat err = %v", err)
		}
		if got := readFile(t, filepath.Join(dst, "route.ts")); got != "export const GET = () => {}" {
			t.Errorf("moved content = %q", got)
		}
	})

	t.Run("refuses occupied destination", func(t *testing.T) {
		tmpDir := t.TempDir()
		src := filepath.Join(tmpDir, "a.txt")
		dst := filepath.Join(tmpDir, "b.txt")
		writeFile(t, src, "a")
		writeFile(t, dst, "b")

		if err := fs.Move(src, dst); err == nil {
			t.Fatal("Move should fail when destination exists")
		}
		if got := readFile(t, src); got != "a" {
			t.Errorf("source content changed: %q", got)
		}
		if got := readFile(t, dst); got != "b" {
			t.Errorf("destination content changed: %q", got)
		}
	})
}

func TestRealFS_Copy(t *testing.T) {
	fs := &RealFS{}

	t.Run("copies directory and preserves nested symlinks", func(t *testing.T) {
		tmpDir := t.TempDir()
		src := filepath.Join(tmpDir, "actions_stubs")
		writeFile(t, filepath.Join(src, "threads.ts"), "export {}")
		writeFile(t, filepath.Join(src, "nested", "teams.ts"), "export const teams = []")
		if err := os.Symlink("threads.ts", filepath.Join(src, "alias.ts")); err != nil {
			t.Fatalf("failed to create symlink: %v", err)
		}

		dst := filepath.Join(tmpDir, "src", "lib", "actions")
		if err := fs.Copy(src, dst); err != nil {
			t.Fatalf("Copy failed: %v", err)
		}

		if got := readFile(t, filepath.Join(dst, "nested", "teams.ts")); got != "export const teams = []" {
			t.Errorf("nested content = %q", got)
		}
		target, err := os.Readlink(filepath.Join(dst, "alias.ts"))
		if err != nil {
			t.Fatalf("expected alias.ts to stay a symlink: %v", err)
		}
		if target != "threads.ts" {
			t.Errorf("symlink target = %q, want threads.ts", target)
		}
	})

	t.Run("follows symlink at the root", func(t *testing.T) {
		tmpDir := t.TempDir()
		real := filepath.Join(tmpDir, "stub.ts")
		writeFile(t, real, "stub")
		link := filepath.Join(tmpDir, "stub-link.ts")
		if err := os.Symlink(real, link); err != nil {
			t.Fatalf("failed to create symlink: %v", err)
		}

		dst := filepath.Join(tmpDir, "out", "stub.ts")
		if err := fs.Copy(link, dst); err != nil {
			t.Fatalf("Copy failed: %v", err)
		}

		info, err := os.Lstat(dst)
		if err != nil {
			t.Fatalf("failed to stat copy: %v", err)
		}
		if info.Mode()&os.ModeSymlink != 0 {
			t.Error("root symlink should be materialized as a regular file")
		}
		if got := readFile(t, dst); got != "stub" {
			t.Errorf("copied content = %q", got)
		}
	})
}

func TestRealFS_AtomicWrite(t *testing.T) {
	fs := &RealFS{}
	tmpDir := t.TempDir()

	t.Run("write to new file", func(t *testing.T) {
		testFile := filepath.Join(tmpDir, "nested", "manifest.yaml")
		if err := fs.AtomicWrite(testFile, []byte("entries: []\n"), 0644); err != nil {
			t.Fatalf("AtomicWrite failed: %v", err)
		}
		if got := readFile(t, testFile); got != "entries: []\n" {
			t.Errorf("file content = %q", got)
		}
	})

	t.Run("overwrite existing file", func(t *testing.T) {
		testFile := filepath.Join(tmpDir, "overwrite.txt")
		writeFile(t, testFile, "initial")

		if err := fs.AtomicWrite(testFile, []byte("overwritten"), 0644); err != nil {
			t.Fatalf("AtomicWrite failed: %v", err)
		}
		if got := readFile(t, testFile); got != "overwritten" {
			t.Errorf("file content not updated: %q", got)
		}
	})
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("failed to create dir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write %s: %v", path, err)
	}
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read %s: %v", path, err)
	}
	return string(data)
}
