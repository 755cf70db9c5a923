package storage

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLocal_Save(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "uploads")
	store, err := NewLocal(dir)
	if err != nil {
		t.Fatalf("NewLocal: %v", err)
	}

	att, err := store.Save("../../etc/Photo.PNG", "image/png", strings.NewReader("abc"))
	if err != nil {
		t.Fatalf("Save: %v", err)
	}

	if !strings.HasSuffix(att.FileName, ".png") {
		t.Errorf("FileName = %q, want .png suffix", att.FileName)
	}
	if att.OriginalName != "Photo.PNG" {
		t.Errorf("OriginalName = %q, want Photo.PNG", att.OriginalName)
	}
	if att.Size != 3 {
		t.Errorf("Size = %d, want 3", att.Size)
	}
	if att.URL != URLPrefix+att.FileName {
		t.Errorf("URL = %q", att.URL)
	}

	data, err := os.ReadFile(filepath.Join(dir, att.FileName))
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(data) != "abc" {
		t.Errorf("stored content = %q, want abc", data)
	}

	if err := store.Remove(att.FileName); err != nil {
		t.Errorf("Remove: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, att.FileName)); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Expected file to be removed, stat err = %v", err)
	}
}

func TestLocal_SaveDefaultsContentType(t *testing.T) {
	t.Parallel()

	store, err := NewLocal(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocal: %v", err)
	}
	att, err := store.Save("notes", "", strings.NewReader(""))
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if att.ContentType != "application/octet-stream" {
		t.Errorf("ContentType = %q", att.ContentType)
	}
	if strings.Contains(att.FileName, ".") {
		t.Errorf("Expected no extension, got %q", att.FileName)
	}
}

func TestLocal_RemoveRejectsPaths(t *testing.T) {
	t.Parallel()

	store, err := NewLocal(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocal: %v", err)
	}
	for _, name := range []string{"", "../x", "a/b", ".hidden"} {
		if err := store.Remove(name); !errors.Is(err, ErrInvalidName) {
			t.Errorf("Remove(%q) = %v, want ErrInvalidName", name, err)
		}
	}
}

func TestSanitizeExt(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in, want string
	}{
		{"a.JPG", ".jpg"},
		{"archive.tar.gz", ".gz"},
		{"noext", ""},
		{"weird.p$p", ""},
		{"long.abcdefghijklmnop", ""},
		{"dir\\file.txt", ".txt"},
		{"trailing.", ""},
	}

	for _, tt := range tests {
		if got := sanitizeExt(tt.in); got != tt.want {
			t.Errorf("sanitizeExt(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNewLocal_Empty(t *testing.T) {
	t.Parallel()

	if _, err := NewLocal(""); err == nil {
		t.Error("Expected error for empty directory")
	}
}
