package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"mealgen/internal/domain"
)

func TestFileStorePutReturnsPublicURL(t *testing.T) {
	dir := t.TempDir()
	fs, err := NewFileStore(dir, "http://localhost:8080/static/")
	if err != nil {
		t.Fatalf("NewFileStore returned error: %v", err)
	}

	url, err := fs.Put(context.Background(), "meals/b1/0/3.png", []byte("png"), "image/png")
	if err != nil {
		t.Fatalf("Put returned error: %v", err)
	}
	if url != "http://localhost:8080/static/meals/b1/0/3.png" {
		t.Fatalf("url = %q", url)
	}
	data, err := os.ReadFile(filepath.Join(dir, "meals", "b1", "0", "3.png"))
	if err != nil || string(data) != "png" {
		t.Fatalf("stored file: %q, %v", data, err)
	}
}

func TestFileStoreRejectsTraversal(t *testing.T) {
	fs, err := NewFileStore(t.TempDir(), "")
	if err != nil {
		t.Fatalf("NewFileStore returned error: %v", err)
	}
	for _, key := range []string{"", "../escape.png", "a/../../escape.png"} {
		if _, err := fs.Put(context.Background(), key, []byte("x"), "image/png"); err == nil {
			t.Fatalf("expected error for key %q", key)
		}
	}
}

func TestFileStorePutEmpty(t *testing.T) {
	fs, _ := NewFileStore(t.TempDir(), "")
	if _, err := fs.Put(context.Background(), "a.png", nil, "image/png"); err == nil {
		t.Fatal("expected error for empty object")
	}
}

func TestFileStoreHonoursCancelledContext(t *testing.T) {
	fs, _ := NewFileStore(t.TempDir(), "")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := fs.Put(ctx, "a.png", []byte("x"), "image/png"); err == nil {
		t.Fatal("expected context error")
	}
}

func TestFileStoreReadsBackIssuedURLs(t *testing.T) {
	fs, err := NewFileStore(t.TempDir(), "http://localhost:8080/static")
	if err != nil {
		t.Fatalf("NewFileStore returned error: %v", err)
	}
	url, err := fs.Put(context.Background(), "meals/b1/1/7.png", []byte("png"), "image/png")
	if err != nil {
		t.Fatalf("Put returned error: %v", err)
	}
	key, ok := fs.KeyFromURL(url)
	if !ok || key != "meals/b1/1/7.png" {
		t.Fatalf("KeyFromURL(%q) = %q, %v", url, key, ok)
	}
	data, err := fs.Read(context.Background(), key)
	if err != nil || string(data) != "png" {
		t.Fatalf("Read = %q, %v", data, err)
	}

	if _, ok := fs.KeyFromURL("https://cdn.example.com/meals/b1/1/7.png"); ok {
		t.Fatalf("foreign URL should not map to a key")
	}
	if _, err := fs.Read(context.Background(), "meals/missing.png"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("Read missing = %v, want ErrNotFound", err)
	}
}
