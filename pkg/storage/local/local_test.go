package local

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestPutStreamWritesFile(t *testing.T) {
	root := t.TempDir()
	store := New(root)

	result, err := store.PutStream(context.Background(), "12/2024-05-01/325708", strings.NewReader("jpeg"), -1, "image/jpeg")
	if err != nil {
		t.Fatalf("PutStream error: %v", err)
	}
	if !result.OK() || result.Size != 4 {
		t.Fatalf("result = %+v, want OK with 4 bytes", result)
	}

	data, err := os.ReadFile(filepath.Join(root, "12", "2024-05-01", "325708"))
	if err != nil {
		t.Fatalf("read stored file: %v", err)
	}
	if string(data) != "jpeg" {
		t.Fatalf("stored content = %q, want %q", data, "jpeg")
	}

	url, err := store.SignedURL(context.Background(), "12/2024-05-01/325708", time.Minute)
	if err != nil {
		t.Fatalf("SignedURL error: %v", err)
	}
	if !strings.HasPrefix(url, "file://") {
		t.Fatalf("SignedURL = %q, want file URL", url)
	}
}

func TestPutStreamRejectsEscapingKeys(t *testing.T) {
	store := New(t.TempDir())
	for _, key := range []string{"../etc/passwd", "/abs", ""} {
		if _, err := store.PutStream(context.Background(), key, strings.NewReader("x"), 1, ""); err == nil {
			t.Fatalf("PutStream(%q) succeeded, want error", key)
		}
	}
}
