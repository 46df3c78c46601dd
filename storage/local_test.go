package storage

import (
	"context"
	"io"
	"strings"
	"testing"
)

func TestSaveOpenDelete(t *testing.T) {
	s, err := NewLocal(t.TempDir(), "http://localhost:8080")
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	ref, err := s.Save(ctx, strings.NewReader("hello"), "report.pdf")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasSuffix(ref, ".pdf") {
		t.Errorf("ref = %q, want the original extension kept", ref)
	}
	if strings.Contains(ref, "report") {
		t.Errorf("ref = %q, must not leak the original filename", ref)
	}

	f, err := s.Open(ctx, ref)
	if err != nil {
		t.Fatal(err)
	}
	data, err := io.ReadAll(f)
	f.Close()
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "hello" {
		t.Errorf("content = %q", data)
	}

	if got := s.URL(ref); got != "http://localhost:8080/files/"+ref {
		t.Errorf("URL = %q", got)
	}

	if err := s.Delete(ctx, ref); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Open(ctx, ref); err == nil {
		t.Fatal("deleted file should not open")
	}
	// Deleting again is a no-op.
	if err := s.Delete(ctx, ref); err != nil {
		t.Fatalf("repeat delete: %v", err)
	}
}

func TestRejectsTraversalRefs(t *testing.T) {
	s, err := NewLocal(t.TempDir(), "http://localhost:8080")
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	for _, ref := range []string{"", "../secret", "a/b.pdf"} {
		if _, err := s.Open(ctx, ref); err == nil {
			t.Errorf("Open(%q) should be rejected", ref)
		}
		if err := s.Delete(ctx, ref); err == nil {
			t.Errorf("Delete(%q) should be rejected", ref)
		}
	}
}
