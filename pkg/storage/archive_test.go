package storage

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestArchiveKeyUsesBaseName(t *testing.T) {
	a := NewArchive(NewMemoryStore(), "/documents/", 0)
	cases := map[string]string{
		"book.pdf":             "documents/book.pdf",
		"../../etc/passwd":     "documents/passwd",
		`dir\nested\novel.pdf`: "documents/novel.pdf",
	}
	for in, want := range cases {
		if got := a.Key(in); got != want {
			t.Fatalf("Key(%q) = %q, want %q", in, got, want)
		}
	}
	if got := NewArchive(NewMemoryStore(), "", 0).Key("a.pdf"); got != "a.pdf" {
		t.Fatalf("Key without prefix = %q", got)
	}
}

func TestArchiveSaveAndDownload(t *testing.T) {
	ctx := context.Background()
	mem := NewMemoryStore()
	a := NewArchive(mem, "docs", time.Minute)

	if _, err := a.DownloadURL(ctx, "missing.pdf"); !errors.Is(err, ErrNotArchived) {
		t.Fatalf("DownloadURL missing: err = %v", err)
	}
	if err := a.Save(ctx, "Dune.pdf", []byte("%PDF-1.4")); err != nil {
		t.Fatalf("Save: %v", err)
	}
	data, contentType, ok := mem.Object("docs/Dune.pdf")
	if !ok || string(data) != "%PDF-1.4" || contentType != "application/pdf" {
		t.Fatalf("stored object = %q %q %v", data, contentType, ok)
	}
	url, err := a.DownloadURL(ctx, "Dune.pdf")
	if err != nil {
		t.Fatalf("DownloadURL: %v", err)
	}
	if !strings.HasPrefix(url, "memory://objects/docs/Dune.pdf") || !strings.Contains(url, "expires=1m0s") {
		t.Fatalf("url = %q", url)
	}
	if !strings.Contains(url, "response-content-disposition=attachment") || !strings.Contains(url, "Dune.pdf%22") {
		t.Fatalf("url = %q", url)
	}
}
