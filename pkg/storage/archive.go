package storage

import (
	"bytes"
	"context"
	"errors"
	"path"
	"strings"
	"time"
)

var ErrNotArchived = errors.New("document not archived")

const defaultPresignExpiry = 15 * time.Minute

// Archive keeps normalized PDFs under a key prefix.
type Archive struct {
	store  ObjectStore
	prefix string
	expiry time.Duration
}

// NewArchive wraps store. A non-positive expiry selects 15 minutes.
func NewArchive(store ObjectStore, prefix string, expiry time.Duration) *Archive {
	if expiry <= 0 {
		expiry = defaultPresignExpiry
	}
	return &Archive{store: store, prefix: strings.Trim(prefix, "/"), expiry: expiry}
}

// Key is the object key for a normalized document name.
func (a *Archive) Key(fileName string) string {
	name := path.Base(strings.ReplaceAll(fileName, "\\", "/"))
	if a.prefix == "" {
		return name
	}
	return a.prefix + "/" + name
}

// Save stores a normalized PDF.
func (a *Archive) Save(ctx context.Context, fileName string, data []byte) error {
	return a.store.Put(ctx, a.Key(fileName), bytes.NewReader(data), int64(len(data)), "application/pdf")
}

// DownloadURL returns a presigned URL for an archived document.
func (a *Archive) DownloadURL(ctx context.Context, fileName string) (string, error) {
	key := a.Key(fileName)
	ok, err := a.store.Exists(ctx, key)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", ErrNotArchived
	}
	return a.store.PresignGet(ctx, key, path.Base(key), a.expiry)
}
