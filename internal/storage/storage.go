// Package storage fetches dataset bytes and writes run artifacts.
//
// Datasets are addressed by locator: "s3://bucket/key" reads from the object
// store, anything else is a local path read through a billy filesystem.
package storage

import (
	"context"
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"strings"
)

var (
	// ErrNotFound is returned when the dataset or object does not exist.
	ErrNotFound = errors.New("object not found")

	// ErrTooLarge is returned when a dataset exceeds the configured size limit.
	ErrTooLarge = errors.New("object exceeds size limit")

	// ErrNoObjectStore is returned for s3:// locators when no S3 client is configured.
	ErrNoObjectStore = errors.New("object store not configured")

	// ErrLocalDisabled is returned for local locators when no local
	// filesystem is configured.
	ErrLocalDisabled = errors.New("local datasets are not enabled")

	// ErrOutsideRoot is returned for local keys that are absolute or escape
	// the data root.
	ErrOutsideRoot = errors.New("path escapes the data root")
)

const s3Scheme = "s3://"

// Locator identifies a dataset.
type Locator struct {
	Bucket string // empty for local files
	Key    string // object key, or local path when Bucket is empty; templates resolve on it
}

// ParseLocator parses raw into a Locator.
func ParseLocator(raw string) (Locator, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Locator{}, errors.New("empty dataset locator")
	}

	if !strings.HasPrefix(strings.ToLower(raw), s3Scheme) {
		return Locator{Key: raw}, nil
	}

	rest := raw[len(s3Scheme):]
	bucket, key, ok := strings.Cut(rest, "/")
	if !ok || bucket == "" || key == "" {
		return Locator{}, fmt.Errorf("invalid s3 locator %q: want s3://bucket/key", raw)
	}
	return Locator{Bucket: bucket, Key: key}, nil
}

// Remote reports whether the locator points at the object store.
func (l Locator) Remote() bool { return l.Bucket != "" }

// Name returns the final path element, used to name routed artifacts.
func (l Locator) Name() string {
	if l.Remote() {
		return path.Base(l.Key)
	}
	return filepath.Base(l.Key)
}

func (l Locator) String() string {
	if l.Remote() {
		return s3Scheme + l.Bucket + "/" + l.Key
	}
	return l.Key
}

// Sink receives run artifacts under slash-separated keys.
type Sink interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
}
