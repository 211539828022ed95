package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
)

// DataFS returns a filesystem bound to root. Reads through it cannot leave
// root, including via symlinks.
func DataFS(root string) (billy.Filesystem, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("data root %q: %w", root, err)
	}
	return osfs.New(abs, osfs.WithBoundOS()), nil
}

// HostFS returns the whole host filesystem, for callers that name files by
// host path (see Fetcher.WithHostPaths).
func HostFS() billy.Filesystem {
	return osfs.New(string(filepath.Separator), osfs.WithBoundOS())
}

// LocalPath cleans a local dataset key and rejects keys that are absolute or
// climb out of the data root.
func LocalPath(key string) (string, error) {
	p := filepath.ToSlash(strings.TrimSpace(key))
	if p == "" {
		return "", errors.New("empty dataset locator")
	}
	if path.IsAbs(p) || filepath.IsAbs(key) || filepath.VolumeName(key) != "" {
		return "", fmt.Errorf("%s: %w", key, ErrOutsideRoot)
	}
	p = path.Clean(p)
	if p == ".." || strings.HasPrefix(p, "../") {
		return "", fmt.Errorf("%s: %w", key, ErrOutsideRoot)
	}
	return p, nil
}

// Fetcher retrieves dataset bytes by locator.
type Fetcher struct {
	s3        S3API
	local     billy.Filesystem
	maxSize   int64
	hostPaths bool
}

// NewFetcher returns a fetcher. Local keys are read from local, relative to
// its root; absolute keys and keys containing ".." that escape the root are
// refused. api or local may be nil to disable that source; maxSize <= 0
// disables the size check.
func NewFetcher(api S3API, local billy.Filesystem, maxSize int64) *Fetcher {
	return &Fetcher{s3: api, local: local, maxSize: maxSize}
}

// WithHostPaths makes local keys host paths, resolved against the working
// directory. local must then be rooted at the host root (see HostFS).
func (f *Fetcher) WithHostPaths() *Fetcher {
	f.hostPaths = true
	return f
}

// Fetch reads the whole dataset.
func (f *Fetcher) Fetch(ctx context.Context, loc Locator) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if loc.Remote() {
		if f.s3 == nil {
			return nil, fmt.Errorf("%s: %w", loc, ErrNoObjectStore)
		}
		return getObject(ctx, f.s3, loc.Bucket, loc.Key, f.maxSize)
	}
	return f.readFile(loc.Key)
}

func (f *Fetcher) localPath(key string) (string, error) {
	if f.hostPaths {
		return filepath.Abs(key)
	}
	return LocalPath(key)
}

func (f *Fetcher) readFile(key string) ([]byte, error) {
	if f.local == nil {
		return nil, fmt.Errorf("%s: %w", key, ErrLocalDisabled)
	}
	name, err := f.localPath(key)
	if err != nil {
		return nil, err
	}

	info, err := f.local.Stat(name)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%s: %w", key, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("stat dataset: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s is a directory: %w", key, ErrNotFound)
	}
	if f.maxSize > 0 && info.Size() > f.maxSize {
		return nil, fmt.Errorf("%s: %w (%d > %d bytes)", key, ErrTooLarge, info.Size(), f.maxSize)
	}

	file, err := f.local.Open(name)
	if err != nil {
		return nil, fmt.Errorf("open dataset: %w", err)
	}
	defer file.Close()

	data, err := readLimited(file, f.maxSize)
	if err != nil {
		return nil, fmt.Errorf("read dataset %s: %w", key, err)
	}
	return data, nil
}

// DirSink writes artifacts into a filesystem, usually one chrooted at the
// output directory.
type DirSink struct {
	fs billy.Filesystem
}

// NewDirSink returns a sink writing below the root of fs.
func NewDirSink(fs billy.Filesystem) *DirSink {
	return &DirSink{fs: fs}
}

// Put writes data to key, creating parent directories.
func (d *DirSink) Put(_ context.Context, key string, data []byte, _ string) error {
	if dir := path.Dir(key); dir != "." {
		if err := d.fs.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}
	}

	file, err := d.fs.OpenFile(key, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("create %s: %w", key, err)
	}
	if _, err := file.Write(data); err != nil {
		file.Close()
		return fmt.Errorf("write %s: %w", key, err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("close %s: %w", key, err)
	}
	return nil
}

func (d *DirSink) String() string { return d.fs.Root() }
