// Package storage reads and writes voicegate assets: deepfake classifier
// weights and exported profile backups. A location is either a local path
// or an object in an S3-compatible bucket, written as s3://bucket/key.
package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path"
	"path/filepath"
	"strings"
)

// FileStore is a minimal interface for file-oriented storage.
//
// Paths are forward-slash separated and relative to the store root.
// Implementations must be safe for concurrent use.
type FileStore interface {
	// Read opens the named file for reading. The caller must close it.
	// A missing file yields an error wrapping os.ErrNotExist.
	Read(ctx context.Context, path string) (io.ReadCloser, error)

	// Write opens the named file for writing, truncating it. Parent
	// directories are created. Data is committed on Close.
	Write(ctx context.Context, path string) (io.WriteCloser, error)

	// Delete removes the named file. Missing files are not an error.
	Delete(ctx context.Context, path string) error

	// Exists reports whether the named file exists.
	Exists(ctx context.Context, path string) (bool, error)
}

// Location is a parsed asset URI.
type Location struct {
	// Bucket is set for s3:// locations and empty for local paths.
	Bucket string

	// Path is the object key for S3 or the filesystem path otherwise.
	Path string
}

// IsS3 reports whether l names an S3 object.
func (l Location) IsS3() bool { return l.Bucket != "" }

func (l Location) String() string {
	if l.IsS3() {
		return "s3://" + l.Bucket + "/" + l.Path
	}
	return l.Path
}

// ParseURI parses a local path or an s3://bucket/key URI.
func ParseURI(uri string) (Location, error) {
	if uri == "" {
		return Location{}, errors.New("storage: empty location")
	}
	if !strings.HasPrefix(uri, "s3://") {
		return Location{Path: uri}, nil
	}
	u, err := url.Parse(uri)
	if err != nil {
		return Location{}, fmt.Errorf("storage: parse %q: %w", uri, err)
	}
	key := strings.TrimPrefix(u.Path, "/")
	if u.Host == "" || key == "" || strings.HasSuffix(key, "/") {
		return Location{}, fmt.Errorf("storage: %q must name an object as s3://bucket/key", uri)
	}
	return Location{Bucket: u.Host, Path: key}, nil
}

// Resolver opens the store holding a location.
type Resolver struct {
	// S3 is the client used for s3:// locations. Nil makes them an error.
	S3 S3Client
}

// Open returns the store holding loc and the file name within it.
func (r Resolver) Open(loc Location) (FileStore, string, error) {
	if loc.IsS3() {
		if r.S3 == nil {
			return nil, "", fmt.Errorf("storage: %s: no S3 client configured", loc)
		}
		dir, name := path.Split(loc.Path)
		return NewS3(r.S3, loc.Bucket, strings.TrimSuffix(dir, "/")), name, nil
	}
	abs, err := filepath.Abs(loc.Path)
	if err != nil {
		return nil, "", err
	}
	return NewLocal(filepath.Dir(abs)), filepath.Base(abs), nil
}

// ReadFile reads the whole file at uri.
func (r Resolver) ReadFile(ctx context.Context, uri string) ([]byte, error) {
	loc, err := ParseURI(uri)
	if err != nil {
		return nil, err
	}
	fs, name, err := r.Open(loc)
	if err != nil {
		return nil, err
	}
	rc, err := fs.Read(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("storage: read %s: %w", loc, err)
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("storage: read %s: %w", loc, err)
	}
	return data, nil
}

// WriteFile replaces the file at uri with data.
func (r Resolver) WriteFile(ctx context.Context, uri string, data []byte) error {
	loc, err := ParseURI(uri)
	if err != nil {
		return err
	}
	fs, name, err := r.Open(loc)
	if err != nil {
		return err
	}
	w, err := fs.Write(ctx, name)
	if err != nil {
		return fmt.Errorf("storage: write %s: %w", loc, err)
	}
	if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
		w.Close()
		return fmt.Errorf("storage: write %s: %w", loc, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("storage: write %s: %w", loc, err)
	}
	return nil
}
