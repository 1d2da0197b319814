// Package upload stores uploaded mockup images on local disk, optionally
// mirrored to S3-compatible object storage.
package upload

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	ErrNotFound   = errors.New("upload not found")
	ErrInvalidRef = errors.New("invalid image reference")
)

// extensions maps supported media types to file extensions.
var extensions = map[string]string{
	"image/png":  ".png",
	"image/jpeg": ".jpg",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

// File describes one stored upload.
type File struct {
	Ref     string
	Size    int64
	ModTime time.Time
}

// Dir is a directory of uploads named "<ULID><ext>".
type Dir struct {
	root   string
	mirror Mirror
}

// NewDir creates the directory if needed. A nil mirror means local-only.
func NewDir(root string, mirror Mirror) (*Dir, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("create uploads directory: %w", err)
	}
	if mirror == nil {
		mirror = NoopMirror{}
	}
	return &Dir{root: root, mirror: mirror}, nil
}

// ValidRef reports whether ref is a well-formed upload name.
func ValidRef(ref string) bool {
	id, ext, ok := strings.Cut(ref, ".")
	if !ok {
		return false
	}
	if _, err := ulid.ParseStrict(id); err != nil {
		return false
	}
	for _, e := range extensions {
		if "."+ext == e {
			return true
		}
	}
	return false
}

// Save writes data under a new reference and mirrors it. A mirror failure is
// logged and does not fail the save.
func (d *Dir) Save(ctx context.Context, data []byte, mediaType string) (string, error) {
	ext, ok := extensions[mediaType]
	if !ok {
		return "", fmt.Errorf("%w: unsupported media type %q", ErrInvalidRef, mediaType)
	}
	ref := ulid.Make().String() + ext

	// Write then rename so the sweeper never sees a partial file.
	tmp, err := os.CreateTemp(d.root, ".upload-*")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("write upload: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("close upload: %w", err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(d.root, ref)); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("rename upload: %w", err)
	}

	if err := d.mirror.Put(ctx, ref, data, mediaType); err != nil {
		slog.Warn("upload mirror failed",
			"component", "upload",
			"ref", ref,
			"error", err,
		)
	}
	return ref, nil
}

// Load reads a stored upload.
func (d *Dir) Load(ref string) ([]byte, error) {
	if !ValidRef(ref) {
		return nil, ErrInvalidRef
	}
	data, err := os.ReadFile(filepath.Join(d.root, ref))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("read upload: %w", err)
	}
	return data, nil
}

// Exists reports whether ref names a stored upload.
func (d *Dir) Exists(ref string) bool {
	if !ValidRef(ref) {
		return false
	}
	_, err := os.Stat(filepath.Join(d.root, ref))
	return err == nil
}

// List returns every stored upload ordered by reference.
func (d *Dir) List() ([]File, error) {
	entries, err := os.ReadDir(d.root)
	if err != nil {
		return nil, fmt.Errorf("read uploads directory: %w", err)
	}
	files := []File{}
	for _, e := range entries {
		if e.IsDir() || !ValidRef(e.Name()) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		files = append(files, File{Ref: e.Name(), Size: info.Size(), ModTime: info.ModTime()})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Ref < files[j].Ref })
	return files, nil
}

// Remove deletes an upload locally and from the mirror. A mirror failure is
// logged and does not fail the removal.
func (d *Dir) Remove(ctx context.Context, ref string) error {
	if !ValidRef(ref) {
		return ErrInvalidRef
	}
	if err := os.Remove(filepath.Join(d.root, ref)); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return ErrNotFound
		}
		return fmt.Errorf("remove upload: %w", err)
	}
	if err := d.mirror.Remove(ctx, ref); err != nil {
		slog.Warn("upload mirror removal failed",
			"component", "upload",
			"ref", ref,
			"error", err,
		)
	}
	return nil
}

// PresignedURL returns a download link from the mirror.
func (d *Dir) PresignedURL(ctx context.Context, ref string) (string, time.Time, error) {
	if !d.Exists(ref) {
		return "", time.Time{}, ErrNotFound
	}
	return d.mirror.PresignedURL(ctx, ref)
}
