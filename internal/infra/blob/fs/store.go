// Package fs keeps sensor exports as plain files under one directory. All
// access goes through an os.Root so keys cannot reach outside it.
//
// Acquisition tooling often drops exports into the directory by hand, so a
// file without a .meta sidecar is still a valid object; its size and mtime
// are taken from the file itself.
package fs

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	iofs "io/fs"
	"os"
	"path"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"neosweat/internal/blob/core"
)

const (
	sidecarExt = ".meta"
	partialExt = ".partial"
)

// DefaultRoot is used when no directory is configured.
const DefaultRoot = "./blobdata"

type Store struct {
	dir  string
	root *os.Root
}

// New opens dir as an export root, creating it first when missing.
func New(dir string) (*Store, error) {
	if dir == "" {
		dir = DefaultRoot
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create export root: %w", err)
	}
	root, err := os.OpenRoot(dir)
	if err != nil {
		return nil, fmt.Errorf("open export root: %w", err)
	}
	return &Store{dir: dir, root: root}, nil
}

func (s *Store) Driver() core.Driver { return core.DriverFilesystem }

func (s *Store) Root() string { return s.dir }

func (s *Store) Close() error { return s.root.Close() }

// sidecar is the JSON written next to every object stored through Put.
type sidecar struct {
	ContentType string            `json:"content_type,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	ETag        string            `json:"etag"`
	Size        int64             `json:"size"`
	StoredAt    time.Time         `json:"stored_at"`
}

func (m sidecar) info(key string) core.Info {
	return core.Info{
		Key:          key,
		Size:         m.Size,
		ContentType:  m.ContentType,
		ETag:         m.ETag,
		Metadata:     core.CloneMetadata(m.Metadata),
		LastModified: m.StoredAt,
	}
}

// cleanKey turns a key into a slash-separated path relative to the root.
func cleanKey(key string) (string, error) {
	switch {
	case strings.TrimSpace(key) == "":
		return "", errors.New("blob key is empty")
	case path.IsAbs(key):
		return "", fmt.Errorf("blob key %q is absolute", key)
	case strings.HasSuffix(key, sidecarExt), strings.HasSuffix(key, partialExt):
		return "", fmt.Errorf("blob key %q uses a reserved suffix", key)
	}
	for _, part := range strings.Split(key, "/") {
		if part == ".." {
			return "", fmt.Errorf("blob key %q leaves the export root", key)
		}
	}
	return path.Clean(key), nil
}

func (s *Store) Put(ctx context.Context, key string, r io.Reader, opts core.PutOptions) (core.Info, error) {
	name, err := cleanKey(key)
	if err != nil {
		return core.Info{}, err
	}
	if _, err := s.root.Stat(name); err == nil {
		return core.Info{}, core.Exists(key)
	}
	if dir := path.Dir(name); dir != "." {
		if err := s.root.MkdirAll(dir, 0o755); err != nil {
			return core.Info{}, err
		}
	}

	partial := path.Join(path.Dir(name), uuid.NewString()+partialExt)
	size, etag, err := s.writePartial(ctx, partial, r)
	if err != nil {
		_ = s.root.Remove(partial)
		return core.Info{}, err
	}
	// Link refuses an existing target, so concurrent Puts of one key cannot
	// overwrite each other the way a rename would.
	err = s.root.Link(partial, name)
	_ = s.root.Remove(partial)
	if errors.Is(err, iofs.ErrExist) {
		return core.Info{}, core.Exists(key)
	}
	if err != nil {
		return core.Info{}, err
	}

	meta := sidecar{
		ContentType: opts.ContentType,
		Metadata:    core.CloneMetadata(opts.Metadata),
		ETag:        etag,
		Size:        size,
		StoredAt:    time.Now().UTC(),
	}
	raw, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return core.Info{}, err
	}
	if err := s.root.WriteFile(name+sidecarExt, raw, 0o644); err != nil {
		return core.Info{}, err
	}
	return meta.info(key), nil
}

// writePartial streams r into a temporary file and returns its size and sha256.
func (s *Store) writePartial(ctx context.Context, name string, r io.Reader) (int64, string, error) {
	f, err := s.root.OpenFile(name, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return 0, "", err
	}
	h := sha256.New()
	size, err := io.Copy(io.MultiWriter(f, h), r)
	if err == nil {
		err = ctx.Err()
	}
	if err == nil {
		err = f.Sync()
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return 0, "", err
	}
	return size, hex.EncodeToString(h.Sum(nil)), nil
}

func (s *Store) Get(_ context.Context, key string) (core.Info, io.ReadCloser, error) {
	name, err := cleanKey(key)
	if err != nil {
		return core.Info{}, nil, err
	}
	f, err := s.root.Open(name)
	if errors.Is(err, iofs.ErrNotExist) {
		return core.Info{}, nil, core.NotFound(key)
	}
	if err != nil {
		return core.Info{}, nil, err
	}
	info, err := s.stat(key, name)
	if err != nil {
		_ = f.Close()
		return core.Info{}, nil, err
	}
	return info, f, nil
}

func (s *Store) Delete(_ context.Context, key string) (bool, error) {
	name, err := cleanKey(key)
	if err != nil {
		return false, err
	}
	if err := s.root.Remove(name); err != nil {
		if errors.Is(err, iofs.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	if err := s.root.Remove(name + sidecarExt); err != nil && !errors.Is(err, iofs.ErrNotExist) {
		return true, err
	}
	return true, nil
}

func (s *Store) List(ctx context.Context, prefix string) ([]core.Info, error) {
	var out []core.Info
	err := iofs.WalkDir(s.root.FS(), ".", func(name string, d iofs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() || strings.HasSuffix(name, sidecarExt) || strings.HasSuffix(name, partialExt) {
			return nil
		}
		if !strings.HasPrefix(name, prefix) {
			return nil
		}
		info, err := s.stat(name, name)
		if err != nil {
			return err
		}
		out = append(out, info)
		return nil
	})
	if err != nil {
		return nil, err
	}
	slices.SortFunc(out, func(a, b core.Info) int { return strings.Compare(a.Key, b.Key) })
	return out, nil
}

// stat reads the sidecar for name, or falls back to the file's own attributes.
func (s *Store) stat(key, name string) (core.Info, error) {
	raw, err := s.root.ReadFile(name + sidecarExt)
	switch {
	case err == nil:
		var meta sidecar
		if err := json.Unmarshal(raw, &meta); err != nil {
			return core.Info{}, fmt.Errorf("decode sidecar for %s: %w", key, err)
		}
		return meta.info(key), nil
	case !errors.Is(err, iofs.ErrNotExist):
		return core.Info{}, err
	}
	st, err := s.root.Stat(name)
	if err != nil {
		return core.Info{}, err
	}
	return core.Info{Key: key, Size: st.Size(), LastModified: st.ModTime().UTC()}, nil
}
