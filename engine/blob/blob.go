package blob

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

const fileWriteFlags = os.O_WRONLY | os.O_CREATE | os.O_TRUNC

// ErrNotFound is returned when no blob exists for a document id.
var ErrNotFound = errors.New("blob: not found")

// Store keeps the raw uploaded bytes of each document so ingestion can be
// replayed without a second upload. Blobs are addressed by document id.
type Store struct {
	fs  afero.Fs
	dir string
}

// NewStore roots a blob store at dir on the given filesystem.
func NewStore(fs afero.Fs, dir string) (*Store, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("blob: directory is required")
	}
	dir = filepath.Clean(dir)
	if err := fs.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("blob: ensure directory: %w", err)
	}
	return &Store{fs: fs, dir: dir}, nil
}

// NewOSStore roots a blob store at dir on the host filesystem.
func NewOSStore(dir string) (*Store, error) {
	return NewStore(afero.NewOsFs(), dir)
}

// Save writes the blob for a document, replacing any previous content. The
// write goes through a temp file so readers never observe a partial blob.
func (s *Store) Save(id string, r io.Reader) (int64, error) {
	path, err := s.path(id)
	if err != nil {
		return 0, err
	}
	tmp := path + ".tmp"
	file, err := s.fs.OpenFile(tmp, fileWriteFlags, 0o600)
	if err != nil {
		return 0, fmt.Errorf("blob: create %q: %w", id, err)
	}
	written, copyErr := io.Copy(file, r)
	closeErr := file.Close()
	if copyErr != nil {
		return 0, fmt.Errorf("blob: write %q: %w", id, copyErr)
	}
	if closeErr != nil {
		return 0, fmt.Errorf("blob: close %q: %w", id, closeErr)
	}
	if err := s.fs.Rename(tmp, path); err != nil {
		return 0, fmt.Errorf("blob: commit %q: %w", id, err)
	}
	return written, nil
}

// Open returns a reader over the stored blob and its size.
func (s *Store) Open(id string) (io.ReadSeekCloser, int64, error) {
	path, err := s.path(id)
	if err != nil {
		return nil, 0, err
	}
	info, err := s.fs.Stat(path)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	file, err := s.fs.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("blob: open %q: %w", id, err)
	}
	return file, info.Size(), nil
}

// Location returns the path a document's blob is stored at.
func (s *Store) Location(id string) (string, error) {
	return s.path(id)
}

// Remove deletes the blob for a document. Removing a missing blob is not an
// error.
func (s *Store) Remove(id string) error {
	path, err := s.path(id)
	if err != nil {
		return err
	}
	err = s.fs.Remove(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) && !errors.Is(err, afero.ErrFileNotFound) {
		return fmt.Errorf("blob: remove %q: %w", id, err)
	}
	return nil
}

func (s *Store) path(id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" || id != filepath.Base(id) {
		return "", fmt.Errorf("blob: invalid id %q", id)
	}
	return filepath.Join(s.dir, id+".pdf"), nil
}
