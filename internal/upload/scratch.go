package upload

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
)

// ScratchStore owns the directory holding per-request upload copies.
type ScratchStore struct {
	dir string
}

// NewScratchStore creates dir when it does not exist yet.
func NewScratchStore(dir string) (*ScratchStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create scratch dir %s: %w", dir, err)
	}
	return &ScratchStore{dir: dir}, nil
}

func (s *ScratchStore) Dir() string {
	return s.dir
}

// ScratchFile is one saved upload. Remove deletes it at most once.
type ScratchFile struct {
	Path   string
	Token  string
	Name   string
	Size   int64
	SHA256 string

	once      sync.Once
	removeErr error
}

// Save copies src into a new scratch file named after a fresh uuid token and
// the sanitized client filename. Nothing is left on disk when Save fails.
func (s *ScratchStore) Save(src io.Reader, filename string) (*ScratchFile, error) {
	token := uuid.NewString()
	name := SanitizeFilename(filename)
	base := token
	if name != "" {
		base = token + "_" + name
	}
	path := filepath.Join(s.dir, base)

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return nil, fmt.Errorf("create scratch file: %w", err)
	}

	hasher := sha256.New()
	size, copyErr := io.Copy(f, io.TeeReader(src, hasher))
	closeErr := f.Close()
	if err := errors.Join(copyErr, closeErr); err != nil {
		_ = os.Remove(path)
		return nil, fmt.Errorf("write scratch file: %w", err)
	}

	return &ScratchFile{
		Path:   path,
		Token:  token,
		Name:   name,
		Size:   size,
		SHA256: hex.EncodeToString(hasher.Sum(nil)),
	}, nil
}

// Remove deletes the file. Later calls return the first call's result; a file
// that is already gone is not an error.
func (f *ScratchFile) Remove() error {
	f.once.Do(func() {
		if err := os.Remove(f.Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			f.removeErr = fmt.Errorf("remove scratch file: %w", err)
		}
	})
	return f.removeErr
}
