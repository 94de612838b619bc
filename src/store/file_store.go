package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"sync"

	"circle-thumb/src/apperr"
	"circle-thumb/src/logutil"
)

// maxVersions bounds the name-N search under the Version policy.
const maxVersions = 10000

// FileStore writes thumbnails into a local directory.
type FileStore struct {
	dir    string
	policy ConflictPolicy
	mu     sync.Mutex
}

// NewFileStore creates dir if needed and returns a store writing into it.
func NewFileStore(dir string, policy ConflictPolicy) (*FileStore, error) {
	if dir == "" {
		dir = "thumbnails"
	}
	if _, err := os.Stat(dir); errors.Is(err, fs.ErrNotExist) {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("%w: create %s: %v", apperr.ErrPersistenceFailure, dir, err)
		}
		log.Printf("Store: created thumbnails directory %s", dir)
	}
	return &FileStore{dir: dir, policy: ParseConflictPolicy(string(policy))}, nil
}

// Dir returns the directory the store writes into.
func (s *FileStore) Dir() string { return s.dir }

// Save validates data and writes it as <name>.png. The returned filename
// is relative to the working directory, e.g. "thumbnails/cat.png".
func (s *FileStore) Save(ctx context.Context, data []byte, targetSize int, name string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("%w: %v", apperr.ErrPersistenceFailure, err)
	}
	if err := ValidatePNG(data, targetSize); err != nil {
		return "", err
	}
	base, err := NormalizeName(name)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var file string
	if s.policy == Version {
		file, err = s.writeVersioned(base, data)
	} else {
		file = base + ".png"
		err = writeFileAtomic(filepath.Join(s.dir, file), data)
	}
	if err != nil {
		return "", fmt.Errorf("%w: %v", apperr.ErrPersistenceFailure, err)
	}

	out := path.Join(filepath.ToSlash(s.dir), file)
	log.Printf("Store: saved %s (%dx%d, %d bytes)", logutil.Sanitize(out), targetSize, targetSize, len(data))
	return out, nil
}

func (s *FileStore) writeVersioned(base string, data []byte) (string, error) {
	for i := 0; i < maxVersions; i++ {
		file := base + ".png"
		if i > 0 {
			file = base + "-" + strconv.Itoa(i) + ".png"
		}
		f, err := os.OpenFile(filepath.Join(s.dir, file), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		if err != nil {
			return "", err
		}
		if _, err := f.Write(data); err != nil {
			_ = f.Close()
			_ = os.Remove(f.Name())
			return "", err
		}
		return file, f.Close()
	}
	return "", fmt.Errorf("no free version of %s.png", base)
}

// writeFileAtomic writes through a temp file so readers never see a
// partial thumbnail.
func writeFileAtomic(name string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(name), ".thumb-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), name); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	return nil
}

var _ Persister = (*FileStore)(nil)
