// Package output writes the derived relations of a run and publishes them
// through a manifest pointer.
package output

import (
	"context"
	"errors"
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
)

// ErrNotExist is returned by Store.Get for missing objects.
var ErrNotExist = errors.New("object does not exist")

// Store is a flat object store addressed by slash separated names.
type Store interface {
	Put(ctx context.Context, name string, data []byte, contentType string) error
	Get(ctx context.Context, name string) ([]byte, error)
}

// DirStore stores objects as files below a local directory.
type DirStore struct {
	root string
}

func NewDirStore(root string) *DirStore {
	return &DirStore{root: root}
}

func (s *DirStore) path(name string) string {
	return filepath.Join(s.root, filepath.FromSlash(name))
}

// Put writes data to a temporary file and renames it into place, so readers
// never observe a partially written object.
func (s *DirStore) Put(ctx context.Context, name string, data []byte, _ string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	target := s.path(name)
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return err
	}
	tmp, err := ioutil.TempFile(filepath.Dir(target), "."+filepath.Base(target)+".tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("unable to write %s: %v", target, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("unable to write %s: %v", target, err)
	}
	return os.Rename(tmp.Name(), target)
}

func (s *DirStore) Get(ctx context.Context, name string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := ioutil.ReadFile(s.path(name))
	if os.IsNotExist(err) {
		return nil, ErrNotExist
	}
	return data, err
}

func (s *DirStore) String() string {
	return s.root
}
