package cache

import (
	"encoding/base64"
	"errors"
	"os"

	"github.com/go-git/go-billy/v6"
	"github.com/go-git/go-billy/v6/osfs"
	"github.com/go-git/go-billy/v6/util"
)

// FileKV stores one file per key on a billy filesystem.
type FileKV struct {
	fs billy.Filesystem
}

// NewFileKV uses fs as the storage root.
func NewFileKV(fs billy.Filesystem) *FileKV {
	return &FileKV{fs: fs}
}

// OpenFileKV stores keys as files under dir, creating it if needed.
func OpenFileKV(dir string) (*FileKV, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, err
	}
	return NewFileKV(osfs.New(dir)), nil
}

// keys hold ':' and image identifiers, neither of which is safe in a filename
func (f *FileKV) filename(key string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(key)) + ".kv"
}

func (f *FileKV) Get(key string) (string, bool, error) {
	data, err := util.ReadFile(f.fs, f.filename(key))
	if errors.Is(err, os.ErrNotExist) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return string(data), true, nil
}

func (f *FileKV) Set(key, value string) error {
	name := f.filename(key)
	tmp := name + ".tmp"
	if err := util.WriteFile(f.fs, tmp, []byte(value), 0600); err != nil {
		return err
	}
	if err := f.fs.Rename(tmp, name); err != nil {
		f.fs.Remove(tmp)
		return err
	}
	return nil
}

func (f *FileKV) Delete(key string) error {
	err := f.fs.Remove(f.filename(key))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

var _ KV = (*FileKV)(nil)
