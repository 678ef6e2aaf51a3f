package backend

import (
	"errors"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
)

// FileKV is a filesystem adapter. Each entry is one file directly under
// root; keys are query-escaped so arbitrary key strings map to safe flat
// filenames. Writes are atomic (temp file + rename). The adapter is
// stateless — it performs I/O on each call without caching — so two
// instances over the same root observe each other's writes.
type FileKV struct {
	root string
}

// NewFileKV creates a filesystem adapter rooted at dir. The directory is
// created lazily on first write.
func NewFileKV(dir string) *FileKV {
	return &FileKV{root: dir}
}

func (s *FileKV) path(key string) string {
	return filepath.Join(s.root, url.QueryEscape(key))
}

func (s *FileKV) Read(key string) (string, bool, error) {
	data, err := os.ReadFile(s.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return "", false, nil
		}
		return "", false, classifyFS("read", key, err)
	}
	return string(data), true, nil
}

func (s *FileKV) Write(key, value string) error {
	if err := os.MkdirAll(s.root, 0o755); err != nil {
		return classifyFS("write", key, err)
	}

	tmp, err := os.CreateTemp(s.root, ".tmp-*")
	if err != nil {
		return classifyFS("write", key, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.WriteString(value); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return classifyFS("write", key, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return classifyFS("write", key, err)
	}
	if err := os.Rename(tmpName, s.path(key)); err != nil {
		os.Remove(tmpName)
		return classifyFS("write", key, err)
	}
	return nil
}

func (s *FileKV) Delete(key string) error {
	if err := os.Remove(s.path(key)); err != nil && !os.IsNotExist(err) {
		return classifyFS("delete", key, err)
	}
	return nil
}

func (s *FileKV) Clear() error {
	keys, err := s.keys()
	if err != nil {
		return classifyFS("clear", "", err)
	}
	for _, key := range keys {
		if err := os.Remove(s.path(key)); err != nil && !os.IsNotExist(err) {
			return classifyFS("clear", key, err)
		}
	}
	return nil
}

func (s *FileKV) Count() (int, error) {
	keys, err := s.keys()
	if err != nil {
		return 0, classifyFS("count", "", err)
	}
	return len(keys), nil
}

func (s *FileKV) KeyAt(index int) (string, bool, error) {
	keys, err := s.keys()
	if err != nil {
		return "", false, classifyFS("keyat", "", err)
	}
	if index < 0 || index >= len(keys) {
		return "", false, nil
	}
	return keys[index], true, nil
}

// keys lists the decoded keys under root in lexical order. A missing root
// is an empty store, not an error.
func (s *FileKV) keys() ([]string, error) {
	dirents, err := os.ReadDir(s.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var keys []string
	for _, d := range dirents {
		name := d.Name()
		if d.IsDir() || strings.HasPrefix(name, ".") {
			continue
		}
		key, err := url.QueryUnescape(name)
		if err != nil {
			continue // not one of ours
		}
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys, nil
}

// classifyFS buckets a filesystem error into the adapter taxonomy.
func classifyFS(op, key string, err error) error {
	kind := KindUnknown
	switch {
	case errors.Is(err, syscall.ENOSPC) || errors.Is(err, syscall.EDQUOT):
		kind = KindQuota
	case os.IsPermission(err) || errors.Is(err, syscall.EROFS):
		kind = KindSecurity
	case errors.Is(err, syscall.EINTR) || errors.Is(err, syscall.EAGAIN) || errors.Is(err, syscall.EBUSY):
		kind = KindTransient
	}
	return &Error{Kind: kind, Op: op, Key: key, Err: err}
}
