package storage

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"ares/go-client/internal/securestore"
)

const sealLabel = "ares/storage/v1"

var ErrEmptyPath = errors.New("file storage path is empty")

// File keeps all items in one JSON object on disk. Every mutation rewrites
// the file through a temp file and rename.
type File struct {
	mu     sync.Mutex
	path   string
	sealer *securestore.Sealer
	params securestore.Params
	secret string
}

type FileOption func(*File)

// WithPassphrase seals the file with an argon2id-derived key. Plaintext
// files found on disk are still readable and get sealed on the next write.
func WithPassphrase(passphrase string) FileOption {
	return func(f *File) { f.secret = passphrase }
}

// WithKDFParams overrides the argon2id cost, mostly for tests.
func WithKDFParams(p securestore.Params) FileOption {
	return func(f *File) { f.params = p }
}

func NewFile(path string, opts ...FileOption) (*File, error) {
	if path == "" {
		return nil, ErrEmptyPath
	}
	f := &File{path: path, params: securestore.DefaultParams}
	for _, opt := range opts {
		opt(f)
	}
	if f.secret != "" {
		sealer, err := securestore.NewSealer(f.secret, sealLabel, f.params)
		if err != nil {
			return nil, err
		}
		f.sealer = sealer
		f.secret = ""
	}
	return f, nil
}

func (f *File) Path() string {
	return f.path
}

func (f *File) GetItem(ctx context.Context, key string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, wrap(OpGet, key, err)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	items, err := f.loadLocked()
	if err != nil {
		return "", false, wrap(OpGet, key, err)
	}
	v, ok := items[key]
	return v, ok, nil
}

func (f *File) SetItem(ctx context.Context, key, value string) error {
	if err := ctx.Err(); err != nil {
		return wrap(OpSet, key, err)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	items, err := f.loadLocked()
	if err != nil {
		return wrap(OpSet, key, err)
	}
	items[key] = value
	return wrap(OpSet, key, f.writeLocked(items))
}

func (f *File) RemoveItem(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return wrap(OpRemove, key, err)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	items, err := f.loadLocked()
	if err != nil {
		return wrap(OpRemove, key, err)
	}
	if _, ok := items[key]; !ok {
		return nil
	}
	delete(items, key)
	return wrap(OpRemove, key, f.writeLocked(items))
}

func (f *File) loadLocked() (map[string]string, error) {
	items := make(map[string]string)
	data, _, err := securestore.ReadFile(f.path, f.sealer)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return items, nil
	}
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, err
	}
	return items, nil
}

func (f *File) writeLocked(items map[string]string) error {
	data, err := json.Marshal(items)
	if err != nil {
		return err
	}
	return securestore.WriteFile(f.path, data, f.sealer)
}
