package securestore

import (
	"errors"
	"os"
	"path/filepath"
)

// WriteFileAtomic writes data next to path and renames it into place. The
// parent directory is created 0700 and the file ends up 0600.
func WriteFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }
	if err := tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		cleanup()
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return err
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return err
	}
	return nil
}

// ReadFile returns (nil, false, nil) when path does not exist. legacy is
// true when the file holds plaintext and a sealer was given.
func ReadFile(path string, sealer *Sealer) (data []byte, legacy bool, err error) {
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if sealer == nil {
		if IsSealed(raw) {
			return nil, false, ErrNoSecret
		}
		return raw, false, nil
	}
	plain, err := sealer.Open(raw)
	if errors.Is(err, ErrLegacyData) {
		return raw, true, nil
	}
	if err != nil {
		return nil, false, err
	}
	return plain, false, nil
}

// WriteFile seals data when sealer is non-nil and writes it atomically.
func WriteFile(path string, data []byte, sealer *Sealer) error {
	if sealer != nil {
		sealed, err := sealer.Seal(data)
		if err != nil {
			return err
		}
		data = sealed
	}
	return WriteFileAtomic(path, data)
}
