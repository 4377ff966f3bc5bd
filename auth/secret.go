package auth

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io/fs"
	"os"
)

const (
	// SecretKeySize is the length of generated HMAC keys.
	SecretKeySize = 32
	// MinSecretKeySize is the shortest key LoadSecretKey accepts.
	MinSecretKeySize = 16
)

// LoadSecretKey returns the HMAC key stored at path. A missing file is
// created with a fresh random key, readable by the owner only. If another
// process creates the file first, its key wins.
func LoadSecretKey(path string) ([]byte, error) {
	key, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		key, err = createSecretKey(path)
		if errors.Is(err, fs.ErrExist) {
			key, err = os.ReadFile(path)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("auth: secret key %s: %w", path, err)
	}
	if len(key) < MinSecretKeySize {
		return nil, fmt.Errorf("auth: secret key %s is %d bytes, need at least %d", path, len(key), MinSecretKeySize)
	}
	return key, nil
}

func createSecretKey(path string) ([]byte, error) {
	key := make([]byte, SecretKeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return nil, err
	}
	if _, err := f.Write(key); err != nil {
		f.Close()
		os.Remove(path)
		return nil, err
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return nil, err
	}
	return key, nil
}
