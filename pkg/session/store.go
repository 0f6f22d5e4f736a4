package session

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"

	"golang.org/x/crypto/hkdf"
)

var (
	ErrCiphertextTooShort = errors.New("ciphertext too short")
	ErrCorruptSession     = errors.New("corrupt session file")
)

const keyInfo = "ux-analyzer session"

// FileStore keeps a session in a single file. With a passphrase the file is
// sealed with AES-GCM under a key derived by HKDF-SHA256.
type FileStore struct {
	path   string
	key    []byte
	logger *log.Logger
}

// NewFileStore creates a store at path. An empty passphrase stores plain JSON.
func NewFileStore(path, passphrase string, logger *log.Logger) (*FileStore, error) {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	fs := &FileStore{path: path, logger: logger}
	if passphrase != "" {
		key, err := deriveKey([]byte(passphrase))
		if err != nil {
			return nil, fmt.Errorf("failed to derive session key: %w", err)
		}
		fs.key = key
	}
	return fs, nil
}

// Path returns the file location
func (fs *FileStore) Path() string { return fs.path }

// Load reads the stored session. A missing file is an empty session. A file
// that cannot be read back is logged and also yields an empty session, so a
// bad cache never blocks the CLI; the caller just has to log in again.
func (fs *FileStore) Load() *Session {
	data, err := os.ReadFile(fs.path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			fs.logger.Printf("Warning: could not read session %s: %v", fs.path, err)
		}
		return &Session{}
	}

	snap, err := fs.decode(data)
	if err != nil {
		fs.logger.Printf("Warning: ignoring session %s: %v", fs.path, err)
		return &Session{}
	}
	return New(snap.AccessToken, snap.User)
}

// Save writes s, replacing the previous file
func (fs *FileStore) Save(s *Session) error {
	data, err := json.Marshal(s.snapshot())
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}
	if fs.key != nil {
		if data, err = seal(fs.key, data); err != nil {
			return fmt.Errorf("failed to seal session: %w", err)
		}
	}

	if err := os.MkdirAll(filepath.Dir(fs.path), 0o700); err != nil {
		return fmt.Errorf("failed to create session directory: %w", err)
	}
	if err := os.WriteFile(fs.path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write session: %w", err)
	}
	return nil
}

// Remove deletes the file; a missing file is not an error
func (fs *FileStore) Remove() error {
	if err := os.Remove(fs.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove session: %w", err)
	}
	return nil
}

func (fs *FileStore) decode(data []byte) (snapshot, error) {
	var snap snapshot
	if fs.key != nil {
		plain, err := open(fs.key, data)
		if err != nil {
			return snap, fmt.Errorf("%w: %v", ErrCorruptSession, err)
		}
		data = plain
	}
	if err := json.Unmarshal(data, &snap); err != nil {
		return snap, fmt.Errorf("%w: %v", ErrCorruptSession, err)
	}
	return snap, nil
}

func deriveKey(secret []byte) ([]byte, error) {
	h := hkdf.New(sha256.New, secret, nil, []byte(keyInfo))
	out := make([]byte, 32)
	if _, err := io.ReadFull(h, out); err != nil {
		return nil, err
	}
	return out, nil
}

func seal(key, plaintext []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	return append(nonce, gcm.Seal(nil, nonce, plaintext, nil)...), nil
}

func open(key, blob []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	ns := gcm.NonceSize()
	if len(blob) < ns {
		return nil, ErrCiphertextTooShort
	}
	return gcm.Open(nil, blob[:ns], blob[ns:], nil)
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
