package security

import (
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
)

// ErrSecretNotFound is returned by Get when the named secret is absent.
var ErrSecretNotFound = errors.New("security: secret not found")

const (
	argonTime    = 3
	argonMemory  = 64 * 1024
	argonThreads = 4
	argonKeyLen  = chacha20poly1305.KeySize
	saltLen      = 16
)

// sealedEntry is the on-disk representation of one secret: a fresh
// random nonce and the ciphertext produced under the key derived from
// the store's passphrase and this file's salt.
type sealedEntry struct {
	Nonce      []byte `json:"nonce"`
	Ciphertext []byte `json:"ciphertext"`
}

type sealedFile struct {
	Salt    []byte                 `json:"salt"`
	Entries map[string]sealedEntry `json:"entries"`
}

// SecretStore is an encrypted-at-rest key/value store for provider API
// keys and other credentials. It derives a symmetric key from a
// passphrase via argon2id and seals each value independently with
// ChaCha20-Poly1305, so a compromised single entry does not expose the
// others' plaintext alongside it.
type SecretStore struct {
	mu         sync.Mutex
	path       string
	passphrase []byte
	salt       []byte
	aead       []byte // derived key, kept only in memory
	entries    map[string]sealedEntry
}

// OpenSecretStore loads (or initializes) the encrypted store at path
// using passphrase to derive the sealing key.
func OpenSecretStore(path string, passphrase []byte) (*SecretStore, error) {
	s := &SecretStore{path: path, passphrase: passphrase, entries: map[string]sealedEntry{}}

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		salt := make([]byte, saltLen)
		if _, err := rand.Read(salt); err != nil {
			return nil, fmt.Errorf("security: generating salt: %w", err)
		}
		s.salt = salt
		s.aead = deriveKey(passphrase, salt)
		return s, s.persist()
	case err != nil:
		return nil, fmt.Errorf("security: reading secret store: %w", err)
	}

	var sf sealedFile
	if err := json.Unmarshal(data, &sf); err != nil {
		return nil, fmt.Errorf("security: corrupt secret store: %w", err)
	}
	s.salt = sf.Salt
	s.entries = sf.Entries
	if s.entries == nil {
		s.entries = map[string]sealedEntry{}
	}
	s.aead = deriveKey(passphrase, sf.Salt)
	return s, nil
}

func deriveKey(passphrase, salt []byte) []byte {
	return argon2.IDKey(passphrase, salt, argonTime, argonMemory, argonThreads, argonKeyLen)
}

// Set encrypts value and stores it under name, persisting to disk
// immediately with SecureFileMode permissions.
func (s *SecretStore) Set(name string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	aead, err := chacha20poly1305.New(s.aead)
	if err != nil {
		return fmt.Errorf("security: building cipher: %w", err)
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return fmt.Errorf("security: generating nonce: %w", err)
	}
	ciphertext := aead.Seal(nil, nonce, value, []byte(name))
	s.entries[name] = sealedEntry{Nonce: nonce, Ciphertext: ciphertext}
	return s.persist()
}

// Get decrypts and returns the secret stored under name.
func (s *SecretStore) Get(name string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[name]
	if !ok {
		return nil, ErrSecretNotFound
	}
	aead, err := chacha20poly1305.New(s.aead)
	if err != nil {
		return nil, fmt.Errorf("security: building cipher: %w", err)
	}
	plaintext, err := aead.Open(nil, entry.Nonce, entry.Ciphertext, []byte(name))
	if err != nil {
		return nil, fmt.Errorf("security: decrypting %q: %w", name, err)
	}
	return plaintext, nil
}

// Delete removes a secret, returning ErrSecretNotFound if absent.
func (s *SecretStore) Delete(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[name]; !ok {
		return ErrSecretNotFound
	}
	delete(s.entries, name)
	return s.persist()
}

// Names lists every secret name currently stored, in no particular
// order. It never returns plaintext values.
func (s *SecretStore) Names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.entries))
	for name := range s.entries {
		names = append(names, name)
	}
	return names
}

// persist writes the store to disk under SecureFileMode; callers must
// hold s.mu.
func (s *SecretStore) persist() error {
	sf := sealedFile{Salt: s.salt, Entries: s.entries}
	data, err := json.Marshal(sf)
	if err != nil {
		return fmt.Errorf("security: encoding secret store: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), SecureDirMode); err != nil {
		return fmt.Errorf("security: creating secret store directory: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, SecureFileMode); err != nil {
		return fmt.Errorf("security: writing secret store: %w", err)
	}
	if err := os.Chmod(tmp, SecureFileMode); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}
