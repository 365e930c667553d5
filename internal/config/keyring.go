package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/99designs/keyring"
)

const keyringService = "mailagent"

// KeyringSource resolves secrets from the operating system keyring.
type KeyringSource struct {
	ring keyring.Keyring
}

// NewKeyringSource wraps an already opened keyring.
func NewKeyringSource(ring keyring.Keyring) *KeyringSource {
	return &KeyringSource{ring: ring}
}

// OpenKeyring opens the system keyring, falling back to an encrypted file store.
func OpenKeyring() (*KeyringSource, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}

	ring, err := keyring.Open(keyring.Config{
		ServiceName: keyringService,
		AllowedBackends: []keyring.BackendType{
			keyring.KeychainBackend,
			keyring.SecretServiceBackend,
			keyring.WinCredBackend,
			keyring.PassBackend,
			keyring.FileBackend,
		},
		FileDir:                  filepath.Join(home, ".config", keyringService, "credentials"),
		FilePasswordFunc:         keyring.FixedStringPrompt(keyringService + "-file-key"),
		KeychainTrustApplication: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening keyring: %w", err)
	}

	return &KeyringSource{ring: ring}, nil
}

// Lookup returns the secret stored under key.
func (k *KeyringSource) Lookup(key string) (string, error) {
	item, err := k.ring.Get(key)
	if err != nil {
		return "", fmt.Errorf("getting credential %q: %w", key, err)
	}
	return string(item.Data), nil
}

// Store saves a secret under key.
func (k *KeyringSource) Store(key, value string) error {
	if err := k.ring.Set(keyring.Item{Key: key, Data: []byte(value)}); err != nil {
		return fmt.Errorf("setting credential %q: %w", key, err)
	}
	return nil
}
