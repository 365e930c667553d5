package testutil

import (
	"encoding/base64"
	"testing"

	"github.com/vdavid/mailagent/internal/crypto"
)

// TestEncryptionKey is a deterministic base64 32-byte key for tests.
func TestEncryptionKey() string {
	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i)
	}
	return base64.StdEncoding.EncodeToString(key)
}

// NewTestSealer returns a Sealer keyed with TestEncryptionKey.
func NewTestSealer(t *testing.T) *crypto.Sealer {
	t.Helper()

	sealer, err := crypto.NewSealer(TestEncryptionKey())
	if err != nil {
		t.Fatalf("Failed to create sealer: %v", err)
	}
	return sealer
}
