package credential

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"

	"github.com/99designs/keyring"
)

const (
	serviceName         = "mailpilot"
	sealingKeyItem      = "credentials-sealing-key"
	defaultFilePassword = "mailpilot-file-key"
)

// KeySource describes where the sealing key comes from.
type KeySource struct {
	// EnvKey is a base64-encoded 32-byte key. When set the keyring is not used.
	EnvKey string

	// KeyringDir is the directory of the file backend.
	KeyringDir string

	// KeyringPassword encrypts the file backend.
	KeyringPassword string

	// FileOnly restricts the keyring to the encrypted file backend.
	FileOnly bool
}

// openKeyring returns a configured keyring instance.
func openKeyring(src KeySource) (keyring.Keyring, error) {
	password := src.KeyringPassword
	if password == "" {
		password = defaultFilePassword
	}

	backends := []keyring.BackendType{keyring.FileBackend}
	if !src.FileOnly {
		backends = []keyring.BackendType{
			keyring.KeychainBackend,
			keyring.SecretServiceBackend,
			keyring.WinCredBackend,
			keyring.FileBackend,
		}
	}

	ring, err := keyring.Open(keyring.Config{
		ServiceName:              serviceName,
		AllowedBackends:          backends,
		FileDir:                  src.KeyringDir,
		FilePasswordFunc:         keyring.FixedStringPrompt(password),
		KeychainTrustApplication: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening keyring: %w", err)
	}
	return ring, nil
}

// LoadKey returns the sealing key. The environment key wins; otherwise the
// key is read from the keyring, and generated and stored there on first use.
func LoadKey(src KeySource) ([]byte, error) {
	if src.EnvKey != "" {
		key, err := decodeKey(src.EnvKey)
		if err != nil {
			return nil, fmt.Errorf("CREDENTIALS_KEY: %w", err)
		}
		return key, nil
	}

	ring, err := openKeyring(src)
	if err != nil {
		return nil, err
	}

	item, err := ring.Get(sealingKeyItem)
	switch {
	case err == nil:
		key, err := decodeKey(string(item.Data))
		if err != nil {
			return nil, fmt.Errorf("getting credential %q: %w", sealingKeyItem, err)
		}
		return key, nil
	case errors.Is(err, keyring.ErrKeyNotFound):
	default:
		return nil, fmt.Errorf("getting credential %q: %w", sealingKeyItem, err)
	}

	key := make([]byte, keySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("generating sealing key: %w", err)
	}
	err = ring.Set(keyring.Item{
		Key:   sealingKeyItem,
		Data:  []byte(base64.StdEncoding.EncodeToString(key)),
		Label: "mailpilot credential sealing key",
	})
	if err != nil {
		return nil, fmt.Errorf("setting credential %q: %w", sealingKeyItem, err)
	}
	slog.Info("Generated credential sealing key", "keyring_dir", src.KeyringDir)
	return key, nil
}

func decodeKey(s string) ([]byte, error) {
	key, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("decoding key: %w", err)
	}
	if len(key) != keySize {
		return nil, fmt.Errorf("%w: got %d bytes", errKeySize, len(key))
	}
	return key, nil
}
