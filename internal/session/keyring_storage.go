package session

import (
	"errors"

	"github.com/rs/zerolog"
	"github.com/zalando/go-keyring"
)

// KeyringService is the OS keychain service the CLI stores its session under
const KeyringService = "bird-cli"

// KeyringStorage is a durable tier backed by the OS keychain/credential manager
type KeyringStorage struct {
	service string
	logger  zerolog.Logger
}

// NewKeyringStorage creates a keychain tier for service
func NewKeyringStorage(service string, logger zerolog.Logger) *KeyringStorage {
	return &KeyringStorage{service: service, logger: logger}
}

func (k *KeyringStorage) Get(key string) (string, bool) {
	value, err := keyring.Get(k.service, key)
	if err != nil {
		if !errors.Is(err, keyring.ErrNotFound) {
			k.logger.Warn().Err(err).Str("key", key).Msg("Failed to read from keyring")
		}
		return "", false
	}
	return value, true
}

func (k *KeyringStorage) Set(key, value string) {
	if err := keyring.Set(k.service, key, value); err != nil {
		k.logger.Error().Err(err).Str("key", key).Msg("Failed to write to keyring")
	}
}

func (k *KeyringStorage) Remove(key string) {
	if err := keyring.Delete(k.service, key); err != nil && !errors.Is(err, keyring.ErrNotFound) {
		k.logger.Warn().Err(err).Str("key", key).Msg("Failed to delete from keyring")
	}
}
