package config

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
)

const (
	keychainService = "soulforge"
	tokenAccount    = "api_token"
)

// Keychain abstracts the platform secret store.
type Keychain interface {
	Get(service, account string) (string, error)
	Set(service, account, value string) error
}

// NewKeychain returns the platform secret store: macOS Keychain via the
// security CLI, a mode-0600 secrets file elsewhere.
func NewKeychain() Keychain {
	return platformKeychain{}
}

type platformKeychain struct{}

func (platformKeychain) Get(service, account string) (string, error) {
	out, err := keychainGet(service, account)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}

func (platformKeychain) Set(service, account, value string) error {
	return keychainSet(service, account, value)
}

// GetAPIToken returns the bearer token for the management API, generating
// and storing one on first use.
func GetAPIToken(kc Keychain) (string, error) {
	if token, err := kc.Get(keychainService, tokenAccount); err == nil && token != "" {
		return token, nil
	}

	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating API token: %w", err)
	}
	token := hex.EncodeToString(buf)

	if err := kc.Set(keychainService, tokenAccount, token); err != nil {
		return "", fmt.Errorf("storing API token: %w", err)
	}
	return token, nil
}
