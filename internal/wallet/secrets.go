// Package wallet covers local keystore discovery and secret sourcing.
// Secrets are injected from the environment, never embedded or logged.
package wallet

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
)

// SecretProvider hands out the coldkey password needed to sign an
// extrinsic for a named wallet.
type SecretProvider interface {
	ColdkeyPassword(walletName string) (string, error)
}

// EnvSecretProvider reads passwords from the environment, consulting
// STAKEBOT_PASSWORD_<WALLET> first and STAKEBOT_PASSWORD as a fallback.
type EnvSecretProvider struct{}

// NewEnvSecretProvider loads a .env file best-effort and returns the
// provider.
func NewEnvSecretProvider() EnvSecretProvider {
	_ = godotenv.Load()
	return EnvSecretProvider{}
}

// ColdkeyPassword returns the password for walletName or an error when
// no matching variable is set.
func (EnvSecretProvider) ColdkeyPassword(walletName string) (string, error) {
	if v := os.Getenv("STAKEBOT_PASSWORD_" + sanitizeEnvKey(walletName)); v != "" {
		return v, nil
	}
	if v := os.Getenv("STAKEBOT_PASSWORD"); v != "" {
		return v, nil
	}
	return "", fmt.Errorf("no password in environment for wallet %q", walletName)
}

func sanitizeEnvKey(name string) string {
	out := make([]byte, 0, len(name))
	for i := 0; i < len(name); i++ {
		c := name[i]
		switch {
		case c >= 'a' && c <= 'z':
			out = append(out, c-32)
		case (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9'):
			out = append(out, c)
		default:
			out = append(out, '_')
		}
	}
	return string(out)
}

// StaticSecretProvider returns a fixed password; used by tests.
type StaticSecretProvider string

func (s StaticSecretProvider) ColdkeyPassword(string) (string, error) { return string(s), nil }
