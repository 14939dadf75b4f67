// Package secrets generates the credentials handed to each customer deployment.
package secrets

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"fmt"
)

const (
	databasePasswordBytes = 24 // 192 bits
	secretKeyBytes        = 32 // 256 bits
	passphraseBytes       = 12 // 96 bits
)

type Credentials struct {
	DatabasePassword string
	SecretKey        string
	Passphrase       string
}

// Generator is swappable so tests can pin values.
type Generator interface {
	Generate() (Credentials, error)
}

type CryptoGenerator struct{}

func (CryptoGenerator) Generate() (Credentials, error) {
	dbPassword, err := urlSafe(databasePasswordBytes)
	if err != nil {
		return Credentials{}, err
	}
	key := make([]byte, secretKeyBytes)
	if _, err = rand.Read(key); err != nil {
		return Credentials{}, fmt.Errorf("generating secret key, %w", err)
	}
	passphrase, err := urlSafe(passphraseBytes)
	if err != nil {
		return Credentials{}, err
	}
	return Credentials{
		DatabasePassword: dbPassword,
		SecretKey:        hex.EncodeToString(key),
		Passphrase:       passphrase,
	}, nil
}

func urlSafe(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("reading random bytes, %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
