// Package secrets seals game server connection info at rest with age
// X25519 recipients.
package secrets

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"

	"filippo.io/age"
	"filippo.io/age/armor"
)

// AgeSealer encrypts to its own identity's recipient, so the same process
// that stores connection info can read it back.
type AgeSealer struct {
	identity  *age.X25519Identity
	recipient age.Recipient
}

// NewAgeSealer parses an AGE-SECRET-KEY-1... identity
func NewAgeSealer(identity string) (*AgeSealer, error) {
	id, err := age.ParseX25519Identity(strings.TrimSpace(identity))
	if err != nil {
		return nil, fmt.Errorf("failed to parse age identity: %w", err)
	}
	return &AgeSealer{identity: id, recipient: id.Recipient()}, nil
}

// LoadIdentity returns the inline identity, or the first identity line of file
func LoadIdentity(inline, file string) (string, error) {
	if inline != "" {
		return inline, nil
	}
	if file == "" {
		return "", fmt.Errorf("no age identity configured: set secrets.identity or secrets.identity_file")
	}
	data, err := os.ReadFile(file)
	if err != nil {
		return "", fmt.Errorf("failed to read identity file: %w", err)
	}
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		return line, nil
	}
	return "", fmt.Errorf("identity file %s contains no identity", file)
}

// GenerateIdentity creates a fresh identity and returns it with its public recipient
func GenerateIdentity() (identity, recipient string, err error) {
	id, err := age.GenerateX25519Identity()
	if err != nil {
		return "", "", fmt.Errorf("failed to generate identity: %w", err)
	}
	return id.String(), id.Recipient().String(), nil
}

// Seal returns the armored ciphertext of plaintext
func (s *AgeSealer) Seal(plaintext []byte) (string, error) {
	var buf bytes.Buffer
	aw := armor.NewWriter(&buf)

	w, err := age.Encrypt(aw, s.recipient)
	if err != nil {
		return "", fmt.Errorf("failed to start encryption: %w", err)
	}
	if _, err := w.Write(plaintext); err != nil {
		return "", fmt.Errorf("failed to encrypt: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("failed to finish encryption: %w", err)
	}
	if err := aw.Close(); err != nil {
		return "", fmt.Errorf("failed to finish armor: %w", err)
	}
	return buf.String(), nil
}

// Open decrypts an armored ciphertext produced by Seal
func (s *AgeSealer) Open(ciphertext string) ([]byte, error) {
	r, err := age.Decrypt(armor.NewReader(strings.NewReader(ciphertext)), s.identity)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt: %w", err)
	}
	plaintext, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read plaintext: %w", err)
	}
	return plaintext, nil
}
