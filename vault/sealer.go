package vault

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"filippo.io/age"
	"github.com/zeebo/blake3"
)

// Sealer encrypts vault entries to a single age X25519 identity. The
// identity is the only secret a deployment has to protect: every backend
// stores ciphertext only.
type Sealer struct {
	identity  *age.X25519Identity
	recipient *age.X25519Recipient
}

// NewSealer wraps an existing identity.
func NewSealer(identity *age.X25519Identity) (*Sealer, error) {
	if identity == nil {
		return nil, ErrNoSealer
	}
	return &Sealer{identity: identity, recipient: identity.Recipient()}, nil
}

// GenerateSealer creates a sealer with a fresh identity. Entries sealed by it
// are unreadable once the process exits, which suits memory-only vaults.
func GenerateSealer() (*Sealer, error) {
	identity, err := age.GenerateX25519Identity()
	if err != nil {
		return nil, fmt.Errorf("generating age identity: %w", err)
	}
	return NewSealer(identity)
}

// LoadSealer reads an age identity file (the format written by age-keygen:
// comment lines starting with '#', then one AGE-SECRET-KEY-1 line).
func LoadSealer(path string) (*Sealer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading identity file: %w", err)
	}

	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		identity, err := age.ParseX25519Identity(line)
		if err != nil {
			return nil, fmt.Errorf("parsing identity file %s: %w", path, err)
		}
		return NewSealer(identity)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading identity file: %w", err)
	}
	return nil, fmt.Errorf("identity file %s contains no X25519 identity", path)
}

// LoadOrCreateSealer loads the identity at path, creating it with mode 0600
// when the file does not exist yet.
func LoadOrCreateSealer(path string) (*Sealer, error) {
	sealer, err := LoadSealer(path)
	if err == nil {
		return sealer, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	sealer, err = GenerateSealer()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("creating identity directory: %w", err)
	}

	var content strings.Builder
	content.WriteString("# goRemote vault identity\n")
	content.WriteString("# public key: ")
	content.WriteString(sealer.recipient.String())
	content.WriteString("\n")
	content.WriteString(sealer.identity.String())
	content.WriteString("\n")

	if err := writeFileSync(path, []byte(content.String()), 0o600); err != nil {
		return nil, fmt.Errorf("writing identity file: %w", err)
	}
	return sealer, nil
}

// Recipient returns the public half of the identity (age1... format).
func (s *Sealer) Recipient() string {
	return s.recipient.String()
}

// Seal encrypts plaintext to the sealer's own recipient.
func (s *Sealer) Seal(plaintext []byte) ([]byte, error) {
	var ciphertext bytes.Buffer
	writer, err := age.Encrypt(&ciphertext, s.recipient)
	if err != nil {
		return nil, fmt.Errorf("creating age encryptor: %w", err)
	}
	if _, err := writer.Write(plaintext); err != nil {
		return nil, fmt.Errorf("writing plaintext to age encryptor: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("finalizing age encryption: %w", err)
	}
	return ciphertext.Bytes(), nil
}

// Open decrypts a blob produced by Seal.
func (s *Sealer) Open(ciphertext []byte) ([]byte, error) {
	reader, err := age.Decrypt(bytes.NewReader(ciphertext), s.identity)
	if err != nil {
		return nil, fmt.Errorf("decrypting: %w", err)
	}
	plaintext, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("reading decrypted plaintext: %w", err)
	}
	return plaintext, nil
}

// nameKey derives a 32-byte key bound to this identity for the given
// purpose. It never leaves the process.
func (s *Sealer) nameKey(purpose string) [32]byte {
	material := make([]byte, 0, len(purpose)+1+64)
	material = append(material, purpose...)
	material = append(material, 0)
	material = append(material, s.identity.String()...)
	return blake3.Sum256(material)
}
