package secrets

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"

	"filippo.io/age"
	"gopkg.in/yaml.v3"
)

var (
	// ErrNoIdentity is returned when the age file backend has no identity.
	ErrNoIdentity = errors.New("no age identity configured for decryption")
	// ErrDecryptionFailed is returned when the secrets file cannot be opened.
	ErrDecryptionFailed = errors.New("decryption failed")
	// ErrEncryptionFailed is returned when a secrets file cannot be sealed.
	ErrEncryptionFailed = errors.New("encryption failed")
	// ErrInvalidKey is returned when an age key is malformed.
	ErrInvalidKey = errors.New("invalid key format")
)

// AgeFileConfig configures the sealed secrets file backend.
type AgeFileConfig struct {
	// Path is the age-encrypted YAML file.
	Path string
	// Identity is an AGE-SECRET-KEY-1... string or a path to an identity file.
	Identity string
}

// AgeFileBackend serves secrets from an age-encrypted YAML document of the
// form:
//
//	CIPHER_CRYPTO_KEY:
//	  "1": 0123...
//	  "2": 4567...
//	OTHER_SECRET: plain-value
//
// A bare value is treated as the only, latest, version. The file is
// decrypted on first successful access and kept in memory. A failed load
// is retried on the next access.
type AgeFileBackend struct {
	path       string
	identities []age.Identity
	logger     *slog.Logger

	mu      sync.Mutex
	secrets map[string]map[string]string
}

// NewAgeFileBackend parses the identity and prepares the backend. The file
// itself is read lazily.
func NewAgeFileBackend(cfg AgeFileConfig, logger *slog.Logger) (*AgeFileBackend, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Identity == "" {
		return nil, ErrNoIdentity
	}

	identities, err := parseIdentities(cfg.Identity)
	if err != nil {
		return nil, err
	}

	return &AgeFileBackend{
		path:       cfg.Path,
		identities: identities,
		logger:     logger,
	}, nil
}

func parseIdentities(identity string) ([]age.Identity, error) {
	var r io.Reader
	if strings.HasPrefix(identity, "AGE-SECRET-KEY-") {
		r = strings.NewReader(identity)
	} else {
		data, err := os.ReadFile(identity)
		if err != nil {
			return nil, fmt.Errorf("reading age identity: %w", err)
		}
		r = bytes.NewReader(data)
	}

	identities, err := age.ParseIdentities(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	return identities, nil
}

// Name identifies the backend in logs and metrics.
func (b *AgeFileBackend) Name() string { return "agefile" }

// AccessSecret returns the requested version of name.
func (b *AgeFileBackend) AccessSecret(ctx context.Context, name, version string) (string, error) {
	if version == "" {
		version = LatestVersion
	}
	if err := ctx.Err(); err != nil {
		return "", newError(name, version, KindUnavailable, err)
	}

	loaded, err := b.loaded()
	if err != nil {
		return "", newError(name, version, KindUnavailable, err,
			fmt.Sprintf("Check that %s exists and is sealed for the configured identity", b.path),
		)
	}

	versions, ok := loaded[name]
	if !ok {
		return "", newError(name, version, KindNotFound, nil,
			fmt.Sprintf("Add %s to %s with fleetctl seal", name, b.path),
			fmt.Sprintf("Or set %s in the environment", name),
		)
	}

	value, ok := resolveVersion(versions, version)
	if !ok {
		return "", newError(name, version, KindNotFound, nil,
			fmt.Sprintf("Available versions: %s", strings.Join(sortedVersions(versions), ", ")),
		)
	}
	return value, nil
}

func (b *AgeFileBackend) loaded() (map[string]map[string]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.secrets != nil {
		return b.secrets, nil
	}
	secrets, err := b.load()
	if err != nil {
		return nil, err
	}
	b.secrets = secrets
	return secrets, nil
}

func (b *AgeFileBackend) load() (map[string]map[string]string, error) {
	sealed, err := os.ReadFile(b.path)
	if err != nil {
		return nil, fmt.Errorf("reading secrets file: %w", err)
	}

	plaintext, err := openSealed(sealed, b.identities...)
	if err != nil {
		b.logger.Error("failed to decrypt secrets file", "path", b.path, "error", err)
		return nil, err
	}

	secrets, err := ParseSecretsDocument(plaintext)
	if err != nil {
		return nil, err
	}

	b.logger.Info("secrets file loaded", "path", b.path, "secrets", len(secrets))
	return secrets, nil
}

// ParseSecretsDocument decodes a plaintext secrets document into
// name -> version -> value.
func ParseSecretsDocument(data []byte) (map[string]map[string]string, error) {
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing secrets file: %w", err)
	}

	out := make(map[string]map[string]string, len(raw))
	for name, v := range raw {
		switch val := v.(type) {
		case map[string]any:
			versions := make(map[string]string, len(val))
			for ver, s := range val {
				versions[ver] = fmt.Sprint(s)
			}
			out[name] = versions
		case map[any]any:
			versions := make(map[string]string, len(val))
			for ver, s := range val {
				versions[fmt.Sprint(ver)] = fmt.Sprint(s)
			}
			out[name] = versions
		case nil:
			continue
		default:
			out[name] = map[string]string{LatestVersion: fmt.Sprint(val)}
		}
	}
	return out, nil
}

// resolveVersion picks an exact version, or for "latest" an explicit
// latest entry falling back to the highest numeric version.
func resolveVersion(versions map[string]string, version string) (string, bool) {
	if v, ok := versions[version]; ok {
		return v, true
	}
	if version != LatestVersion {
		return "", false
	}

	best := -1
	for ver := range versions {
		n, err := strconv.Atoi(ver)
		if err == nil && n > best {
			best = n
		}
	}
	if best < 0 {
		return "", false
	}
	return versions[strconv.Itoa(best)], true
}

func sortedVersions(versions map[string]string) []string {
	out := make([]string, 0, len(versions))
	for v := range versions {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// SealFile encrypts a secrets document for recipient and writes it to path
// with owner-only permissions.
func SealFile(path, recipient string, secrets map[string]map[string]string) error {
	r, err := age.ParseX25519Recipient(recipient)
	if err != nil {
		return fmt.Errorf("%w: invalid public key: %v", ErrInvalidKey, err)
	}

	doc, err := yaml.Marshal(secrets)
	if err != nil {
		return fmt.Errorf("encoding secrets: %w", err)
	}

	sealed, err := seal(doc, r)
	if err != nil {
		return err
	}

	if err := os.WriteFile(path, sealed, 0o600); err != nil {
		return fmt.Errorf("writing secrets file: %w", err)
	}
	return nil
}

func seal(plaintext []byte, recipients ...age.Recipient) ([]byte, error) {
	var buf bytes.Buffer
	w, err := age.Encrypt(&buf, recipients...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncryptionFailed, err)
	}
	if _, err := w.Write(plaintext); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncryptionFailed, err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncryptionFailed, err)
	}
	return buf.Bytes(), nil
}

func openSealed(ciphertext []byte, identities ...age.Identity) ([]byte, error) {
	r, err := age.Decrypt(bytes.NewReader(ciphertext), identities...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecryptionFailed, err)
	}
	plaintext, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecryptionFailed, err)
	}
	return plaintext, nil
}

// GenerateKeyPair generates a new age key pair for sealing secrets files.
func GenerateKeyPair() (publicKey, privateKey string, err error) {
	identity, err := age.GenerateX25519Identity()
	if err != nil {
		return "", "", fmt.Errorf("failed to generate age key pair: %w", err)
	}
	return identity.Recipient().String(), identity.String(), nil
}
