package credential

import (
	"errors"
	"fmt"
	"sync"

	"github.com/99designs/keyring"

	"github.com/arloliu/notisync/internal/logging"
	"github.com/arloliu/notisync/types"
)

// Default keyring item keys.
const (
	DefaultTokenKey   = "auth_token"
	DefaultSubjectKey = "subject_id"
)

// KeyringConfig configures the keyring-backed provider.
type KeyringConfig struct {
	// TokenKey is the keyring item holding the auth token.
	TokenKey string

	// SubjectKey is the keyring item holding the subject ID. When the item is
	// absent the subject is read from the token's SubjectClaim.
	SubjectKey string

	// SubjectClaim overrides the JWT claim used as subject. Default "sub".
	SubjectClaim string

	Logger types.Logger
}

func (c *KeyringConfig) applyDefaults() {
	if c.TokenKey == "" {
		c.TokenKey = DefaultTokenKey
	}
	if c.SubjectKey == "" {
		c.SubjectKey = DefaultSubjectKey
	}
	if c.SubjectClaim == "" {
		c.SubjectClaim = SubjectClaim
	}
	if c.Logger == nil {
		c.Logger = logging.NewNop()
	}
}

// OpenKeyring opens the OS keyring for serviceName, falling back to an
// encrypted file store under fileDir when no native backend is available.
func OpenKeyring(serviceName, fileDir string) (keyring.Keyring, error) {
	ring, err := keyring.Open(keyring.Config{
		ServiceName: serviceName,
		AllowedBackends: []keyring.BackendType{
			keyring.KeychainBackend,
			keyring.SecretServiceBackend,
			keyring.WinCredBackend,
			keyring.PassBackend,
			keyring.FileBackend,
		},
		FileDir:                  fileDir,
		FilePasswordFunc:         keyring.FixedStringPrompt(serviceName + "-file-key"),
		KeychainTrustApplication: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening keyring: %w", err)
	}

	return ring, nil
}

// Keyring is a CredentialProvider backed by a keyring.Keyring.
//
// Values are cached; the provider methods never touch the keyring, so a
// locked keychain cannot block the engine. Call Refresh after a login.
type Keyring struct {
	ring keyring.Keyring
	cfg  KeyringConfig

	mu      sync.RWMutex
	token   string
	subject string
}

var _ types.CredentialProvider = (*Keyring)(nil)

// NewKeyring creates a provider over ring and loads the current values.
//
// A missing token is not an error: the provider reports empty values until
// Store or Refresh finds one.
func NewKeyring(ring keyring.Keyring, cfg KeyringConfig) (*Keyring, error) {
	if ring == nil {
		return nil, errors.New("credential: keyring is required")
	}
	cfg.applyDefaults()

	k := &Keyring{ring: ring, cfg: cfg}
	if err := k.Refresh(); err != nil {
		return nil, err
	}

	return k, nil
}

// Refresh reloads the token and subject from the keyring.
func (k *Keyring) Refresh() error {
	token, err := k.get(k.cfg.TokenKey)
	if err != nil {
		return err
	}

	subject, err := k.get(k.cfg.SubjectKey)
	if err != nil {
		return err
	}

	if subject == "" && token != "" {
		subject, err = SubjectFromToken(token, k.cfg.SubjectClaim)
		if err != nil {
			k.cfg.Logger.Warn("cannot derive subject from token", "error", err)
			subject = ""
		}
	}

	if token == "" {
		k.cfg.Logger.Debug("no auth token in keyring", "key", k.cfg.TokenKey)
	}

	k.mu.Lock()
	k.token = token
	k.subject = subject
	k.mu.Unlock()

	return nil
}

// Store saves subject and token to the keyring and updates the cache.
// An empty subject is not stored; it is derived from the token instead.
func (k *Keyring) Store(subject, token string) error {
	if err := k.ring.Set(keyring.Item{Key: k.cfg.TokenKey, Data: []byte(token)}); err != nil {
		return fmt.Errorf("setting credential %q: %w", k.cfg.TokenKey, err)
	}

	if subject != "" {
		if err := k.ring.Set(keyring.Item{Key: k.cfg.SubjectKey, Data: []byte(subject)}); err != nil {
			return fmt.Errorf("setting credential %q: %w", k.cfg.SubjectKey, err)
		}
	}

	return k.Refresh()
}

// Clear removes both items from the keyring. Missing items are ignored.
func (k *Keyring) Clear() error {
	for _, key := range []string{k.cfg.TokenKey, k.cfg.SubjectKey} {
		if err := k.ring.Remove(key); err != nil && !errors.Is(err, keyring.ErrKeyNotFound) {
			return fmt.Errorf("deleting credential %q: %w", key, err)
		}
	}

	k.mu.Lock()
	k.token = ""
	k.subject = ""
	k.mu.Unlock()

	return nil
}

// CurrentSubjectID implements types.CredentialProvider.
func (k *Keyring) CurrentSubjectID() string {
	k.mu.RLock()
	defer k.mu.RUnlock()

	return k.subject
}

// AuthToken implements types.CredentialProvider.
func (k *Keyring) AuthToken() string {
	k.mu.RLock()
	defer k.mu.RUnlock()

	return k.token
}

// get returns the item value, or "" when the key does not exist.
func (k *Keyring) get(key string) (string, error) {
	item, err := k.ring.Get(key)
	if errors.Is(err, keyring.ErrKeyNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("getting credential %q: %w", key, err)
	}

	return string(item.Data), nil
}
