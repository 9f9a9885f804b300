package integrity

import (
	"fmt"
	"strings"

	"github.com/louisbranch/outlast/internal/platform/config"
)

const defaultKeyID = "v1"

// Env is the keyring configuration. Keys is a comma-separated list of
// id=secret pairs; Key is a single secret stored under KeyID.
type Env struct {
	Keys  string `env:"SEASON_EVENT_HMAC_KEYS"`
	Key   string `env:"SEASON_EVENT_HMAC_KEY"`
	KeyID string `env:"SEASON_EVENT_HMAC_KEY_ID" envDefault:"v1"`
}

// KeyringFromEnv loads the keyring from OUTLAST_SEASON_EVENT_HMAC_* variables.
func KeyringFromEnv() (*Keyring, error) {
	var cfg Env
	if err := config.ParseEnv(&cfg); err != nil {
		return nil, err
	}
	return cfg.Keyring()
}

// Keyring builds the keyring described by e.
func (e Env) Keyring() (*Keyring, error) {
	keyID := strings.TrimSpace(e.KeyID)
	if keyID == "" {
		keyID = defaultKeyID
	}
	raw := strings.TrimSpace(e.Keys)
	if raw == "" {
		key := strings.TrimSpace(e.Key)
		if key == "" {
			return nil, fmt.Errorf("%sSEASON_EVENT_HMAC_KEY is required", config.EnvPrefix)
		}
		return NewKeyring(map[string][]byte{keyID: []byte(key)}, keyID)
	}

	keys := make(map[string][]byte)
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		id, value, ok := strings.Cut(entry, "=")
		id, value = strings.TrimSpace(id), strings.TrimSpace(value)
		if !ok || id == "" || value == "" {
			return nil, fmt.Errorf("invalid %sSEASON_EVENT_HMAC_KEYS entry %q", config.EnvPrefix, entry)
		}
		keys[id] = []byte(value)
	}
	return NewKeyring(keys, keyID)
}
