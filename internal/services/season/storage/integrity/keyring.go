package integrity

import (
	"crypto/hkdf"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// Keyring stores root HMAC keys and the id of the signing key.
type Keyring struct {
	keys        map[string][]byte
	activeKeyID string
}

// NewKeyring builds a keyring. Retired keys stay listed so old events still
// verify after rotation.
func NewKeyring(keys map[string][]byte, activeKeyID string) (*Keyring, error) {
	if len(keys) == 0 {
		return nil, fmt.Errorf("hmac keys are required")
	}
	activeKeyID = strings.TrimSpace(activeKeyID)
	if activeKeyID == "" {
		return nil, fmt.Errorf("active hmac key id is required")
	}
	if _, ok := keys[activeKeyID]; !ok {
		return nil, fmt.Errorf("active hmac key id %q is not configured", activeKeyID)
	}
	copied := make(map[string][]byte, len(keys))
	for id, key := range keys {
		copied[id] = append([]byte(nil), key...)
	}
	return &Keyring{keys: copied, activeKeyID: activeKeyID}, nil
}

// ActiveKeyID returns the signing key id.
func (k *Keyring) ActiveKeyID() string {
	if k == nil {
		return ""
	}
	return k.activeKeyID
}

// Sign signs a season's chain hash with the active key.
func (k *Keyring) Sign(seasonID, chainHash string) (signature, keyID string, err error) {
	if k == nil {
		return "", "", fmt.Errorf("hmac keyring is not configured")
	}
	key, err := seasonKey(k.keys[k.activeKeyID], seasonID)
	if err != nil {
		return "", "", err
	}
	return mac(key, chainHash), k.activeKeyID, nil
}

// Verify checks a chain hash signature made with keyID.
func (k *Keyring) Verify(seasonID, chainHash, signature, keyID string) error {
	if k == nil {
		return fmt.Errorf("hmac keyring is not configured")
	}
	root, ok := k.keys[strings.TrimSpace(keyID)]
	if !ok {
		return fmt.Errorf("signature key id %q is unknown", keyID)
	}
	key, err := seasonKey(root, seasonID)
	if err != nil {
		return err
	}
	if !hmac.Equal([]byte(mac(key, chainHash)), []byte(signature)) {
		return fmt.Errorf("signature mismatch")
	}
	return nil
}

func seasonKey(root []byte, seasonID string) ([]byte, error) {
	seasonID = strings.TrimSpace(seasonID)
	if seasonID == "" {
		return nil, fmt.Errorf("season id is required")
	}
	key, err := hkdf.Key(sha256.New, root, nil, "season:"+seasonID, 32)
	if err != nil {
		return nil, fmt.Errorf("derive season key: %w", err)
	}
	return key, nil
}

func mac(key []byte, value string) string {
	h := hmac.New(sha256.New, key)
	_, _ = h.Write([]byte(value))
	return hex.EncodeToString(h.Sum(nil))
}
