package fairness

import (
	"crypto/hmac"
	crand "crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"io"
)

const (
	// SeedBytes is the entropy carried by every generated seed.
	SeedBytes = 32
	// HashLength is the length of a published commitment.
	HashLength = 64
	// RollSides is the size of the die every roll is reduced to.
	RollSides = 20
	// fieldSeparator keeps the concatenated HMAC input unambiguous.
	fieldSeparator = "|"
)

// Source produces the random material for a challenge. The zero value of
// CryptoSource reads from crypto/rand.
type Source interface {
	CommitSeed() (seed, hash string, err error)
	GenerateServerSeed() (string, error)
}

// CryptoSource generates seeds from a cryptographic reader.
type CryptoSource struct {
	// Reader overrides crypto/rand when set.
	Reader io.Reader
}

// CommitSeed generates a fresh seed and its commitment hash.
func (s CryptoSource) CommitSeed() (string, string, error) {
	seed, err := s.newSeed()
	if err != nil {
		return "", "", err
	}
	return seed, HashSeed(seed), nil
}

// GenerateServerSeed generates an independent server seed.
func (s CryptoSource) GenerateServerSeed() (string, error) {
	return s.newSeed()
}

func (s CryptoSource) newSeed() (string, error) {
	reader := s.Reader
	if reader == nil {
		reader = crand.Reader
	}
	var b [SeedBytes]byte
	if _, err := io.ReadFull(reader, b[:]); err != nil {
		return "", fmt.Errorf("read random seed: %w", err)
	}
	return hex.EncodeToString(b[:]), nil
}

// CommitSeed generates a seed with crypto/rand and returns it with its hash.
// Only the hash is published at commit time.
func CommitSeed() (seed, hash string, err error) {
	return CryptoSource{}.CommitSeed()
}

// GenerateServerSeed returns an independent random seed. Callers generate it
// only after commitments close.
func GenerateServerSeed() (string, error) {
	return CryptoSource{}.GenerateServerSeed()
}

// HashSeed returns the lowercase hex SHA-256 digest of seed.
func HashSeed(seed string) string {
	sum := sha256.Sum256([]byte(seed))
	return hex.EncodeToString(sum[:])
}

// ValidHash reports whether value is a 64-character lowercase hex digest.
func ValidHash(value string) bool {
	if len(value) != HashLength {
		return false
	}
	for i := 0; i < len(value); i++ {
		c := value[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}

// VerifyCommit reports whether hash is the commitment of seed.
func VerifyCommit(seed, hash string) bool {
	if !ValidHash(hash) {
		return false
	}
	expected := HashSeed(seed)
	return subtle.ConstantTimeCompare([]byte(expected), []byte(hash)) == 1
}

// DeriveRoll returns the d20 roll bound to one encounter and subject.
//
// The roll is HMAC-SHA256 keyed by the text of serverSeed over the bytes
// clientSeed + "|" + encounterID + "|" + subjectID. The first four bytes of
// the MAC, read big-endian, are reduced modulo 20 and shifted into [1,20].
func DeriveRoll(serverSeed, clientSeed, encounterID, subjectID string) int {
	mac := hmac.New(sha256.New, []byte(serverSeed))
	_, _ = io.WriteString(mac, clientSeed)
	_, _ = io.WriteString(mac, fieldSeparator)
	_, _ = io.WriteString(mac, encounterID)
	_, _ = io.WriteString(mac, fieldSeparator)
	_, _ = io.WriteString(mac, subjectID)
	sum := mac.Sum(nil)
	value := binary.BigEndian.Uint32(sum[:4])
	return int(value%RollSides) + 1
}

// ClaimedRoll is a published roll to be checked.
type ClaimedRoll struct {
	SubjectID string `json:"subject_id"`
	Roll      int    `json:"roll"`
}

// Mismatch describes one failed check. An empty SubjectID means the client
// seed itself does not match its commitment.
type Mismatch struct {
	SubjectID string `json:"subject_id,omitempty"`
	Claimed   int    `json:"claimed,omitempty"`
	Expected  int    `json:"expected,omitempty"`
	Reason    string `json:"reason"`
}

// Error implements error.
func (m Mismatch) Error() string {
	if m.SubjectID == "" {
		return m.Reason
	}
	return fmt.Sprintf("%s: %s (claimed %d, expected %d)", m.SubjectID, m.Reason, m.Claimed, m.Expected)
}

// VerifyRolls checks the client commitment and recomputes every claimed roll.
// Each failure is reported; nothing is corrected.
func VerifyRolls(serverSeed, clientSeed, clientSeedHash, encounterID string, claimed []ClaimedRoll) (bool, []Mismatch) {
	var mismatches []Mismatch
	if !VerifyCommit(clientSeed, clientSeedHash) {
		mismatches = append(mismatches, Mismatch{Reason: "client seed does not match commitment"})
	}
	for _, c := range claimed {
		expected := DeriveRoll(serverSeed, clientSeed, encounterID, c.SubjectID)
		if expected != c.Roll {
			mismatches = append(mismatches, Mismatch{
				SubjectID: c.SubjectID,
				Claimed:   c.Roll,
				Expected:  expected,
				Reason:    "roll mismatch",
			})
		}
	}
	return len(mismatches) == 0, mismatches
}
