package event

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
)

// envelope fixes the field order hashed for an event's content.
type envelope struct {
	SeasonID  string          `json:"season_id"`
	Day       int             `json:"day"`
	Kind      Kind            `json:"kind"`
	ActorType ActorType       `json:"actor_type"`
	ActorID   string          `json:"actor_id"`
	EntityID  string          `json:"entity_id"`
	Timestamp int64           `json:"ts"`
	Payload   json.RawMessage `json:"payload"`
}

type chainEnvelope struct {
	Seq       uint64 `json:"seq"`
	Hash      string `json:"hash"`
	PrevChain string `json:"prev_chain"`
}

// EventHash computes the content hash of an event. Sequence and integrity
// fields are excluded so the hash can be computed before append.
func EventHash(evt Event) (string, error) {
	if strings.TrimSpace(evt.SeasonID) == "" {
		return "", fmt.Errorf("season id is required")
	}
	payload := evt.PayloadJSON
	if len(payload) == 0 {
		payload = json.RawMessage("null")
	}
	env := envelope{
		SeasonID:  evt.SeasonID,
		Day:       evt.Day,
		Kind:      evt.Kind,
		ActorType: evt.ActorType,
		ActorID:   evt.ActorID,
		EntityID:  evt.EntityID,
		Timestamp: evt.Timestamp.UTC().UnixMilli(),
		Payload:   payload,
	}
	return digest(env)
}

// ChainHash links an event to its predecessor's chain hash. The event must
// already carry its content hash and sequence.
func ChainHash(evt Event, prevChainHash string) (string, error) {
	if strings.TrimSpace(evt.Hash) == "" {
		return "", fmt.Errorf("event hash is required")
	}
	if evt.Seq == 0 {
		return "", fmt.Errorf("event seq is required")
	}
	return digest(chainEnvelope{Seq: evt.Seq, Hash: evt.Hash, PrevChain: prevChainHash})
}

func digest(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode hash input: %w", err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
