package notify

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/cockroachdb/pebble/v2"
)

const (
	defaultFeedPage = 100
	seqSize         = 8
)

// Feed persists notices per season in a Pebble store. Keys are the season id,
// a zero byte, and an 8-byte big-endian sequence number.
type Feed struct {
	db   *pebble.DB
	mu   sync.Mutex
	next map[string]uint64
}

// OpenFeed opens or creates the feed at dir.
func OpenFeed(dir string) (*Feed, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return nil, fmt.Errorf("feed dir is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create feed dir: %w", err)
	}
	db, err := pebble.Open(filepath.Clean(dir), &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("open feed: %w", err)
	}
	return &Feed{db: db, next: map[string]uint64{}}, nil
}

// Close closes the store. It is nil-safe.
func (f *Feed) Close() error {
	if f == nil || f.db == nil {
		return nil
	}
	return f.db.Close()
}

// Append stores n under the season's next sequence number and returns it
// with Seq set.
func (f *Feed) Append(n Notice) (Notice, error) {
	if f == nil || f.db == nil {
		return n, fmt.Errorf("feed is not configured")
	}
	if strings.TrimSpace(n.SeasonID) == "" {
		return n, fmt.Errorf("season id is required")
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	next, ok := f.next[n.SeasonID]
	if !ok {
		last, err := f.lastSeq(n.SeasonID)
		if err != nil {
			return n, err
		}
		next = last + 1
	}
	n.Seq = next
	data, err := json.Marshal(n)
	if err != nil {
		return n, fmt.Errorf("encode notice: %w", err)
	}
	if err := f.db.Set(feedKey(n.SeasonID, n.Seq), data, pebble.Sync); err != nil {
		return n, fmt.Errorf("store notice: %w", err)
	}
	f.next[n.SeasonID] = next + 1
	return n, nil
}

// Since returns up to limit notices for a season after afterSeq, oldest
// first.
func (f *Feed) Since(seasonID string, afterSeq uint64, limit int) ([]Notice, error) {
	if f == nil || f.db == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = defaultFeedPage
	}
	iter, err := f.db.NewIter(&pebble.IterOptions{
		LowerBound: feedKey(seasonID, afterSeq+1),
		UpperBound: seasonUpperBound(seasonID),
	})
	if err != nil {
		return nil, fmt.Errorf("open feed iterator: %w", err)
	}
	defer func() { _ = iter.Close() }()

	out := make([]Notice, 0, limit)
	for iter.First(); iter.Valid() && len(out) < limit; iter.Next() {
		var n Notice
		if err := json.Unmarshal(iter.Value(), &n); err != nil {
			return nil, fmt.Errorf("decode notice: %w", err)
		}
		out = append(out, n)
	}
	return out, nil
}

func (f *Feed) lastSeq(seasonID string) (uint64, error) {
	iter, err := f.db.NewIter(&pebble.IterOptions{
		LowerBound: seasonPrefix(seasonID),
		UpperBound: seasonUpperBound(seasonID),
	})
	if err != nil {
		return 0, fmt.Errorf("open feed iterator: %w", err)
	}
	defer func() { _ = iter.Close() }()
	if !iter.Last() {
		return 0, nil
	}
	key := iter.Key()
	if len(key) < seqSize {
		return 0, nil
	}
	return binary.BigEndian.Uint64(key[len(key)-seqSize:]), nil
}

func seasonPrefix(seasonID string) []byte {
	prefix := make([]byte, 0, len(seasonID)+1)
	prefix = append(prefix, seasonID...)
	return append(prefix, 0)
}

func seasonUpperBound(seasonID string) []byte {
	bound := make([]byte, 0, len(seasonID)+1)
	bound = append(bound, seasonID...)
	return append(bound, 1)
}

func feedKey(seasonID string, seq uint64) []byte {
	key := seasonPrefix(seasonID)
	var buf [seqSize]byte
	binary.BigEndian.PutUint64(buf[:], seq)
	return append(key, buf[:]...)
}
