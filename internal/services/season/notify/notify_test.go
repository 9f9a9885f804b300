package notify

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

func openTestFeed(t *testing.T) *Feed {
	t.Helper()
	feed, err := OpenFeed(t.TempDir())
	if err != nil {
		t.Fatalf("open feed: %v", err)
	}
	t.Cleanup(func() {
		if err := feed.Close(); err != nil {
			t.Fatalf("close feed: %v", err)
		}
	})
	return feed
}

func TestFeedSequencesPerSeason(t *testing.T) {
	feed := openTestFeed(t)

	for i := 0; i < 3; i++ {
		if _, err := feed.Append(Notice{SeasonID: "a", Kind: KindPhase, Day: i}); err != nil {
			t.Fatalf("append a: %v", err)
		}
	}
	stored, err := feed.Append(Notice{SeasonID: "ab", Kind: KindPhase})
	if err != nil {
		t.Fatalf("append ab: %v", err)
	}
	if stored.Seq != 1 {
		t.Fatalf("expected independent sequence for season ab, got %d", stored.Seq)
	}

	all, err := feed.Since("a", 0, 0)
	if err != nil {
		t.Fatalf("since: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 notices for season a, got %d", len(all))
	}
	for i, n := range all {
		if n.Seq != uint64(i+1) || n.Day != i {
			t.Fatalf("notice %d out of order: %+v", i, n)
		}
	}

	tail, err := feed.Since("a", 2, 10)
	if err != nil {
		t.Fatalf("since: %v", err)
	}
	if len(tail) != 1 || tail[0].Seq != 3 {
		t.Fatalf("expected only seq 3, got %+v", tail)
	}
}

func TestFeedResumesSequenceAfterReopen(t *testing.T) {
	dir := t.TempDir()
	feed, err := OpenFeed(dir)
	if err != nil {
		t.Fatalf("open feed: %v", err)
	}
	for i := 0; i < 2; i++ {
		if _, err := feed.Append(Notice{SeasonID: "s1", Kind: KindPhase}); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	if err := feed.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	feed, err = OpenFeed(dir)
	if err != nil {
		t.Fatalf("reopen feed: %v", err)
	}
	defer feed.Close()
	stored, err := feed.Append(Notice{SeasonID: "s1", Kind: KindPhase})
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if stored.Seq != 3 {
		t.Fatalf("expected seq 3 after reopen, got %d", stored.Seq)
	}
}

func TestMultiForwardsToEveryNotifier(t *testing.T) {
	var got []string
	multi := Multi{
		NotifierFunc(func(_ context.Context, n Notice) { got = append(got, "first:"+n.Kind) }),
		nil,
		Nop{},
		NotifierFunc(func(_ context.Context, n Notice) { got = append(got, "second:"+n.Kind) }),
	}
	multi.Notify(context.Background(), Notice{Kind: "vote.opened"})
	if strings.Join(got, ",") != "first:vote.opened,second:vote.opened" {
		t.Fatalf("unexpected deliveries: %v", got)
	}
}

func TestHubReplaysAndBroadcasts(t *testing.T) {
	feed := openTestFeed(t)
	hub := NewHub(feed, zerolog.Nop())
	hub.Notify(context.Background(), Notice{SeasonID: "s1", Kind: "day.started", Day: 1})
	hub.Notify(context.Background(), Notice{SeasonID: "s2", Kind: "day.started", Day: 1})

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub.Serve(w, r, "s1", 0)
	}))
	defer server.Close()
	defer hub.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(server.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var replayed Notice
	if err := conn.ReadJSON(&replayed); err != nil {
		t.Fatalf("read replay: %v", err)
	}
	if replayed.SeasonID != "s1" || replayed.Seq != 1 || replayed.Kind != "day.started" {
		t.Fatalf("unexpected replay: %+v", replayed)
	}

	deadline := time.Now().Add(5 * time.Second)
	for hub.Listeners("s1") == 0 {
		if time.Now().After(deadline) {
			t.Fatal("listener never registered")
		}
		time.Sleep(10 * time.Millisecond)
	}
	hub.Notify(context.Background(), Notice{SeasonID: "s1", Kind: "camp.opened", Day: 1})

	var live Notice
	if err := conn.ReadJSON(&live); err != nil {
		t.Fatalf("read live: %v", err)
	}
	if live.Kind != "camp.opened" || live.Seq != 2 {
		t.Fatalf("unexpected live notice: %+v", live)
	}
}

// readSeqs reads n notices and returns their sequence numbers.
func readSeqs(t *testing.T, conn *websocket.Conn, n int) []uint64 {
	t.Helper()

	seqs := make([]uint64, 0, n)
	for i := 0; i < n; i++ {
		var got Notice
		if err := conn.ReadJSON(&got); err != nil {
			t.Fatalf("read notice %d: %v", i, err)
		}
		seqs = append(seqs, got.Seq)
	}
	return seqs
}

func TestHubDeliversNoticeStoredDuringReplayOnce(t *testing.T) {
	feed := openTestFeed(t)
	hub := NewHub(feed, zerolog.Nop())
	hub.Notify(context.Background(), Notice{SeasonID: "s1", Kind: "day.started", Day: 1})

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := hub.upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		c := newClient(conn)
		hub.add("s1", c)
		// Stored and queued after registration but before the backlog is
		// read: the replay and the queue both carry it.
		hub.Notify(context.Background(), Notice{SeasonID: "s1", Kind: "camp.opened", Day: 1})
		hub.wg.Add(1)
		go func() {
			defer hub.wg.Done()
			hub.writeLoop(c, "s1", 0)
		}()
	}))
	defer server.Close()
	defer hub.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(server.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	got := readSeqs(t, conn, 2)
	hub.Notify(context.Background(), Notice{SeasonID: "s1", Kind: "challenge.opened", Day: 1})
	got = append(got, readSeqs(t, conn, 1)...)

	want := []uint64{1, 2, 3}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("seqs = %v, want %v", got, want)
		}
	}
}

func TestHubDropsListenerWithFullQueue(t *testing.T) {
	hub := NewHub(nil, zerolog.Nop())
	clients := make(chan *client, 1)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := hub.upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		// No writer drains this listener's queue.
		c := newClient(conn)
		hub.add("s1", c)
		clients <- c
	}))
	defer server.Close()
	defer hub.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(server.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	var c *client
	select {
	case c = <-clients:
	case <-time.After(5 * time.Second):
		t.Fatal("listener never registered")
	}

	start := time.Now()
	for i := 0; i <= sendBuffer; i++ {
		hub.Notify(context.Background(), Notice{SeasonID: "s1", Kind: KindPhase, Day: i})
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("notify waited on a stalled listener for %v", elapsed)
	}
	select {
	case <-c.done:
	default:
		t.Fatal("expected the stalled listener to be dropped")
	}
	if c.enqueue(Notice{SeasonID: "s1"}) {
		t.Fatal("expected a dropped listener to refuse notices")
	}
}
