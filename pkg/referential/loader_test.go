package referential

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"
	"unicode/utf16"

	lzstring "github.com/daku10/go-lz-string"
	"github.com/rs/zerolog"

	"github.com/derandereandi/nea2mqtt/pkg/broker"
)

type staticToken string

func (s staticToken) AccessToken() string { return string(s) }

// fakeLink records the published request and lets the test deliver the
// asynchronous reply.
type fakeLink struct {
	ops      []string
	topic    string
	payload  []byte
	replies  [][]byte
	handlers []broker.MessageHandler
	removed  int
}

func (l *fakeLink) SubscribeVendor(topic string) error {
	l.ops = append(l.ops, "subscribe "+topic)
	return nil
}

// PublishVendor records the request and delivers the canned replies,
// mimicking the vendor answering on the user topic.
func (l *fakeLink) PublishVendor(topic string, payload []byte) error {
	l.ops = append(l.ops, "publish "+topic)
	l.topic = topic
	l.payload = payload
	for _, r := range l.replies {
		l.deliver(r)
	}
	return nil
}

func (l *fakeLink) OnVendorMessage(fn broker.MessageHandler) func() {
	l.handlers = append(l.handlers, fn)
	return func() { l.removed++ }
}

func (l *fakeLink) deliver(payload []byte) {
	for _, fn := range l.handlers {
		fn("client/u@example.com", payload)
	}
}

func referentialFrame(t *testing.T, pairs []Pair) []byte {
	t.Helper()
	raw, err := json.Marshal(pairs)
	if err != nil {
		t.Fatal(err)
	}
	units, err := lzstring.CompressToUTF16(string(raw))
	if err != nil {
		t.Fatal(err)
	}
	blob := string(utf16.Decode(units))
	frame, err := json.Marshal(map[string]any{"type": "referential", "data": blob})
	if err != nil {
		t.Fatal(err)
	}
	return frame
}

func TestLoaderLoad(t *testing.T) {
	store := NewStore()
	link := &fakeLink{}
	loader := NewLoader(store, link, "u@example.com", staticToken("tok"), time.Hour, zerolog.Nop())

	link.replies = [][]byte{
		[]byte(`{"type":"realtime","zones":[]}`), // unrelated, ignored
		referentialFrame(t, []Pair{
			{Index: "15", Value: "mode_used"},
			{Index: "90", Value: "temp_zone"},
		}),
	}

	if err := loader.Load(context.Background()); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if link.topic != "server/u@example.com/v1/install/user/referential" {
		t.Errorf("request topic = %q", link.topic)
	}
	var req map[string]any
	if err := json.Unmarshal(link.payload, &req); err != nil {
		t.Fatal(err)
	}
	if req["ID"] != "u@example.com" || req["sso"] != true || req["token"] != "tok" {
		t.Errorf("request payload = %v", req)
	}

	if !store.Loaded() {
		t.Fatal("store not loaded")
	}
	if got := store.NumberFor("temp_zone"); got != "90" {
		t.Errorf("NumberFor(temp_zone) = %q", got)
	}
	if link.removed != 1 {
		t.Errorf("reply handler removed %d times, want 1", link.removed)
	}
}

func TestLoadRoutesReplyBeforeRequest(t *testing.T) {
	store := NewStore()
	link := &fakeLink{}
	loader := NewLoader(store, link, "u@example.com", staticToken("tok"), time.Hour, zerolog.Nop())

	link.replies = [][]byte{referentialFrame(t, []Pair{{Index: "15", Value: "mode_used"}})}
	if err := loader.Load(context.Background()); err != nil {
		t.Fatal(err)
	}

	// The reply comes back on the user topic, so the subscription must
	// be in place before the request is published.
	want := []string{
		"subscribe client/u@example.com",
		"publish server/u@example.com/v1/install/user/referential",
	}
	if len(link.ops) != len(want) {
		t.Fatalf("ops = %v", link.ops)
	}
	for i := range want {
		if link.ops[i] != want[i] {
			t.Errorf("ops[%d] = %q, want %q", i, link.ops[i], want[i])
		}
	}
}

func TestLoaderTimeout(t *testing.T) {
	store := NewStore()
	link := &fakeLink{}
	loader := NewLoader(store, link, "u@example.com", staticToken("tok"), time.Hour, zerolog.Nop())
	loader.wait = 20 * time.Millisecond

	err := loader.Load(context.Background())
	if !errors.Is(err, ErrLoadTimeout) {
		t.Fatalf("Load() error = %v, want ErrLoadTimeout", err)
	}

	// The fallback mapping still answers after a failed load.
	if got := store.NumberFor(KeyModeUsed); got != "15" {
		t.Errorf("NumberFor(mode_used) = %q", got)
	}
	if link.removed != 1 {
		t.Errorf("reply handler removed %d times, want 1", link.removed)
	}
}
