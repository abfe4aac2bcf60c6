package feed

import (
	"bytes"
	"compress/flate"
	"encoding/base64"
	"encoding/json"
	"reflect"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"github.com/snarg/f12mqtt/internal/model"
)

// captureHandler records everything delivered by the client.
type captureHandler struct {
	mu       sync.Mutex
	initial  map[string]json.RawMessage
	messages []model.Message
}

func (h *captureHandler) InitialState(topics map[string]json.RawMessage, ts string) {
	h.mu.Lock()
	h.initial = topics
	h.mu.Unlock()
}

func (h *captureHandler) Message(msg model.Message) {
	h.mu.Lock()
	h.messages = append(h.messages, msg)
	h.mu.Unlock()
}

func (h *captureHandler) Disconnected(error) {}

func newTestClient() (*Client, *captureHandler) {
	h := &captureHandler{}
	c := NewClient(Options{BaseURL: "https://example.invalid", Handler: h, Log: zerolog.Nop()})
	return c, h
}

// deflateB64 compresses a payload the way the upstream encodes `.z` topics:
// raw deflate, then base64, wrapped in a JSON string.
func deflateB64(t *testing.T, payload string) json.RawMessage {
	t.Helper()
	var buf bytes.Buffer
	w, err := flate.NewWriter(&buf, flate.DefaultCompression)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := w.Write([]byte(payload)); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	encoded, err := json.Marshal(base64.StdEncoding.EncodeToString(buf.Bytes()))
	if err != nil {
		t.Fatal(err)
	}
	return encoded
}

func TestInflate(t *testing.T) {
	c, _ := newTestClient()

	t.Run("plain_topic_passthrough", func(t *testing.T) {
		payload := json.RawMessage(`{"Status":"1"}`)
		got, name, ok := c.inflate("TrackStatus", payload)
		if !ok || name != "TrackStatus" || !bytes.Equal(got, payload) {
			t.Errorf("inflate = %s, %q, %v", got, name, ok)
		}
	})

	t.Run("compressed_topic", func(t *testing.T) {
		want := `{"Entries":[1,2,3]}`
		got, name, ok := c.inflate("CarData.z", deflateB64(t, want))
		if !ok || name != "CarData" {
			t.Fatalf("inflate = %q, %v", name, ok)
		}
		if string(got) != want {
			t.Errorf("payload = %s, want %s", got, want)
		}
	})

	t.Run("compressed_not_a_string", func(t *testing.T) {
		if _, _, ok := c.inflate("CarData.z", json.RawMessage(`{"x":1}`)); ok {
			t.Error("expected failure for non-string compressed payload")
		}
	})

	t.Run("bad_base64", func(t *testing.T) {
		if _, _, ok := c.inflate("CarData.z", json.RawMessage(`"!!!not-base64!!!"`)); ok {
			t.Error("expected failure for invalid base64")
		}
	})
}

func TestHandleFrame(t *testing.T) {
	t.Run("feed_call_delivers_message", func(t *testing.T) {
		c, h := newTestClient()
		frame := `{"M":[{"H":"Streaming","M":"feed","A":["TrackStatus",{"Status":"4","Message":"SC DEPLOYED"},"2024-05-26T13:00:00Z"]}]}`
		c.handleFrame([]byte(frame))

		if len(h.messages) != 1 {
			t.Fatalf("messages = %d, want 1", len(h.messages))
		}
		want := model.Message{
			TS:    "2024-05-26T13:00:00Z",
			Topic: "TrackStatus",
			Data:  json.RawMessage(`{"Status":"4","Message":"SC DEPLOYED"}`),
		}
		if !reflect.DeepEqual(h.messages[0], want) {
			t.Errorf("message = %+v, want %+v", h.messages[0], want)
		}
	})

	t.Run("compressed_stream_topic", func(t *testing.T) {
		c, h := newTestClient()
		inner := `{"Entries":[]}`
		call := map[string]any{
			"H": "Streaming", "M": "feed",
			"A": []json.RawMessage{
				json.RawMessage(`"CarData.z"`),
				deflateB64(t, inner),
				json.RawMessage(`"2024-05-26T13:00:01Z"`),
			},
		}
		frame, _ := json.Marshal(map[string]any{"M": []any{call}})
		c.handleFrame(frame)

		if len(h.messages) != 1 {
			t.Fatalf("messages = %d, want 1", len(h.messages))
		}
		if h.messages[0].Topic != "CarData" || string(h.messages[0].Data) != inner {
			t.Errorf("message = %+v", h.messages[0])
		}
	})

	t.Run("subscription_reply", func(t *testing.T) {
		c, h := newTestClient()
		frame := `{"R":{"TrackStatus":{"Status":"1"},"LapCount":{"CurrentLap":3,"TotalLaps":57}}}`
		c.handleFrame([]byte(frame))

		if len(h.initial) != 2 {
			t.Fatalf("initial topics = %d, want 2", len(h.initial))
		}
		if string(h.initial["TrackStatus"]) != `{"Status":"1"}` {
			t.Errorf("TrackStatus = %s", h.initial["TrackStatus"])
		}
	})

	t.Run("non_feed_methods_skipped", func(t *testing.T) {
		c, h := newTestClient()
		c.handleFrame([]byte(`{"M":[{"H":"Streaming","M":"ping","A":["x","y","z"]}]}`))
		if len(h.messages) != 0 {
			t.Errorf("messages = %d, want 0", len(h.messages))
		}
	})

	t.Run("short_args_skipped", func(t *testing.T) {
		c, h := newTestClient()
		c.handleFrame([]byte(`{"M":[{"H":"Streaming","M":"feed","A":["TrackStatus"]}]}`))
		if len(h.messages) != 0 {
			t.Errorf("messages = %d, want 0", len(h.messages))
		}
	})

	t.Run("garbage_frame_ignored", func(t *testing.T) {
		c, h := newTestClient()
		c.handleFrame([]byte(`not json`))
		c.handleFrame([]byte(`{}`))
		if len(h.messages) != 0 || h.initial != nil {
			t.Error("garbage frames produced deliveries")
		}
	})
}
