// Package feed is the upstream live-timing adapter: a SignalR-style
// hub-and-topic push protocol delivering JSON diffs over a persistent
// WebSocket. The adapter negotiates a connection token over HTTP, connects,
// subscribes to the topic set, inflates compressed topics, and hands
// canonical messages to its handler. Reconnects use a fixed 2-second backoff;
// the pipeline tolerates the gap.
package feed

import (
	"bytes"
	"compress/flate"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/snarg/f12mqtt/internal/metrics"
	"github.com/snarg/f12mqtt/internal/model"
)

const (
	hubName        = "Streaming"
	clientProtocol = "1.5"
	reconnectDelay = 2 * time.Second
)

// subscribedTopics is the full topic set requested from the hub.
var subscribedTopics = []string{
	"TimingData",
	"TrackStatus",
	"DriverList",
	"RaceControlMessages",
	"SessionInfo",
	"SessionData",
	"LapCount",
	"WeatherData",
	"TimingAppData",
	"ExtrapolatedClock",
	"Heartbeat",
	"CarData.z",
	"Position.z",
}

// Handler receives canonical feed messages. InitialState delivers the
// subscription reply: the full per-topic state at connect time.
type Handler interface {
	InitialState(topics map[string]json.RawMessage, ts string)
	Message(msg model.Message)
	Disconnected(err error)
}

// Client maintains the upstream connection.
type Client struct {
	baseURL string
	handler Handler
	log     zerolog.Logger
	http    *http.Client
}

type Options struct {
	BaseURL string // e.g. https://livetiming.formula1.com
	Handler Handler
	Log     zerolog.Logger
}

func NewClient(opts Options) *Client {
	return &Client{
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		handler: opts.Handler,
		log:     opts.Log.With().Str("component", "feed").Logger(),
		http:    &http.Client{Timeout: 15 * time.Second},
	}
}

// Run connects and reads until ctx is cancelled, reconnecting on any error
// with a fixed backoff.
func (c *Client) Run(ctx context.Context) {
	for {
		if err := c.connectAndRead(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			c.log.Warn().Err(err).Dur("backoff", reconnectDelay).Msg("feed disconnected, reconnecting")
			c.handler.Disconnected(err)
			metrics.FeedReconnectsTotal.Inc()
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(reconnectDelay):
		}
	}
}

// negotiate fetches the connection token and session cookie.
func (c *Client) negotiate(ctx context.Context) (token string, cookie string, err error) {
	q := url.Values{}
	q.Set("connectionData", fmt.Sprintf(`[{"name":%q}]`, hubName))
	q.Set("clientProtocol", clientProtocol)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/signalr/negotiate?"+q.Encode(), nil)
	if err != nil {
		return "", "", err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return "", "", fmt.Errorf("negotiate: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", "", fmt.Errorf("negotiate: status %d", resp.StatusCode)
	}

	var body struct {
		ConnectionToken string `json:"ConnectionToken"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", "", fmt.Errorf("negotiate decode: %w", err)
	}

	var cookies []string
	for _, ck := range resp.Cookies() {
		cookies = append(cookies, ck.Name+"="+ck.Value)
	}
	return body.ConnectionToken, strings.Join(cookies, "; "), nil
}

func (c *Client) connectAndRead(ctx context.Context) error {
	token, cookie, err := c.negotiate(ctx)
	if err != nil {
		return err
	}

	q := url.Values{}
	q.Set("transport", "webSockets")
	q.Set("connectionToken", token)
	q.Set("connectionData", fmt.Sprintf(`[{"name":%q}]`, hubName))
	q.Set("clientProtocol", clientProtocol)

	wsURL := strings.Replace(c.baseURL, "https://", "wss://", 1) +
		"/signalr/connect?" + q.Encode()

	header := http.Header{}
	if cookie != "" {
		header.Set("Cookie", cookie)
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, header)
	if err != nil {
		return fmt.Errorf("ws dial: %w", err)
	}
	defer conn.Close()
	c.log.Info().Msg("feed connected")

	subscribe := map[string]any{
		"H": hubName,
		"M": "Subscribe",
		"A": []any{subscribedTopics},
		"I": 1,
	}
	if err := conn.WriteJSON(subscribe); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}

	// Close the socket when ctx ends so ReadMessage unblocks.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("ws read: %w", err)
		}
		c.handleFrame(data)
	}
}

// hubFrame is the SignalR wire frame. R carries the subscription reply (the
// initial per-topic state); M carries streamed hub calls.
type hubFrame struct {
	R json.RawMessage `json:"R"`
	M []hubCall       `json:"M"`
}

type hubCall struct {
	Hub    string            `json:"H"`
	Method string            `json:"M"`
	Args   []json.RawMessage `json:"A"`
}

func (c *Client) handleFrame(data []byte) {
	var frame hubFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		c.log.Debug().Err(err).Msg("unparseable frame skipped")
		return
	}

	if len(frame.R) > 0 && string(frame.R) != "null" {
		c.handleInitial(frame.R)
	}

	for _, call := range frame.M {
		if call.Method != "feed" || len(call.Args) < 3 {
			continue
		}
		var topic, ts string
		if err := json.Unmarshal(call.Args[0], &topic); err != nil {
			continue
		}
		if err := json.Unmarshal(call.Args[2], &ts); err != nil {
			continue
		}
		payload, topic, ok := c.inflate(topic, call.Args[1])
		if !ok {
			continue
		}
		c.handler.Message(model.Message{TS: ts, Topic: topic, Data: payload})
	}
}

// handleInitial splits the subscription reply into per-topic payloads and
// delivers them with a synthetic shared timestamp.
func (c *Client) handleInitial(raw json.RawMessage) {
	var topics map[string]json.RawMessage
	if err := json.Unmarshal(raw, &topics); err != nil {
		c.log.Warn().Err(err).Msg("subscription reply decode failed")
		return
	}
	inflated := make(map[string]json.RawMessage, len(topics))
	for topic, payload := range topics {
		data, name, ok := c.inflate(topic, payload)
		if !ok {
			continue
		}
		inflated[name] = data
	}
	ts := time.Now().UTC().Format(time.RFC3339Nano)
	c.log.Info().Int("topics", len(inflated)).Msg("initial state received")
	c.handler.InitialState(inflated, ts)
}

// inflate decompresses `.z` topics (base64 + raw deflate of a JSON payload)
// and strips the suffix. Plain topics pass through.
func (c *Client) inflate(topic string, payload json.RawMessage) (json.RawMessage, string, bool) {
	if !strings.HasSuffix(topic, ".z") {
		return payload, topic, true
	}
	name := strings.TrimSuffix(topic, ".z")

	var encoded string
	if err := json.Unmarshal(payload, &encoded); err != nil {
		c.log.Debug().Str("topic", topic).Msg("compressed payload not a string")
		return nil, name, false
	}
	compressed, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		c.log.Debug().Err(err).Str("topic", topic).Msg("base64 decode failed")
		return nil, name, false
	}
	inflated, err := io.ReadAll(flate.NewReader(bytes.NewReader(compressed)))
	if err != nil {
		c.log.Debug().Err(err).Str("topic", topic).Msg("inflate failed")
		return nil, name, false
	}
	return inflated, name, true
}
