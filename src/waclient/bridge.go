package waclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// BridgeFactory builds clients that talk to the browser-automation driver
// sidecar over HTTP. The driver owns the actual whatsapp-web.js client and
// its browser process; this side registers the session, polls its event
// stream, and forwards operations.
type BridgeFactory struct {
	baseURL string
	creds   *CredentialStore
	client  *http.Client
}

// NewBridgeFactory creates a factory bound to the driver at baseURL.
func NewBridgeFactory(baseURL string, creds *CredentialStore) *BridgeFactory {
	return &BridgeFactory{
		baseURL: baseURL,
		creds:   creds,
		client:  &http.Client{Timeout: 60 * time.Second},
	}
}

// New constructs a bridge client for one session.
func (f *BridgeFactory) New(sessionID string, handlers EventHandlers) (Client, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("bridge: missing session id")
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &bridgeClient{
		factory:   f,
		sessionID: sessionID,
		handlers:  handlers,
		loopCtx:   ctx,
		loopStop:  cancel,
	}, nil
}

type bridgeClient struct {
	factory   *BridgeFactory
	sessionID string
	handlers  EventHandlers
	loopCtx   context.Context
	loopStop  context.CancelFunc
}

type bridgeEvent struct {
	Type    string `json:"type"`
	Code    string `json:"code,omitempty"`
	Reason  string `json:"reason,omitempty"`
	Message string `json:"message,omitempty"`
	Percent int    `json:"percent,omitempty"`
	State   string `json:"state,omitempty"`
}

func (c *bridgeClient) url(path string) string {
	return fmt.Sprintf("%s/sessions/%s%s", c.factory.baseURL, c.sessionID, path)
}

// Initialize registers the session with the driver and starts the event
// poll loop. The driver loads credentials from the session's auth directory
// when present, so a restoration needs no extra signaling.
func (c *bridgeClient) Initialize(ctx context.Context) error {
	body, err := json.Marshal(map[string]string{
		"auth_dir": c.factory.creds.Dir(c.sessionID),
	})
	if err != nil {
		return fmt.Errorf("bridge: failed to marshal initialize request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url(""), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("bridge: failed to build initialize request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.factory.client.Do(req)
	if err != nil {
		return fmt.Errorf("bridge: initialize request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		raw, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("bridge: driver rejected initialization (status %d): %s", resp.StatusCode, string(raw))
	}

	go c.eventLoop()
	return nil
}

// eventLoop long-polls the driver's event stream and dispatches to handlers
// until the client is destroyed or the driver forgets the session.
func (c *bridgeClient) eventLoop() {
	for {
		select {
		case <-c.loopCtx.Done():
			return
		default:
		}

		events, err := c.pollEvents()
		if err != nil {
			if c.loopCtx.Err() != nil {
				return
			}
			slog.Warn("Bridge event poll failed, retrying",
				"session_id", c.sessionID, "error", err)
			select {
			case <-time.After(2 * time.Second):
			case <-c.loopCtx.Done():
				return
			}
			continue
		}

		for _, ev := range events {
			c.dispatch(ev)
		}
	}
}

func (c *bridgeClient) pollEvents() ([]bridgeEvent, error) {
	req, err := http.NewRequestWithContext(c.loopCtx, http.MethodGet, c.url("/events?timeout=25"), nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.factory.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		// Driver no longer knows this session; stop polling.
		c.loopStop()
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("event poll returned status %d", resp.StatusCode)
	}

	var payload struct {
		Events []bridgeEvent `json:"events"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode event stream: %w", err)
	}
	return payload.Events, nil
}

func (c *bridgeClient) dispatch(ev bridgeEvent) {
	switch ev.Type {
	case "qr":
		if c.handlers.OnQR != nil {
			c.handlers.OnQR(ev.Code)
		}
	case "authenticated":
		if c.handlers.OnAuthenticated != nil {
			c.handlers.OnAuthenticated()
		}
	case "ready":
		if c.handlers.OnReady != nil {
			c.handlers.OnReady()
		}
	case "disconnected":
		if c.handlers.OnDisconnected != nil {
			c.handlers.OnDisconnected(ev.Reason)
		}
	case "auth_failure":
		if c.handlers.OnAuthFailure != nil {
			c.handlers.OnAuthFailure(ev.Message)
		}
	case "loading_screen":
		if c.handlers.OnLoadingScreen != nil {
			c.handlers.OnLoadingScreen(ev.Percent, ev.Message)
		}
	case "change_state":
		if c.handlers.OnStateChange != nil {
			c.handlers.OnStateChange(ev.State)
		}
	default:
		slog.Debug("Ignoring unknown bridge event",
			"session_id", c.sessionID, "type", ev.Type)
	}
}

// Destroy stops the event loop and tears the driver session down.
func (c *bridgeClient) Destroy(ctx context.Context) error {
	c.loopStop()

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.url(""), nil)
	if err != nil {
		return fmt.Errorf("bridge: failed to build destroy request: %w", err)
	}

	resp, err := c.factory.client.Do(req)
	if err != nil {
		return fmt.Errorf("bridge: destroy request failed: %w", err)
	}
	defer resp.Body.Close()

	// A 404 means the driver already dropped the session.
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent &&
		resp.StatusCode != http.StatusNotFound {
		return fmt.Errorf("bridge: destroy returned status %d", resp.StatusCode)
	}
	return nil
}

func (c *bridgeClient) SendMessage(ctx context.Context, address, body string, media *Media) (string, error) {
	payload, err := json.Marshal(map[string]any{
		"to":    address,
		"body":  body,
		"media": media,
	})
	if err != nil {
		return "", fmt.Errorf("bridge: failed to marshal message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url("/messages"), bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("bridge: failed to build send request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.factory.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("bridge: send request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("bridge: send returned status %d: %s", resp.StatusCode, string(raw))
	}

	var result struct {
		MessageID string `json:"message_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("bridge: failed to decode send response: %w", err)
	}
	return result.MessageID, nil
}

func (c *bridgeClient) Info(ctx context.Context) (*Info, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url("/info"), nil)
	if err != nil {
		return nil, fmt.Errorf("bridge: failed to build info request: %w", err)
	}

	resp, err := c.factory.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("bridge: info request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("bridge: info returned status %d", resp.StatusCode)
	}

	var info Info
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("bridge: failed to decode info response: %w", err)
	}
	return &info, nil
}
