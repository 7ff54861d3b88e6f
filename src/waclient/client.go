// Package waclient defines the contract of the external WhatsApp automation
// client and the collaborators around it: the HTTP bridge to the
// browser-automation driver, the file-backed credential store, the identity
// service client, and the pre-flight network probe.
package waclient

import "context"

// EventHandlers receives the client's asynchronous events. Handlers must be
// registered before Initialize is called; nil handlers are ignored.
type EventHandlers struct {
	OnQR            func(code string)
	OnAuthenticated func()
	OnReady         func()
	OnDisconnected  func(reason string)
	OnAuthFailure   func(message string)
	OnLoadingScreen func(percent int, message string)
	OnStateChange   func(state string)
}

// Info describes the account bound to a ready client.
type Info struct {
	PhoneNumber string `json:"phone_number"`
	Platform    string `json:"platform,omitempty"`
	PushName    string `json:"push_name,omitempty"`
}

// Media describes an optional attachment for an outbound message.
type Media struct {
	URL      string `json:"url"`
	MimeType string `json:"mime_type,omitempty"`
	Caption  string `json:"caption,omitempty"`
}

// Client is one live automation client bound to a single session. Operations
// against a client are serialized per session by the caller.
type Client interface {
	// Initialize starts the client. It returns once the underlying driver
	// has accepted the session; progress past that point arrives as events.
	Initialize(ctx context.Context) error

	// Destroy tears the client down and releases its browser process.
	Destroy(ctx context.Context) error

	// SendMessage delivers one message to a canonical transport address and
	// returns the transport message id.
	SendMessage(ctx context.Context, address, body string, media *Media) (string, error)

	// Info returns account details. Only meaningful once the client is ready.
	Info(ctx context.Context) (*Info, error)
}

// Factory constructs a client for a session, with its event handlers wired
// and its credential material bound to the session id.
type Factory interface {
	New(sessionID string, handlers EventHandlers) (Client, error)
}
