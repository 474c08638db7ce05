// Package telegram defines the capability boundary to the external messaging
// network. The server core depends only on these interfaces; a concrete
// dialer backed by an MTProto client plugs in at wiring time, and tests use
// fakes.
package telegram

import "context"

// Credentials are the application-level API credentials.
type Credentials struct {
	APIID   int
	APIHash string
}

// SentCode is the result of requesting a login code. PhoneCodeHash
// correlates the later sign-in with this request and must be carried
// verbatim.
type SentCode struct {
	PhoneCodeHash string
	Timeout       int
}

// Client is one live connection to the network on behalf of a single phone
// number.
type Client interface {
	// Connect establishes the session. When session is non-empty the client
	// resumes that exported session instead of starting fresh.
	Connect(ctx context.Context, session string) error

	// Disconnect tears the connection down. Safe to call after a failed
	// Connect.
	Disconnect(ctx context.Context) error

	// SendCode asks the network to deliver a login code to the phone.
	SendCode(ctx context.Context, phone string) (*SentCode, error)

	// SignIn completes the login with the delivered code.
	SignIn(ctx context.Context, phone, code, phoneCodeHash string) error

	// ExportSession serializes the authorized session for storage.
	ExportSession(ctx context.Context) (string, error)
}

// Dialer constructs Clients. One Client per handshake attempt.
type Dialer interface {
	Dial(creds Credentials) (Client, error)
}
