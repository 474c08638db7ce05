package telegram

import (
	"errors"
)

// ErrClientUnavailable is returned by DisabledDialer.
var ErrClientUnavailable = errors.New("no messaging client linked into this build")

// DisabledDialer is the default dialer when no concrete network client is
// wired in. Handshake jobs fail fast, get retried by the queue policy, and
// end up on the dead list, while the rest of the server keeps working.
type DisabledDialer struct{}

func NewDisabledDialer() *DisabledDialer {
	return &DisabledDialer{}
}

func (d *DisabledDialer) Dial(creds Credentials) (Client, error) {
	return nil, ErrClientUnavailable
}
