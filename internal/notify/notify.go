// Package notify delivers result payloads to users and the admin channel.
//
// A Notifier is one transport attempt. The Dispatcher wraps it with bounded
// retry and records every outcome in the event log; it never returns an
// error to the caller, so one recipient failing cannot abort a batch.
package notify

import (
	"context"
	"errors"
)

type Kind string

const (
	KindRawResult          Kind = "raw_result"
	KindPsychometricResult Kind = "psychometric_result"
	KindNewUser            Kind = "new_user"
)

type Payload struct {
	Kind  Kind           `json:"kind"`
	Text  string         `json:"text"`
	Image []byte         `json:"image,omitempty"` // PNG
	Data  map[string]any `json:"data,omitempty"`
}

type Notifier interface {
	Notify(ctx context.Context, recipient string, p Payload) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, recipient string, p Payload) error

func (f NotifierFunc) Notify(ctx context.Context, recipient string, p Payload) error {
	return f(ctx, recipient, p)
}

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}
