package sink

import (
	"context"
	"errors"
	"strings"

	pkgerrors "github.com/pkg/errors"
)

// Event is one decoded advertisement handed to the sinks.
type Event struct {
	MessageID  int64          `json:"message_id"`
	DeviceMAC  string         `json:"device_mac"`
	GatewayMAC string         `json:"gateway_mac,omitempty"`
	Timestamp  int64          `json:"timestamp"`
	RSSI       *int           `json:"rssi,omitempty"`
	RawHex     string         `json:"raw_data"`
	Driver     string         `json:"driver"`
	Fields     map[string]any `json:"parsed_json"`
}

// Sink persists or forwards decoded advertisements.
type Sink interface {
	Name() string
	Store(context.Context, Event) error
	Close() error
}

// BestEffort is implemented by sinks whose failure must not fail the request,
// such as callback publishers that run after the event was persisted.
type BestEffort interface {
	BestEffort() bool
}

// Failure is the error of one sink inside a Multi.
type Failure struct {
	Sink       string
	BestEffort bool
	Err        error
}

func (f *Failure) Error() string { return f.Sink + ": " + f.Err.Error() }

func (f *Failure) Unwrap() error { return f.Err }

// StoreError lists every sink that failed one Multi.Store call.
type StoreError struct {
	Failures []*Failure
}

func (e *StoreError) Error() string {
	msgs := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		msgs = append(msgs, f.Error())
	}
	return "sink store: " + strings.Join(msgs, "; ")
}

func (e *StoreError) Unwrap() []error {
	errs := make([]error, 0, len(e.Failures))
	for _, f := range e.Failures {
		errs = append(errs, f)
	}
	return errs
}

// Critical reports whether any sink that is not best-effort failed.
func (e *StoreError) Critical() bool {
	for _, f := range e.Failures {
		if !f.BestEffort {
			return true
		}
	}
	return false
}

// Multi fans an event out to every sink in order. One failing sink does not
// stop the others.
type Multi []Sink

func (m Multi) Name() string {
	names := make([]string, 0, len(m))
	for _, s := range m {
		names = append(names, s.Name())
	}
	return strings.Join(names, ",")
}

// Store returns a *StoreError when at least one sink failed.
func (m Multi) Store(ctx context.Context, evt Event) error {
	var failures []*Failure
	for _, s := range m {
		if err := s.Store(ctx, evt); err != nil {
			f := &Failure{Sink: s.Name(), Err: err}
			if be, ok := s.(BestEffort); ok {
				f.BestEffort = be.BestEffort()
			}
			failures = append(failures, f)
		}
	}
	if len(failures) > 0 {
		return &StoreError{Failures: failures}
	}
	return nil
}

func (m Multi) Close() error {
	var errs []error
	for _, s := range m {
		if err := s.Close(); err != nil {
			errs = append(errs, pkgerrors.Wrap(err, s.Name()))
		}
	}
	if len(errs) > 0 {
		return pkgerrors.Wrap(errors.Join(errs...), "sink close")
	}
	return nil
}

// IsCritical reports whether err from Store should fail the caller. Errors
// that are not a *StoreError always count.
func IsCritical(err error) bool {
	if err == nil {
		return false
	}
	var se *StoreError
	if errors.As(err, &se) {
		return se.Critical()
	}
	return true
}
