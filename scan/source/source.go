// Package source turns a live decode feed (camera) or manual text entry into a
// stream of discrete code events on a channel, so downstream filtering and the
// inspection workflow can be driven without a real device.
package source

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrCameraUnavailable is returned by Start when the device cannot be acquired,
// either because permissions are denied or no camera exists.
var ErrCameraUnavailable = errors.New("camera unavailable")

// Event is one decoded text value or one manual submission.
type Event struct {
	Code   string
	Manual bool
	At     time.Time
}

// Decoder is the opaque decode capability: given a live feed it yields a lazy
// sequence of decoded text values. Next blocks until a value is available or
// ctx is done; a nil error with an empty string is never returned.
type Decoder interface {
	Open(ctx context.Context) error
	Next(ctx context.Context) (string, error)
	Close() error
}

type state int

const (
	stateIdle state = iota
	stateRunning
	statePaused
	stateStopped
)

// Source owns one decode device. Two independent instances may run at the same
// time; they share no state.
type Source struct {
	dec Decoder
	now func() time.Time

	mu         sync.Mutex
	st         state
	cancel     context.CancelFunc
	emitClosed bool

	events chan Event
}

func New(dec Decoder) *Source {
	return &Source{
		dec:    dec,
		now:    time.Now,
		events: make(chan Event, 16),
	}
}

// Events is the output stream. Emission never mutates anything downstream.
func (s *Source) Events() <-chan Event {
	return s.events
}

// Start acquires the device and begins emitting decode events.
func (s *Source) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.st != stateIdle {
		return fmt.Errorf("source already started")
	}
	if err := s.dec.Open(ctx); err != nil {
		if errors.Is(err, ErrCameraUnavailable) {
			return err
		}
		return fmt.Errorf("%w: %v", ErrCameraUnavailable, err)
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.st = stateRunning
	go s.run(runCtx)
	return nil
}

// Pause suspends emission without releasing the device handle. Decodes that
// arrive while paused are discarded, not queued.
func (s *Source) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.st == stateRunning {
		s.st = statePaused
	}
}

// Resume continues emission after Pause.
func (s *Source) Resume() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.st == statePaused {
		s.st = stateRunning
	}
}

// Stop releases the device handle. The source cannot be restarted.
func (s *Source) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.st == stateStopped {
		return
	}
	if s.cancel != nil {
		s.cancel()
	}
	if s.st != stateIdle {
		_ = s.dec.Close()
	}
	s.st = stateStopped
}

// SubmitManual emits a single manual-entry event. It reports false once the
// source is stopped or when the consumer is too far behind.
func (s *Source) SubmitManual(code string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.st == stateStopped || s.st == stateIdle || s.emitClosed {
		return false
	}
	select {
	case s.events <- Event{Code: code, Manual: true, At: s.now()}:
		return true
	default:
		return false
	}
}

func (s *Source) run(ctx context.Context) {
	defer func() {
		// Closing under the mutex keeps SubmitManual from racing a send
		// against the close. Consumers see the channel drain and end.
		s.mu.Lock()
		s.emitClosed = true
		close(s.events)
		s.mu.Unlock()
	}()
	for {
		code, err := s.dec.Next(ctx)
		if err != nil {
			return
		}
		if code == "" {
			continue
		}
		if s.paused() {
			continue
		}
		// The decode loop must never block on a slow consumer; re-reports of
		// the same code arrive many times per second while a label stays in
		// frame, so dropping here loses nothing.
		select {
		case s.events <- Event{Code: code, At: s.now()}:
		default:
		}
	}
}

func (s *Source) paused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st == statePaused
}
