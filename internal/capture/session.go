// Package capture drives a camera through one capture attempt: acquire the
// device, take one still, hand it to a submitter, release the device.
package capture

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/disintegration/imaging"
)

// State of a capture session.
type State int

const (
	StateIdle State = iota
	StateRequestingDevice
	StateStreaming
	StateCapturing
	StateSubmitting
	StateResult
	StateError
	StateClosed
)

var stateNames = [...]string{"IDLE", "REQUESTING_DEVICE", "STREAMING", "CAPTURING", "SUBMITTING", "RESULT", "ERROR", "CLOSED"}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", int(s))
}

const (
	DefaultReadyTimeout = 3 * time.Second
	DefaultJPEGQuality  = 90
)

var (
	ErrInvalidState = errors.New("capture: operation not allowed in current state")
	ErrNotReady     = errors.New("capture: camera has not produced a frame yet")
	ErrClosed       = errors.New("capture: session closed")
)

// Submitter receives the encoded still.
type Submitter func(ctx context.Context, jpeg []byte) error

// Option configures a Session.
type Option func(*Session)

// WithReadyTimeout bounds the wait for the first frame.
func WithReadyTimeout(d time.Duration) Option {
	return func(s *Session) { s.readyTimeout = d }
}

// WithJPEGQuality sets the encoder quality (1-100).
func WithJPEGQuality(q int) Option {
	return func(s *Session) { s.quality = q }
}

// Session is a single-camera capture state machine. All methods are safe for
// concurrent use; Close may be called from any state at any time.
type Session struct {
	dev          Device
	readyTimeout time.Duration
	quality      int

	mu        sync.Mutex
	state     State
	stream    Stream
	dispose   func()
	lastFrame []byte
	err       error
	notReady  bool
}

// NewSession creates an idle session over dev.
func NewSession(dev Device, opts ...Option) *Session {
	s := &Session{dev: dev, readyTimeout: DefaultReadyTimeout, quality: DefaultJPEGQuality}
	for _, o := range opts {
		o(s)
	}
	if s.readyTimeout <= 0 {
		s.readyTimeout = DefaultReadyTimeout
	}
	if s.quality < 1 || s.quality > 100 {
		s.quality = DefaultJPEGQuality
	}
	return s
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Err returns the error that moved the session to ERROR.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// NotReady reports that the ready wait timed out and no frame has been seen.
func (s *Session) NotReady() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.notReady
}

// LastFrame returns the last encoded still.
func (s *Session) LastFrame() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastFrame
}

// Open acquires the device and waits for it to become ready. A device
// failure moves the session to ERROR with a *DeviceError; a cancelled ctx
// moves it to ERROR with the context error. There is no retry.
func (s *Session) Open(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateIdle {
		s.mu.Unlock()
		return ErrInvalidState
	}
	s.state = StateRequestingDevice
	s.mu.Unlock()

	stream, err := s.dev.Open(ctx)

	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		if stream != nil {
			_ = stream.Close()
		}
		return ErrClosed
	}
	if err != nil {
		if de := asDeviceError(err); de != nil {
			err = de
		}
		s.fail(err)
		s.mu.Unlock()
		return err
	}
	s.stream = stream
	var once sync.Once
	s.dispose = func() { once.Do(func() { _ = stream.Close() }) }
	s.mu.Unlock()

	ready := false
	timer := time.NewTimer(s.readyTimeout)
	defer timer.Stop()
	select {
	case <-stream.Ready():
		ready = true
	case <-timer.C:
	case <-ctx.Done():
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.state == StateClosed {
			return ErrClosed
		}
		s.fail(ctx.Err())
		return ctx.Err()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateClosed {
		return ErrClosed
	}
	s.state = StateStreaming
	s.notReady = !ready
	return nil
}

// Capture encodes one still and passes it to submit. It fails fast without a
// transition unless the session is STREAMING with a non-empty frame. The
// device is released before submit runs.
func (s *Session) Capture(ctx context.Context, submit Submitter) error {
	s.mu.Lock()
	if s.state != StateStreaming {
		s.mu.Unlock()
		return ErrInvalidState
	}
	frame, err := s.stream.Frame()
	if err != nil || frame == nil || frame.Bounds().Dx() == 0 || frame.Bounds().Dy() == 0 {
		s.mu.Unlock()
		return ErrNotReady
	}
	s.notReady = false
	s.state = StateCapturing

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, frame, imaging.JPEG, imaging.JPEGQuality(s.quality)); err != nil {
		err = fmt.Errorf("encode frame: %w", err)
		s.fail(err)
		s.mu.Unlock()
		return err
	}
	jpeg := buf.Bytes()
	s.lastFrame = jpeg
	s.release()
	s.state = StateSubmitting
	s.mu.Unlock()

	err = submit(ctx, jpeg)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateClosed {
		if err != nil {
			return err
		}
		return ErrClosed
	}
	if err != nil {
		s.fail(err)
		return err
	}
	s.state = StateResult
	return nil
}

// Close releases the device from any state. It is idempotent.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateClosed {
		return nil
	}
	s.release()
	s.state = StateClosed
	return nil
}

// Reset returns a finished session (ERROR or RESULT) to IDLE so the user
// can start over.
func (s *Session) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateError && s.state != StateResult {
		return ErrInvalidState
	}
	s.state = StateIdle
	s.err = nil
	s.notReady = false
	s.lastFrame = nil
	return nil
}

// fail moves to ERROR and releases the device; callers hold mu.
func (s *Session) fail(err error) {
	s.release()
	s.err = err
	s.state = StateError
}

// release runs the disposer of the current stream at most once; callers hold mu.
func (s *Session) release() {
	if s.dispose != nil {
		s.dispose()
		s.dispose = nil
	}
	s.stream = nil
}
