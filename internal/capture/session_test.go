package capture

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/require"

	"campusattend/internal/apperr"
)

type fakeStream struct {
	mu     sync.Mutex
	frame  image.Image
	ready  chan struct{}
	closes *atomic.Int32
}

func (s *fakeStream) Ready() <-chan struct{} { return s.ready }

func (s *fakeStream) Frame() (image.Image, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frame, nil
}

func (s *fakeStream) setFrame(img image.Image) {
	s.mu.Lock()
	s.frame = img
	s.mu.Unlock()
}

func (s *fakeStream) Close() error {
	s.closes.Add(1)
	return nil
}

type fakeDevice struct {
	err     error
	ready   bool
	frame   image.Image
	opens   atomic.Int32
	closes  atomic.Int32
	streams []*fakeStream
}

func (d *fakeDevice) Open(context.Context) (Stream, error) {
	d.opens.Add(1)
	if d.err != nil {
		return nil, d.err
	}
	st := &fakeStream{frame: d.frame, ready: make(chan struct{}), closes: &d.closes}
	if d.ready {
		close(st.ready)
	}
	d.streams = append(d.streams, st)
	return st, nil
}

func solid(w, h int) image.Image {
	return imaging.New(w, h, color.NRGBA{R: 200, G: 120, B: 80, A: 255})
}

func TestCaptureHappyPathReleasesOnce(t *testing.T) {
	dev := &fakeDevice{ready: true, frame: solid(64, 48)}
	s := NewSession(dev)
	ctx := context.Background()

	require.NoError(t, s.Open(ctx))
	require.Equal(t, StateStreaming, s.State())
	require.False(t, s.NotReady())

	var got []byte
	err := s.Capture(ctx, func(_ context.Context, b []byte) error {
		require.Equal(t, StateSubmitting, s.State())
		require.EqualValues(t, 1, dev.closes.Load())
		got = b
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, StateResult, s.State())

	img, err := jpeg.Decode(bytes.NewReader(got))
	require.NoError(t, err)
	require.Equal(t, 64, img.Bounds().Dx())
	require.Equal(t, got, s.LastFrame())

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	require.Equal(t, StateClosed, s.State())
	require.EqualValues(t, 1, dev.closes.Load())
}

func TestOpenDeviceFailureMovesToError(t *testing.T) {
	dev := &fakeDevice{err: &DeviceError{Cause: CausePermissionDenied}}
	s := NewSession(dev)

	err := s.Open(context.Background())
	var de *DeviceError
	require.ErrorAs(t, err, &de)
	require.Equal(t, CausePermissionDenied, de.Cause)
	require.ErrorIs(t, err, apperr.ErrDeviceAccess)
	require.Equal(t, StateError, s.State())

	require.ErrorIs(t, s.Capture(context.Background(), nil), ErrInvalidState)
	require.EqualValues(t, 1, dev.opens.Load())
}

func TestCaptureBeforeOpenFailsWithoutTransition(t *testing.T) {
	s := NewSession(&fakeDevice{})
	require.ErrorIs(t, s.Capture(context.Background(), nil), ErrInvalidState)
	require.Equal(t, StateIdle, s.State())
}

func TestNotReadyRefusesEmptyFrame(t *testing.T) {
	dev := &fakeDevice{ready: false, frame: image.NewRGBA(image.Rect(0, 0, 0, 0))}
	s := NewSession(dev, WithReadyTimeout(20*time.Millisecond))
	ctx := context.Background()

	require.NoError(t, s.Open(ctx))
	require.Equal(t, StateStreaming, s.State())
	require.True(t, s.NotReady())

	called := false
	err := s.Capture(ctx, func(context.Context, []byte) error { called = true; return nil })
	require.ErrorIs(t, err, ErrNotReady)
	require.False(t, called)
	require.Equal(t, StateStreaming, s.State())

	dev.streams[0].setFrame(solid(8, 8))
	require.NoError(t, s.Capture(ctx, func(context.Context, []byte) error { called = true; return nil }))
	require.True(t, called)
	require.False(t, s.NotReady())
}

func TestSubmitFailureThenReset(t *testing.T) {
	dev := &fakeDevice{ready: true, frame: solid(8, 8)}
	s := NewSession(dev)
	ctx := context.Background()
	boom := errors.New("network down")

	require.NoError(t, s.Open(ctx))
	require.ErrorIs(t, s.Capture(ctx, func(context.Context, []byte) error { return boom }), boom)
	require.Equal(t, StateError, s.State())
	require.ErrorIs(t, s.Err(), boom)
	require.EqualValues(t, 1, dev.closes.Load())

	require.NoError(t, s.Reset())
	require.Equal(t, StateIdle, s.State())
	require.NoError(t, s.Open(ctx))
	require.NoError(t, s.Close())
	require.EqualValues(t, 2, dev.opens.Load())
	require.EqualValues(t, 2, dev.closes.Load())
}

func TestCloseDuringSubmitWins(t *testing.T) {
	dev := &fakeDevice{ready: true, frame: solid(8, 8)}
	s := NewSession(dev)
	ctx := context.Background()
	require.NoError(t, s.Open(ctx))

	entered := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- s.Capture(ctx, func(context.Context, []byte) error {
			close(entered)
			<-release
			return nil
		})
	}()
	<-entered
	require.NoError(t, s.Close())
	close(release)

	require.ErrorIs(t, <-done, ErrClosed)
	require.Equal(t, StateClosed, s.State())
	require.EqualValues(t, 1, dev.closes.Load())
}

func TestCloseWhileWaitingForReady(t *testing.T) {
	dev := &fakeDevice{ready: false, frame: solid(8, 8)}
	s := NewSession(dev, WithReadyTimeout(time.Minute))

	done := make(chan error, 1)
	go func() { done <- s.Open(context.Background()) }()
	require.Eventually(t, func() bool { return dev.opens.Load() == 1 && s.State() == StateRequestingDevice }, time.Second, time.Millisecond)
	require.Eventually(t, func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.dispose != nil
	}, time.Second, time.Millisecond)

	require.NoError(t, s.Close())
	close(dev.streams[0].ready)
	require.ErrorIs(t, <-done, ErrClosed)
	require.EqualValues(t, 1, dev.closes.Load())
}

func TestFileDevice(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "face.png")
	require.NoError(t, imaging.Save(solid(16, 16), path))

	dev := NewFileDevice(path)
	st, err := dev.Open(context.Background())
	require.NoError(t, err)

	_, err = dev.Open(context.Background())
	var de *DeviceError
	require.ErrorAs(t, err, &de)
	require.Equal(t, CauseDeviceBusy, de.Cause)

	require.NoError(t, st.Close())
	require.NoError(t, st.Close())
	st, err = dev.Open(context.Background())
	require.NoError(t, err)
	require.NoError(t, st.Close())

	_, err = NewFileDevice(filepath.Join(dir, "missing.png")).Open(context.Background())
	require.ErrorAs(t, err, &de)
	require.Equal(t, CauseDeviceNotFound, de.Cause)

	corrupt := filepath.Join(dir, "corrupt.jpg")
	require.NoError(t, os.WriteFile(corrupt, []byte("not an image"), 0o600))
	_, err = NewFileDevice(corrupt).Open(context.Background())
	require.ErrorAs(t, err, &de)
	require.Equal(t, CauseDeviceUnreadable, de.Cause)
}

func TestOpenCancelledContextIsNotADeviceError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "face.png")
	require.NoError(t, imaging.Save(solid(8, 8), path))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := NewSession(NewFileDevice(path))
	err := s.Open(ctx)
	require.ErrorIs(t, err, context.Canceled)
	var de *DeviceError
	require.False(t, errors.As(err, &de))
	require.NotErrorIs(t, err, apperr.ErrDeviceAccess)
	require.Equal(t, StateError, s.State())
}

func TestAsDeviceErrorClassifies(t *testing.T) {
	require.Nil(t, asDeviceError(context.DeadlineExceeded))
	require.Equal(t, CausePermissionDenied, asDeviceError(fs.ErrPermission).Cause)
	require.Equal(t, CauseDeviceNotFound, asDeviceError(fs.ErrNotExist).Cause)
	require.Equal(t, CauseDeviceUnreadable, asDeviceError(errors.New("bad header")).Cause)
}

func TestFileDeviceDrivesSession(t *testing.T) {
	path := filepath.Join(t.TempDir(), "face.jpg")
	require.NoError(t, imaging.Save(solid(32, 24), path))

	s := NewSession(NewFileDevice(path))
	require.NoError(t, s.Open(context.Background()))
	var size int
	require.NoError(t, s.Capture(context.Background(), func(_ context.Context, b []byte) error {
		size = len(b)
		return nil
	}))
	require.Positive(t, size)
	require.NoError(t, s.Close())
}
