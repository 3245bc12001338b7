package capture

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io/fs"
	"sync"

	"github.com/disintegration/imaging"

	"campusattend/internal/apperr"
)

// Cause classifies a device failure.
type Cause string

const (
	CausePermissionDenied Cause = "permission-denied"
	CauseDeviceNotFound   Cause = "device-not-found"
	CauseDeviceBusy       Cause = "device-busy"
	// CauseDeviceUnreadable means the device answered but gave no usable frame.
	CauseDeviceUnreadable Cause = "device-unreadable"
)

// DeviceError reports why the camera could not be acquired.
type DeviceError struct {
	Cause Cause
	Err   error
}

func (e *DeviceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("camera %s: %v", e.Cause, e.Err)
	}
	return "camera " + string(e.Cause)
}

func (e *DeviceError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, apperr.ErrDeviceAccess) match any device error.
func (e *DeviceError) Is(target error) bool {
	return target == apperr.ErrDeviceAccess
}

// asDeviceError classifies an Open failure. Context errors are not device
// failures and come back as nil.
func asDeviceError(err error) *DeviceError {
	var de *DeviceError
	switch {
	case errors.As(err, &de):
		return de
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return nil
	case errors.Is(err, fs.ErrNotExist):
		return &DeviceError{Cause: CauseDeviceNotFound, Err: err}
	case errors.Is(err, fs.ErrPermission):
		return &DeviceError{Cause: CausePermissionDenied, Err: err}
	default:
		return &DeviceError{Cause: CauseDeviceUnreadable, Err: err}
	}
}

// Device hands out exclusive streams.
type Device interface {
	Open(ctx context.Context) (Stream, error)
}

// Stream is an acquired camera. Close releases the device.
type Stream interface {
	// Ready is closed once the first usable frame is available.
	Ready() <-chan struct{}
	// Frame returns the latest frame without blocking.
	Frame() (image.Image, error)
	Close() error
}

// FileDevice treats a still image on disk as a camera. Only one stream may
// be open at a time.
type FileDevice struct {
	path string

	mu    sync.Mutex
	inUse bool
}

// NewFileDevice creates a device reading path.
func NewFileDevice(path string) *FileDevice {
	return &FileDevice{path: path}
}

func (d *FileDevice) Open(ctx context.Context) (Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.inUse {
		return nil, &DeviceError{Cause: CauseDeviceBusy}
	}

	img, err := imaging.Open(d.path, imaging.AutoOrientation(true))
	if err != nil {
		return nil, asDeviceError(err)
	}
	d.inUse = true

	ready := make(chan struct{})
	close(ready)
	return &fileStream{dev: d, img: img, ready: ready}, nil
}

type fileStream struct {
	dev   *FileDevice
	img   image.Image
	ready chan struct{}
	once  sync.Once
}

func (s *fileStream) Ready() <-chan struct{} { return s.ready }

func (s *fileStream) Frame() (image.Image, error) { return s.img, nil }

func (s *fileStream) Close() error {
	s.once.Do(func() {
		s.dev.mu.Lock()
		s.dev.inUse = false
		s.dev.mu.Unlock()
	})
	return nil
}
