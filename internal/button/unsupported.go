//go:build !linux

package button

import (
	"context"
	"errors"
)

var errUnsupported = errors.New("hardware buttons are only supported on linux")

type Evdev struct{}

func OpenEvdev(path string, code uint16) (*Evdev, error) { return nil, errUnsupported }

func (*Evdev) Read() (bool, error)           { return false, errUnsupported }
func (*Evdev) Run(ctx context.Context) error { return errUnsupported }
func (*Evdev) Close() error                  { return nil }

type GPIO struct{}

func OpenGPIO(path string, activeLow bool) (*GPIO, error) { return nil, errUnsupported }

func (*GPIO) Read() (bool, error) { return false, errUnsupported }
func (*GPIO) Close() error        { return nil }
