package auth

import (
	"context"
	"errors"
)

type contextKey string

const (
	// DeviceContextKey is the context key for the browser device id
	DeviceContextKey contextKey = "closet_device"
)

var (
	// ErrNoDeviceInContext is returned when no device is found in context
	ErrNoDeviceInContext = errors.New("no device in context")
)

// WithDevice returns a copy of ctx carrying the device id.
func WithDevice(ctx context.Context, deviceID string) context.Context {
	return context.WithValue(ctx, DeviceContextKey, deviceID)
}

// GetDeviceFromContext extracts the device id from request context
func GetDeviceFromContext(ctx context.Context) (string, error) {
	deviceID, ok := ctx.Value(DeviceContextKey).(string)
	if !ok || deviceID == "" {
		return "", ErrNoDeviceInContext
	}
	return deviceID, nil
}

// MustGetDeviceFromContext panics if no device in context (use after the device middleware)
func MustGetDeviceFromContext(ctx context.Context) string {
	deviceID, err := GetDeviceFromContext(ctx)
	if err != nil {
		panic("expected device in context")
	}
	return deviceID
}
