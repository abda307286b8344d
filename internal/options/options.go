package options

import (
	"context"
	"strings"

	"gitlab.com/d21d3q/gofindmy/internal/advert"
)

type contextKey struct{}

// WithDeviceAddress stores the advertising address inside the context.
func WithDeviceAddress(ctx context.Context, addr *advert.DeviceAddress) context.Context {
	if addr == nil {
		return ctx
	}
	a := *addr
	return context.WithValue(ctx, contextKey{}, a)
}

// DeviceAddress retrieves the advertising address from context if present.
func DeviceAddress(ctx context.Context) *advert.DeviceAddress {
	if v := ctx.Value(contextKey{}); v != nil {
		if addr, ok := v.(advert.DeviceAddress); ok {
			return &addr
		}
	}
	return nil
}

// ParseAddress validates an optional device address string. An empty input
// yields no address and no error.
func ParseAddress(input string) (*advert.DeviceAddress, error) {
	if strings.TrimSpace(input) == "" {
		return nil, nil
	}
	addr, err := advert.ParseDeviceAddress(input)
	if err != nil {
		return nil, err
	}
	return &addr, nil
}
