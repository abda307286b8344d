package gofindmy

import (
	"context"

	"gitlab.com/d21d3q/gofindmy/internal/advert"
	internalopts "gitlab.com/d21d3q/gofindmy/internal/options"
)

// AnalyzeOptions configures parsing.
type AnalyzeOptions struct {
	// Address is the advertising address the host associates with the
	// packet. When set, the full public key is reconstructed.
	Address string
	// PayloadOnly means the input starts at the advertisement type; the
	// company identifier was stripped upstream and Apple is assumed.
	PayloadOnly bool
}

func (opts AnalyzeOptions) toInternal(ctx context.Context) (context.Context, *advert.DeviceAddress, error) {
	addr, err := internalopts.ParseAddress(opts.Address)
	if err != nil {
		return ctx, nil, err
	}
	ctx = internalopts.WithDeviceAddress(ctx, addr)
	return ctx, addr, nil
}
