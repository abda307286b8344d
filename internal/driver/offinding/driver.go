package offinding

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"gitlab.com/d21d3q/gofindmy/internal/advert"
	"gitlab.com/d21d3q/gofindmy/internal/driver"
	"gitlab.com/d21d3q/gofindmy/internal/frame"
	"gitlab.com/d21d3q/gofindmy/internal/options"
)

func init() {
	driver.Register(driver.Detection{
		CompanyID: frame.CompanyApple,
		Type:      advert.TypeOfflineFinding,
	}, Driver{})
}

var log = logrus.WithField("driver", "offinding")

// Driver decodes Apple Offline Finding advertisements.
type Driver struct{}

var _ driver.PartialReporter = Driver{}

// Name returns the canonical driver name.
func (Driver) Name() string { return "offinding" }

// PartialFields exposes the routing metadata of a rejected payload.
func (Driver) PartialFields(f *frame.Frame) map[string]any {
	return map[string]any{
		"_":          "advertisement",
		"company_id": f.CompanyIDString(),
		"type":       fmt.Sprintf("0x%02X", f.Type),
		"byte_count": len(f.Payload),
	}
}

// Process validates the payload and decodes it. The device address, if any,
// is taken from the context.
func (d Driver) Process(ctx context.Context, f *frame.Frame) (map[string]any, error) {
	adv, err := d.Decode(ctx, f)
	if err != nil {
		return nil, err
	}
	fields := adv.Fields()
	fields["company_id"] = f.CompanyIDString()
	return fields, nil
}

// Decode returns the typed record behind Process.
func (Driver) Decode(ctx context.Context, f *frame.Frame) (advert.Advertisement, error) {
	if !advert.Validate(f.Payload) {
		return advert.Advertisement{}, fmt.Errorf("%w: type 0x%02X, %d bytes", advert.ErrNotOfflineFinding, f.Type, len(f.Payload))
	}
	addr := options.DeviceAddress(ctx)
	adv := advert.Decode(f.Payload, addr)
	entry := log.WithFields(logrus.Fields{
		"bytes":       len(f.Payload),
		"address":     addr != nil,
		"fragment":    adv.KeyFragment != nil,
		"reconstruct": adv.ReconstructedKey != nil,
	})
	for _, n := range adv.Notes {
		entry = entry.WithField(n.Field, n.Message)
	}
	entry.Debug("advertisement decoded")
	return adv, nil
}
