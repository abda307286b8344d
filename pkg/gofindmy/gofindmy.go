package gofindmy

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"unicode"

	"gitlab.com/d21d3q/gofindmy/internal/driver"
	_ "gitlab.com/d21d3q/gofindmy/internal/driver/offinding" // register driver
	"gitlab.com/d21d3q/gofindmy/internal/frame"
)

// Result captures the outcome of AnalyzeHex.
type Result struct {
	Driver    string
	RawHex    string
	ByteCount int
	Frame     *frame.Frame
	Address   string
	Fields    map[string]any
}

// String renders a human-readable representation of the result.
func (r Result) String() string {
	summary := map[string]any{
		"driver":     r.Driver,
		"byte_count": r.ByteCount,
		"raw_hex":    r.RawHex,
	}
	if r.Frame != nil {
		summary["company_id"] = r.Frame.CompanyIDString()
		summary["type"] = fmt.Sprintf("0x%02X", r.Frame.Type)
	}
	if r.Address != "" {
		summary["address"] = r.Address
	}
	if len(r.Fields) > 0 {
		summary["fields"] = r.Fields
	}
	data, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return fmt.Sprintf("driver: %s bytes:%d raw:%s (marshal error: %v)", r.Driver, r.ByteCount, r.RawHex, err)
	}
	return string(data)
}

// AnalyzeHex parses manufacturer data, selects a driver, and returns decoded data.
func AnalyzeHex(ctx context.Context, raw string) (Result, error) {
	return AnalyzeHexWithOptions(ctx, raw, AnalyzeOptions{})
}

// AnalyzeHexWithOptions parses the input with custom options.
func AnalyzeHexWithOptions(ctx context.Context, raw string, opts AnalyzeOptions) (Result, error) {
	data, err := decodeHex(raw)
	if err != nil {
		return Result{}, err
	}
	return AnalyzeWithOptions(ctx, data, opts)
}

// AnalyzeWithOptions is AnalyzeHexWithOptions for callers that already hold
// the raw bytes.
func AnalyzeWithOptions(ctx context.Context, data []byte, opts AnalyzeOptions) (Result, error) {
	ctxWithAddr, addr, err := opts.toInternal(ctx)
	if err != nil {
		return Result{}, err
	}
	var f frame.Frame
	if opts.PayloadOnly {
		f, err = frame.FromPayload(frame.CompanyApple, data)
	} else {
		f, err = frame.Parse(data)
	}
	if err != nil {
		return Result{}, err
	}

	result := Result{
		Driver:    "unknown",
		RawHex:    strings.ToUpper(hex.EncodeToString(data)),
		ByteCount: len(data),
		Frame:     &f,
	}
	if addr != nil {
		result.Address = addr.String()
	}

	drv, err := driver.Lookup(&f)
	if err != nil {
		return result, nil
	}
	result.Driver = drv.Name()
	fields, err := drv.Process(ctxWithAddr, &f)
	if err != nil {
		if reporter, ok := drv.(driver.PartialReporter); ok {
			partial := reporter.PartialFields(&f)
			partial["error"] = err.Error()
			result.Fields = partial
			return result, nil
		}
		return result, err
	}
	result.Fields = fields
	return result, nil
}

func decodeHex(input string) ([]byte, error) {
	clean := strings.ToUpper(stripWhitespace(input))
	if strings.HasPrefix(clean, "0X") {
		clean = clean[2:]
	}
	if len(clean)%2 != 0 {
		return nil, fmt.Errorf("hex advertisement must contain an even number of digits, got %d", len(clean))
	}
	decoded := make([]byte, len(clean)/2)
	if _, err := hex.Decode(decoded, []byte(clean)); err != nil {
		return nil, fmt.Errorf("decode hex: %w", err)
	}
	return decoded, nil
}

func stripWhitespace(s string) string {
	builder := strings.Builder{}
	builder.Grow(len(s))
	for _, r := range s {
		if unicode.IsSpace(r) || r == '|' || r == '_' || r == ':' {
			continue
		}
		builder.WriteRune(r)
	}
	return builder.String()
}
