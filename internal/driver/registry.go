package driver

import (
	"context"
	"fmt"
	"sync"

	"gitlab.com/d21d3q/gofindmy/internal/frame"
)

// Detection contains minimal information required to identify a driver.
type Detection struct {
	CompanyID uint16
	Type      byte
}

// Driver processes frames once selected.
type Driver interface {
	Name() string
	Process(context.Context, *frame.Frame) (map[string]any, error)
}

// PartialReporter can supply minimal fields when a frame is rejected.
type PartialReporter interface {
	PartialFields(*frame.Frame) map[string]any
}

var (
	regMu    sync.RWMutex
	registry []registeredDriver
)

type registeredDriver struct {
	detect Detection
	driver Driver
}

// Register stores a driver/detection pair in memory.
func Register(det Detection, drv Driver) {
	regMu.Lock()
	defer regMu.Unlock()
	registry = append(registry, registeredDriver{detect: det, driver: drv})
}

// Lookup returns the first driver registered for the frame's company
// identifier and payload type.
func Lookup(f *frame.Frame) (Driver, error) {
	regMu.RLock()
	defer regMu.RUnlock()
	for _, rd := range registry {
		if rd.detect.CompanyID == f.CompanyID && rd.detect.Type == f.Type {
			return rd.driver, nil
		}
	}
	return nil, fmt.Errorf("driver not found for company 0x%04X type 0x%02X", f.CompanyID, f.Type)
}
