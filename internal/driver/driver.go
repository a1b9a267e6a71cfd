// Package driver defines the link endpoint the responder reads frames from
// and writes replies to, and a registry of endpoint implementations.
package driver

import (
	"fmt"
	"sort"
	"sync"

	"github.com/mitchellh/mapstructure"

	"firestige.xyz/ethresponder/internal/config"
)

// Driver is a raw Ethernet link endpoint.
//
// ReadFrame blocks until one frame is copied into buf and returns its length.
// It returns core.ErrTimeout when no frame arrived within the driver's poll
// interval, and io.EOF or core.ErrDriverClosed once no further frame can
// arrive. WriteFrame transmits b and returns when the driver has accepted it.
type Driver interface {
	ReadFrame(buf []byte) (int, error)
	WriteFrame(b []byte) error
	Close() error
}

// Factory opens a driver from its raw options map.
type Factory func(options map[string]interface{}) (Driver, error)

var (
	mu        sync.RWMutex
	factories = make(map[string]Factory)
)

// Register makes a driver available under name. It panics when name is
// registered twice.
func Register(name string, f Factory) {
	mu.Lock()
	defer mu.Unlock()

	if _, exists := factories[name]; exists {
		panic(fmt.Sprintf("driver %q already registered", name))
	}
	factories[name] = f
}

// Names returns the registered driver names in sorted order.
func Names() []string {
	mu.RLock()
	defer mu.RUnlock()

	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Open creates the driver selected by cfg.
func Open(cfg config.DriverConfig) (Driver, error) {
	mu.RLock()
	f, ok := factories[cfg.Type]
	mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("driver %q not registered (have %v)", cfg.Type, Names())
	}
	d, err := f(cfg.Options)
	if err != nil {
		return nil, fmt.Errorf("open %s driver: %w", cfg.Type, err)
	}
	return d, nil
}

// DecodeOptions decodes a raw options map into out, a pointer to a struct
// with mapstructure tags. Unknown keys are an error; strings are accepted for
// numbers, booleans and durations since options often come from the
// environment.
func DecodeOptions(in map[string]interface{}, out interface{}) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
		ErrorUnused:      true,
		WeaklyTypedInput: true,
		Result:           out,
		TagName:          "mapstructure",
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(in); err != nil {
		return fmt.Errorf("decode driver options: %w", err)
	}
	return nil
}
