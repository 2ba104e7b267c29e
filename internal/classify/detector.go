package classify

import (
	"fmt"
	"sort"
	"sync"

	"github.com/mitchellh/mapstructure"

	"firestige.xyz/conntag/internal/config"
	"firestige.xyz/conntag/internal/core"
)

// Result is a protocol classification. Name and Detail are written into the
// connection's dynamic tags; Static is appended to its static tag history.
type Result struct {
	Static core.StaticTag
	Name   string
	Detail string
}

// Detector recognises one application protocol from a single payload.
// Detectors are stateless and safe for concurrent use.
type Detector interface {
	Name() string
	Detect(p *Packet) (Result, bool)
}

// Factory builds a detector from its options.
type Factory func(options map[string]any) (Detector, error)

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Factory)
)

// Register makes a detector factory available by name. Registering a name
// twice replaces the earlier factory.
func Register(name string, f Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = f
}

// Registered returns the sorted names of all registered detectors.
func Registered() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// New builds the detector registered under name.
func New(name string, options map[string]any) (Detector, error) {
	registryMu.RLock()
	f, ok := registry[name]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", core.ErrUnknownDetector, name)
	}
	d, err := f(options)
	if err != nil {
		return nil, fmt.Errorf("detector %s: %w", name, err)
	}
	return d, nil
}

// NewDetectors builds detectors in configuration order. Order matters: the
// first detector that recognises a payload wins.
func NewDetectors(cfgs []config.DetectorConfig) ([]Detector, error) {
	detectors := make([]Detector, 0, len(cfgs))
	for _, c := range cfgs {
		d, err := New(c.Name, c.Options)
		if err != nil {
			return nil, err
		}
		detectors = append(detectors, d)
	}
	return detectors, nil
}

// decodeOptions decodes detector options into out, rejecting unknown keys.
func decodeOptions(options map[string]any, out any) error {
	if len(options) == 0 {
		return nil
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		ErrorUnused:      true,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(options); err != nil {
		return fmt.Errorf("invalid options: %w", err)
	}
	return nil
}

func init() {
	Register("http", newHTTPDetector)
	Register("http2", newHTTP2Detector)
	Register("tls", newTLSDetector)
	Register("sip", newSIPDetector)
}

func errInvalidOption(name string, value any) error {
	return fmt.Errorf("invalid option %s: %v", name, value)
}
