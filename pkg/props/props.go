// Package props holds the last known property state of a device.
//
// State arrives in two shapes: a full positional refresh (the get_prop
// result, ordered as Names) and partial named updates from "props"
// notifications. Both are merged into a Store.
package props

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/yeelight-lan/yeelight-go/pkg/wire"
)

// Property names in get_prop order.
const (
	Power      = "power"
	Bright     = "bright"
	CT         = "ct"
	RGB        = "rgb"
	Hue        = "hue"
	Sat        = "sat"
	ColorMode  = "color_mode"
	Flowing    = "flowing"
	DelayOff   = "delayoff"
	MusicOn    = "music_on"
	Name       = "name"
	BgPower    = "bg_power"
	BgFlowing  = "bg_flowing"
	BgCT       = "bg_ct"
	BgLMode    = "bg_lmode"
	BgBright   = "bg_bright"
	BgRGB      = "bg_rgb"
	BgHue      = "bg_hue"
	BgSat      = "bg_sat"
	NLBr       = "nl_br"
	ActiveMode = "active_mode"
)

// Names lists every property in the order the full refresh reports them.
var Names = []string{
	Power, Bright, CT, RGB, Hue, Sat, ColorMode, Flowing, DelayOff, MusicOn, Name,
	BgPower, BgFlowing, BgCT, BgLMode, BgBright, BgRGB, BgHue, BgSat, NLBr, ActiveMode,
}

// ErrShortRefresh is returned when a full refresh has fewer values than Names.
var ErrShortRefresh = errors.New("property refresh too short")

// Color modes reported in color_mode and bg_lmode.
const (
	ModeRGB = 1
	ModeCT  = 2
	ModeHSV = 3
)

// Properties is a snapshot of device state.
type Properties struct {
	Power      bool   `json:"power"`
	Bright     int    `json:"bright"`
	CT         int    `json:"ct"`
	RGB        int    `json:"rgb"`
	Hue        int    `json:"hue"`
	Sat        int    `json:"sat"`
	ColorMode  int    `json:"color_mode"`
	Flowing    bool   `json:"flowing"`
	DelayOff   int    `json:"delayoff"`
	MusicOn    bool   `json:"music_on"`
	Name       string `json:"name"`
	BgPower    bool   `json:"bg_power"`
	BgFlowing  bool   `json:"bg_flowing"`
	BgCT       int    `json:"bg_ct"`
	BgLMode    int    `json:"bg_lmode"`
	BgBright   int    `json:"bg_bright"`
	BgRGB      int    `json:"bg_rgb"`
	BgHue      int    `json:"bg_hue"`
	BgSat      int    `json:"bg_sat"`
	NLBr       int    `json:"nl_br"`
	ActiveMode int    `json:"active_mode"`
}

type field struct {
	set func(p *Properties, v any) error
	get func(p *Properties) any
}

func intField(ptr func(p *Properties) *int) field {
	return field{
		set: func(p *Properties, v any) error {
			if s, ok := v.(string); ok && strings.TrimSpace(s) == "" {
				*ptr(p) = 0
				return nil
			}
			n, err := wire.ToInt(v)
			if err != nil {
				return err
			}
			*ptr(p) = n
			return nil
		},
		get: func(p *Properties) any { return *ptr(p) },
	}
}

func boolField(ptr func(p *Properties) *bool) field {
	return field{
		set: func(p *Properties, v any) error {
			if s, ok := v.(string); ok && strings.TrimSpace(s) == "" {
				*ptr(p) = false
				return nil
			}
			b, err := wire.ToBool(v)
			if err != nil {
				return err
			}
			*ptr(p) = b
			return nil
		},
		get: func(p *Properties) any { return *ptr(p) },
	}
}

var fields = map[string]field{
	Power:      boolField(func(p *Properties) *bool { return &p.Power }),
	Bright:     intField(func(p *Properties) *int { return &p.Bright }),
	CT:         intField(func(p *Properties) *int { return &p.CT }),
	RGB:        intField(func(p *Properties) *int { return &p.RGB }),
	Hue:        intField(func(p *Properties) *int { return &p.Hue }),
	Sat:        intField(func(p *Properties) *int { return &p.Sat }),
	ColorMode:  intField(func(p *Properties) *int { return &p.ColorMode }),
	Flowing:    boolField(func(p *Properties) *bool { return &p.Flowing }),
	DelayOff:   intField(func(p *Properties) *int { return &p.DelayOff }),
	MusicOn:    boolField(func(p *Properties) *bool { return &p.MusicOn }),
	BgPower:    boolField(func(p *Properties) *bool { return &p.BgPower }),
	BgFlowing:  boolField(func(p *Properties) *bool { return &p.BgFlowing }),
	BgCT:       intField(func(p *Properties) *int { return &p.BgCT }),
	BgLMode:    intField(func(p *Properties) *int { return &p.BgLMode }),
	BgBright:   intField(func(p *Properties) *int { return &p.BgBright }),
	BgRGB:      intField(func(p *Properties) *int { return &p.BgRGB }),
	BgHue:      intField(func(p *Properties) *int { return &p.BgHue }),
	BgSat:      intField(func(p *Properties) *int { return &p.BgSat }),
	NLBr:       intField(func(p *Properties) *int { return &p.NLBr }),
	ActiveMode: intField(func(p *Properties) *int { return &p.ActiveMode }),
	Name: {
		set: func(p *Properties, v any) error {
			p.Name = wire.ToString(v)
			return nil
		},
		get: func(p *Properties) any { return p.Name },
	},
}

// Get returns the value of the named property, or nil if the name is unknown.
func (p Properties) Get(name string) any {
	f, ok := fields[name]
	if !ok {
		return nil
	}
	return f.get(&p)
}

// Set parses v into the named property.
func (p *Properties) Set(name string, v any) error {
	f, ok := fields[name]
	if !ok {
		return fmt.Errorf("unknown property %q", name)
	}
	if err := f.set(p, v); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}

// ChangeFunc is called after the store changes with the names that changed
// and the new snapshot.
type ChangeFunc func(changed []string, snapshot Properties)

// Store is a concurrency-safe property state.
type Store struct {
	mu        sync.RWMutex
	props     Properties
	listeners []ChangeFunc
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{}
}

// OnChange registers a listener. Listeners run on the goroutine that applied
// the update and must not block.
func (s *Store) OnChange(fn ChangeFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// Snapshot returns a copy of the current state.
func (s *Store) Snapshot() Properties {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.props
}

// Reset clears all state, e.g. when the capability set is replaced.
func (s *Store) Reset() {
	s.mu.Lock()
	s.props = Properties{}
	s.mu.Unlock()
}

// ApplyFull overwrites all fields positionally from a full refresh.
// Values that fail to parse leave their field unchanged and are reported in
// the returned error; the remaining fields are still applied.
func (s *Store) ApplyFull(values []any) error {
	if len(values) < len(Names) {
		return fmt.Errorf("%w: got %d values, want %d", ErrShortRefresh, len(values), len(Names))
	}

	s.mu.Lock()
	before := s.props
	var errs []error
	for i, name := range Names {
		if err := s.props.Set(name, values[i]); err != nil {
			errs = append(errs, err)
		}
	}
	after := s.props
	listeners := s.listeners
	s.mu.Unlock()

	notify(listeners, diff(before, after), after)
	return errors.Join(errs...)
}

// MergePartial updates only the named fields. Unknown names are ignored.
// It returns the names whose value changed.
func (s *Store) MergePartial(update map[string]any) ([]string, error) {
	s.mu.Lock()
	before := s.props
	var errs []error
	for name, v := range update {
		if _, ok := fields[name]; !ok {
			continue
		}
		if err := s.props.Set(name, v); err != nil {
			errs = append(errs, err)
		}
	}
	after := s.props
	listeners := s.listeners
	s.mu.Unlock()

	changed := diff(before, after)
	notify(listeners, changed, after)
	return changed, errors.Join(errs...)
}

func notify(listeners []ChangeFunc, changed []string, snapshot Properties) {
	if len(changed) == 0 {
		return
	}
	for _, fn := range listeners {
		fn(changed, snapshot)
	}
}

// diff returns the names of fields that differ, in Names order.
func diff(a, b Properties) []string {
	var changed []string
	for _, name := range Names {
		if fields[name].get(&a) != fields[name].get(&b) {
			changed = append(changed, name)
		}
	}
	return changed
}
