// Package capability defines the protocol method names, the per-device
// capability set advertised at discovery, and the parameter range checks
// applied before any command is sent.
package capability

import (
	"fmt"
	"sort"
	"strings"

	"github.com/yeelight-lan/yeelight-go/pkg/wire"
)

// Method is a protocol method name.
type Method string

// Protocol methods.
const (
	GetProp        Method = "get_prop"
	SetCtAbx       Method = "set_ct_abx"
	SetRGB         Method = "set_rgb"
	SetHSV         Method = "set_hsv"
	SetBright      Method = "set_bright"
	SetPower       Method = "set_power"
	Toggle         Method = "toggle"
	SetDefault     Method = "set_default"
	StartCF        Method = "start_cf"
	StopCF         Method = "stop_cf"
	SetScene       Method = "set_scene"
	CronAdd        Method = "cron_add"
	CronGet        Method = "cron_get"
	CronDel        Method = "cron_del"
	SetAdjust      Method = "set_adjust"
	SetMusic       Method = "set_music"
	SetName        Method = "set_name"
	BgSetRGB       Method = "bg_set_rgb"
	BgSetHSV       Method = "bg_set_hsv"
	BgSetCtAbx     Method = "bg_set_ct_abx"
	BgStartCF      Method = "bg_start_cf"
	BgStopCF       Method = "bg_stop_cf"
	BgSetScene     Method = "bg_set_scene"
	BgSetDefault   Method = "bg_set_default"
	BgSetPower     Method = "bg_set_power"
	BgSetBright    Method = "bg_set_bright"
	BgSetAdjust    Method = "bg_set_adjust"
	BgToggle       Method = "bg_toggle"
	DevToggle      Method = "dev_toggle"
	AdjustBright   Method = "adjust_bright"
	AdjustCT       Method = "adjust_ct"
	AdjustColor    Method = "adjust_color"
	BgAdjustBright Method = "bg_adjust_bright"
	BgAdjustCT     Method = "bg_adjust_ct"
	BgAdjustColor  Method = "bg_adjust_color"
)

// All lists every known method in bit order.
var All = []Method{
	GetProp, SetCtAbx, SetRGB, SetHSV, SetBright, SetPower, Toggle, SetDefault,
	StartCF, StopCF, SetScene, CronAdd, CronGet, CronDel, SetAdjust, SetMusic,
	SetName, BgSetRGB, BgSetHSV, BgSetCtAbx, BgStartCF, BgStopCF, BgSetScene,
	BgSetDefault, BgSetPower, BgSetBright, BgSetAdjust, BgToggle, DevToggle,
	AdjustBright, AdjustCT, AdjustColor, BgAdjustBright, BgAdjustCT, BgAdjustColor,
}

var bitIndex = func() map[Method]uint {
	m := make(map[Method]uint, len(All))
	for i, method := range All {
		m[method] = uint(i)
	}
	return m
}()

// Known reports whether m is a method this package knows about.
func (m Method) Known() bool {
	_, ok := bitIndex[m]
	return ok
}

// String returns the method name.
func (m Method) String() string {
	return string(m)
}

// Set is a bitset over the known methods. The zero value supports nothing.
type Set uint64

// NewSet creates a set containing the given methods. Unknown methods are ignored.
func NewSet(methods ...Method) Set {
	var s Set
	for _, m := range methods {
		s = s.Add(m)
	}
	return s
}

// Has reports whether m is supported.
func (s Set) Has(m Method) bool {
	bit, ok := bitIndex[m]
	if !ok {
		return false
	}
	return s&(1<<bit) != 0
}

// Add returns s with m added. Unknown methods leave s unchanged.
func (s Set) Add(m Method) Set {
	bit, ok := bitIndex[m]
	if !ok {
		return s
	}
	return s | (1 << bit)
}

// Remove returns s without m.
func (s Set) Remove(m Method) Set {
	bit, ok := bitIndex[m]
	if !ok {
		return s
	}
	return s &^ (1 << bit)
}

// Empty reports whether no method is supported.
func (s Set) Empty() bool {
	return s == 0
}

// Methods returns the supported methods in bit order.
func (s Set) Methods() []Method {
	var out []Method
	for _, m := range All {
		if s.Has(m) {
			out = append(out, m)
		}
	}
	return out
}

// Strings returns the supported method names, sorted.
func (s Set) Strings() []string {
	methods := s.Methods()
	out := make([]string, len(methods))
	for i, m := range methods {
		out[i] = string(m)
	}
	sort.Strings(out)
	return out
}

// String returns the supported methods as a space-separated support line.
func (s Set) String() string {
	methods := s.Methods()
	parts := make([]string, len(methods))
	for i, m := range methods {
		parts[i] = string(m)
	}
	return strings.Join(parts, " ")
}

// Check returns wire.ErrMethodNotSupported if m is not in the set.
func (s Set) Check(m Method) error {
	if !s.Has(m) {
		return fmt.Errorf("%s: %w", m, wire.ErrMethodNotSupported)
	}
	return nil
}

// ParseSupport parses the value of a discovery "support:" line.
// Names are split on whitespace and matched exactly; unknown names are ignored.
func ParseSupport(line string) Set {
	var s Set
	for _, name := range strings.Fields(line) {
		s = s.Add(Method(name))
	}
	return s
}
