// Package flow encodes color-flow programs: timed sequences of color,
// color-temperature and sleep steps that a device runs on its own.
//
// On the wire a program is the triple
//
//	[count, action, "d1,k1,v1,b1,d2,k2,v2,b2,..."]
//
// where each step contributes duration (ms), kind, value and brightness.
package flow

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/yeelight-lan/yeelight-go/pkg/wire"
)

// Kind identifies what a step changes.
type Kind uint8

const (
	// KindColor sets a packed RGB value.
	KindColor Kind = 1

	// KindColorTemp sets a color temperature in Kelvin.
	KindColorTemp Kind = 2

	// KindSleep holds the current state.
	KindSleep Kind = 7
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindColor:
		return "COLOR"
	case KindColorTemp:
		return "CT"
	case KindSleep:
		return "SLEEP"
	default:
		return "UNKNOWN"
	}
}

// Valid reports whether k is a known step kind.
func (k Kind) Valid() bool {
	return k == KindColor || k == KindColorTemp || k == KindSleep
}

// knownKind checks a wire code before it is narrowed to a Kind.
func knownKind(n int) bool {
	return n >= 0 && n <= 255 && Kind(n).Valid()
}

// Action is what the device does after the last iteration.
type Action uint8

const (
	// ActionRecover restores the state before the flow started.
	ActionRecover Action = 0

	// ActionStay keeps the state of the last step.
	ActionStay Action = 1

	// ActionOff turns the light off.
	ActionOff Action = 2
)

// String returns the action name.
func (a Action) String() string {
	switch a {
	case ActionRecover:
		return "RECOVER"
	case ActionStay:
		return "STAY"
	case ActionOff:
		return "OFF"
	default:
		return "UNKNOWN"
	}
}

// Valid reports whether a is a known action.
func (a Action) Valid() bool {
	return a <= ActionOff
}

// Step is one element of a flow. Duration is carried in whole
// milliseconds.
type Step struct {
	Duration   time.Duration
	Kind       Kind
	Value      int
	Brightness int
}

// Program is a complete flow. Count 0 repeats forever.
type Program struct {
	Steps  []Step
	Count  int
	Action Action
}

// Errors returned by Encode and Decode.
var (
	ErrEmptyFlow     = errors.New("flow has no steps")
	ErrInvalidStep   = errors.New("invalid flow step")
	ErrInvalidParams = errors.New("invalid flow params")
)

// Encode produces the [count, action, expression] parameter triple.
func Encode(steps []Step, count int, action Action) ([]any, error) {
	if len(steps) == 0 {
		return nil, fmt.Errorf("%w: %w", wire.ErrInvalidParams, ErrEmptyFlow)
	}
	if count < 0 {
		return nil, fmt.Errorf("%w: negative count %d", wire.ErrInvalidParams, count)
	}
	if !action.Valid() {
		return nil, fmt.Errorf("%w: unknown action %d", wire.ErrInvalidParams, action)
	}
	expr, err := Expression(steps)
	if err != nil {
		return nil, err
	}
	return []any{count, int(action), expr}, nil
}

// Expression encodes the steps as the comma-separated tuple string.
func Expression(steps []Step) (string, error) {
	if len(steps) == 0 {
		return "", fmt.Errorf("%w: %w", wire.ErrInvalidParams, ErrEmptyFlow)
	}
	parts := make([]string, 0, len(steps)*4)
	for i, s := range steps {
		if !s.Kind.Valid() {
			return "", fmt.Errorf("%w: %w: step %d kind %d", wire.ErrInvalidParams, ErrInvalidStep, i, s.Kind)
		}
		if s.Duration < 0 {
			return "", fmt.Errorf("%w: %w: step %d negative duration", wire.ErrInvalidParams, ErrInvalidStep, i)
		}
		if s.Duration%time.Millisecond != 0 {
			return "", fmt.Errorf("%w: %w: step %d duration %v is not whole milliseconds",
				wire.ErrInvalidParams, ErrInvalidStep, i, s.Duration)
		}
		parts = append(parts,
			strconv.FormatInt(s.Duration.Milliseconds(), 10),
			strconv.Itoa(int(s.Kind)),
			strconv.Itoa(s.Value),
			strconv.Itoa(s.Brightness),
		)
	}
	return strings.Join(parts, ","), nil
}

// Params encodes the program as its parameter triple.
func (p Program) Params() ([]any, error) {
	return Encode(p.Steps, p.Count, p.Action)
}

// Decode is the inverse of Encode.
func Decode(params []any) (Program, error) {
	if len(params) != 3 {
		return Program{}, fmt.Errorf("%w: want 3 values, got %d", ErrInvalidParams, len(params))
	}
	count, err := wire.ToInt(params[0])
	if err != nil {
		return Program{}, fmt.Errorf("%w: count: %v", ErrInvalidParams, err)
	}
	action, err := wire.ToInt(params[1])
	if err != nil {
		return Program{}, fmt.Errorf("%w: action: %v", ErrInvalidParams, err)
	}
	if action < int(ActionRecover) || action > int(ActionOff) {
		return Program{}, fmt.Errorf("%w: unknown action %d", ErrInvalidParams, action)
	}
	expr, ok := params[2].(string)
	if !ok {
		return Program{}, fmt.Errorf("%w: expression is %T", ErrInvalidParams, params[2])
	}
	steps, err := ParseExpression(expr)
	if err != nil {
		return Program{}, err
	}
	return Program{Steps: steps, Count: count, Action: Action(action)}, nil
}

// ParseExpression parses a tuple string into steps.
func ParseExpression(expr string) ([]Step, error) {
	if expr == "" {
		return nil, ErrEmptyFlow
	}
	fields := strings.Split(expr, ",")
	if len(fields)%4 != 0 {
		return nil, fmt.Errorf("%w: %d values is not a multiple of 4", ErrInvalidParams, len(fields))
	}

	steps := make([]Step, 0, len(fields)/4)
	for i := 0; i < len(fields); i += 4 {
		var n [4]int
		for j := range n {
			v, err := strconv.Atoi(strings.TrimSpace(fields[i+j]))
			if err != nil {
				return nil, fmt.Errorf("%w: field %d: %v", ErrInvalidParams, i+j, err)
			}
			n[j] = v
		}
		if !knownKind(n[1]) {
			return nil, fmt.Errorf("%w: kind %d", ErrInvalidStep, n[1])
		}
		kind := Kind(n[1])
		steps = append(steps, Step{
			Duration:   time.Duration(n[0]) * time.Millisecond,
			Kind:       kind,
			Value:      n[2],
			Brightness: n[3],
		})
	}
	return steps, nil
}
