package interactive

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/yeelight-lan/yeelight-go/pkg/command"
	"github.com/yeelight-lan/yeelight-go/pkg/wire"
)

// ErrUsage is returned for a malformed command line.
var ErrUsage = fmt.Errorf("usage: %w", wire.ErrInvalidParams)

// ParseWords turns a command line such as "bg bright 40" into a command
// document. A leading main, bg, background or both selects the light.
func ParseWords(words []string) (command.Command, error) {
	var c command.Command
	if len(words) > 0 {
		switch strings.ToLower(words[0]) {
		case "main", "bg", "background", "both":
			c.Light = strings.ToLower(words[0])
			words = words[1:]
		}
	}
	if len(words) == 0 {
		return c, fmt.Errorf("%w: missing command", ErrUsage)
	}

	verb, args := strings.ToLower(words[0]), words[1:]
	var err error
	switch verb {
	case "on", "off", "toggle":
		err = wantArgs(verb, args, 0)
		c.State = verb

	case "bright", "brightness":
		c.Brightness, err = intArg(verb, args)

	case "ct":
		c.ColorTemp, err = intArg(verb, args)

	case "rgb":
		if err = wantArgs(verb, args, 1); err == nil {
			var rgb int
			rgb, err = parseHex(args[0])
			c.RGB = &rgb
		}

	case "hsv", "hs":
		if err = wantArgs(verb, args, 2); err == nil {
			var hue, sat int
			if hue, err = strconv.Atoi(args[0]); err == nil {
				sat, err = strconv.Atoi(args[1])
			}
			c.HS = &command.HS{Hue: hue, Sat: sat}
		}

	case "flow":
		if err = wantArgs(verb, args, 1); err == nil {
			c.Flow = strings.ToLower(args[0])
		}

	case "name":
		if len(args) == 0 {
			err = fmt.Errorf("%w: name <text>", ErrUsage)
		}
		name := strings.Join(args, " ")
		c.Name = &name

	case "timer":
		c.OffDelay, err = intArg(verb, args)

	case "adjust":
		if err = wantArgs(verb, args, 2); err == nil {
			c.Adjust = &command.Adjust{Action: args[0], Prop: args[1]}
		}

	case "music", "direct":
		if err = wantArgs(verb, args, 1); err == nil {
			var on bool
			on, err = onOff(args[0])
			c.Direct = &on
		}

	case "default":
		err = wantArgs(verb, args, 0)
		c.SaveDefault = true

	case "json":
		light := c.Light
		c, err = command.Parse([]byte(strings.Join(args, " ")))
		if err == nil && c.Light == "" {
			c.Light = light
		}

	default:
		return c, fmt.Errorf("%w: unknown command %q", ErrUsage, verb)
	}
	if err != nil {
		if !errors.Is(err, wire.ErrInvalidParams) {
			err = fmt.Errorf("%s: %w: %v", verb, ErrUsage, err)
		}
		return c, err
	}
	return c, c.Validate()
}

func wantArgs(verb string, args []string, n int) error {
	if len(args) != n {
		return fmt.Errorf("%s: %w: want %d argument(s), got %d", verb, ErrUsage, n, len(args))
	}
	return nil
}

func intArg(verb string, args []string) (*int, error) {
	if err := wantArgs(verb, args, 1); err != nil {
		return nil, err
	}
	v, err := strconv.Atoi(args[0])
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// parseHex parses RRGGBB with an optional leading '#'.
func parseHex(s string) (int, error) {
	s = strings.TrimPrefix(s, "#")
	if len(s) != 6 {
		return 0, fmt.Errorf("color %q is not RRGGBB", s)
	}
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return 0, fmt.Errorf("color %q is not RRGGBB", s)
	}
	return int(v), nil
}

func onOff(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "on", "true", "1":
		return true, nil
	case "off", "false", "0":
		return false, nil
	}
	return false, fmt.Errorf("want on or off, got %q", s)
}
