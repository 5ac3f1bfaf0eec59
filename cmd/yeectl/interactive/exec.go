package interactive

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/yeelight-lan/yeelight-go/pkg/command"
	"github.com/yeelight-lan/yeelight-go/pkg/flow"
)

// Options apply to every command run through Exec.
type Options struct {
	// Transition is the fade in milliseconds for commands that do not set
	// one. Nil uses the session default.
	Transition *int
}

// Exec runs one light command line against l and reports to w.
func Exec(ctx context.Context, l command.Light, words []string, opts Options, w io.Writer) error {
	if len(words) == 0 {
		return fmt.Errorf("%w: missing command", ErrUsage)
	}

	switch strings.ToLower(words[0]) {
	case "props", "state":
		if r, ok := l.(refresher); ok {
			if err := r.RefreshProperties(ctx); err != nil {
				return err
			}
		}
		return printState(w, command.Snapshot(l))

	case "caps", "support":
		fmt.Fprintln(w, l.Capabilities().String())
		return nil

	case "flows", "presets":
		for _, name := range flow.PresetNames() {
			fmt.Fprintln(w, name)
		}
		return nil
	}

	c, err := ParseWords(words)
	if err != nil {
		return err
	}
	if c.Transition == nil {
		c.Transition = opts.Transition
	}
	if err := c.Apply(ctx, l); err != nil {
		return err
	}
	fmt.Fprintln(w, "ok")
	return nil
}

type refresher interface {
	RefreshProperties(ctx context.Context) error
}

func printState(w io.Writer, s command.State) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}
