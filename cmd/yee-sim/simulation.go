package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/yeelight-lan/yeelight-go/internal/testharness/mock"
	"github.com/yeelight-lan/yeelight-go/pkg/props"
)

// runSimulation walks the lights one step per tick: the brightness ramps
// down in tens, wrapping to full with the power toggled, and the color
// temperature drifts between warm and cool.
func runSimulation(ctx context.Context, devices []*mock.Device, interval time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	next := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d := devices[next%len(devices)]
			next++
			d.Update(step)
			s := d.State()
			logger.Info("[SIM] state changed", "id", d.ID, "power", s.Power, "bright", s.Bright, "ct", s.CT)
		}
	}
}

func step(p *props.Properties) {
	p.Bright -= 10
	if p.Bright < 1 {
		p.Bright = 100
		p.Power = !p.Power
	}
	p.CT += 300
	if p.CT > 6500 {
		p.CT = 1700
	}
	p.ColorMode = props.ModeCT
}
