// Command yeelight-bridge exposes Yeelight LAN lights over MQTT and HTTP.
//
// The bridge finds lights by SSDP search (optionally seeded by mDNS) and
// from the devices section of its configuration file, keeps a session to
// each of them and mirrors their state onto MQTT topics and a JSON API.
//
// Usage:
//
//	yeelight-bridge [flags]
//
// Flags:
//
//	-config string        Configuration file path (YAML)
//	-log-level string     Override the configured log level
//	-protocol-log string  Write protocol events to this .ylog file
//
// Every setting can also be overridden from the environment, e.g.
// YEELIGHT_MQTT_BROKER=tcp://broker:1883.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/yeelight-lan/yeelight-go/pkg/config"
)

func main() {
	configPath := flag.String("config", "", "Configuration file path (YAML)")
	logLevel := flag.String("log-level", "", "Override the configured log level: debug, info, warn, error")
	protocolLog := flag.String("protocol-log", "", "Write protocol events to this .ylog file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}
	if *protocolLog != "" {
		cfg.Logging.ProtocolLog = *protocolLog
	}

	logger, err := config.NewLogger(cfg.Logging, os.Stderr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(cfg, logger)
	if err != nil {
		logger.Error("startup failed", "error", err)
		os.Exit(1)
	}
	if err := a.run(ctx); err != nil {
		logger.Error("bridge stopped with error", "error", err)
		os.Exit(1)
	}
	logger.Info("bridge stopped")
}
