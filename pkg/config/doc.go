// Package config loads the bridge daemon configuration.
//
// Values come from, in increasing precedence:
//   - built-in defaults (Default)
//   - a YAML file
//   - YEELIGHT_* environment variables
//
// Secrets such as the MQTT password are best set through the environment.
//
// Usage:
//
//	cfg, err := config.Load("yeelight.yaml")
//	if err != nil {
//	    return err
//	}
//	logger, err := config.NewLogger(cfg.Logging, os.Stderr)
package config
