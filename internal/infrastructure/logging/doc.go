// Package logging provides structured logging for HVAC Link Core.
//
// It wraps log/slog so every component logs with the same handler,
// level filter and default fields (service, version, site).
//
// Configuration comes from the logging section of config.yaml:
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// Usage:
//
//	logger := logging.New(cfg.Logging, version)
//	mqttLog := logger.Component("mqtt")
//	mqttLog.Info("connected", "broker", addr)
//
// Never log broker passwords or the InfluxDB token.
package logging
