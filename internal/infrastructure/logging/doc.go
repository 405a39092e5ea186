// Package logging provides structured logging for poweredup.
//
// It wraps log/slog with the service's default attributes (service,
// version) and level filtering taken from LoggingConfig:
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr, discard
//
// # Usage
//
//	logger := logging.New(cfg.Logging, version)
//	sess, err := hub.Connect(ctx, conn, hub.Options{Logger: logger.Component("hub")})
//
// Never log broker passwords or InfluxDB tokens.
package logging
