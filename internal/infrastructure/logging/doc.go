// Package logging configures structured logging over log/slog.
//
// Every component receives the same *Logger so output stays uniform:
// JSON in production, text for development, with service and version
// fields on every line. Components tag themselves with With:
//
//	logger := logging.New(cfg.Logging, version)
//	relayLog := logger.With("component", "relay")
//	relayLog.Info("connected", "addr", addr)
//
// config.yaml controls the output:
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// # Security
//
// The relay key and JWT secret must never appear in logs, at any level.
// Log a redacted form or a prefix when troubleshooting:
//
//	logger.Debug("operator key checked", "key_prefix", key[:4]+"...")
package logging
