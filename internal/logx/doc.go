// Package logx configures the relay's structured logging.
//
// It is a small wrapper (logx.Logger) on top of zerolog that keeps:
//   - Console output readable (short timestamp + short caller)
//   - JSON output structured for log shippers
//   - A zero-value Logger that is a safe no-op
package logx
