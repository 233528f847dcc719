// Package logx configures promobot's structured logging.
//
// A small wrapper (logx.Logger) on top of zerolog keeps:
//   - Console output readable (short timestamp + short caller)
//   - File output JSON-structured, append-only
//   - Level and sinks swappable at runtime via Service.Apply
package logx
