// Package logx is aquabot's structured logging layer.
//
// A thin Logger wrapper over zerolog keeps:
//   - console output short (timestamp + file:line caller)
//   - file output as JSON lines
//   - an optional Telegram sink for warnings and errors, rate limited
package logx
