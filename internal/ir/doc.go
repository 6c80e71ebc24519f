// Package ir provides the value, entry and operation types shared by every
// logsync package.
//
// This package contains type definitions and encoding helpers only. All other
// internal packages import ir; ir imports nothing internal.
//
// Key design constraints:
//   - NO float types anywhere - use int64 for numbers
//   - Timestamps are logical (int64), never wall-clock
//   - Primary keys are compared structurally via PKKey, never by their JSON text
//   - All JSON tags use snake_case
package ir
