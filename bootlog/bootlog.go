// Package bootlog provides the structured logging front end for the
// bootloader core. Records are rendered as compact single lines suitable for
// a serial console, and every record carries the slot the boot engine is
// currently operating on.
package bootlog

import (
	"log/slog"
	"os"
)

// NoSlot is the current-slot value before the outer driver has selected one.
const NoSlot = -1

// currentSlot is the single process-wide integer the outer boot engine sets
// to give log records their slot context. It is written once per boot, before
// the core starts issuing flash operations, and read on every log record.
var currentSlot = NoSlot

// SetCurrentSlot records which image slot the boot engine is operating on.
func SetCurrentSlot(slot int) {
	currentSlot = slot
}

// CurrentSlot returns the slot set by SetCurrentSlot, or NoSlot.
func CurrentSlot() int {
	return currentSlot
}

var defaultLogger = slog.New(NewHandler(os.Stderr, slog.LevelInfo))

// SetDefault replaces the logger used by the package-level L accessor.
func SetDefault(logger *slog.Logger) {
	defaultLogger = logger
}

// L returns the logger the core packages write through.
func L() *slog.Logger {
	return defaultLogger
}
