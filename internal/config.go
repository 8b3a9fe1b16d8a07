package internal

import (
	"strconv"
	"sync/atomic"
)

// Output mode bits. Quiet and debug steer the log level (debug wins when
// both are set); verbose only adds source locations to log records.
const (
	modeQuiet uint32 = 1 << iota
	modeDebug
	modeVerbose
)

// Active output modes, seeded from linker flags and raised by CLI flags.
var modes atomic.Uint32

// Seeds the mode bits from the raw linker-flag variables. Unset or
// malformed values leave their bit cleared.
func init() {
	var seed uint32
	if v, err := strconv.ParseBool(rawQuiet); err == nil && v {
		seed |= modeQuiet
	}
	if v, err := strconv.ParseBool(rawDebug); err == nil && v {
		seed |= modeDebug
	}
	if v, err := strconv.ParseBool(rawVerbose); err == nil && v {
		seed |= modeVerbose
	}
	modes.Store(seed)
}

func setMode(bit uint32, enabled bool) {
	for {
		old := modes.Load()
		next := old &^ bit
		if enabled {
			next = old | bit
		}
		if modes.CompareAndSwap(old, next) {
			return
		}
	}
}

func hasMode(bit uint32) bool {
	return modes.Load()&bit != 0
}

// Enables or disables quiet mode.
func SetQuiet(enabled bool) {
	setMode(modeQuiet, enabled)
}

// Returns true if quiet mode is enabled.
func IsQuiet() bool {
	return hasMode(modeQuiet)
}

// Enables or disables debug mode.
func SetDebug(enabled bool) {
	setMode(modeDebug, enabled)
}

// Returns true if debug mode is enabled.
func IsDebug() bool {
	return hasMode(modeDebug)
}

// Enables or disables verbose logging.
func SetVerbose(enabled bool) {
	setMode(modeVerbose, enabled)
}

// Returns true if verbose logging is enabled.
func IsVerbose() bool {
	return hasMode(modeVerbose)
}
