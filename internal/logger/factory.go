package logger

import "github.com/charmbracelet/log"

// Setup points the global charm logger at stderr. Debug mode lowers the
// level and adds timestamps and callers; otherwise only warnings and up.
func Setup(debug bool) {
	level := log.WarnLevel
	if debug {
		level = log.DebugLevel
	}
	log.SetDefault(NewWithConfig("", level, debug, debug, log.TextFormatter))
	log.SetLevel(level)
}
