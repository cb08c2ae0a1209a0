package rlog

import (
	"log"
	"os"
)

// DebugEnabled controls whether or not debug-level logging is emitted. It is
// set automatically based on the CKMAME_DEBUG environment variable, mirroring
// the way verbosity is usually threaded through a batch-mode CLI tool rather
// than a long-lived daemon.
var DebugEnabled bool

func init() {
	// Set the global logger to use standard output.
	log.SetOutput(os.Stdout)

	// Check whether or not debugging should be enabled.
	DebugEnabled = os.Getenv("CKMAME_DEBUG") == "1"
}
