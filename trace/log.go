package trace

import (
	"io"
	"log"
	"os"
)

var debugMode = false

var logger = log.New(io.Discard, "trace: ", log.Lshortfile)

// SetDebugMode toggles whether the package logger writes to stderr.
// Grounded on go-interpreter-wagon/wasm's PrintDebugInfo/log.go pattern:
// discard output by default, switch the same *log.Logger's destination
// on demand rather than guarding every call site with an if.
func SetDebugMode(v bool) {
	debugMode = v
	w := io.Writer(io.Discard)
	if debugMode {
		w = os.Stderr
	}
	logger.SetOutput(w)
}
