package riscvdis

import (
	"io"
	"log"
	"os"
)

var debugMode = false

var logger = log.New(io.Discard, "riscvdis: ", log.Lshortfile)

// SetDebugMode toggles whether the package logger writes to stderr.
// Grounded on go-interpreter-wagon/wasm's PrintDebugInfo/log.go pattern.
func SetDebugMode(v bool) {
	debugMode = v
	w := io.Writer(io.Discard)
	if debugMode {
		w = os.Stderr
	}
	logger.SetOutput(w)
}
