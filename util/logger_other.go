//go:build !linux
// +build !linux

package util

import (
	"io"
	"log"
	"os"
)

var logWriter io.Writer = os.Stderr

// GetLogWriter returns the writer the log package writes to.
func GetLogWriter() io.Writer {
	return logWriter
}

// SetupLogging configures logging. Journald only exists on Linux, so
// the flag degrades to standard stderr logging here.
func SetupLogging(withJournald bool) {
	if withJournald {
		log.Println("Warning: journald logging is not supported on this operating system, using standard logging")
	}
}
