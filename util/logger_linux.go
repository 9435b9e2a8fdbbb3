//go:build linux
// +build linux

package util

import (
	"fmt"
	"io"
	"log"
	"os"

	"github.com/coreos/go-systemd/v22/journal"
)

// journaldWriter forwards log output to the systemd journal.
type journaldWriter struct{}

func (w *journaldWriter) Write(p []byte) (n int, err error) {
	// journald adds its own newline
	msg := string(p)
	if len(msg) > 0 && msg[len(msg)-1] == '\n' {
		msg = msg[:len(msg)-1]
	}

	err = journal.Send(msg, journal.PriInfo, map[string]string{
		"SYSLOG_IDENTIFIER": Name,
	})
	if err != nil {
		// journald gone away, keep the message on stderr
		return fmt.Fprintf(os.Stderr, "%s", p)
	}
	return len(p), nil
}

var logWriter io.Writer = os.Stderr

// GetLogWriter returns the writer the log package writes to.
func GetLogWriter() io.Writer {
	return logWriter
}

// SetupLogging switches the standard logger to journald when enabled
// and available, otherwise leaves the stderr default in place.
func SetupLogging(withJournald bool) {
	if withJournald {
		if !journal.Enabled() {
			log.Println("Warning: journald not available on this system; using standard logging")
			return
		}

		writer := &journaldWriter{}
		logWriter = writer
		log.SetOutput(writer)
		log.SetFlags(0) // journald timestamps instead
		log.Println("Logging initialized with journald support")
	}
}
