package utils

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"time"
)

// SetupLogFile sends the standard logger to stdout and to a timestamped
// file under dir. The caller closes the returned file.
func SetupLogFile(dir string) (*os.File, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create logs directory: %w", err)
	}

	timestamp := time.Now().Format("2006-01-02_15-04-05")
	logFile, err := os.OpenFile(filepath.Join(dir, "log_"+timestamp+".log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}

	log.SetOutput(io.MultiWriter(os.Stdout, logFile))
	// include time (hh:mm:ss) with microsecond precision
	log.SetFlags(log.Ltime | log.Lmicroseconds)
	return logFile, nil
}
