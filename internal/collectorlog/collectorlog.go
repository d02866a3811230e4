// Package collectorlog opens collectord's own operational log file,
// generalizing the teacher's bare log.Printf idiom with the
// open-file-and-also-print-somewhere pattern the original single-file
// collector used for its own diagnostics.
package collectorlog

import (
	"io"
	"log"
	"os"
)

// New opens path for appending and returns a *log.Logger that writes
// to both that file and stderr. If path is empty, or the file cannot
// be opened, the returned logger writes to stderr only and the third
// return value reports the open error (nil when path is empty).
//
// The caller owns the returned io.Closer and must close it on
// shutdown; it is a no-op when no file was opened.
func New(path string) (*log.Logger, io.Closer, error) {
	if path == "" {
		return log.New(os.Stderr, "collectord: ", log.LstdFlags), io.NopCloser(nil), nil
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return log.New(os.Stderr, "collectord: ", log.LstdFlags), io.NopCloser(nil), err
	}

	writer := io.MultiWriter(f, os.Stderr)
	return log.New(writer, "collectord: ", log.LstdFlags), f, nil
}
