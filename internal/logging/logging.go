// Package logging wires up logrus the way cmd/gocq/main.go's PrepareData
// does (§5a): a daily-rotated file sink via
// lestrrat-go/file-rotatelogs plus a colorized console sink gated on
// whether stdout is actually a terminal, via mattn/go-colorable and
// gopkg.ilharper.com/x/isatty, generalized from bot-event logging to
// import/merge/query request logging.
package logging

import (
	"io"
	"os"
	"path/filepath"
	"time"

	rotatelogs "github.com/lestrrat-go/file-rotatelogs"
	colorable "github.com/mattn/go-colorable"
	log "github.com/sirupsen/logrus"
	"gopkg.ilharper.com/x/isatty"
)

// Setup points logrus at dir/<date>.log and, when stdout is attached to a
// terminal, also at a colorized console writer; level parses one of
// logrus's level names, defaulting to info on anything unrecognized.
func Setup(dir, level string) (*log.Logger, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	rotator, err := rotatelogs.New(
		filepath.Join(dir, "%Y-%m-%d.log"),
		rotatelogs.WithRotationTime(24*time.Hour),
		rotatelogs.WithMaxAge(30*24*time.Hour),
	)
	if err != nil {
		return nil, err
	}

	logger := log.New()
	var out io.Writer = rotator
	if isatty.Isatty(os.Stdout.Fd()) {
		out = io.MultiWriter(rotator, colorable.NewColorableStdout())
		logger.SetFormatter(&log.TextFormatter{ForceColors: true, FullTimestamp: true})
	} else {
		logger.SetFormatter(&log.TextFormatter{DisableColors: true, FullTimestamp: true})
	}
	logger.SetOutput(out)

	lvl, err := log.ParseLevel(level)
	if err != nil {
		lvl = log.InfoLevel
	}
	logger.SetLevel(lvl)
	return logger, nil
}
