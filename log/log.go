package log

import (
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// Setup points logrus at a date-stamped log file under logDir and mirrors
// info-level (or debug-level when debug is set) entries to stdout. The log
// file always receives debug entries so the file is the audit record of a run.
// Returns the file handle so callers can close it on the way out.
func Setup(debug bool, logDir, logName string) (io.Closer, error) {
	if logDir == "" {
		logDir = "logs"
	}
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "create log directory %s", logDir)
	}

	fileName := time.Now().Format("2006-01-02") + "-" + logName
	logPath := filepath.Join(logDir, fileName)
	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, errors.Wrapf(err, "open log file %s", logPath)
	}

	log.SetFormatter(&log.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})
	log.SetOutput(file)
	log.SetLevel(log.DebugLevel)

	consoleMin := log.InfoLevel
	if debug {
		consoleMin = log.DebugLevel
	}
	log.AddHook(&consoleHook{min: consoleMin, formatter: &log.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	}})

	return file, nil
}

// consoleHook mirrors entries at or above min to stdout while the main output
// stays pointed at the log file
type consoleHook struct {
	min       log.Level
	formatter log.Formatter
}

func (h *consoleHook) Levels() []log.Level {
	var levels []log.Level
	for _, level := range log.AllLevels {
		if level <= h.min {
			levels = append(levels, level)
		}
	}
	return levels
}

func (h *consoleHook) Fire(entry *log.Entry) error {
	line, err := h.formatter.Format(entry)
	if err != nil {
		return err
	}
	_, err = os.Stdout.Write(line)
	return err
}

func Debug(msg ...interface{}) {
	log.Debug(msg...)
}

func Debugf(format string, msg ...interface{}) {
	log.Debugf(format, msg...)
}

func Info(msg ...interface{}) {
	log.Info(msg...)
}

func Infof(format string, msg ...interface{}) {
	log.Infof(format, msg...)
}

func Warn(msg ...interface{}) {
	log.Warn(msg...)
}

func Warnf(format string, msg ...interface{}) {
	log.Warnf(format, msg...)
}

func Error(msg ...interface{}) {
	log.Error(msg...)
}

func Errorf(format string, msg ...interface{}) {
	log.Errorf(format, msg...)
}

func Fatal(msg ...interface{}) {
	log.Fatal(msg...)
}

func Fatalf(format string, msg ...interface{}) {
	log.Fatalf(format, msg...)
}
