package obs

import (
	"io"
	"os"
	"sync"

	"github.com/rs/zerolog"
)

const serviceName = "meritlog"

var (
	loggerMu sync.RWMutex
	logger   = newLogger(os.Stdout)
)

func init() {
	zerolog.TimestampFieldName = "ts"
	zerolog.MessageFieldName = "msg"
}

func newLogger(w io.Writer) zerolog.Logger {
	return zerolog.New(w).With().Str("service", serviceName).Timestamp().Logger()
}

// Logger returns the shared structured logger used across the service.
func Logger() *zerolog.Logger {
	loggerMu.RLock()
	defer loggerMu.RUnlock()
	l := logger
	return &l
}

// SetOutput redirects the shared logger and returns a func restoring the previous one.
func SetOutput(w io.Writer) (restore func()) {
	loggerMu.Lock()
	prev := logger
	logger = newLogger(w)
	loggerMu.Unlock()
	return func() {
		loggerMu.Lock()
		logger = prev
		loggerMu.Unlock()
	}
}

// LogRequest emits a structured log line with common HTTP fields.
func LogRequest(msg string, entry map[string]any) {
	Logger().Info().Fields(entry).Msg(msg)
}
