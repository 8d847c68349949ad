package logger

import (
	"io"
	"net/http"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/eqtlab/bank-syncer/pkg/logger/output"
)

const tailLimit = 16

// Logger is a zap logger that additionally keeps a short tail of recent
// entries for diagnostics.
type Logger struct {
	*zap.Logger
	tail output.TailWriter
}

// New builds the process logger. Debug mode logs everything to the console
// encoder; otherwise the main stream is JSON at info level.
func New(debug bool) *Logger {
	config := zap.NewProductionEncoderConfig()
	config.EncodeTime = zapcore.ISO8601TimeEncoder

	tail := output.NewTailWriter(tailLimit)

	consoleEncoder := zapcore.NewConsoleEncoder(config)
	mainEncoder := consoleEncoder
	level := zapcore.DebugLevel

	if !debug {
		level = zapcore.InfoLevel
		mainEncoder = zapcore.NewJSONEncoder(config)
	}

	core := zapcore.NewTee(
		zapcore.NewCore(consoleEncoder, zapcore.AddSync(tail), level),
		zapcore.NewCore(mainEncoder, zapcore.AddSync(os.Stdout), level),
	)

	return &Logger{
		Logger: zap.New(core, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel)),
		tail:   tail,
	}
}

// TailHandler serves whatever recent entries the tail buffer holds, draining
// it. Meant for the diagnostics endpoint, not for log shipping.
func (l *Logger) TailHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")

		for {
			select {
			case line := <-l.tail:
				io.WriteString(w, line)
			default:
				return
			}
		}
	})
}
