// Package pidginlog provides the structured logging facade used throughout
// Pidgin. It wraps a single package-level zerolog.Logger behind chainable
// WithField/WithFields/WithError builders so call sites never import
// zerolog directly.
package pidginlog

import (
	"io"
	"os"
	"sync"

	"github.com/rs/zerolog"
)

var (
	mu     sync.RWMutex
	logger zerolog.Logger
)

func init() {
	logger = zerolog.New(os.Stderr).With().Timestamp().Logger().Level(zerolog.InfoLevel)
}

// InitLogger configures the package-level logger. When pretty is true,
// output is rendered through a human-readable zerolog.ConsoleWriter;
// otherwise it writes newline-delimited JSON straight to w.
func InitLogger(w io.Writer, level zerolog.Level, pretty bool) {
	mu.Lock()
	defer mu.Unlock()

	if pretty {
		cw := zerolog.ConsoleWriter{Out: w, TimeFormat: "15:04:05"}
		logger = zerolog.New(cw).With().Timestamp().Logger().Level(level)
		return
	}
	logger = zerolog.New(w).With().Timestamp().Logger().Level(level)
}

// Builder accumulates structured fields before a terminal log call.
type Builder struct {
	ctx zerolog.Context
}

func current() zerolog.Context {
	mu.RLock()
	defer mu.RUnlock()
	return logger.With()
}

// WithField starts a new Builder with a single field set.
func WithField(key string, value interface{}) *Builder {
	return &Builder{ctx: current().Interface(key, value)}
}

// WithFields starts a new Builder with several fields set at once.
func WithFields(fields map[string]interface{}) *Builder {
	b := &Builder{ctx: current()}
	for k, v := range fields {
		b.ctx = b.ctx.Interface(k, v)
	}
	return b
}

// WithError starts a new Builder carrying an error field.
func WithError(err error) *Builder {
	return &Builder{ctx: current().Err(err)}
}

// WithField chains another field onto an existing Builder.
func (b *Builder) WithField(key string, value interface{}) *Builder {
	return &Builder{ctx: b.ctx.Interface(key, value)}
}

// WithFields chains several more fields onto an existing Builder.
func (b *Builder) WithFields(fields map[string]interface{}) *Builder {
	for k, v := range fields {
		b.ctx = b.ctx.Interface(k, v)
	}
	return b
}

// WithError chains an error field onto an existing Builder.
func (b *Builder) WithError(err error) *Builder {
	return &Builder{ctx: b.ctx.Err(err)}
}

func (b *Builder) Debug(msg string) { b.ctx.Logger().Debug().Msg(msg) }
func (b *Builder) Info(msg string)  { b.ctx.Logger().Info().Msg(msg) }
func (b *Builder) Warn(msg string)  { b.ctx.Logger().Warn().Msg(msg) }
func (b *Builder) Error(msg string) { b.ctx.Logger().Error().Msg(msg) }

// Debug logs at debug level with no extra fields.
func Debug(msg string) {
	mu.RLock()
	defer mu.RUnlock()
	logger.Debug().Msg(msg)
}

// Info logs at info level with no extra fields.
func Info(msg string) {
	mu.RLock()
	defer mu.RUnlock()
	logger.Info().Msg(msg)
}

// Warn logs at warn level with no extra fields.
func Warn(msg string) {
	mu.RLock()
	defer mu.RUnlock()
	logger.Warn().Msg(msg)
}

// Error logs at error level with no extra fields.
func Error(msg string) {
	mu.RLock()
	defer mu.RUnlock()
	logger.Error().Msg(msg)
}
