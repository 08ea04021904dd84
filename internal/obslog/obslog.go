// Package obslog wires zap into a logr.Logger façade, the same shape used
// throughout the rest of the corpus so that every component logs through
// one Log type regardless of which concrete backend is behind it.
package obslog

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Log wraps a named logr.Logger.
type Log struct {
	logr.Logger
}

// New builds a Log named name. In production mode it uses zap's JSON
// production encoder; otherwise a colorized console encoder. If logPath is
// non-empty, output is additionally written to "<logPath>/<name>.log".
func New(name, logPath string, production bool) (*Log, error) {
	var zc zap.Config
	if production {
		zc = zap.NewProductionConfig()
	} else {
		zc = zap.NewDevelopmentConfig()
		zc.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	zc.DisableStacktrace = true

	if logPath != "" {
		if err := os.MkdirAll(logPath, 0o755); err != nil {
			return nil, fmt.Errorf("obslog: create log dir: %w", err)
		}
		zc.OutputPaths = append(zc.OutputPaths, filepath.Join(logPath, name+".log"))
	}

	z, err := zc.Build()
	if err != nil {
		return nil, fmt.Errorf("obslog: build zap logger: %w", err)
	}

	return &Log{Logger: zapr.NewLogger(z).WithName(name)}, nil
}

// NewSimple builds a Log from the global zap logger, for use in tests and
// one-off tools that haven't gone through config loading.
func NewSimple(name string) *Log {
	return &Log{Logger: zapr.NewLogger(zap.L().Named(name))}
}

// With returns a child logger scoped to path, e.g. l.With("tasks.sign_envelope").
func (l *Log) With(path string) *Log {
	return &Log{Logger: l.WithName(path)}
}

// ForEnvelope returns a child logger carrying the envelope/recipient id
// fields spec.md §7 requires on every logged error.
func (l *Log) ForEnvelope(envelopeID, recipientID string) *Log {
	kv := []any{"envelope_id", envelopeID}
	if recipientID != "" {
		kv = append(kv, "recipient_id", recipientID)
	}
	return &Log{Logger: l.WithValues(kv...)}
}
