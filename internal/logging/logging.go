// Package logging wraps zap with the hierarchical-category convention the
// synchronizer is built around: a logger is always constructed with a
// category path (e.g. ["syncmesh","repo","synchronizer"]) and passed in
// explicitly — never held in a package global.
package logging

import (
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Logger struct {
	*zap.Logger
}

func NewLogger(level string, format string) (*Logger, error) {
	var zapLevel zapcore.Level
	if err := zapLevel.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	config := zap.Config{
		Level:       zap.NewAtomicLevelAt(zapLevel),
		Development: false,
		Encoding:    format,
		EncoderConfig: zapcore.EncoderConfig{
			TimeKey:        "timestamp",
			LevelKey:       "level",
			NameKey:        "logger",
			CallerKey:      "caller",
			MessageKey:     "message",
			StacktraceKey:  "stacktrace",
			LineEnding:     zapcore.DefaultLineEnding,
			EncodeLevel:    zapcore.LowercaseLevelEncoder,
			EncodeTime:     zapcore.ISO8601TimeEncoder,
			EncodeDuration: zapcore.SecondsDurationEncoder,
			EncodeCaller:   zapcore.ShortCallerEncoder,
		},
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}

	logger, err := config.Build()
	if err != nil {
		return nil, err
	}

	return &Logger{Logger: logger}, nil
}

// Category returns a child logger named after a dot-joined category path,
// e.g. Category("repo", "synchronizer") -> logger named "repo.synchronizer".
func (l *Logger) Category(path ...string) *zap.Logger {
	return l.Named(strings.Join(path, "."))
}

func (l *Logger) WithChannel(channelID uint64) *zap.Logger {
	return l.With(zap.Uint64("channel_id", channelID))
}

func (l *Logger) WithPeer(peerID string) *zap.Logger {
	return l.With(zap.String("peer_id", peerID))
}

func (l *Logger) WithDoc(docID string) *zap.Logger {
	return l.With(zap.String("doc_id", docID))
}

func (l *Logger) WithError(err error) *zap.Logger {
	return l.With(zap.Error(err))
}
