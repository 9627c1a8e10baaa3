package logger

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/beyondstorage/beyond-relay/config"
)

// SetUpLog builds the global logger from s and installs it.
func SetUpLog(s config.LogSettings) error {
	logger, err := NewLogger(s)
	if err != nil {
		return err
	}
	zap.ReplaceGlobals(logger)
	return nil
}

// NewLogger builds a logger writing to stderr, or to a rotated file when
// s.File is set.
func NewLogger(s config.LogSettings) (*zap.Logger, error) {
	level := zap.NewAtomicLevel()
	if err := level.UnmarshalText([]byte(s.Level)); err != nil {
		return nil, err
	}

	var encoder zapcore.Encoder
	if s.Format == "json" {
		encoder = zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
	} else {
		encoder = zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig())
	}

	var sink zapcore.WriteSyncer = zapcore.Lock(os.Stderr)
	if s.File != "" {
		sink = zapcore.AddSync(&lumberjack.Logger{
			Filename:   s.File,
			MaxSize:    s.MaxSize,
			MaxBackups: s.MaxBackups,
		})
	}

	return zap.New(zapcore.NewCore(encoder, sink, level), zap.AddCaller()), nil
}
