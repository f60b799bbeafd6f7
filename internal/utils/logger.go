package utils

import (
    "os"
    "path/filepath"

    "go.uber.org/zap"
    "go.uber.org/zap/zapcore"
    "gopkg.in/natefinch/lumberjack.v2"
)

// InitLogger builds the application logger.  Records go to stdout and to a
// size-rotated file under dir.  debug switches to a console encoder at
// debug level.
func InitLogger(dir string, debug bool) (*zap.Logger, error) {
    core, err := newCore(dir, "bus-seat-hold.log", debug)
    if err != nil {
        return nil, err
    }
    return zap.New(core, zap.AddCaller()), nil
}

// InitAuditLogger builds a file-only JSON logger used for the booking
// audit trail.
func InitAuditLogger(dir string) (*zap.Logger, error) {
    if err := os.MkdirAll(dir, 0o755); err != nil {
        return nil, err
    }
    enc := zap.NewProductionEncoderConfig()
    enc.TimeKey = "timestamp"
    enc.EncodeTime = zapcore.ISO8601TimeEncoder
    core := zapcore.NewCore(zapcore.NewJSONEncoder(enc), rotating(filepath.Join(dir, "booking.log")), zap.InfoLevel)
    return zap.New(core), nil
}

func newCore(dir, file string, debug bool) (zapcore.Core, error) {
    if dir != "" {
        if err := os.MkdirAll(dir, 0o755); err != nil {
            return nil, err
        }
    }

    encoderConfig := zap.NewProductionEncoderConfig()
    if debug {
        encoderConfig = zap.NewDevelopmentEncoderConfig()
    }
    encoderConfig.TimeKey = "timestamp"
    encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
    encoderConfig.CallerKey = "caller"
    encoderConfig.EncodeCaller = zapcore.ShortCallerEncoder

    encoder := zapcore.NewJSONEncoder(encoderConfig)
    if debug {
        encoder = zapcore.NewConsoleEncoder(encoderConfig)
    }

    level := zap.InfoLevel
    if debug {
        level = zap.DebugLevel
    }

    return zapcore.NewTee(
        zapcore.NewCore(encoder, rotating(filepath.Join(dir, file)), level),
        zapcore.NewCore(encoder, zapcore.AddSync(os.Stdout), level),
    ), nil
}

func rotating(path string) zapcore.WriteSyncer {
    return zapcore.AddSync(&lumberjack.Logger{
        Filename:   path,
        MaxSize:    10, // MB
        MaxBackups: 7,
        MaxAge:     28, // days
        Compress:   true,
    })
}
