package config

import (
	"errors"
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/buffer"
	"go.uber.org/zap/zapcore"
)

type LoggerConfig struct {
	Level       string `yaml:"level" validate:"required,oneof=none debug normal"`
	Destination string `yaml:"destination,omitempty" validate:"omitempty,filepath"`
	Mode        string `yaml:"mode,omitempty" validate:"omitempty,oneof=append overwrite"`
}

type LoggingConfig struct {
	FileLogger    LoggerConfig `yaml:"file"`
	ConsoleLogger LoggerConfig `yaml:"console"`
}

// Prepare returns the program logger and a function closing the log file,
// if any. Console output goes to stderr so stdout stays clean for rendered
// content.
func (conf *LoggingConfig) Prepare(appName string, debug bool) (*zap.Logger, func() error, error) {
	ec := zap.NewDevelopmentEncoderConfig()
	ec.EncodeCaller = nil
	ec.EncodeLevel = zapcore.CapitalLevelEncoder
	ec.TimeKey = zapcore.OmitKey
	consoleEncoder := newEncoder(ec)

	consoleLevel := conf.ConsoleLogger.Level
	if debug {
		consoleLevel = "debug"
	}

	var consoleCore zapcore.Core
	switch consoleLevel {
	case "normal":
		consoleCore = zapcore.NewCore(consoleEncoder, zapcore.Lock(os.Stderr), zapcore.InfoLevel)
	case "debug":
		consoleCore = zapcore.NewCore(consoleEncoder, zapcore.Lock(os.Stderr), zapcore.DebugLevel)
	default:
		consoleCore = zapcore.NewNopCore()
	}

	fileCore, closer, err := conf.FileLogger.fileCore()
	if err != nil {
		return nil, nil, err
	}

	log := zap.New(zapcore.NewTee(consoleCore, fileCore), zap.AddCaller())
	return log.Named(appName), closer, nil
}

func (conf LoggerConfig) fileCore() (zapcore.Core, func() error, error) {
	var level zapcore.Level
	switch conf.Level {
	case "debug":
		level = zapcore.DebugLevel
	case "normal":
		level = zapcore.InfoLevel
	default:
		return zapcore.NewNopCore(), func() error { return nil }, nil
	}

	flags := os.O_CREATE | os.O_WRONLY
	if conf.Mode == "overwrite" {
		flags |= os.O_TRUNC
	} else {
		flags |= os.O_APPEND
	}
	f, err := os.OpenFile(conf.Destination, flags, 0644)
	if err != nil {
		return nil, nil, fmt.Errorf("unable to access file log destination (%s): %w", conf.Destination, err)
	}
	enc := zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig())
	return zapcore.NewCore(enc, zapcore.Lock(f), level), closeSynced(f), nil
}

func closeSynced(f *os.File) func() error {
	return func() error {
		return errors.Join(f.Sync(), f.Close())
	}
}

// consoleEnc drops the verbose form of logged errors, the console only
// gets the short message.
type consoleEnc struct {
	zapcore.Encoder
}

func newEncoder(cfg zapcore.EncoderConfig) zapcore.Encoder {
	return consoleEnc{zapcore.NewConsoleEncoder(cfg)}
}

func (c consoleEnc) Clone() zapcore.Encoder {
	return consoleEnc{c.Encoder.Clone()}
}

func (c consoleEnc) EncodeEntry(ent zapcore.Entry, fields []zapcore.Field) (*buffer.Buffer, error) {
	newFields := make([]zapcore.Field, 0, len(fields))
	for _, f := range fields {
		if f.Type == zapcore.ErrorType {
			if e, ok := f.Interface.(error); ok {
				f.Interface = errors.New(e.Error())
			}
		}
		newFields = append(newFields, f)
	}
	return c.Encoder.EncodeEntry(ent, newFields)
}
