// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package main

import (
	"github.com/luxfi/log"
	"go.uber.org/zap"
)

// zapLogger adapts a *zap.Logger to log.Logger, the interface every
// wired component is constructed with. internal/logtest.Nop is this
// interface's discard implementation used in tests; this is its
// production counterpart.
type zapLogger struct {
	z *zap.Logger
}

func newZapLogger(z *zap.Logger) log.Logger {
	return zapLogger{z: z}
}

func (l zapLogger) Trace(msg string, fields ...zap.Field) { l.z.Debug(msg, fields...) }
func (l zapLogger) Verbo(msg string, fields ...zap.Field) { l.z.Debug(msg, fields...) }
func (l zapLogger) Debug(msg string, fields ...zap.Field) { l.z.Debug(msg, fields...) }
func (l zapLogger) Info(msg string, fields ...zap.Field)  { l.z.Info(msg, fields...) }
func (l zapLogger) Warn(msg string, fields ...zap.Field)  { l.z.Warn(msg, fields...) }
func (l zapLogger) Error(msg string, fields ...zap.Field) { l.z.Error(msg, fields...) }
func (l zapLogger) Fatal(msg string, fields ...zap.Field) { l.z.Fatal(msg, fields...) }

func (l zapLogger) With(fields ...zap.Field) log.Logger {
	return zapLogger{z: l.z.With(fields...)}
}

var _ log.Logger = zapLogger{}
