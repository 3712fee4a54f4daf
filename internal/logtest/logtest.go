// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package logtest provides a discard log.Logger for tests across the
// module, so every package test file doesn't redefine its own.
package logtest

import (
	"github.com/luxfi/log"
	"go.uber.org/zap"
)

// Nop is a log.Logger that discards everything.
type Nop struct{}

func (Nop) Trace(string, ...zap.Field)   {}
func (Nop) Verbo(string, ...zap.Field)   {}
func (Nop) Debug(string, ...zap.Field)   {}
func (Nop) Info(string, ...zap.Field)    {}
func (Nop) Warn(string, ...zap.Field)    {}
func (Nop) Error(string, ...zap.Field)   {}
func (Nop) Fatal(string, ...zap.Field)   {}
func (Nop) With(...zap.Field) log.Logger { return Nop{} }

var _ log.Logger = Nop{}
