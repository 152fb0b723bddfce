// Copyright (c) 2013-2017 The btcsuite developers
// Copyright (c) 2025 The btcwatch developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/btcsuite/btclog/v2"
	"github.com/jrick/logrotate/rotator"

	"github.com/toole-brendan/btcwatch/config"
	"github.com/toole-brendan/btcwatch/currency"
	"github.com/toole-brendan/btcwatch/eventbus"
	"github.com/toole-brendan/btcwatch/features"
	"github.com/toole-brendan/btcwatch/pipeline"
	"github.com/toole-brendan/btcwatch/rpcclient"
	"github.com/toole-brendan/btcwatch/sinks"
)

// logWriter implements an io.Writer that outputs to both standard output and
// the write-end pipe of an initialized log rotator.
type logWriter struct{}

func (logWriter) Write(p []byte) (n int, err error) {
	os.Stdout.Write(p)
	if logRotator != nil {
		logRotator.Write(p)
	}
	return len(p), nil
}

var (
	// backendLog is the logging backend used to create all subsystem
	// loggers. The backend must not be used before the log rotator has
	// been initialized, or data races and/or nil pointer dereferences
	// will occur.
	backendLog = btclog.NewSLogger(btclog.NewDefaultHandler(logWriter{}))

	// logRotator is one of the logging outputs. It should be closed on
	// application shutdown.
	logRotator *rotator.Rotator

	mainLog = backendLog.SubSystem("MAIN")
	busLog  = backendLog.SubSystem("BUS")
	pipeLog = backendLog.SubSystem("PIPE")
	currLog = backendLog.SubSystem("CURR")
	rpccLog = backendLog.SubSystem("RPCC")
	sinkLog = backendLog.SubSystem("SINK")
	flagLog = backendLog.SubSystem("FLAG")
	confLog = backendLog.SubSystem("CONF")
)

// subsystemLoggers maps each subsystem identifier to its associated logger.
var subsystemLoggers = map[string]btclog.Logger{
	"MAIN": mainLog,
	"BUS":  busLog,
	"PIPE": pipeLog,
	"CURR": currLog,
	"RPCC": rpccLog,
	"SINK": sinkLog,
	"FLAG": flagLog,
	"CONF": confLog,
}

// Initialize package-global logger variables.
func init() {
	eventbus.UseLogger(busLog)
	pipeline.UseLogger(pipeLog)
	currency.UseLogger(currLog)
	rpcclient.UseLogger(rpccLog)
	sinks.UseLogger(sinkLog)
	features.UseLogger(flagLog)
	config.UseLogger(confLog)
}

// initLogRotator initializes the logging rotator to write logs to logFile
// and create roll files in the same directory. It must be called before the
// package-global log rotator variables are used.
func initLogRotator(logFile string) error {
	logDir, _ := filepath.Split(logFile)
	if logDir != "" {
		if err := os.MkdirAll(logDir, 0o700); err != nil {
			return fmt.Errorf("failed to create log directory: %w", err)
		}
	}
	r, err := rotator.New(logFile, 10*1024, false, 3)
	if err != nil {
		return fmt.Errorf("failed to create file rotator: %w", err)
	}
	logRotator = r
	return nil
}

// setLogLevels sets the log level for all subsystem loggers.
func setLogLevels(levelStr string) error {
	level, ok := btclog.LevelFromString(levelStr)
	if !ok {
		return fmt.Errorf("invalid log level %q", levelStr)
	}
	for _, logger := range subsystemLoggers {
		logger.SetLevel(level)
	}
	return nil
}
