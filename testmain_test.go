package main

import (
	"os"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

// TestMain keeps the logs and stats files tests write out of the source
// tree.
func TestMain(m *testing.M) {
	dir, err := os.MkdirTemp("", "gotibia-test")
	if err != nil {
		panic(err)
	}
	logDir = dir
	code := m.Run()
	os.RemoveAll(dir)
	os.Exit(code)
}

// observeLogs routes the package logger into an observer for the test.
func observeLogs(t *testing.T) *observer.ObservedLogs {
	t.Helper()
	core, logs := observer.New(zap.DebugLevel)
	oldLogger, oldSugar := logger, sugar
	logger = zap.New(core)
	sugar = logger.Sugar()
	t.Cleanup(func() {
		logger, sugar = oldLogger, oldSugar
	})
	return logs
}
