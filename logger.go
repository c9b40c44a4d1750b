package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	logDir = "logs"

	logger = zap.NewNop()
	sugar  = logger.Sugar()
	level  = zap.NewAtomicLevelAt(zapcore.InfoLevel)

	errorLogPath string
	debugLogPath string
	debugLogging bool

	// debugPacketDumpLen limits how many bytes of a packet payload are logged.
	// A value of 0 dumps the entire payload.
	debugPacketDumpLen = 256
)

// lazyFile creates its file on the first write, so runs that log nothing
// leave no empty files behind.
type lazyFile struct {
	path string
	once sync.Once
	f    *os.File
	err  error
}

func (l *lazyFile) open() {
	l.once.Do(func() {
		if err := os.MkdirAll(filepath.Dir(l.path), 0755); err != nil {
			l.err = err
			return
		}
		l.f, l.err = os.Create(l.path)
	})
}

func (l *lazyFile) Write(p []byte) (int, error) {
	l.open()
	if l.err != nil {
		return 0, l.err
	}
	return l.f.Write(p)
}

func (l *lazyFile) Sync() error {
	if l.f == nil {
		return nil
	}
	return l.f.Sync()
}

func setupLogging(debug bool) {
	ts := time.Now().Format("20060102-150405")
	errorLogPath = filepath.Join(logDir, fmt.Sprintf("error-%s.log", ts))
	debugLogPath = filepath.Join(logDir, fmt.Sprintf("debug-%s.log", ts))

	consoleCfg := zap.NewDevelopmentEncoderConfig()
	consoleCfg.EncodeTime = zapcore.TimeEncoderOfLayout("2006/01/02 15:04:05")
	fileCfg := zap.NewProductionEncoderConfig()
	fileCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	cores := []zapcore.Core{
		zapcore.NewCore(zapcore.NewConsoleEncoder(consoleCfg), zapcore.Lock(os.Stdout), level),
		zapcore.NewCore(zapcore.NewJSONEncoder(fileCfg), &lazyFile{path: errorLogPath}, zapcore.WarnLevel),
	}
	if debug {
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(fileCfg), &lazyFile{path: debugLogPath}, zapcore.DebugLevel))
	}
	logger = zap.New(zapcore.NewTee(cores...), zap.AddCaller())
	sugar = logger.Sugar()
	setDebugLogging(debug)
}

func syncLogs() {
	_ = logger.Sync()
}

func logError(format string, v ...interface{}) {
	sugar.Errorf(format, v...)
}

func logWarn(format string, v ...interface{}) {
	sugar.Warnf(format, v...)
}

func logInfo(format string, v ...interface{}) {
	sugar.Infof(format, v...)
}

func logDebug(format string, v ...interface{}) {
	sugar.Debugf(format, v...)
}

func logDebugPacket(prefix string, data []byte) {
	if !debugLogging {
		return
	}
	n := len(data)
	dump := data
	if debugPacketDumpLen > 0 && n > debugPacketDumpLen {
		dump = data[:debugPacketDumpLen]
	}
	logger.Debug(prefix, zap.Int("len", n), zap.String("payload", fmt.Sprintf("% x", dump)))
}

func setDebugLogging(enabled bool) {
	debugLogging = enabled
	if enabled {
		level.SetLevel(zapcore.DebugLevel)
	} else {
		level.SetLevel(zapcore.InfoLevel)
	}
}
