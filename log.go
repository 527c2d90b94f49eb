// The MIT License
//
// Copyright (c) 2023-2024 by the author(s)
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE.
//
// Description:
//
// Logging facility. A LOG_ERR message aborts the process: it is reserved for
// invariant breaches and unrecoverable startup failures.

package gotgen

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// log levels
const (
	LOG_DEBUG int = iota
	LOG_INFO
	LOG_WARN
	LOG_ERR
)

var (
	logSugar *zap.SugaredLogger
	logAtom  = zap.NewAtomicLevelAt(zapcore.InfoLevel)
)

func logInit() {
	encCfg := zap.NewDevelopmentEncoderConfig()
	encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg),
		zapcore.Lock(os.Stdout), logAtom)
	logSugar = zap.New(core).Sugar()
}

// Log prints out a log message with a specifiable log level.
func Log(level int, msg string, a ...interface{}) {
	if logSugar == nil {
		logInit()
	}

	switch level {
	case LOG_DEBUG:
		logSugar.Debugf(msg, a...)
	case LOG_INFO:
		logSugar.Infof(msg, a...)
	case LOG_WARN:
		logSugar.Warnf(msg, a...)
	case LOG_ERR:
		logSugar.Fatalf(msg, a...)
	default:
		logSugar.Fatalf("invalid log level")
	}
}

// LogSetLevel sets the minimum criticality of the messages that are actually
// printed. Log messages below the criticality level are ignored.
func LogSetLevel(level int) {
	switch level {
	case LOG_DEBUG:
		logAtom.SetLevel(zapcore.DebugLevel)
	case LOG_INFO:
		logAtom.SetLevel(zapcore.InfoLevel)
	case LOG_WARN:
		logAtom.SetLevel(zapcore.WarnLevel)
	case LOG_ERR:
		logAtom.SetLevel(zapcore.FatalLevel)
	default:
		Log(LOG_ERR, "invalid log level")
	}
}
