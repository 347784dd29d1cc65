// Copyright 2018 The kernsync Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package log

import (
	"time"

	"golang.org/x/time/rate"
	"kernsync.dev/kernsync/pkg/atomicbitops"
)

// rateLimitedLogger forwards at most one message per interval. The number of
// messages dropped since the last one forwarded is appended to the next.
type rateLimitedLogger struct {
	logger     Logger
	limit      *rate.Limiter
	suppressed atomicbitops.Int32
}

// admit reports whether a message may be forwarded, and returns its format
// and arguments with the suppressed count added.
func (rl *rateLimitedLogger) admit(format string, v []any) (string, []any, bool) {
	if !rl.limit.Allow() {
		rl.suppressed.Add(1)
		return "", nil, false
	}
	if n := rl.suppressed.Swap(0); n > 0 {
		return format + " (%d similar messages suppressed)", append(v[:len(v):len(v)], n), true
	}
	return format, v, true
}

func (rl *rateLimitedLogger) Debugf(format string, v ...any) {
	if format, v, ok := rl.admit(format, v); ok {
		rl.logger.Debugf(format, v...)
	}
}

func (rl *rateLimitedLogger) Infof(format string, v ...any) {
	if format, v, ok := rl.admit(format, v); ok {
		rl.logger.Infof(format, v...)
	}
}

func (rl *rateLimitedLogger) Warningf(format string, v ...any) {
	if format, v, ok := rl.admit(format, v); ok {
		rl.logger.Warningf(format, v...)
	}
}

func (rl *rateLimitedLogger) IsLogging(level Level) bool {
	return rl.logger.IsLogging(level)
}

// globalLogger looks up the global logger on every call, so that loggers
// created during package initialization follow a later SetTarget.
type globalLogger struct{}

func (globalLogger) Debugf(format string, v ...any) {
	Log().DebugfAtDepth(2, format, v...)
}

func (globalLogger) Infof(format string, v ...any) {
	Log().InfofAtDepth(2, format, v...)
}

func (globalLogger) Warningf(format string, v ...any) {
	Log().WarningfAtDepth(2, format, v...)
}

func (globalLogger) IsLogging(level Level) bool {
	return Log().IsLogging(level)
}

// BasicRateLimitedLogger returns a Logger that logs to the global logger no
// more than once per the provided duration.
func BasicRateLimitedLogger(every time.Duration) Logger {
	return RateLimitedLogger(globalLogger{}, every)
}

// RateLimitedLogger returns a Logger that logs to the provided logger no more
// than once per the provided duration.
func RateLimitedLogger(logger Logger, every time.Duration) Logger {
	return &rateLimitedLogger{
		logger: logger,
		limit:  rate.NewLimiter(rate.Every(every), 1),
	}
}
