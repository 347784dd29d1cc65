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
	"encoding/json"
	"fmt"
	"path/filepath"
	"runtime"
	"time"
)

// jsonLog is one line of JSONEmitter output.
type jsonLog struct {
	Msg    string    `json:"msg"`
	Level  Level     `json:"level"`
	Time   time.Time `json:"time"`
	Caller string    `json:"caller,omitempty"`
}

// levelNames are the JSON names of the levels, indexed by level.
var levelNames = [...]string{
	Warning: "warning",
	Info:    "info",
	Debug:   "debug",
}

// MarshalJSON implements json.Marshaler.MarshalJSON.
func (l Level) MarshalJSON() ([]byte, error) {
	if l >= Level(len(levelNames)) {
		return nil, fmt.Errorf("unknown level %v", l)
	}
	return json.Marshal(levelNames[l])
}

// UnmarshalJSON implements json.Unmarshaler.UnmarshalJSON. It accepts both
// the level names and their integer values.
func (l *Level) UnmarshalJSON(b []byte) error {
	var name string
	if err := json.Unmarshal(b, &name); err == nil {
		for i, n := range levelNames {
			if n == name {
				*l = Level(i)
				return nil
			}
		}
		return fmt.Errorf("unknown level %q", name)
	}
	var n uint32
	if err := json.Unmarshal(b, &n); err != nil || n >= uint32(len(levelNames)) {
		return fmt.Errorf("unknown level %s", b)
	}
	*l = Level(n)
	return nil
}

// JSONEmitter logs messages as one JSON object per line. The call site is
// reported in a separate caller field as file:line.
type JSONEmitter struct {
	*Writer
}

// Emit implements Emitter.Emit.
func (e JSONEmitter) Emit(depth int, level Level, timestamp time.Time, format string, v ...any) {
	j := jsonLog{
		Msg:   fmt.Sprintf(format, v...),
		Level: level,
		Time:  timestamp,
	}
	if _, file, line, ok := runtime.Caller(depth + 1); ok {
		j.Caller = fmt.Sprintf("%s:%d", filepath.Base(file), line)
	}
	b, err := json.Marshal(j)
	if err != nil {
		panic(err)
	}
	e.Writer.Write(append(b, '\n'))
}
