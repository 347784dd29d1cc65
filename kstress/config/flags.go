// Copyright 2023 The kernsync Authors.
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

package config

import (
	"flag"
	"fmt"
	"reflect"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
)

// configFlag names the flag holding the path of a TOML configuration file.
const configFlag = "config"

// RegisterFlags registers flags used to populate Config.
func RegisterFlags(flagSet *flag.FlagSet) {
	flagSet.String(configFlag, "", "path to a TOML file with default settings. Flags set on the command line take precedence.")

	// Logging flags.
	flagSet.Bool("debug", false, "enable debug logging.")
	flagSet.String("log", "", "file path where internal debug information is written, default is stderr.")
	flagSet.String("log-format", "text", "log format: text (default) or json.")
	flagSet.Bool("alsologtostderr", false, "send log messages to stderr as well as the --log file.")

	// Workload flags.
	flagSet.Int("threads", 4, "number of worker threads.")
	flagSet.Int("iterations", 100000, "number of operations per worker.")
	flagSet.Int("phases", 1000, "number of barrier phases.")
	flagSet.Duration("duration", time.Second, "how long time-based workloads run.")
	flagSet.String("lock", "spinlock", "lock kind: spinlock, spinlock-irq, ticket, mcs or rwlock.")
	flagSet.Bool("pin-cpus", false, "pin every worker thread to its own host CPU.")
	flagSet.Duration("lockup-threshold", 5*time.Second, "how long a lock may be spun on before a lockup is reported.")
	flagSet.String("metrics-file", "", "file path where results are written in Prometheus text format.")
}

// NewFromFlags creates a new Config with values coming from command line
// flags. If a configuration file is given, its values replace the flag
// defaults, and flags set explicitly replace both.
func NewFromFlags(flagSet *flag.FlagSet) (*Config, error) {
	conf := &Config{}

	obj := reflect.ValueOf(conf).Elem()
	st := obj.Type()
	for i := 0; i < st.NumField(); i++ {
		f := st.Field(i)
		name, ok := f.Tag.Lookup("flag")
		if !ok {
			// No flag set for this field.
			continue
		}
		fl := flagSet.Lookup(name)
		if fl == nil {
			panic(fmt.Sprintf("Flag %q not found", name))
		}
		obj.Field(i).Set(reflect.ValueOf(get(fl)))
	}

	if fl := flagSet.Lookup(configFlag); fl != nil && fl.Value.String() != "" {
		if err := conf.loadFile(fl.Value.String()); err != nil {
			return nil, err
		}
		var err error
		flagSet.Visit(func(fl *flag.Flag) {
			if err == nil && fl.Name != configFlag {
				err = conf.setFromFlag(fl)
			}
		})
		if err != nil {
			return nil, err
		}
	}

	if err := conf.validate(); err != nil {
		return nil, err
	}
	return conf, nil
}

// loadFile decodes the TOML file at path into c. Keys that match no setting
// are an error.
func (c *Config) loadFile(path string) error {
	md, err := toml.DecodeFile(path, c)
	if err != nil {
		return fmt.Errorf("reading config file %q: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return fmt.Errorf("config file %q: unknown keys %v", path, undecoded)
	}
	return nil
}

// setFromFlag sets the field tagged with fl's name to fl's value.
func (c *Config) setFromFlag(fl *flag.Flag) error {
	obj := reflect.ValueOf(c).Elem()
	st := obj.Type()
	for i := 0; i < st.NumField(); i++ {
		if name, ok := st.Field(i).Tag.Lookup("flag"); ok && name == fl.Name {
			obj.Field(i).Set(reflect.ValueOf(get(fl)))
			return nil
		}
	}
	return fmt.Errorf("flag %q not found", fl.Name)
}

// get returns the typed value of fl.
func get(fl *flag.Flag) any {
	getter, ok := fl.Value.(flag.Getter)
	if !ok {
		panic(fmt.Sprintf("Flag %q has no typed value", fl.Name))
	}
	return getter.Get()
}

// ToFlags returns a slice of flags that correspond to the given Config.
func (c *Config) ToFlags() []string {
	var rv []string

	// Construct a temporary set for default plumbing.
	flagSet := flag.NewFlagSet("tmp", flag.ContinueOnError)
	RegisterFlags(flagSet)

	obj := reflect.ValueOf(c).Elem()
	st := obj.Type()
	for i := 0; i < st.NumField(); i++ {
		f := st.Field(i)
		name, ok := f.Tag.Lookup("flag")
		if !ok {
			// No flag set for this field.
			continue
		}
		val := getVal(obj.Field(i))

		flag := flagSet.Lookup(name)
		if flag == nil {
			panic(fmt.Sprintf("Flag %q not found", name))
		}
		if val == flag.DefValue {
			continue
		}
		rv = append(rv, fmt.Sprintf("--%s=%s", flag.Name, val))
	}
	return rv
}

func getVal(field reflect.Value) string {
	if str, ok := field.Addr().Interface().(fmt.Stringer); ok {
		return str.String()
	}
	switch field.Kind() {
	case reflect.Bool:
		return strconv.FormatBool(field.Bool())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(field.Int(), 10)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return strconv.FormatUint(field.Uint(), 10)
	case reflect.String:
		return field.String()
	default:
		panic("unknown type " + field.Kind().String())
	}
}
