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
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func newFlagSet(t *testing.T) *flag.FlagSet {
	t.Helper()
	testFlags := flag.NewFlagSet("test", flag.ContinueOnError)
	RegisterFlags(testFlags)
	return testFlags
}

func TestDefault(t *testing.T) {
	c, err := NewFromFlags(newFlagSet(t))
	if err != nil {
		t.Fatal(err)
	}
	// All defaults doesn't require setting flags.
	flags := c.ToFlags()
	if len(flags) > 0 {
		t.Errorf("default flags not set correctly for: %s", flags)
	}
}

func TestFromFlags(t *testing.T) {
	testFlags := newFlagSet(t)
	for name, val := range map[string]string{
		"debug":    "true",
		"threads":  "16",
		"duration": "250ms",
		"lock":     "mcs",
	} {
		if err := testFlags.Lookup(name).Value.Set(val); err != nil {
			t.Errorf("Flag set: %v", err)
		}
	}

	c, err := NewFromFlags(testFlags)
	if err != nil {
		t.Fatal(err)
	}
	if want := true; c.Debug != want {
		t.Errorf("Debug=%v, want: %v", c.Debug, want)
	}
	if want := 16; c.Threads != want {
		t.Errorf("Threads=%v, want: %v", c.Threads, want)
	}
	if want := 250 * time.Millisecond; c.Duration != want {
		t.Errorf("Duration=%v, want: %v", c.Duration, want)
	}
	if want := "mcs"; c.Lock != want {
		t.Errorf("Lock=%v, want: %v", c.Lock, want)
	}
}

func TestFromFlagsInvalid(t *testing.T) {
	for name, val := range map[string]string{
		"threads":          "0",
		"iterations":       "-1",
		"phases":           "0",
		"duration":         "0s",
		"log-format":       "xml",
		"lockup-threshold": "0s",
	} {
		t.Run(name, func(t *testing.T) {
			testFlags := newFlagSet(t)
			if err := testFlags.Set(name, val); err != nil {
				t.Fatalf("Flag set: %v", err)
			}
			if _, err := NewFromFlags(testFlags); err == nil {
				t.Errorf("NewFromFlags with --%s=%s succeeded, want error", name, val)
			}
		})
	}
}

func TestToFlagsFromFlags(t *testing.T) {
	testFlags := newFlagSet(t)
	testFlags.Set("debug", "true")
	testFlags.Set("pin-cpus", "false") // Matches default value.
	testFlags.Set("iterations", "123")
	testFlags.Set("lock", "ticket")
	c, err := NewFromFlags(testFlags)
	if err != nil {
		t.Fatal(err)
	}

	flags := c.ToFlags()
	t.Logf("Flags: %s", flags)
	fm := map[string]string{}
	for _, f := range flags {
		kv := strings.Split(f, "=")
		fm[kv[0]] = kv[1]
	}
	want := map[string]string{
		"--debug":      "true",
		"--iterations": "123",
		"--lock":       "ticket",
	}
	if diff := cmp.Diff(want, fm); diff != "" {
		t.Errorf("ToFlags() mismatch (-want +got):\n%s", diff)
	}
}

func TestToFlagsFromManual(t *testing.T) {
	c := &Config{
		Debug:      true,
		PinCPUs:    false, // Matches default flag value.
		Iterations: 123,
		Duration:   3 * time.Second,
	}

	// Create a second config with flag-default values that we'll copy from.
	cfgDefault, err := NewFromFlags(newFlagSet(t))
	if err != nil {
		t.Fatal(err)
	}

	// Set all the unset fields of c to their flag-default value from cfgDefault.
	cfgReflect := reflect.ValueOf(c).Elem()
	cfgDefaultReflect := reflect.ValueOf(cfgDefault).Elem()
	for i := 0; i < cfgReflect.NumField(); i++ {
		if cfgReflect.Field(i).IsZero() {
			cfgReflect.Field(i).Set(cfgDefaultReflect.Field(i))
		}
	}

	got := c.ToFlags()
	want := []string{"--debug=true", "--iterations=123", "--duration=3s"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("ToFlags() mismatch (-want +got):\n%s", diff)
	}
}

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "kstress.toml")
	if err := os.WriteFile(path, []byte(contents), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestConfigFile(t *testing.T) {
	path := writeConfig(t, `
threads = 8
duration = "2s"
lock = "mcs"
pin-cpus = true
`)
	testFlags := newFlagSet(t)
	testFlags.Set("config", path)
	testFlags.Set("threads", "2")
	c, err := NewFromFlags(testFlags)
	if err != nil {
		t.Fatal(err)
	}

	want, err := NewFromFlags(newFlagSet(t))
	if err != nil {
		t.Fatal(err)
	}
	// The explicit flag wins over the file.
	want.Threads = 2
	want.Duration = 2 * time.Second
	want.Lock = "mcs"
	want.PinCPUs = true
	if diff := cmp.Diff(want, c); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}
}

func TestConfigFileErrors(t *testing.T) {
	for name, contents := range map[string]string{
		"unknown key": "spin = true\n",
		"bad type":    "threads = \"many\"\n",
		"invalid":     "threads = 0\n",
	} {
		t.Run(name, func(t *testing.T) {
			testFlags := newFlagSet(t)
			testFlags.Set("config", writeConfig(t, contents))
			if _, err := NewFromFlags(testFlags); err == nil {
				t.Errorf("NewFromFlags succeeded, want error")
			}
		})
	}

	testFlags := newFlagSet(t)
	testFlags.Set("config", filepath.Join(t.TempDir(), "missing.toml"))
	if _, err := NewFromFlags(testFlags); err == nil {
		t.Errorf("NewFromFlags with missing file succeeded, want error")
	}
}

func TestCopy(t *testing.T) {
	c, err := NewFromFlags(newFlagSet(t))
	if err != nil {
		t.Fatal(err)
	}
	cp := c.Copy()
	if diff := cmp.Diff(c, cp); diff != "" {
		t.Errorf("Copy() mismatch (-want +got):\n%s", diff)
	}
	cp.Threads++
	if c.Threads == cp.Threads {
		t.Errorf("Copy() shares state with the original")
	}
}
