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

// Package irq models the interrupt-control interface of a core.
//
// Locks that may also be taken from an interrupt handler on the same core
// disable interrupts around their critical section. The state captured when
// interrupts are disabled is handed back to the caller as an opaque Token,
// which is the only way to restore it.
package irq

// State is the interrupt state of a core at the time it was saved. It is
// opaque to lock implementations.
type State struct {
	enabled bool
}

// MakeState returns a State for a Controller implementation.
func MakeState(enabled bool) State {
	return State{enabled: enabled}
}

// Enabled returns whether interrupts were enabled when s was captured. It is
// meant for Controller implementations.
func (s State) Enabled() bool {
	return s.enabled
}

// Controller is the interrupt-control API of a core.
type Controller interface {
	// DisableAndSave disables interrupts and returns the previous state.
	DisableAndSave() State

	// Restore returns interrupts to st. Restoring an enabled state while
	// interrupts are already enabled is a protocol violation and panics.
	Restore(st State)

	// Enabled returns whether interrupts are currently enabled.
	Enabled() bool
}

// Token is the saved interrupt state returned by an irq-safe acquire and
// consumed by the matching release.
type Token struct {
	c  Controller
	st State
}

// Save disables interrupts on c and returns a token restoring the prior state.
func Save(c Controller) Token {
	if c == nil {
		panic("irq: Save with a nil Controller")
	}
	return Token{c: c, st: c.DisableAndSave()}
}

// Restore restores the interrupt state captured by Save.
func (t Token) Restore() {
	if t.c == nil {
		panic("irq: restore of a zero Token")
	}
	t.c.Restore(t.st)
}

// Valid returns whether t was returned by Save.
func (t Token) Valid() bool {
	return t.c != nil
}
