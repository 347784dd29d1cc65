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

package irq

import (
	"fmt"

	"kernsync.dev/kernsync/pkg/atomicbitops"
	"kernsync.dev/kernsync/pkg/sync"
)

// CPU is a simulated core implementing Controller.
//
// Interrupts raised with Interrupt while the core has interrupts disabled are
// held pending and delivered, in arrival order, when interrupts are enabled
// again. Handlers always run with interrupts disabled.
type CPU struct {
	id int

	// mu protects enabled transitions and pending.
	mu sync.Mutex

	// enabled is whether interrupts are enabled. It is only modified with
	// mu held.
	enabled atomicbitops.Bool

	// pending holds handlers raised while interrupts were disabled.
	pending []func()

	// delivered counts handlers that have run.
	delivered atomicbitops.Uint64
}

// NewCPU returns core id with interrupts enabled.
func NewCPU(id int) *CPU {
	c := &CPU{id: id}
	c.enabled.Store(true)
	return c
}

// ID returns the core number.
func (c *CPU) ID() int {
	return c.id
}

// String implements fmt.Stringer.
func (c *CPU) String() string {
	return fmt.Sprintf("cpu%d", c.id)
}

// Enabled implements Controller.Enabled.
func (c *CPU) Enabled() bool {
	return c.enabled.Load()
}

// Disable disables interrupts. Disabling is idempotent.
func (c *CPU) Disable() {
	c.mu.Lock()
	c.enabled.Store(false)
	c.mu.Unlock()
}

// Enable enables interrupts and delivers any pending ones. It panics if
// interrupts are already enabled.
func (c *CPU) Enable() {
	c.enable()
}

// DisableAndSave implements Controller.DisableAndSave.
func (c *CPU) DisableAndSave() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return MakeState(c.enabled.Swap(false))
}

// Restore implements Controller.Restore.
func (c *CPU) Restore(st State) {
	if st.Enabled() {
		c.enable()
		return
	}
	c.Disable()
}

// Interrupt raises an interrupt whose handler is h. If interrupts are enabled
// h runs before Interrupt returns, otherwise it is delivered once they are
// enabled.
func (c *CPU) Interrupt(h func()) {
	c.mu.Lock()
	if !c.enabled.Load() {
		c.pending = append(c.pending, h)
		c.mu.Unlock()
		return
	}
	c.enabled.Store(false)
	c.mu.Unlock()

	c.run(h)
	c.enable()
}

// Pending returns the number of interrupts awaiting delivery.
func (c *CPU) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// Delivered returns the number of interrupt handlers that have run.
func (c *CPU) Delivered() uint64 {
	return c.delivered.Load()
}

func (c *CPU) run(h func()) {
	h()
	c.delivered.Add(1)
}

// enable drains pending interrupts with interrupts still disabled, then
// enables them.
func (c *CPU) enable() {
	c.mu.Lock()
	if c.enabled.Load() {
		c.mu.Unlock()
		panic(fmt.Sprintf("irq: enabling interrupts on %v, which already has them enabled", c))
	}
	for len(c.pending) > 0 {
		h := c.pending[0]
		c.pending[0] = nil
		c.pending = c.pending[1:]
		c.mu.Unlock()
		c.run(h)
		c.mu.Lock()
	}
	c.pending = nil
	c.enabled.Store(true)
	c.mu.Unlock()
}
