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

// Package hostcpu provides utilities for working with CPU information provided
// by a host Linux kernel.
package hostcpu

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"unicode"
)

const possiblePath = "/sys/devices/system/cpu/possible"

// MaxPossibleCPU returns the highest possible CPU number, which is guaranteed
// not to change for the lifetime of the host kernel.
func MaxPossibleCPU() (uint32, error) {
	data, err := os.ReadFile(possiblePath)
	if err != nil {
		return 0, err
	}
	str := string(data)
	// Linux: drivers/base/cpu.c:show_cpus_attr() =>
	// include/linux/cpumask.h:cpumask_print_to_pagebuf() =>
	// lib/bitmap.c:bitmap_print_to_pagebuf()
	i, err := maxValueInLinuxBitmap(str)
	if err != nil {
		return 0, fmt.Errorf("invalid %s (%q): %v", possiblePath, str, err)
	}
	return uint32(i), nil
}

// Possible returns the number of possible CPUs on the host.
func Possible() (int, error) {
	data, err := os.ReadFile(possiblePath)
	if err != nil {
		return 0, err
	}
	n, err := countInLinuxBitmap(string(data))
	if err != nil {
		return 0, fmt.Errorf("invalid %s (%q): %v", possiblePath, data, err)
	}
	return n, nil
}

// maxValueInLinuxBitmap returns the maximum value specified in str, which is a
// string emitted by Linux's lib/bitmap.c:bitmap_print_to_pagebuf(list=true).
func maxValueInLinuxBitmap(str string) (uint64, error) {
	str = strings.TrimSpace(str)
	// Find the last decimal number in str.
	idx := strings.LastIndexFunc(str, func(c rune) bool {
		return !unicode.IsDigit(c)
	})
	if idx != -1 {
		str = str[idx+1:]
	}
	i, err := strconv.ParseUint(str, 10, 64)
	if err != nil {
		return 0, err
	}
	return i, nil
}

// countInLinuxBitmap returns the number of values in a list-format bitmap
// such as "0-3,8-11".
func countInLinuxBitmap(str string) (int, error) {
	str = strings.TrimSpace(str)
	if str == "" {
		return 0, fmt.Errorf("empty bitmap")
	}
	n := 0
	for _, r := range strings.Split(str, ",") {
		lo, hi, isRange := strings.Cut(r, "-")
		first, err := strconv.ParseUint(lo, 10, 32)
		if err != nil {
			return 0, err
		}
		last := first
		if isRange {
			if last, err = strconv.ParseUint(hi, 10, 32); err != nil {
				return 0, err
			}
			if last < first {
				return 0, fmt.Errorf("descending range %q", r)
			}
		}
		n += int(last-first) + 1
	}
	return n, nil
}
