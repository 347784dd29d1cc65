// Copyright 2021 The kernsync Authors.
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

package linuxerr

import (
	goerrors "errors"
	"fmt"
	"testing"

	"golang.org/x/sys/unix"
	"kernsync.dev/kernsync/pkg/errors"
)

func TestEquals(t *testing.T) {
	for _, tc := range []struct {
		name string
		e    *errors.Error
		err  error
		want bool
	}{
		{name: "same value", e: EBUSY, err: EBUSY, want: true},
		{name: "bare errno", e: EBUSY, err: unix.EBUSY, want: true},
		{name: "other errno", e: EBUSY, err: unix.EINVAL, want: false},
		{name: "other value", e: EINVAL, err: EBUSY, want: false},
		{name: "nil", e: EINVAL, err: nil, want: false},
	} {
		t.Run(tc.name, func(t *testing.T) {
			if got := Equals(tc.e, tc.err); got != tc.want {
				t.Errorf("Equals(%v, %v): got %t, want %t", tc.e, tc.err, got, tc.want)
			}
		})
	}
}

func TestWrappedErrorsMatch(t *testing.T) {
	err := fmt.Errorf("destroying condvar: %w", EBUSY)
	if !goerrors.Is(err, EBUSY) {
		t.Errorf("errors.Is(%v, EBUSY) = false, want true", err)
	}
	if !goerrors.Is(err, unix.EBUSY) {
		t.Errorf("errors.Is(%v, unix.EBUSY) = false, want true", err)
	}
	if got := ToUnix(EINVAL); got != unix.EINVAL {
		t.Errorf("ToUnix(EINVAL): got %v, want %v", got, unix.EINVAL)
	}
	if ToError(nil) != nil {
		t.Errorf("ToError(nil) returned a non-nil error")
	}
}
