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

// Package linuxerr contains syscall error codes exported as an error interface
// pointers. This allows for fast comparison and return operations comperable
// to unix.Errno constants.
package linuxerr

import (
	"golang.org/x/sys/unix"
	"kernsync.dev/kernsync/pkg/errors"
)

// The errors returned by the synchronization primitives. Everything else they
// can run into is a protocol violation and panics.
var (
	noError *errors.Error = nil
	EBUSY                 = errors.New(unix.EBUSY, "device or resource busy")
	EINVAL                = errors.New(unix.EINVAL, "invalid argument")
)

// ToError converts a linuxerr to an error type.
func ToError(err *errors.Error) error {
	if err == noError {
		return nil
	}
	return err
}

// ToUnix converts a linuxerr to a unix.Errno.
func ToUnix(e *errors.Error) unix.Errno {
	var unixErr unix.Errno
	if e != noError {
		unixErr = e.Errno()
	}
	return unixErr
}

// Equals compars a linuxerr to a given error.
func Equals(e *errors.Error, err error) bool {
	var unixErr unix.Errno
	if e != noError {
		unixErr = e.Errno()
	}
	if err == nil {
		err = noError
	}
	return e == err || unixErr == err
}
