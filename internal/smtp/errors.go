// Copyright (C) 2020  Lukas Dietrich <lukas@lukasdietrich.com>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package smtp

import (
	"context"
	"errors"
	"net/textproto"
	"os"
)

// ErrorClass groups relay errors by their smtp reply code.
type ErrorClass string

const (
	// ClassPermanent is used for 5xx replies.
	ClassPermanent ErrorClass = "permanent"
	// ClassTransient is used for 4xx replies.
	ClassTransient ErrorClass = "transient"
	// ClassTimeout is used when the relay did not answer in time.
	ClassTimeout ErrorClass = "timeout"
	// ClassOther is used for network, tls and all unknown errors.
	ClassOther ErrorClass = "other"
)

// Classify determines the ErrorClass of an error returned by a Relay.
func Classify(err error) ErrorClass {
	switch {
	case IsPermanent(err):
		return ClassPermanent
	case IsTransient(err):
		return ClassTransient
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, os.ErrDeadlineExceeded):
		return ClassTimeout
	default:
		return ClassOther
	}
}

// IsPermanent tests if an error is an smtp error and if it has a 5xx code.
func IsPermanent(err error) bool {
	var protoError *textproto.Error
	if errors.As(err, &protoError) {
		return protoError.Code >= 500 && protoError.Code < 600
	}

	return false
}

// IsTransient tests if an error is an smtp error and if it has a 4xx code.
func IsTransient(err error) bool {
	var protoError *textproto.Error
	if errors.As(err, &protoError) {
		return protoError.Code >= 400 && protoError.Code < 500
	}

	return false
}
