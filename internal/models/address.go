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

package models

import (
	"errors"
	"strings"

	"golang.org/x/net/idna"
	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

var (
	// ErrInvalidAddressFormat is used for addresses of zero length or without
	// an "@" sign.
	ErrInvalidAddressFormat = errors.New("address: invalid format")

	// ErrPathTooLong is used for addresses, that are too long or contain a path
	// that is too long according to RFC#5321.
	ErrPathTooLong = errors.New("address: path too long")

	// ZeroAddress is an invalid, zero value Address.
	ZeroAddress Address
)

// Address is a string of the form "local-part@domain".
type Address struct {
	raw string
	at  int
}

// ParseNormalized calls ParseUnicode and transforms the local-part using NormalizeLocalPart.
func ParseNormalized(raw string) (Address, error) {
	addr, err := ParseUnicode(raw)
	if err != nil {
		return addr, err
	}

	localPart := NormalizeLocalPart(addr.LocalPart())
	if localPart != addr.LocalPart() {
		addr.raw = localPart + "@" + addr.Domain()
		addr.at = len(localPart)
	}

	return addr, nil
}

// ParseUnicode calls Parse and transforms the domain part of the address using DomainToUnicode.
func ParseUnicode(raw string) (Address, error) {
	addr, err := Parse(raw)
	if err != nil {
		return addr, err
	}

	domain, err := DomainToUnicode(addr.Domain())
	if err != nil {
		return addr, err
	}

	if domain != addr.Domain() {
		addr.raw = addr.LocalPart() + "@" + domain
	}

	return addr, nil
}

// Parse splits an address at the "@" sign and checks for size limits.
func Parse(raw string) (Address, error) {
	if len(raw) == 0 {
		return ZeroAddress, ErrInvalidAddressFormat
	}

	at := strings.LastIndex(raw, "@")
	if at < 0 {
		return ZeroAddress, ErrInvalidAddressFormat
	}

	// see RFC#5321 4.5.3.1
	if at > 64 || len(raw)-at > 256 || len(raw) > 256 {
		return ZeroAddress, ErrPathTooLong
	}

	return Address{raw, at}, nil
}

// String returns the raw address provided to Parse.
func (a Address) String() string {
	return a.raw
}

// LocalPart returns the part left of the "@" sign (exclusive).
func (a Address) LocalPart() string {
	return a.raw[:a.at]
}

// Domain return the part right of the "@" sign (exclusive).
func (a Address) Domain() string {
	return a.raw[a.at+1:]
}

// ASCII returns the address with its domain transformed to punycode, as it is
// expected in the smtp envelope. The local-part is never altered.
func (a Address) ASCII() (string, error) {
	domain, err := DomainToASCII(a.Domain())
	if err != nil {
		return "", err
	}

	return a.LocalPart() + "@" + domain, nil
}

// DomainToUnicode normalizes a punycode domain to unicode and applies the
// NFC normal form.
func DomainToUnicode(domain string) (string, error) {
	mapped, err := idna.Lookup.ToUnicode(domain)
	if err != nil {
		return domain, err
	}

	return norm.NFC.String(mapped), nil
}

// DomainToASCII transforms a unicode domain to punycode.
func DomainToASCII(domain string) (string, error) {
	mapped, err := DomainToUnicode(domain)
	if err != nil {
		return domain, err
	}

	return idna.Lookup.ToASCII(mapped)
}

// fold is a cases.Caser to fold unicode text. Folding is more or less "compatible" lowercase.
var fold = cases.Fold()

// NormalizeLocalPart applies several rules to make the local-part of sender
// accounts comparable. Recipient addresses may not be altered.
//
// 1) The local-part is case-folded so that "user" and "USER" are considered equal.
// 2) The local-part is normalized using NFKC so that equal looking runes are considered equal.
// 3) The local-part has the suffix trimmed. A suffix is everything after the first '+' rune.
func NormalizeLocalPart(localPart string) string {
	folded := fold.String(localPart)
	normalized := norm.NFKC.String(folded)

	suffixIndex := strings.IndexRune(normalized, '+')
	if suffixIndex < 0 {
		return normalized
	}

	return normalized[:suffixIndex]
}

// AccountKey returns the identifier used to count sent mails of an account.
// Spellings of the same mailbox ("User+x@Example.com" and "user@example.com")
// share one key. The suffix is dropped regardless of the provider, so on
// providers without subaddressing two distinct mailboxes may share a key.
// Accounts, that cannot be parsed, are keyed by their trimmed, case-folded
// raw value.
func AccountKey(account string) string {
	account = strings.TrimSpace(account)

	addr, err := ParseNormalized(account)
	if err != nil {
		return fold.String(account)
	}

	return addr.String()
}
