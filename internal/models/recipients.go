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

import "strings"

// ParseRecipients splits a raw list of recipients at commas and newlines.
// Entries are trimmed and kept only if they contain an "@" sign. The order is
// preserved and duplicates are not removed.
func ParseRecipients(raw string) []string {
	fields := strings.FieldsFunc(raw, func(r rune) bool {
		return r == ',' || r == '\n'
	})

	recipients := make([]string, 0, len(fields))

	for _, field := range fields {
		field = strings.TrimSpace(field)

		if strings.Contains(field, "@") {
			recipients = append(recipients, field)
		}
	}

	return recipients
}
