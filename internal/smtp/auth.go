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
	"bytes"
	"errors"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/lukasdietrich/bulkmail/internal/models"
)

// chooseAuth picks a mechanism advertised by the relay. PLAIN is preferred
// over LOGIN, which some relays offer exclusively.
func chooseAuth(mechanisms string, creds models.Credentials, host string) smtp.Auth {
	advertised := strings.Fields(strings.ToUpper(mechanisms))

	switch {
	case contains(advertised, "CRAM-MD5"):
		return smtp.CRAMMD5Auth(creds.Account, creds.Password)
	case contains(advertised, "LOGIN") && !contains(advertised, "PLAIN"):
		return &loginAuth{username: creds.Account, password: creds.Password, host: host}
	default:
		return smtp.PlainAuth("", creds.Account, creds.Password, host)
	}
}

func contains(list []string, value string) bool {
	for _, item := range list {
		if item == value {
			return true
		}
	}

	return false
}

type loginAuth struct {
	username string
	password string
	host     string
}

func (a *loginAuth) Start(server *smtp.ServerInfo) (string, []byte, error) {
	if !server.TLS && !isLocalhost(server.Name) {
		return "", nil, errors.New("unencrypted connection")
	}

	if server.Name != a.host {
		return "", nil, errors.New("wrong host name")
	}

	return "LOGIN", nil, nil
}

func (a *loginAuth) Next(fromServer []byte, more bool) ([]byte, error) {
	if !more {
		return nil, nil
	}

	switch {
	case bytes.EqualFold(fromServer, []byte("Username:")):
		return []byte(a.username), nil
	case bytes.EqualFold(fromServer, []byte("Password:")):
		return []byte(a.password), nil
	default:
		return nil, fmt.Errorf("unexpected server challenge: %q", fromServer)
	}
}

func isLocalhost(name string) bool {
	return name == "localhost" || name == "127.0.0.1" || name == "::1"
}
