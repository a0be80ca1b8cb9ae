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

// SendRequest is the body of a bulk mail submission.
type SendRequest struct {
	SenderName string `json:"senderName"`
	Account    string `json:"gmail" validate:"required"`
	Password   string `json:"apppass" validate:"required"`
	To         string `json:"to" validate:"required,recipients"`
	Subject    string `json:"subject" validate:"required"`
	Message    string `json:"message" validate:"required"`
}

// Credentials returns the sender identity of the request.
func (r *SendRequest) Credentials() Credentials {
	return Credentials{
		Name:     r.SenderName,
		Account:  r.Account,
		Password: r.Password,
	}
}

// Credentials identify a sender at the relay. Account doubles as the smtp
// username and the from address.
type Credentials struct {
	Name     string
	Account  string
	Password string
}

// Message is a single mail to exactly one recipient.
type Message struct {
	ID      string
	To      string
	ReplyTo string
	Subject string
	Body    string
}

// Outcome summarizes a dispatch. Failed recipients are not reported
// individually.
type Outcome struct {
	Attempted int
	Sent      int
}

// Failed returns the number of recipients, that could not be sent to.
func (o Outcome) Failed() int {
	return o.Attempted - o.Sent
}
