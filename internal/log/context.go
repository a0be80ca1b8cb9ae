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

package log

import (
	"context"

	"github.com/rs/zerolog"
)

type fieldRequest struct{}
type fieldOrigin struct{}
type fieldAccount struct{}

// WithRequest attaches the id of the http request being served.
func WithRequest(ctx context.Context, request string) context.Context {
	return context.WithValue(ctx, fieldRequest{}, request)
}

// WithOrigin attaches the remote address of the client.
func WithOrigin(ctx context.Context, origin string) context.Context {
	return context.WithValue(ctx, fieldOrigin{}, origin)
}

// WithAccount attaches the sender account a request is acting for.
func WithAccount(ctx context.Context, account string) context.Context {
	return context.WithValue(ctx, fieldAccount{}, account)
}

func appendContextFields(ctx context.Context, event *zerolog.Event) *zerolog.Event {
	if request, ok := ctx.Value(fieldRequest{}).(string); ok {
		event.Str("request", request)
	}

	if origin, ok := ctx.Value(fieldOrigin{}).(string); ok {
		event.Str("origin", origin)
	}

	if account, ok := ctx.Value(fieldAccount{}).(string); ok {
		event.Str("account", account)
	}

	return event
}
