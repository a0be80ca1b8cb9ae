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

package delivery

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/lukasdietrich/bulkmail/internal/log"
	"github.com/lukasdietrich/bulkmail/internal/models"
	"github.com/lukasdietrich/bulkmail/internal/smtp"
)

var (
	// ErrWrongCredentials is returned when the relay does not accept the
	// account and app password.
	ErrWrongCredentials = errors.New("wrong account or app password")
)

func init() {
	viper.SetDefault("security.auth.minDuration", "1s")
}

// Authenticator checks sender credentials against the relay.
type Authenticator struct {
	relay smtp.Relay

	minDuration time.Duration
}

// NewAuthenticator creates a new Authenticator.
func NewAuthenticator(relay smtp.Relay) *Authenticator {
	return &Authenticator{
		relay: relay,

		minDuration: viper.GetDuration("security.auth.minDuration"),
	}
}

// Auth dials the relay and authenticates. Any failure is reported as
// ErrWrongCredentials and takes at least `security.auth.minDuration`.
func (a *Authenticator) Auth(ctx context.Context, creds models.Credentials) error {
	startTime := time.Now()

	if err := a.relay.Verify(ctx, creds); err != nil {
		log.WarnContext(ctx).
			Err(err).
			Str("class", string(smtp.Classify(err))).
			Msg("failed auth attempt at relay")

		a.ensureMinDuration(ctx, startTime)
		return fmt.Errorf("%w: %w", ErrWrongCredentials, err)
	}

	return nil
}

func (a *Authenticator) ensureMinDuration(ctx context.Context, start time.Time) {
	elapsed := time.Since(start)
	remaining := a.minDuration - elapsed

	if remaining > 0 {
		sleepContext(ctx, remaining) // nolint:errcheck
	}
}

// sleepContext waits for d or until the context is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
