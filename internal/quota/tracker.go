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

package quota

import (
	"errors"
	"sync"
	"time"

	"github.com/spf13/viper"

	"github.com/lukasdietrich/bulkmail/internal/log"
	"github.com/lukasdietrich/bulkmail/internal/metrics"
)

var (
	// ErrLimitReached is the reason of a rejected reservation, when the account
	// has already sent as many mails as allowed in the current window.
	ErrLimitReached = errors.New("quota: hourly limit reached")

	// ErrLimitExceeded is the reason of a rejected reservation, when the
	// requested count is larger than what is left in the current window.
	ErrLimitExceeded = errors.New("quota: limit would be exceeded")
)

func init() {
	viper.SetDefault("quota.hourlyLimit", 28)
	viper.SetDefault("quota.resetInterval", "1h")
}

// Options configure the Tracker and Resetter.
type Options struct {
	HourlyLimit   int
	ResetInterval time.Duration
}

// OptionsFromViper reads Options from viper.
//
// `quota.hourlyLimit` is the number of mails an account may send per window.
// `quota.resetInterval` is the length of a window.
func OptionsFromViper() Options {
	return Options{
		HourlyLimit:   viper.GetInt("quota.hourlyLimit"),
		ResetInterval: viper.GetDuration("quota.resetInterval"),
	}
}

type record struct {
	count    int
	reserved int
}

// Tracker counts sent mails per account within the current window. Mails are
// reserved before sending and committed with the number actually sent, so that
// concurrent requests for the same account cannot oversubscribe the limit.
type Tracker struct {
	limit int

	mu      sync.Mutex
	window  uint64
	records map[string]*record
}

// NewTracker creates an empty Tracker.
func NewTracker(opts Options) *Tracker {
	return &Tracker{
		limit:   opts.HourlyLimit,
		records: make(map[string]*record),
	}
}

// Reservation is the result of Reserve. Rejected reservations carry the reason
// and may be committed or released without effect.
type Reservation struct {
	Account   string
	Requested int
	Allowed   bool
	// Remaining is what was left of the quota before this reservation.
	Remaining int
	// Count is the committed count of the account at the time of reservation.
	Count  int
	Reason error

	window uint64
}

// Limit returns the number of mails an account may send per window.
func (t *Tracker) Limit() int {
	return t.limit
}

// Reserve checks if requested more mails may be sent from the account and
// holds them until Commit or Release. The request is either admitted as a
// whole or rejected.
func (t *Tracker) Reserve(account string, requested int) Reservation {
	t.mu.Lock()
	defer t.mu.Unlock()

	var rec record
	if r, ok := t.records[account]; ok {
		rec = *r
	}

	reservation := Reservation{
		Account:   account,
		Requested: requested,
		Remaining: t.limit - rec.count - rec.reserved,
		Count:     rec.count,
		window:    t.window,
	}

	switch {
	case rec.count >= t.limit:
		reservation.Remaining = 0
		reservation.Reason = ErrLimitReached

	case requested > reservation.Remaining:
		if reservation.Remaining < 0 {
			reservation.Remaining = 0
		}

		reservation.Reason = ErrLimitExceeded

	default:
		reservation.Allowed = true

		if requested > 0 {
			t.lookup(account).reserved += requested
		}
	}

	return reservation
}

// Commit adds sent to the account's count and gives back the reservation. The
// count is never increased by more than was reserved. If the window has been
// reset since the reservation, sent starts the count of the new window. The new
// count is returned.
func (t *Tracker) Commit(r Reservation, sent int) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !r.Allowed {
		return t.count(r.Account)
	}

	if sent < 0 {
		sent = 0
	}

	if sent > r.Requested {
		sent = r.Requested
	}

	rec := t.lookup(r.Account)
	rec.count += sent

	if r.window == t.window {
		rec.reserved -= r.Requested
	}

	if rec.count == 0 && rec.reserved == 0 {
		delete(t.records, r.Account)
	}

	return rec.count
}

// Release gives back a reservation without sending anything.
func (t *Tracker) Release(r Reservation) int {
	return t.Commit(r, 0)
}

// Count returns the number of mails sent from the account in the current
// window. Unknown accounts have a count of 0.
func (t *Tracker) Count(account string) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.count(account)
}

// Reset starts a new window. All counts and reservations are dropped at once.
func (t *Tracker) Reset() {
	t.mu.Lock()
	n := len(t.records)
	clear(t.records)
	t.window++
	t.mu.Unlock()

	metrics.QuotaResets.Inc()

	log.Info().
		Int("accounts", n).
		Msg("quota window reset")
}

func (t *Tracker) count(account string) int {
	if rec, ok := t.records[account]; ok {
		return rec.count
	}

	return 0
}

func (t *Tracker) lookup(account string) *record {
	rec, ok := t.records[account]
	if !ok {
		rec = new(record)
		t.records[account] = rec
	}

	return rec
}
