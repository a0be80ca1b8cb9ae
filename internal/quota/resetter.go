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
	"context"
	"time"

	"github.com/lukasdietrich/bulkmail/internal/log"
)

// Resetter periodically starts a new window on a Tracker.
type Resetter struct {
	tracker  *Tracker
	interval time.Duration
}

// NewResetter creates a new Resetter. It has to be started explicitly using Run.
func NewResetter(tracker *Tracker, opts Options) *Resetter {
	interval := opts.ResetInterval
	if interval <= 0 {
		interval = time.Hour
	}

	return &Resetter{
		tracker:  tracker,
		interval: interval,
	}
}

// Run resets the tracker every interval and blocks until ctx is done.
func (r *Resetter) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	log.Info().
		Dur("interval", r.interval).
		Msg("quota resetter started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("quota resetter stopped")
			return

		case <-ticker.C:
			r.tracker.Reset()
		}
	}
}
