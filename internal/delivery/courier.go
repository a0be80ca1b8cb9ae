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
	"sync/atomic"
	"time"

	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/lukasdietrich/bulkmail/internal/log"
	"github.com/lukasdietrich/bulkmail/internal/metrics"
	"github.com/lukasdietrich/bulkmail/internal/models"
	"github.com/lukasdietrich/bulkmail/internal/smtp"
)

func init() {
	viper.SetDefault("delivery.parallel", 3)
	viper.SetDefault("delivery.batchDelay", "120ms")
}

// Courier sends messages through the relay in groups of concurrent sends with
// a pause after every group.
type Courier struct {
	relay smtp.Relay

	parallel   int
	batchDelay time.Duration

	sleep func(context.Context, time.Duration) error
}

// NewCourier creates a new courier for delivery.
//
// `delivery.parallel` is the size of a group.
// `delivery.batchDelay` is the pause after each group.
func NewCourier(relay smtp.Relay) *Courier {
	parallel := viper.GetInt("delivery.parallel")
	if parallel < 1 {
		parallel = 1
	}

	return &Courier{
		relay:      relay,
		parallel:   parallel,
		batchDelay: viper.GetDuration("delivery.batchDelay"),
		sleep:      sleepContext,
	}
}

// Send attempts every message exactly once and returns the number of messages
// accepted by the relay. Failures are logged but never returned. Once started,
// every group is sent even if ctx is canceled, so the result always matches
// what the relay accepted.
func (c *Courier) Send(ctx context.Context, creds models.Credentials, messages []models.Message) int {
	ctx = context.WithoutCancel(ctx)

	var sent int

	for start := 0; start < len(messages); start += c.parallel {
		end := start + c.parallel
		if end > len(messages) {
			end = len(messages)
		}

		sent += c.sendGroup(ctx, creds, messages[start:end])

		if err := c.sleep(ctx, c.batchDelay); err != nil {
			log.DebugContext(ctx).Err(err).Msg("batch delay interrupted")
		}
	}

	return sent
}

// sendGroup sends all messages concurrently and waits until every send has
// settled. One failure does not stop the others.
func (c *Courier) sendGroup(ctx context.Context, creds models.Credentials, group []models.Message) int {
	var (
		g    errgroup.Group
		sent int64
	)

	for _, msg := range group {
		msg := msg

		g.Go(func() error {
			if err := c.relay.Send(ctx, creds, msg); err != nil {
				class := smtp.Classify(err)
				metrics.MailsFailed.WithLabelValues(string(class)).Inc()

				log.WarnContext(ctx).
					Err(err).
					Str("to", msg.To).
					Str("class", string(class)).
					Msg("could not send mail")

				return nil
			}

			metrics.MailsSent.Inc()
			atomic.AddInt64(&sent, 1)

			log.DebugContext(ctx).
				Str("to", msg.To).
				Str("id", msg.ID).
				Msg("mail sent")

			return nil
		})
	}

	g.Wait() // nolint:errcheck
	metrics.BatchesDispatched.Inc()

	return int(atomic.LoadInt64(&sent))
}
