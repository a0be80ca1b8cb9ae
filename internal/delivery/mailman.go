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

	"github.com/lukasdietrich/bulkmail/internal/crypto"
	"github.com/lukasdietrich/bulkmail/internal/log"
	"github.com/lukasdietrich/bulkmail/internal/metrics"
	"github.com/lukasdietrich/bulkmail/internal/models"
	"github.com/lukasdietrich/bulkmail/internal/normalize"
	"github.com/lukasdietrich/bulkmail/internal/quota"
)

// Result is the outcome of Deliver as reported to the client. Message is only
// set on failure and Sent only on success.
type Result struct {
	Success bool
	Message string
	Sent    int
	Count   int
}

// Mailman handles send requests from validation until the quota is committed.
type Mailman struct {
	tracker       *quota.Tracker
	authenticator *Authenticator
	normalizer    *normalize.Normalizer
	courier       *Courier
	idGenerator   crypto.IDGenerator
}

// NewMailman creates a new mailman for delivery.
func NewMailman(
	tracker *quota.Tracker,
	authenticator *Authenticator,
	normalizer *normalize.Normalizer,
	courier *Courier,
	idGenerator crypto.IDGenerator,
) *Mailman {
	return &Mailman{
		tracker:       tracker,
		authenticator: authenticator,
		normalizer:    normalizer,
		courier:       courier,
		idGenerator:   idGenerator,
	}
}

// Deliver validates the request, reserves quota for all recipients, checks
// the credentials and sends one normalized message per recipient. The quota
// is committed with the number of mails actually sent.
//
// A request that got as far as sending is successful, even if no single mail
// was accepted by the relay.
func (m *Mailman) Deliver(ctx context.Context, req models.SendRequest) Result {
	account := models.AccountKey(req.Account)
	ctx = log.WithAccount(ctx, account)

	recipients, err := validateRequest(&req)
	if err != nil {
		return m.reject(ctx, account, err)
	}

	reservation := m.tracker.Reserve(account, len(recipients))
	if !reservation.Allowed {
		return m.rejectReservation(ctx, reservation)
	}

	creds := req.Credentials()

	if err := m.authenticator.Auth(ctx, creds); err != nil {
		m.tracker.Release(reservation)
		return m.reject(ctx, account, err)
	}

	messages := m.messages(ctx, creds, &req, recipients)
	outcome := models.Outcome{
		Attempted: len(messages),
		Sent:      m.courier.Send(ctx, creds, messages),
	}

	count := m.tracker.Commit(reservation, outcome.Sent)

	log.InfoContext(ctx).
		Int("attempted", outcome.Attempted).
		Int("sent", outcome.Sent).
		Int("failed", outcome.Failed()).
		Int("count", count).
		Msg("delivery finished")

	return Result{
		Success: true,
		Sent:    outcome.Sent,
		Count:   count,
	}
}

// messages creates one message per recipient. Subject and body are normalized
// once. All messages of a request share the delivery id as a prefix of their
// Message-ID.
func (m *Mailman) messages(
	ctx context.Context,
	creds models.Credentials,
	req *models.SendRequest,
	recipients []string,
) []models.Message {
	subject := m.normalizer.Subject(req.Subject)
	body := m.normalizer.Body(req.Message)

	deliveryID, err := m.idGenerator.GenerateID()
	if err != nil {
		log.WarnContext(ctx).Err(err).Msg("could not generate delivery id")
	}

	log.DebugContext(ctx).
		Str("delivery", deliveryID).
		Int("recipients", len(recipients)).
		Msg("dispatching")

	messages := make([]models.Message, len(recipients))

	for i, to := range recipients {
		messages[i] = models.Message{
			To:      to,
			ReplyTo: creds.Account,
			Subject: subject,
			Body:    body,
		}

		if deliveryID != "" {
			messages[i].ID = fmt.Sprintf("%s.%d", deliveryID, i)
		}
	}

	return messages
}

func (m *Mailman) reject(ctx context.Context, account string, err error) Result {
	reason, msg := describe(err, 0, m.tracker.Limit())
	return m.rejected(ctx, reason, msg, m.tracker.Count(account), err)
}

func (m *Mailman) rejectReservation(ctx context.Context, r quota.Reservation) Result {
	reason, msg := describe(r.Reason, r.Remaining, m.tracker.Limit())
	return m.rejected(ctx, reason, msg, r.Count, r.Reason)
}

func (m *Mailman) rejected(ctx context.Context, reason, msg string, count int, err error) Result {
	metrics.RequestsRejected.WithLabelValues(reason).Inc()

	log.InfoContext(ctx).
		Err(err).
		Str("reason", reason).
		Int("count", count).
		Msg("request rejected")

	return Result{
		Message: msg,
		Count:   count,
	}
}

// describe maps an error to a metric label and the message shown to the user.
func describe(err error, remaining, limit int) (reason, msg string) {
	switch {
	case errors.Is(err, ErrMissingFields):
		return "missing_fields", "Missing fields"
	case errors.Is(err, ErrNoRecipients):
		return "no_recipients", "No valid recipients"
	case errors.Is(err, quota.ErrLimitReached):
		return "limit_reached", "Hourly limit reached"
	case errors.Is(err, quota.ErrLimitExceeded):
		return "limit_exceeded",
			fmt.Sprintf("Limit full: only %d of %d mails left this hour", remaining, limit)
	case errors.Is(err, ErrWrongCredentials):
		return "wrong_credentials", "Wrong Gmail or App Password"
	default:
		return "internal", "Internal error"
	}
}
