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
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/lukasdietrich/bulkmail/internal/models"
	"github.com/lukasdietrich/bulkmail/internal/smtp"
)

var courierCreds = models.Credentials{
	Name:     "Someone",
	Account:  "someone@example.com",
	Password: "hunter2",
}

func fakeMessages(n int) []models.Message {
	messages := make([]models.Message, n)
	for i := range messages {
		messages[i] = models.Message{
			ID:      fmt.Sprintf("id.%d", i),
			To:      fmt.Sprintf("user-%d@example.org", i),
			Subject: "Hello",
			Body:    "Hello world",
		}
	}

	return messages
}

// delayRecorder records the number of finished sends at every pause.
type delayRecorder struct {
	mu       sync.Mutex
	finished *int64
	at       []int64
	delays   []time.Duration
}

func (r *delayRecorder) sleep(ctx context.Context, d time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.at = append(r.at, atomic.LoadInt64(r.finished))
	r.delays = append(r.delays, d)
	return ctx.Err()
}

func TestNewCourier(t *testing.T) {
	viper.Set("delivery.parallel", 0)
	defer viper.Set("delivery.parallel", 3)

	courier := NewCourier(new(smtp.MockRelay))
	assert.Equal(t, 1, courier.parallel)
	assert.Equal(t, 120*time.Millisecond, courier.batchDelay)
}

func TestCourierGroups(t *testing.T) {
	var finished, inflight, maxInflight int64

	relay := new(smtp.MockRelay)
	relay.On("Send", mock.Anything, courierCreds, mock.Anything).
		Run(func(mock.Arguments) {
			current := atomic.AddInt64(&inflight, 1)
			for {
				highest := atomic.LoadInt64(&maxInflight)
				if current <= highest || atomic.CompareAndSwapInt64(&maxInflight, highest, current) {
					break
				}
			}

			time.Sleep(5 * time.Millisecond)

			atomic.AddInt64(&inflight, -1)
			atomic.AddInt64(&finished, 1)
		}).
		Return(nil)

	recorder := delayRecorder{finished: &finished}
	courier := Courier{
		relay:      relay,
		parallel:   3,
		batchDelay: 120 * time.Millisecond,
		sleep:      recorder.sleep,
	}

	sent := courier.Send(context.TODO(), courierCreds, fakeMessages(7))

	assert.Equal(t, 7, sent)
	assert.Equal(t, []int64{3, 6, 7}, recorder.at)
	assert.Equal(t, []time.Duration{
		120 * time.Millisecond,
		120 * time.Millisecond,
		120 * time.Millisecond,
	}, recorder.delays)
	assert.LessOrEqual(t, atomic.LoadInt64(&maxInflight), int64(3))
	relay.AssertNumberOfCalls(t, "Send", 7)
}

func TestCourierEveryMessageOnce(t *testing.T) {
	var (
		mu   sync.Mutex
		seen = make(map[string]int)
	)

	relay := new(smtp.MockRelay)
	relay.On("Send", mock.Anything, courierCreds, mock.Anything).
		Run(func(args mock.Arguments) {
			mu.Lock()
			seen[args.Get(2).(models.Message).To]++
			mu.Unlock()
		}).
		Return(nil)

	var finished int64
	recorder := delayRecorder{finished: &finished}
	courier := Courier{relay: relay, parallel: 4, sleep: recorder.sleep}

	messages := fakeMessages(10)
	require.Equal(t, 10, courier.Send(context.TODO(), courierCreds, messages))

	for _, msg := range messages {
		assert.Equal(t, 1, seen[msg.To], msg.To)
	}

	assert.Len(t, recorder.at, 3)
}

func TestCourierPartialFailure(t *testing.T) {
	failing := func(msg models.Message) bool {
		return msg.To == "user-1@example.org" || msg.To == "user-3@example.org"
	}

	relay := new(smtp.MockRelay)
	relay.On("Send", mock.Anything, courierCreds, mock.MatchedBy(failing)).
		Return(errors.New("connection reset"))
	relay.On("Send", mock.Anything, courierCreds, mock.MatchedBy(func(msg models.Message) bool {
		return !failing(msg)
	})).
		Return(nil)

	var finished int64
	recorder := delayRecorder{finished: &finished}
	courier := Courier{relay: relay, parallel: 3, sleep: recorder.sleep}

	assert.Equal(t, 3, courier.Send(context.TODO(), courierCreds, fakeMessages(5)))
	relay.AssertNumberOfCalls(t, "Send", 5)
}

func TestCourierAllFailed(t *testing.T) {
	relay := new(smtp.MockRelay)
	relay.On("Send", mock.Anything, courierCreds, mock.Anything).
		Return(errors.New("connection reset"))

	var finished int64
	recorder := delayRecorder{finished: &finished}
	courier := Courier{relay: relay, parallel: 3, sleep: recorder.sleep}

	assert.Equal(t, 0, courier.Send(context.TODO(), courierCreds, fakeMessages(4)))
	relay.AssertNumberOfCalls(t, "Send", 4)
}

func TestCourierNoMessages(t *testing.T) {
	relay := new(smtp.MockRelay)

	var finished int64
	recorder := delayRecorder{finished: &finished}
	courier := Courier{relay: relay, parallel: 3, sleep: recorder.sleep}

	assert.Equal(t, 0, courier.Send(context.TODO(), courierCreds, nil))
	assert.Empty(t, recorder.at)
	relay.AssertNotCalled(t, "Send", mock.Anything, mock.Anything, mock.Anything)
}

func TestCourierIgnoresCanceledRequest(t *testing.T) {
	relay := new(smtp.MockRelay)
	relay.On("Send", mock.Anything, courierCreds, mock.Anything).
		Run(func(args mock.Arguments) {
			assert.NoError(t, args.Get(0).(context.Context).Err())
		}).
		Return(nil)

	ctx, cancel := context.WithCancel(context.TODO())
	cancel()

	var finished int64
	recorder := delayRecorder{finished: &finished}
	courier := Courier{relay: relay, parallel: 3, sleep: recorder.sleep}

	assert.Equal(t, 5, courier.Send(ctx, courierCreds, fakeMessages(5)))
	relay.AssertNumberOfCalls(t, "Send", 5)
}

func TestCourierCanceledBetweenGroups(t *testing.T) {
	relay := new(smtp.MockRelay)
	relay.On("Send", mock.Anything, courierCreds, mock.Anything).Return(nil)

	ctx, cancel := context.WithCancel(context.TODO())
	defer cancel()

	var pauses int
	courier := Courier{
		relay:    relay,
		parallel: 3,
		sleep: func(context.Context, time.Duration) error {
			pauses++
			cancel()
			return nil
		},
	}

	assert.Equal(t, 7, courier.Send(ctx, courierCreds, fakeMessages(7)))
	assert.Equal(t, 3, pauses)
	relay.AssertNumberOfCalls(t, "Send", 7)
}
