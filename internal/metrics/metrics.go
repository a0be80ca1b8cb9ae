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

// Package metrics holds the prometheus collectors of bulkmail.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// MailsSent counts mails the relay acknowledged.
	MailsSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bulkmail_mails_sent_total",
		Help: "Total number of mails accepted by the relay",
	})
	// MailsFailed is partitioned by the kind of smtp error: "permanent", "transient", "timeout" or "other".
	MailsFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bulkmail_mails_failed_total",
		Help: "Total number of mails the relay did not accept",
	}, []string{"class"})
	// BatchesDispatched counts groups after all of their sends settled.
	BatchesDispatched = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bulkmail_batches_dispatched_total",
		Help: "Total number of concurrently sent groups of mails",
	})
	// RequestsRejected is partitioned by the reason a request never reached dispatch.
	RequestsRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bulkmail_requests_rejected_total",
		Help: "Total number of send requests rejected before dispatch",
	}, []string{"reason"})
	// QuotaResets counts started quota windows.
	QuotaResets = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bulkmail_quota_resets_total",
		Help: "Total number of hourly quota windows started",
	})

	// HTTPRequests is partitioned by route pattern and status code.
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
	// HTTPRequestDuration observes the time spent in handlers.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})
)

// Handler exposes all registered collectors.
func Handler() http.Handler {
	return promhttp.Handler()
}
