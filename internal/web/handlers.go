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

package web

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/lukasdietrich/bulkmail/internal/delivery"
	"github.com/lukasdietrich/bulkmail/internal/log"
	"github.com/lukasdietrich/bulkmail/internal/metrics"
	"github.com/lukasdietrich/bulkmail/internal/models"
)

// sendResponse is the body of every response to POST /send.
type sendResponse struct {
	Success bool   `json:"success"`
	Message string `json:"msg,omitempty"`
	Sent    *int   `json:"sent,omitempty"`
	Count   int    `json:"count"`
}

func newSendResponse(result delivery.Result) sendResponse {
	response := sendResponse{
		Success: result.Success,
		Count:   result.Count,
	}

	if result.Success {
		sent := result.Sent
		response.Sent = &sent
	} else {
		response.Message = result.Message
	}

	return response
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	json.NewEncoder(w).Encode(v) // nolint:errcheck
}

func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxBodySize)

	var req models.SendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.rejectBody(w, r, err)
		return
	}

	result := s.deliverer.Deliver(r.Context(), req)
	writeJSON(w, http.StatusOK, newSendResponse(result))
}

func (s *Server) rejectBody(w http.ResponseWriter, r *http.Request, err error) {
	var (
		tooLarge *http.MaxBytesError
		status   = http.StatusBadRequest
		reason   = "malformed_body"
		message  = "Invalid request body"
	)

	if errors.As(err, &tooLarge) {
		status = http.StatusRequestEntityTooLarge
		reason = "body_too_large"
		message = "Request body too large"
	}

	metrics.RequestsRejected.WithLabelValues(reason).Inc()
	log.InfoContext(r.Context()).Err(err).Str("reason", reason).Msg("could not decode send request")

	writeJSON(w, status, sendResponse{Message: message})
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
