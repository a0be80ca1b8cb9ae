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
	"io"
	"net/http"

	"github.com/spf13/afero"

	"github.com/lukasdietrich/bulkmail/internal/log"
)

const indexFilename = "index.html"

// handleIndex serves the compose page. A missing page is reported in plain
// text instead of a directory listing.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	file, err := s.public.Open(indexFilename)
	if err != nil {
		log.WarnContext(r.Context()).Err(err).Msg("could not open index")

		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusNotFound)
		io.WriteString(w, "index.html not found") // nolint:errcheck
		return
	}

	defer file.Close()

	info, err := file.Stat()
	if err != nil || info.IsDir() {
		http.Error(w, "index.html not found", http.StatusNotFound)
		return
	}

	http.ServeContent(w, r, indexFilename, info.ModTime(), file)
}

// staticFiles serves the remaining assets of the public directory.
func (s *Server) staticFiles() http.Handler {
	return http.FileServer(afero.NewHttpFs(s.public))
}
