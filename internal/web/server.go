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
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/afero"
	"github.com/spf13/viper"

	"github.com/lukasdietrich/bulkmail/internal/delivery"
	"github.com/lukasdietrich/bulkmail/internal/log"
	"github.com/lukasdietrich/bulkmail/internal/metrics"
	"github.com/lukasdietrich/bulkmail/internal/models"
	"github.com/lukasdietrich/bulkmail/internal/ratelimit"
)

func init() {
	viper.SetDefault("http.port", 3000)
	viper.SetDefault("http.publicDir", "public")
	viper.SetDefault("http.maxBodySize", "100kb")
	viper.SetDefault("http.shutdownTimeout", "10s")
	viper.SetDefault("http.trustProxy", false)
}

// Options configure the http server.
type Options struct {
	Port            int
	PublicDir       string
	MaxBodySize     int64
	ShutdownTimeout time.Duration
	TrustProxy      bool
}

// OptionsFromViper reads the options from `http.*`.
//
// `http.trustProxy` takes the client address from X-Forwarded-For and
// X-Real-IP. Enable it only behind a reverse proxy that sets those headers,
// otherwise clients choose their own rate limit key.
func OptionsFromViper() Options {
	return Options{
		Port:            viper.GetInt("http.port"),
		PublicDir:       viper.GetString("http.publicDir"),
		MaxBodySize:     int64(viper.GetSizeInBytes("http.maxBodySize")),
		ShutdownTimeout: viper.GetDuration("http.shutdownTimeout"),
		TrustProxy:      viper.GetBool("http.trustProxy"),
	}
}

// Deliverer handles a single send request.
type Deliverer interface {
	Deliver(ctx context.Context, req models.SendRequest) delivery.Result
}

// Server serves the compose page and the send endpoint.
type Server struct {
	opts      Options
	deliverer Deliverer
	limiter   *ratelimit.IPRateLimiter
	public    afero.Fs
	tlsConfig *tls.Config

	router chi.Router
	http   *http.Server
}

// NewServer creates a new Server. Static files are served from
// `http.publicDir` relative to fs. If tlsConfig is non-nil, the Server accepts
// only connections over tls.
func NewServer(
	opts Options,
	deliverer Deliverer,
	limiter *ratelimit.IPRateLimiter,
	fs afero.Fs,
	tlsConfig *tls.Config,
) *Server {
	s := &Server{
		opts:      opts,
		deliverer: deliverer,
		limiter:   limiter,
		public:    afero.NewBasePathFs(fs, opts.PublicDir),
		tlsConfig: tlsConfig,
		router:    chi.NewRouter(),
	}

	s.setupMiddleware()
	s.setupRoutes()

	s.http = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)

	if s.opts.TrustProxy {
		s.router.Use(middleware.RealIP)
	}

	s.router.Use(requestLogger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(requestMetrics)
}

func (s *Server) setupRoutes() {
	s.router.Handle("/metrics", metrics.Handler())
	s.router.Get("/healthz", s.handleHealthz)

	s.router.Get("/", s.handleIndex)
	s.router.Handle("/*", s.staticFiles())

	s.router.With(s.limiter.Middleware).Post("/send", s.handleSend)
}

// ServeHTTP makes the Server usable as an http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Listen opens a tcp listener on the configured port and serves until the
// Server is shut down. A graceful shutdown is not reported as an error.
func (s *Server) Listen() error {
	l, err := net.Listen("tcp", fmt.Sprintf(":%d", s.opts.Port))
	if err != nil {
		return err
	}

	return s.Serve(l)
}

// Serve accepts connections on l.
func (s *Server) Serve(l net.Listener) error {
	if s.tlsConfig != nil {
		l = tls.NewListener(l, s.tlsConfig)
	}

	log.Info().
		Str("addr", l.Addr().String()).
		Bool("tls", s.tlsConfig != nil).
		Msg("http server listening")

	if err := s.http.Serve(l); !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}

// Shutdown stops accepting connections and waits for active requests to
// finish for at most `http.shutdownTimeout`.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.opts.ShutdownTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.ShutdownTimeout)
		defer cancel()
	}

	log.Info().Msg("http server shutting down")
	return s.http.Shutdown(ctx)
}
