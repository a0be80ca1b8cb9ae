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

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/lukasdietrich/bulkmail/internal/log"
	"github.com/lukasdietrich/bulkmail/internal/quota"
	"github.com/lukasdietrich/bulkmail/internal/ratelimit"
	"github.com/lukasdietrich/bulkmail/internal/web"
)

type startCommand struct {
	Server   *web.Server
	Resetter *quota.Resetter
	Limiter  *ratelimit.IPRateLimiter
}

// run serves http until SIGINT or SIGTERM is received. The background tasks
// are stopped together with the server.
func (s *startCommand) run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.Resetter.Run(ctx)
		return nil
	})

	g.Go(func() error {
		s.Limiter.Run(ctx)
		return nil
	})

	g.Go(func() error {
		return s.Server.Listen()
	})

	g.Go(func() error {
		<-ctx.Done()
		return s.Server.Shutdown(context.Background())
	})

	if err := g.Wait(); err != nil {
		return err
	}

	log.Info().Msg("stopped")
	return nil
}
