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
	"errors"
	"strings"

	"github.com/abiosoft/ishell"

	"github.com/lukasdietrich/bulkmail/internal/delivery"
	"github.com/lukasdietrich/bulkmail/internal/models"
	"github.com/lukasdietrich/bulkmail/internal/normalize"
)

type shellCommand struct {
	Authenticator *delivery.Authenticator
	Normalizer    *normalize.Normalizer
}

func (s *shellCommand) run() error {
	shell := ishell.New()
	s.setupShell(shell)
	shell.Run()

	return nil
}

func (s *shellCommand) setupShell(shell *ishell.Shell) {
	shell.AddCmd(&ishell.Cmd{
		Name: "verify",
		Help: "check an account and app password against the relay",
		Func: wrapShellFunc(s.verify),
	})

	shell.AddCmd(composeShellCmd(
		ishell.Cmd{
			Name: "preview",
			Help: "preview how a request is processed",
		},
		[]*ishell.Cmd{
			{
				Name: "subject",
				Help: "normalize a subject",
				Func: wrapShellFunc(s.previewSubject),
			},
			{
				Name: "body",
				Help: "normalize a body (terminated by a line with a single \".\")",
				Func: wrapShellFunc(s.previewBody),
			},
			{
				Name: "recipients",
				Help: "parse a recipient list",
				Func: wrapShellFunc(s.previewRecipients),
			},
		},
	))
}

func (s *shellCommand) verify(ctx shellContext) error {
	if !ctx.checkArgs(1) {
		return errors.New("Usage: verify [ACCOUNT]")
	}

	pass, err := ctx.ask("App password", true)
	if err != nil {
		return err
	}

	creds := models.Credentials{
		Account:  ctx.arg(0),
		Password: pass,
	}

	if err := s.Authenticator.Auth(context.Background(), creds); err != nil {
		return err
	}

	ctx.printf("\n\tCredentials for %q accepted.\n\n", creds.Account)
	return nil
}

func (s *shellCommand) previewSubject(ctx shellContext) error {
	if len(ctx.shell.Args) == 0 {
		return errors.New("Usage: preview subject [TEXT...]")
	}

	subject := s.Normalizer.Subject(strings.Join(ctx.shell.Args, " "))
	ctx.printf("\n\t%q\n\n", subject)
	return nil
}

func (s *shellCommand) previewBody(ctx shellContext) error {
	if !ctx.checkArgs(0) {
		return errors.New("Usage: preview body")
	}

	ctx.printf("Body (end with a single \".\"):\n")
	body := ctx.shell.ReadMultiLines("\n.")
	body = strings.TrimSuffix(strings.TrimSpace(body), ".")

	ctx.printf("\n%s\n\n", s.Normalizer.Body(body))
	return nil
}

func (s *shellCommand) previewRecipients(ctx shellContext) error {
	if len(ctx.shell.Args) == 0 {
		return errors.New("Usage: preview recipients [LIST...]")
	}

	recipients := models.ParseRecipients(strings.Join(ctx.shell.Args, " "))

	ctx.printf("\n(%d) Recipients:\n", len(recipients))
	for _, recipient := range recipients {
		ctx.printf("\t%s\n", recipient)
	}
	ctx.printf("\n")

	return nil
}

type shellContext struct {
	shell *ishell.Context
}

func (c *shellContext) checkArgs(n int) bool {
	return len(c.shell.Args) == n
}

func (c *shellContext) arg(i int) string {
	return c.shell.Args[i]
}

func (c *shellContext) printf(format string, v ...interface{}) {
	c.shell.Printf(format, v...)
}

func (c *shellContext) ask(prompt string, hide bool) (string, error) {
	c.printf("%s: ", prompt)

	if hide {
		return c.shell.ReadPasswordErr()
	}

	return c.shell.ReadLineErr()
}

func composeShellCmd(cmd ishell.Cmd, children []*ishell.Cmd) *ishell.Cmd {
	for _, child := range children {
		cmd.AddCmd(child)
	}

	return &cmd
}

func wrapShellFunc(fn func(shellContext) error) func(*ishell.Context) {
	return func(shell *ishell.Context) {
		ctx := shellContext{
			shell: shell,
		}

		if err := fn(ctx); err != nil {
			shell.Err(err)
		}
	}
}
