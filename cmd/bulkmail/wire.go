//go:build wireinject
// +build wireinject

package main

import (
	"github.com/google/wire"

	"github.com/lukasdietrich/bulkmail/internal/certs"
	"github.com/lukasdietrich/bulkmail/internal/crypto"
	"github.com/lukasdietrich/bulkmail/internal/delivery"
	"github.com/lukasdietrich/bulkmail/internal/normalize"
	"github.com/lukasdietrich/bulkmail/internal/quota"
	"github.com/lukasdietrich/bulkmail/internal/ratelimit"
	"github.com/lukasdietrich/bulkmail/internal/smtp"
	"github.com/lukasdietrich/bulkmail/internal/web"
)

var wireSet = wire.NewSet(
	wire.Struct(new(startCommand), "*"),
	wire.Struct(new(shellCommand), "*"),

	provideFs,

	certs.WireSet,
	crypto.WireSet,
	delivery.WireSet,
	normalize.WireSet,
	quota.WireSet,
	ratelimit.WireSet,
	smtp.WireSet,
	web.WireSet,
)

func newStartCommand() (*startCommand, error) {
	panic(wire.Build(wireSet))
}

func newShellCommand() (*shellCommand, error) {
	panic(wire.Build(wireSet))
}
