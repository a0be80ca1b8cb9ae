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

package log

import (
	"context"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"
)

func init() {
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.pretty", false)
}

// Logger is the global logger used by all event helpers.
var Logger = zerolog.New(os.Stderr).With().Timestamp().Caller().Logger()

// Setup configures the global logger using viper.
//
// `log.level` is the minimum level of events written.
// `log.pretty` switches to a human readable console format.
func Setup() error {
	level, err := zerolog.ParseLevel(viper.GetString("log.level"))
	if err != nil {
		return err
	}

	if viper.GetBool("log.pretty") {
		Logger = Logger.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	zerolog.SetGlobalLevel(level)
	Logger = Logger.Level(level)
	return nil
}

func Trace() *zerolog.Event {
	return Logger.Trace()
}

func TraceContext(ctx context.Context) *zerolog.Event {
	return appendContextFields(ctx, Trace())
}

func Debug() *zerolog.Event {
	return Logger.Debug()
}

func DebugContext(ctx context.Context) *zerolog.Event {
	return appendContextFields(ctx, Debug())
}

func Info() *zerolog.Event {
	return Logger.Info()
}

func InfoContext(ctx context.Context) *zerolog.Event {
	return appendContextFields(ctx, Info())
}

func Warn() *zerolog.Event {
	return Logger.Warn()
}

func WarnContext(ctx context.Context) *zerolog.Event {
	return appendContextFields(ctx, Warn())
}

func Error() *zerolog.Event {
	return Logger.Error()
}

func ErrorContext(ctx context.Context) *zerolog.Event {
	return appendContextFields(ctx, Error())
}

func Fatal() *zerolog.Event {
	return Logger.Fatal()
}

func FatalContext(ctx context.Context) *zerolog.Event {
	return appendContextFields(ctx, Fatal())
}
