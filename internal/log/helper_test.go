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
	"bytes"
	"context"
	"encoding/json"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/suite"
)

// baseLogTestSuite captures everything written to Logger in a buffer.
type baseLogTestSuite struct {
	suite.Suite

	buffer bytes.Buffer
}

func (s *baseLogTestSuite) SetupTest() {
	zerolog.SetGlobalLevel(zerolog.TraceLevel)
	Logger = zerolog.New(&s.buffer).Level(zerolog.TraceLevel)
	s.buffer.Reset()
}

// deliveryContext is the context a send request carries once the account is
// known.
func (s *baseLogTestSuite) deliveryContext(request, account string) context.Context {
	ctx := WithRequest(context.TODO(), request)
	return WithAccount(ctx, account)
}

func (s *baseLogTestSuite) assertMsg(expected string) {
	s.Assert().Equal(expected, s.buffer.String())
}

// assertFields decodes the single logged event and compares the given fields.
func (s *baseLogTestSuite) assertFields(expected map[string]interface{}) {
	var event map[string]interface{}
	s.Require().NoError(json.Unmarshal(s.buffer.Bytes(), &event))

	for key, value := range expected {
		s.Assert().Equal(value, event[key], key)
	}
}
