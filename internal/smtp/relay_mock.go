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

package smtp

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/lukasdietrich/bulkmail/internal/models"
)

// MockRelay is a testify mock of Relay.
type MockRelay struct {
	mock.Mock
}

func (m *MockRelay) Verify(ctx context.Context, creds models.Credentials) error {
	args := m.Called(ctx, creds)
	return args.Error(0)
}

func (m *MockRelay) Send(ctx context.Context, creds models.Credentials, msg models.Message) error {
	args := m.Called(ctx, creds, msg)
	return args.Error(0)
}
