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

package delivery

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/lukasdietrich/bulkmail/internal/models"
)

var (
	// ErrMissingFields is returned when a required field of a request is empty.
	ErrMissingFields = errors.New("missing fields")
	// ErrNoRecipients is returned when the recipient list contains no address.
	ErrNoRecipients = errors.New("no valid recipients")
)

var validate = validator.New()

func init() {
	validate.RegisterValidation("recipients", func(fl validator.FieldLevel) bool {
		return len(models.ParseRecipients(fl.Field().String())) > 0
	})
}

// validateRequest checks the request and returns the parsed recipients.
func validateRequest(req *models.SendRequest) ([]string, error) {
	if err := validate.Struct(req); err != nil {
		var fieldErrors validator.ValidationErrors
		if !errors.As(err, &fieldErrors) {
			return nil, err
		}

		for _, fieldError := range fieldErrors {
			if fieldError.Tag() != "recipients" {
				return nil, fmt.Errorf("%w: %s", ErrMissingFields, fieldError.Field())
			}
		}

		return nil, ErrNoRecipients
	}

	return models.ParseRecipients(req.To), nil
}
