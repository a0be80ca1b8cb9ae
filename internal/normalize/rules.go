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

package normalize

import (
	"github.com/spf13/viper"
)

func init() {
	viper.SetDefault("normalize.denylist", []string{
		"free",
		"100% free",
		"risk-free",
		"urgent",
		"act now",
		"buy now",
		"click here",
		"limited time",
		"guaranteed",
		"winner",
		"cash bonus",
		"no cost",
	})

	viper.SetDefault("normalize.triggers", []map[string]string{
		{
			"word":     "price",
			"sentence": "I would be happy to share our current pricing with you, just reply to this mail.",
		},
		{
			"word":     "offer",
			"sentence": "I have put together an offer that I think fits your needs well.",
		},
		{
			"word":     "discount",
			"sentence": "There is a special discount available for you at the moment.",
		},
		{
			"word":     "demo",
			"sentence": "Would you be open to a short demo at a time that suits you?",
		},
		{
			"word":     "meeting",
			"sentence": "Let me know if a quick call this week would work for you.",
		},
	})

	viper.SetDefault("normalize.footer",
		"If you would rather not hear from me again, simply reply and let me know.")
}

// Trigger is a word, that is replaced by a sentence when it stands alone on a
// line of the body.
type Trigger struct {
	Word     string `mapstructure:"word"`
	Sentence string `mapstructure:"sentence"`
}

// Rules is the data driving a Normalizer.
type Rules struct {
	// Denylist contains words and phrases removed from subjects.
	Denylist []string
	// Triggers are applied to the body in order.
	Triggers []Trigger
	// Footer is appended to every body, separated by a blank line.
	Footer string
}

// RulesFromViper reads Rules from viper.
//
// `normalize.denylist` is a list of words and phrases.
// `normalize.triggers` is a list of objects with a `word` and a `sentence`.
// `normalize.footer` is the trailing line of every body.
func RulesFromViper() (Rules, error) {
	rules := Rules{
		Denylist: viper.GetStringSlice("normalize.denylist"),
		Footer:   viper.GetString("normalize.footer"),
	}

	if err := viper.UnmarshalKey("normalize.triggers", &rules.Triggers); err != nil {
		return rules, err
	}

	return rules, nil
}
