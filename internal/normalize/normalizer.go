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
	"regexp"
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var (
	whitespaceRun = regexp.MustCompile(`\s{2,}`)
	exclaimRun    = regexp.MustCompile(`!{2,}`)
	questionRun   = regexp.MustCompile(`\?{2,}`)
	lineEnding    = regexp.MustCompile(`\r\n?`)
	newlineRun    = regexp.MustCompile(`\n{3,}`)
	innerSpace    = regexp.MustCompile(`\s+`)

	lower = cases.Lower(language.Und)
)

type trigger struct {
	line     *regexp.Regexp
	sentence string
}

// Normalizer rewrites subjects and bodies of outgoing mails. It is safe for
// concurrent use.
type Normalizer struct {
	denylist *regexp.Regexp
	triggers []trigger
	footer   string
}

// New compiles rules into a Normalizer.
func New(rules Rules) (*Normalizer, error) {
	n := Normalizer{
		footer: strings.TrimSpace(rules.Footer),
	}

	if pattern := denylistPattern(rules.Denylist); pattern != "" {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, err
		}

		n.denylist = re
	}

	for _, t := range rules.Triggers {
		word := strings.TrimSpace(t.Word)
		if word == "" {
			continue
		}

		re, err := regexp.Compile(`(?im)^[ \t]*` + regexp.QuoteMeta(word) + `[ \t]*$`)
		if err != nil {
			return nil, err
		}

		n.triggers = append(n.triggers, trigger{line: re, sentence: t.Sentence})
	}

	return &n, nil
}

// NewFromViper creates a Normalizer using RulesFromViper.
func NewFromViper() (*Normalizer, error) {
	rules, err := RulesFromViper()
	if err != nil {
		return nil, err
	}

	return New(rules)
}

// denylistPattern builds one case-insensitive alternation of all phrases.
// Longer phrases come first and inner whitespace matches any run of
// whitespace. Word boundaries are only required where a phrase starts or ends
// with a word character.
func denylistPattern(denylist []string) string {
	phrases := make([]string, 0, len(denylist))

	for _, phrase := range denylist {
		if phrase = strings.TrimSpace(phrase); phrase != "" {
			phrases = append(phrases, phrase)
		}
	}

	if len(phrases) == 0 {
		return ""
	}

	sort.SliceStable(phrases, func(i, j int) bool {
		return len(phrases[i]) > len(phrases[j])
	})

	alternatives := make([]string, len(phrases))

	for i, phrase := range phrases {
		var b strings.Builder

		if isWordByte(phrase[0]) {
			b.WriteString(`\b`)
		}

		words := innerSpace.Split(phrase, -1)
		for j, word := range words {
			if j > 0 {
				b.WriteString(`\s+`)
			}

			b.WriteString(regexp.QuoteMeta(word))
		}

		if isWordByte(phrase[len(phrase)-1]) {
			b.WriteString(`\b`)
		}

		alternatives[i] = b.String()
	}

	return `(?i)(?:` + strings.Join(alternatives, "|") + `)`
}

func isWordByte(b byte) bool {
	return b == '_' ||
		('0' <= b && b <= '9') ||
		('a' <= b && b <= 'z') ||
		('A' <= b && b <= 'Z')
}

// Subject removes denylisted phrases, collapses whitespace and repeated "!" or
// "?", lower-cases subjects written in capitals only and trims the result.
// Subject(Subject(s)) == Subject(s) holds for any s.
func (n *Normalizer) Subject(subject string) string {
	if n.denylist != nil {
		for {
			stripped := n.denylist.ReplaceAllLiteralString(subject, "")
			if stripped == subject {
				break
			}

			subject = stripped
		}
	}

	subject = whitespaceRun.ReplaceAllLiteralString(subject, " ")
	subject = exclaimRun.ReplaceAllLiteralString(subject, "!")
	subject = questionRun.ReplaceAllLiteralString(subject, "?")

	if isShouting(subject) {
		subject = lower.String(subject)
	}

	return strings.TrimSpace(subject)
}

// isShouting reports whether s has letters and consists of upper-case letters
// and whitespace only.
func isShouting(s string) bool {
	var letters bool

	for _, r := range s {
		switch {
		case unicode.IsSpace(r):
		case unicode.IsUpper(r):
			letters = true
		default:
			return false
		}
	}

	return letters
}

// Body unifies line endings to "\n", limits blank lines to one, trims the body
// and replaces lines consisting of a trigger word only with the associated
// sentence. The footer is appended after a blank line.
func (n *Normalizer) Body(body string) string {
	body = lineEnding.ReplaceAllLiteralString(body, "\n")
	body = newlineRun.ReplaceAllLiteralString(body, "\n\n")
	body = strings.TrimSpace(body)

	for _, t := range n.triggers {
		body = t.line.ReplaceAllLiteralString(body, t.sentence)
	}

	switch {
	case n.footer == "":
		return body
	case body == "":
		return n.footer
	default:
		return body + "\n\n" + n.footer
	}
}
