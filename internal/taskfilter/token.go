package taskfilter

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// ErrMalformed is wrapped by every parse failure. Handlers treat it as a
// validation error, not an internal one.
var ErrMalformed = errors.New("malformed filter query")

// Token is one key of the query string together with every value submitted
// under that key, in arrival order. A leaf condition arrives as three values
// under one key: connector, predicate kind, operand.
type Token struct {
	Key    string
	Values []string
}

type marker int

const (
	markerNone marker = iota
	markerOpenOr
	markerOpenAnd
	markerCloseOr
	markerCloseAnd
)

// Tokens splits a raw query string into an ordered multimap of key to
// values. url.Values cannot be used here: the order in which keys arrive
// carries the structure of the filter expression, and url.Values drops it.
func Tokens(rawQuery string) ([]Token, error) {
	var tokens []Token
	index := make(map[string]int)

	for _, pair := range strings.Split(rawQuery, "&") {
		if pair == "" {
			continue
		}

		key, value, _ := strings.Cut(pair, "=")

		key, err := url.QueryUnescape(key)

		if err != nil {
			return nil, fmt.Errorf("%w: bad key escaping in %q", ErrMalformed, pair)
		}

		value, err = url.QueryUnescape(value)

		if err != nil {
			return nil, fmt.Errorf("%w: bad value escaping in %q", ErrMalformed, pair)
		}

		if at, seen := index[key]; seen {
			tokens[at].Values = append(tokens[at].Values, value)
			continue
		}

		index[key] = len(tokens)
		tokens = append(tokens, Token{Key: key, Values: []string{value}})
	}

	return tokens, nil
}

// markerOf classifies a key as a group delimiter. The close markers are
// checked first: "input_end_or-" would otherwise never match because every
// classification below it is a substring test.
func markerOf(key string) marker {
	switch {
	case strings.Contains(key, "input_end_or-"):
		return markerCloseOr
	case strings.Contains(key, "input_end_and-"):
		return markerCloseAnd
	case strings.Contains(key, "input_or-"):
		return markerOpenOr
	case strings.Contains(key, "input_and-"):
		return markerOpenAnd
	default:
		return markerNone
	}
}
