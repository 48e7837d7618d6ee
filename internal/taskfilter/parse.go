package taskfilter

import (
	"fmt"
	"strconv"
	"time"
)

// Connector joins a term with whatever precedes it at the same nesting level.
type Connector int

const (
	And Connector = iota
	Or
)

// Kind identifies the attribute comparison a leaf performs.
type Kind int

const (
	Assign Kind = iota
	NotAssign
	StatusIs
	NotStatus
	StartBefore
	StartAfter
	EndBefore
	EndAfter
)

const dateLayout = "2006-01-02"

// Node is a term of a filter expression: either a Leaf or a Group.
type Node interface {
	connector() Connector
}

// Leaf is a single condition over one task attribute. ID carries the operand
// for the assignee/status kinds, Date for the date kinds.
type Leaf struct {
	Connector Connector
	Kind      Kind
	ID        uint
	Date      time.Time
}

// Group is a nested sub-expression. Its connector combines the whole
// sub-expression result with the preceding terms of the outer level.
type Group struct {
	Connector Connector
	Expr      Expr
}

// Expr is an ordered sequence of terms. Terms fold left to right, each using
// its own connector. An empty Expr matches everything.
type Expr []Node

func (l Leaf) connector() Connector  { return l.Connector }
func (g Group) connector() Connector { return g.Connector }

// Parse turns the ordered token stream into an expression tree. Group-open
// and group-close keys delimit sub-expressions; tokens between them are
// buffered verbatim, nested delimiters included, and parsed recursively once
// the matching close key arrives. Any malformed shape the original left
// undefined (short value triples, unknown connectors or kinds, unmatched
// delimiters, bad operands) is rejected with ErrMalformed.
func Parse(tokens []Token) (Expr, error) {
	var expr Expr
	var buffer []Token

	depth := 0
	groupConnector := And

	for _, token := range tokens {
		mark := markerOf(token.Key)

		if depth > 0 {
			switch mark {
			case markerOpenOr, markerOpenAnd:
				depth++
				buffer = append(buffer, token)
			case markerCloseOr, markerCloseAnd:
				depth--
				if depth > 0 {
					buffer = append(buffer, token)
					continue
				}
				if (mark == markerCloseOr) != (groupConnector == Or) {
					return nil, fmt.Errorf("%w: group close %q does not match its open marker", ErrMalformed, token.Key)
				}
				sub, err := Parse(buffer)
				if err != nil {
					return nil, err
				}
				expr = append(expr, Group{Connector: groupConnector, Expr: sub})
				buffer = nil
			default:
				buffer = append(buffer, token)
			}
			continue
		}

		switch mark {
		case markerOpenOr:
			depth = 1
			groupConnector = Or
		case markerOpenAnd:
			depth = 1
			groupConnector = And
		case markerCloseOr, markerCloseAnd:
			return nil, fmt.Errorf("%w: group close %q without a matching open", ErrMalformed, token.Key)
		default:
			leaf, err := parseLeaf(token)
			if err != nil {
				return nil, err
			}
			expr = append(expr, leaf)
		}
	}

	if depth != 0 {
		return nil, fmt.Errorf("%w: unterminated group", ErrMalformed)
	}

	return expr, nil
}

// parseLeaf reads the positional [connector, kind, operand] triple submitted
// under a single key.
func parseLeaf(token Token) (Leaf, error) {
	if len(token.Values) != 3 {
		return Leaf{}, fmt.Errorf("%w: condition %q carries %d values, want 3", ErrMalformed, token.Key, len(token.Values))
	}

	var leaf Leaf

	switch token.Values[0] {
	case "and":
		leaf.Connector = And
	case "or":
		leaf.Connector = Or
	default:
		return Leaf{}, fmt.Errorf("%w: unknown connector %q", ErrMalformed, token.Values[0])
	}

	kind, ok := leafKinds[token.Values[1]]

	if !ok {
		return Leaf{}, fmt.Errorf("%w: unknown condition kind %q", ErrMalformed, token.Values[1])
	}

	leaf.Kind = kind
	operand := token.Values[2]

	switch kind {
	case Assign, NotAssign, StatusIs, NotStatus:
		id, err := strconv.ParseUint(operand, 10, 32)
		if err != nil {
			return Leaf{}, fmt.Errorf("%w: operand %q is not an id", ErrMalformed, operand)
		}
		leaf.ID = uint(id)
	default:
		date, err := time.Parse(dateLayout, operand)
		if err != nil {
			return Leaf{}, fmt.Errorf("%w: operand %q is not a date", ErrMalformed, operand)
		}
		leaf.Date = date
	}

	return leaf, nil
}

var leafKinds = map[string]Kind{
	"assign":       Assign,
	"not_assign":   NotAssign,
	"status":       StatusIs,
	"not_status":   NotStatus,
	"start_before": StartBefore,
	"start_after":  StartAfter,
	"end_before":   EndBefore,
	"end_after":    EndAfter,
}
