package expr

import (
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/acksell/ddbq/dynamodb/table"
)

type stream int

const (
	keyStream stream = iota
	filterStream
)

// renderer accumulates one compilation. It is never shared between calls.
type renderer struct {
	table  *table.Table
	index  *table.Column
	key    []string
	filter []string
	names  map[string]string
	values map[string]types.AttributeValue
	owners map[string]*table.Column

	// forceFilter is non zero while rendering inside a parenthesized group,
	// whose leaves can't be split across the two streams.
	forceFilter int
}

func newRenderer(t *table.Table, index *table.Column) *renderer {
	return &renderer{
		table:  t,
		index:  index,
		names:  make(map[string]string),
		values: make(map[string]types.AttributeValue),
		owners: make(map[string]*table.Column),
	}
}

func (r *renderer) push(s stream, tok string) {
	if s == keyStream {
		r.key = append(r.key, tok)
		return
	}
	r.filter = append(r.filter, tok)
}

func (r *renderer) renderList(elems []Element) error {
	for i, el := range elems {
		negated := i > 0 && joinOp(elems[i-1].Op) == BoundaryNot
		s, err := r.render(el.Node, negated)
		if err != nil {
			return err
		}
		if i == len(elems)-1 {
			continue
		}
		op := joinOp(el.Op)
		if op == BoundaryNot {
			op = BoundaryAnd
		}
		r.push(s, op.String())
	}
	return nil
}

// render writes n into the stream selected for it and returns that stream.
func (r *renderer) render(n Node, negated bool) (stream, error) {
	if c, ok := n.(*Compound); ok {
		return r.renderCompound(c, negated)
	}
	col, err := column(n)
	if err != nil {
		return 0, err
	}
	if col.Table() != r.table {
		return 0, fmt.Errorf("%w: %s is not a column of %q", ErrForeignColumn, col, r.table.Name())
	}
	text, err := r.leafText(n, col)
	if err != nil {
		return 0, err
	}
	s := filterStream
	if !negated && r.forceFilter == 0 && col.IsKey(r.index) {
		s = keyStream
	}
	if negated {
		text = "(NOT " + text + ")"
	}
	r.push(s, text)
	return s, nil
}

func (r *renderer) renderCompound(c *Compound, negated bool) (stream, error) {
	if len(c.Elements) == 0 {
		return 0, ErrEmptyCompound
	}
	if !negated && r.forceFilter == 0 {
		keyOnly, err := r.keyOnly(c)
		if err != nil {
			return 0, err
		}
		if keyOnly {
			return keyStream, r.renderList(c.Elements)
		}
	}
	if negated {
		r.push(filterStream, "(")
		r.push(filterStream, "NOT (")
	} else {
		r.push(filterStream, "(")
	}
	r.forceFilter++
	err := r.renderList(c.Elements)
	r.forceFilter--
	if err != nil {
		return 0, err
	}
	r.push(filterStream, ")")
	if negated {
		r.push(filterStream, ")")
	}
	return filterStream, nil
}

// keyOnly reports whether every leaf of c is key bound and c is a plain
// conjunction. OR and NOT need parentheses, which only the filter allows.
func (r *renderer) keyOnly(c *Compound) (bool, error) {
	for _, b := range boundaries(c) {
		if b != BoundaryAnd {
			return false, nil
		}
	}
	for _, l := range leaves(c) {
		ok, err := KeyBound(l, r.index)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

func (r *renderer) leafText(n Node, col *table.Column) (string, error) {
	alias, err := r.bindName(col)
	if err != nil {
		return "", err
	}
	token := ValueToken(col.Name())

	switch n := n.(type) {
	case *Condition:
		tok, err := r.bindValue(token, col, n.Value, true)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%s %s %s", alias, n.Op, tok), nil
	case *BeginsWith:
		tok, err := r.bindValue(token, col, n.Prefix, true)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("begins_with(%s, %s)", alias, tok), nil
	case *Contains:
		tok, err := r.bindValue(token, col, n.Value, false)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("contains(%s, %s)", alias, tok), nil
	case *Between:
		lo, err := r.bindValue(token+"_lo", col, n.Low, true)
		if err != nil {
			return "", err
		}
		hi, err := r.bindValue(token+"_hi", col, n.High, true)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%s BETWEEN %s AND %s", alias, lo, hi), nil
	case *In:
		switch len(n.Values) {
		case 0:
			return "", fmt.Errorf("%w: %s", ErrEmptyIn, col)
		case 1:
			tok, err := r.bindValue(token, col, n.Values[0], true)
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("%s = %s", alias, tok), nil
		}
		tokens := make([]string, len(n.Values))
		for i, v := range n.Values {
			tok, err := r.bindValue(fmt.Sprintf("%s_%d", token, i), col, v, true)
			if err != nil {
				return "", err
			}
			tokens[i] = tok
		}
		return fmt.Sprintf("%s IN (%s)", alias, strings.Join(tokens, ", ")), nil
	case *AttributeExists:
		return fmt.Sprintf("attribute_exists(%s)", alias), nil
	case *AttributeNotExists:
		return fmt.Sprintf("attribute_not_exists(%s)", alias), nil
	case *TypeCheck:
		if !n.Type.Valid() {
			return "", fmt.Errorf("%w: unknown attribute type %q for %s", ErrValueType, n.Type, col)
		}
		tok, err := r.bindValue(token+"_type", col, &types.AttributeValueMemberS{Value: string(n.Type)}, false)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("attribute_type(%s, %s)", alias, tok), nil
	case *BooleanEquals:
		tok, err := r.bindValue(token, col, &types.AttributeValueMemberBOOL{Value: n.Value}, false)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%s = %s", alias, tok), nil
	}
	return "", fmt.Errorf("%w: %T", ErrUnknownNode, n)
}

func isOperator(tok string) bool {
	return tok == "AND" || tok == "OR" || tok == "NOT"
}

func isOpen(tok string) bool {
	return tok == "(" || tok == "NOT ("
}

// normalize drops operators that join nothing and empty groups, then joins
// the tokens. An empty stream yields nil.
func normalize(tokens []string) *string {
	out := make([]string, 0, len(tokens))
	last := func() string {
		if len(out) == 0 {
			return ""
		}
		return out[len(out)-1]
	}
	for _, tok := range tokens {
		switch {
		case isOperator(tok):
			if len(out) == 0 || isOperator(last()) || isOpen(last()) {
				continue
			}
			out = append(out, tok)
		case tok == ")":
			for isOperator(last()) {
				out = out[:len(out)-1]
			}
			if isOpen(last()) {
				out = out[:len(out)-1]
				continue
			}
			out = append(out, tok)
		default:
			out = append(out, tok)
		}
	}
	for isOperator(last()) {
		out = out[:len(out)-1]
	}
	if len(out) == 0 {
		return nil
	}
	s := strings.Join(out, " ")
	s = strings.ReplaceAll(s, "( ", "(")
	s = strings.ReplaceAll(s, " )", ")")
	return &s
}
