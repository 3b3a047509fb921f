package filter

import (
	"fmt"
	"strings"
)

// Operator enumerates the comparison operators a predicate can carry. Clause
// text is generated from this enum only; user input never reaches it.
type Operator string

const (
	OpEq      Operator = "eq"
	OpIn      Operator = "in"
	OpNotIn   Operator = "not_in"
	OpGte     Operator = "gte"
	OpGt      Operator = "gt"
	OpLte     Operator = "lte"
	OpLt      Operator = "lt"
	OpLike    Operator = "like"
	OpNot     Operator = "not"
	OpNull    Operator = "null"
	OpNotNull Operator = "not_null"
)

// Predicate is one compiled filter clause: an allow-listed column, an
// operator and the values to bind. Values are only ever emitted as bound
// parameters.
type Predicate struct {
	Column string
	Op     Operator
	Values []any
}

// SQL renders the predicate with positional placeholders starting at offset.
// It returns the clause text and the arguments to bind.
func (p Predicate) SQL(offset int) (string, []any) {
	switch p.Op {
	case OpEq:
		return fmt.Sprintf("%s = $%d", p.Column, offset), p.Values
	case OpNot:
		return fmt.Sprintf("%s <> $%d", p.Column, offset), p.Values
	case OpGte:
		return fmt.Sprintf("%s >= $%d", p.Column, offset), p.Values
	case OpGt:
		return fmt.Sprintf("%s > $%d", p.Column, offset), p.Values
	case OpLte:
		return fmt.Sprintf("%s <= $%d", p.Column, offset), p.Values
	case OpLt:
		return fmt.Sprintf("%s < $%d", p.Column, offset), p.Values
	case OpLike:
		// Wildcards in the bound value pass through on purpose; see DESIGN.md.
		return fmt.Sprintf("%s ILIKE '%%' || $%d || '%%'", p.Column, offset), p.Values
	case OpIn:
		return p.membership(offset, "IN")
	case OpNotIn:
		return p.membership(offset, "NOT IN")
	case OpNull:
		return fmt.Sprintf("%s IS NULL", p.Column), nil
	case OpNotNull:
		return fmt.Sprintf("%s IS NOT NULL", p.Column), nil
	}
	// Unreachable for predicates produced by Compile.
	return "1 = 0", nil
}

func (p Predicate) membership(offset int, keyword string) (string, []any) {
	placeholders := make([]string, len(p.Values))
	for i := range p.Values {
		placeholders[i] = fmt.Sprintf("$%d", offset+i)
	}
	return fmt.Sprintf("%s %s (%s)", p.Column, keyword, strings.Join(placeholders, ", ")), p.Values
}

// Join renders every predicate ANDed together, numbering placeholders from
// offset. An empty predicate list yields an empty clause.
func Join(preds []Predicate, offset int) (string, []any) {
	if len(preds) == 0 {
		return "", nil
	}
	clauses := make([]string, 0, len(preds))
	var args []any
	for _, p := range preds {
		clause, vals := p.SQL(offset)
		clauses = append(clauses, clause)
		args = append(args, vals...)
		offset += len(vals)
	}
	return strings.Join(clauses, " AND "), args
}
