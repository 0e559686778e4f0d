package rules

import (
	"strings"

	"github.com/solatis/qengine/internal/datatype"
	"github.com/solatis/qengine/internal/types"
)

// Operand keywords of the printed form `keyword:body`.
const (
	kwField = "field"
	kwParam = "param"
	kwRef   = "ref"
	kwQuery = "query"
	kwConst = "const"
	kwList  = "list"
)

func printOperand(keyword, body string) string {
	return "`" + keyword + ":" + body + "`"
}

// ParseValue reads the printed form of an operand. The surrounding backticks
// are optional. dt is the element type the operand is compared under; field
// and parameter operands declare it directly, list, reference and query
// operands are collections of it.
//
//	`field:address/city`   `param:minAge`   `ref:blocked`
//	`query:main:SELECT id FROM t`   `const:30`   `list:a,b,c`
//
// Field paths are parsed against q's schema.
func ParseValue(q *Query, text string, dt datatype.Basic) (Value, error) {
	raw := strings.TrimSpace(text)
	raw = strings.TrimSuffix(strings.TrimPrefix(raw, "`"), "`")

	keyword, body, ok := strings.Cut(raw, ":")
	if !ok {
		return nil, types.NewValidationError(text, types.ErrUnknownOperand, "expected keyword:value")
	}

	switch strings.ToLower(strings.TrimSpace(keyword)) {
	case kwField:
		f, err := q.Field(basicType(dt), strings.TrimSpace(body))
		if err != nil {
			return nil, err
		}
		return f, nil
	case kwParam:
		return Parameter(basicType(dt), strings.TrimSpace(body)), nil
	case kwRef:
		return Reference(dt, strings.TrimSpace(body)), nil
	case kwConst:
		return Constant(dt, body), nil
	case kwList:
		if body == "" {
			return Constants(dt), nil
		}
		return Constants(dt, strings.Split(body, ",")...), nil
	case kwQuery:
		conn, queryText, ok := strings.Cut(body, ":")
		if !ok {
			return nil, types.NewValidationError(text, types.ErrMissingOperand, "expected query:connection:text")
		}
		return QueryOutput(dt, strings.TrimSpace(conn), strings.TrimSpace(queryText)), nil
	}
	return nil, types.NewValidationError(text, types.ErrUnknownOperand, "keyword %q", keyword)
}
