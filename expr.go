// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package cryptol

import (
	"fmt"
	"math/big"
	"strconv"
	"strings"
)

// ToExpr renders a local value as Cryptol source text, for splicing values
// into query expressions.
func ToExpr(v any) (string, error) {
	var b strings.Builder
	if err := writeExpr(&b, v); err != nil {
		return "", err
	}
	return b.String(), nil
}

func writeExpr(b *strings.Builder, v any) error {
	switch x := v.(type) {
	case bool:
		if x {
			b.WriteString("True")
		} else {
			b.WriteString("False")
		}
	case int:
		b.WriteString(strconv.FormatInt(int64(x), 10))
	case int8:
		b.WriteString(strconv.FormatInt(int64(x), 10))
	case int16:
		b.WriteString(strconv.FormatInt(int64(x), 10))
	case int32:
		b.WriteString(strconv.FormatInt(int64(x), 10))
	case int64:
		b.WriteString(strconv.FormatInt(x, 10))
	case uint:
		b.WriteString(strconv.FormatUint(uint64(x), 10))
	case uint8:
		b.WriteString(strconv.FormatUint(uint64(x), 10))
	case uint16:
		b.WriteString(strconv.FormatUint(uint64(x), 10))
	case uint32:
		b.WriteString(strconv.FormatUint(uint64(x), 10))
	case uint64:
		b.WriteString(strconv.FormatUint(x, 10))
	case *big.Int:
		if x == nil {
			return &UnsupportedValueError{Value: v}
		}
		b.WriteString(x.String())
	case BitVector:
		fmt.Fprintf(b, "%d : [%d]", x.Int(), x.Width())
	case *BitVector:
		if x == nil {
			return &UnsupportedValueError{Value: v}
		}
		return writeExpr(b, *x)
	case Record:
		return writeRecordExpr(b, x)
	case map[string]any:
		return writeRecordExpr(b, x)
	case Tuple:
		return writeListExpr(b, "(", ")", x)
	case Sequence:
		return writeListExpr(b, "[", "]", x)
	case []any:
		return writeListExpr(b, "[", "]", x)
	default:
		return &UnsupportedValueError{Value: v}
	}
	return nil
}

func writeRecordExpr(b *strings.Builder, record map[string]any) error {
	b.WriteString("{")
	for i, name := range sortedNames(record) {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(name)
		b.WriteString(" = ")
		if err := writeExpr(b, record[name]); err != nil {
			return err
		}
	}
	b.WriteString("}")
	return nil
}

func writeListExpr(b *strings.Builder, opening, closing string, values []any) error {
	b.WriteString(opening)
	for i, value := range values {
		if i > 0 {
			b.WriteString(", ")
		}
		if err := writeExpr(b, value); err != nil {
			return err
		}
	}
	b.WriteString(closing)
	return nil
}

// Template fills the %s placeholders of expr, in order, with the source
// rendering of args. %% stands for a literal percent sign; any other use of %
// is copied through unchanged.
func Template(expr string, args ...any) (string, error) {
	placeholders := countPlaceholders(expr)
	if placeholders != len(args) {
		return "", &TemplateArityError{Expr: expr, Placeholders: placeholders, Args: len(args)}
	}
	if placeholders == 0 && !strings.Contains(expr, "%%") {
		return expr, nil
	}

	var b strings.Builder
	next := 0
	for i := 0; i < len(expr); i++ {
		if expr[i] != '%' || i+1 == len(expr) {
			b.WriteByte(expr[i])
			continue
		}
		switch expr[i+1] {
		case '%':
			b.WriteByte('%')
			i++
		case 's':
			rendered, err := ToExpr(args[next])
			if err != nil {
				return "", err
			}
			b.WriteString(rendered)
			next++
			i++
		default:
			b.WriteByte('%')
		}
	}
	return b.String(), nil
}

func countPlaceholders(expr string) int {
	count := 0
	for i := 0; i+1 < len(expr); i++ {
		if expr[i] != '%' {
			continue
		}
		switch expr[i+1] {
		case '%':
			i++
		case 's':
			count++
			i++
		}
	}
	return count
}
