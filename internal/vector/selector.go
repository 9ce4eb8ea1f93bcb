package vector

// Filter is a metadata predicate. Keys are metadata field names mapped either
// to a literal (shorthand for equality) or to an operator object, e.g.
// {"docType": "md", "tokens": {"$gte": 100}}. The special keys "$and" and
// "$or" take a list of sub-filters. Missing fields and unknown operators
// evaluate to non-match, never to an error.
type Filter map[string]any

// Operator names understood by Select.
const (
	opEq  = "$eq"
	opNe  = "$ne"
	opGt  = "$gt"
	opGte = "$gte"
	opLt  = "$lt"
	opLte = "$lte"
	opIn  = "$in"
	opNin = "$nin"
	opAnd = "$and"
	opOr  = "$or"
)

// Select reports whether metadata satisfies filter. An empty filter matches
// everything.
func Select(metadata map[string]any, filter Filter) bool {
	for key, cond := range filter {
		switch key {
		case opAnd:
			for _, sub := range subFilters(cond) {
				if !Select(metadata, sub) {
					return false
				}
			}
		case opOr:
			subs := subFilters(cond)
			if len(subs) == 0 {
				return false
			}
			matched := false
			for _, sub := range subs {
				if Select(metadata, sub) {
					matched = true
					break
				}
			}
			if !matched {
				return false
			}
		default:
			value, ok := metadata[key]
			if !ok {
				return false
			}
			if !matchValue(value, cond) {
				return false
			}
		}
	}
	return true
}

// subFilters normalizes the argument of $and/$or into a list of filters.
// Both []Filter and the []any produced by JSON decoding are accepted.
func subFilters(cond any) []Filter {
	switch v := cond.(type) {
	case []Filter:
		return v
	case []any:
		out := make([]Filter, 0, len(v))
		for _, e := range v {
			switch f := e.(type) {
			case Filter:
				out = append(out, f)
			case map[string]any:
				out = append(out, Filter(f))
			}
		}
		return out
	case Filter:
		return []Filter{v}
	case map[string]any:
		return []Filter{Filter(v)}
	default:
		return nil
	}
}

// matchValue evaluates a single field condition: either a literal equality or
// an operator object.
func matchValue(value, cond any) bool {
	ops, ok := asMap(cond)
	if !ok {
		return equal(value, cond)
	}
	for op, operand := range ops {
		switch op {
		case opEq:
			if !equal(value, operand) {
				return false
			}
		case opNe:
			if equal(value, operand) {
				return false
			}
		case opGt, opGte, opLt, opLte:
			if !compare(value, operand, op) {
				return false
			}
		case opIn:
			if !contains(operand, value) {
				return false
			}
		case opNin:
			if contains(operand, value) {
				return false
			}
		default:
			return false
		}
	}
	return true
}

func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case Filter:
		return m, true
	default:
		return nil, false
	}
}

// equal compares scalars, treating all numeric types as float64 so that
// values round-tripped through JSON still compare equal.
func equal(a, b any) bool {
	fa, aNum := toFloat(a)
	fb, bNum := toFloat(b)
	if aNum && bNum {
		return fa == fb
	}
	return a == b
}

// compare orders two values under the given operator. Numbers order
// numerically, strings lexically; mixed or non-orderable types never match.
func compare(a, b any, op string) bool {
	if fa, ok := toFloat(a); ok {
		fb, ok := toFloat(b)
		if !ok {
			return false
		}
		switch op {
		case opGt:
			return fa > fb
		case opGte:
			return fa >= fb
		case opLt:
			return fa < fb
		case opLte:
			return fa <= fb
		}
		return false
	}
	sa, okA := a.(string)
	sb, okB := b.(string)
	if !okA || !okB {
		return false
	}
	switch op {
	case opGt:
		return sa > sb
	case opGte:
		return sa >= sb
	case opLt:
		return sa < sb
	case opLte:
		return sa <= sb
	}
	return false
}

// contains reports whether list (a slice operand of $in/$nin) contains value.
func contains(list, value any) bool {
	items, ok := list.([]any)
	if !ok {
		return false
	}
	for _, e := range items {
		if equal(value, e) {
			return true
		}
	}
	return false
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	default:
		return 0, false
	}
}
