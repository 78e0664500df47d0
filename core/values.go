package core

import (
	"fmt"
	"time"
)

// Field types a spec can declare.  This is a closed set; there is no
// user-defined type loading.
const (
	TypeInteger = "integer"
	TypeNumber  = "number"
	TypeBoolean = "boolean"
	TypeString  = "string"
	TypeSet     = "set"
	TypeMap     = "map"
	TypeList    = "list"
	TypeTime    = "time"
)

func knownFieldType(t string) bool {
	switch t {
	case TypeInteger, TypeNumber, TypeBoolean, TypeString, TypeSet, TypeMap, TypeList, TypeTime:
		return true
	}
	return false
}

// zeroValue is the value a field starts with when its spec declares
// no default.
func zeroValue(fieldType string) interface{} {
	switch fieldType {
	case TypeInteger:
		return int64(0)
	case TypeNumber:
		return float64(0)
	case TypeBoolean:
		return false
	case TypeString:
		return ""
	case TypeSet, TypeList:
		return []interface{}{}
	case TypeMap:
		return map[string]interface{}{}
	case TypeTime:
		return time.Time{}
	}
	return nil
}

// castValue coerces an evaluation result (or a restored snapshot
// value) to the field's declared type.
//
// A set is represented as an ordered sequence with duplicates
// removed, first occurrence winning.  That keeps sets both
// expression-friendly and serializable.
func castValue(fieldType string, x interface{}) (interface{}, error) {
	switch fieldType {
	case TypeInteger:
		switch v := x.(type) {
		case int64:
			return v, nil
		case int:
			return int64(v), nil
		case float64:
			return int64(v), nil
		}
	case TypeNumber:
		switch v := x.(type) {
		case float64:
			return v, nil
		case int64:
			return float64(v), nil
		case int:
			return float64(v), nil
		}
	case TypeBoolean:
		if v, is := x.(bool); is {
			return v, nil
		}
	case TypeString:
		if v, is := x.(string); is {
			return v, nil
		}
	case TypeList:
		if v, is := x.([]interface{}); is {
			return v, nil
		}
	case TypeSet:
		if v, is := x.([]interface{}); is {
			seen := make(map[string]bool, len(v))
			acc := make([]interface{}, 0, len(v))
			for _, e := range v {
				k := fmt.Sprintf("%v", e)
				if seen[k] {
					continue
				}
				seen[k] = true
				acc = append(acc, e)
			}
			return acc, nil
		}
	case TypeMap:
		if v, is := x.(map[string]interface{}); is {
			return v, nil
		}
	case TypeTime:
		switch v := x.(type) {
		case time.Time:
			return v, nil
		case string:
			t, err := time.Parse(time.RFC3339, v)
			if err != nil {
				return nil, err
			}
			return t, nil
		case int64:
			return time.UnixMilli(v).UTC(), nil
		case float64:
			return time.UnixMilli(int64(v)).UTC(), nil
		}
	default:
		return nil, &UnknownTypeError{Type: fieldType}
	}
	return nil, fmt.Errorf("%#v (%T) is not a %s", x, x, fieldType)
}

// copyValue deep-copies maps and sequences so defaults and persisted
// snapshots never share storage with live field values.
func copyValue(x interface{}) interface{} {
	switch v := x.(type) {
	case map[string]interface{}:
		m := make(map[string]interface{}, len(v))
		for k, e := range v {
			m[k] = copyValue(e)
		}
		return m
	case []interface{}:
		s := make([]interface{}, len(v))
		for i, e := range v {
			s[i] = copyValue(e)
		}
		return s
	}
	return x
}
