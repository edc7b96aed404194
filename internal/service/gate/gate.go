package gate

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gitee.com/flycash/notification-tracker/internal/errs"
	"github.com/gotomicro/ego/core/elog"
)

// Operator 规则操作符
type Operator string

const (
	OpEquals             Operator = "eq"
	OpNotEquals          Operator = "neq"
	OpGreaterThan        Operator = "gt"
	OpGreaterThanOrEqual Operator = "gte"
	OpLessThan           Operator = "lt"
	OpLessThanOrEqual    Operator = "lte"
	OpContains           Operator = "contains"
	OpStartsWith         Operator = "starts_with"
	OpEndsWith           Operator = "ends_with"
	OpIn                 Operator = "in"
	OpNotIn              Operator = "not_in"
	OpIsNull             Operator = "is_null"
	OpIsNotNull          Operator = "is_not_null"
)

func (o Operator) IsValid() bool {
	switch o {
	case OpEquals, OpNotEquals,
		OpGreaterThan, OpGreaterThanOrEqual, OpLessThan, OpLessThanOrEqual,
		OpContains, OpStartsWith, OpEndsWith,
		OpIn, OpNotIn, OpIsNull, OpIsNotNull:
		return true
	default:
		return false
	}
}

// Evaluate 用 op 比较 actual 和 expected。
// 未知操作符或者类型不兼容都返回 false，不会 panic，
// 一条坏规则只会把对象排除在外，不会打断整批判断
func Evaluate(actual any, op Operator, expected any) bool {
	ok, err := evaluate(actual, op, expected)
	if err != nil {
		elog.DefaultLogger.Warn("规则无法求值，按不匹配处理",
			elog.FieldErr(err),
			elog.String("operator", string(op)),
			elog.Any("actual", actual),
			elog.Any("expected", expected))
		return false
	}
	return ok
}

func evaluate(actual any, op Operator, expected any) (bool, error) {
	switch op {
	case OpIsNull:
		return isNil(actual), nil
	case OpIsNotNull:
		return !isNil(actual), nil
	case OpEquals:
		return equal(actual, expected)
	case OpNotEquals:
		eq, err := equal(actual, expected)
		return !eq, err
	case OpGreaterThan, OpGreaterThanOrEqual, OpLessThan, OpLessThanOrEqual:
		cmp, err := compare(actual, expected)
		if err != nil {
			return false, err
		}
		switch op {
		case OpGreaterThan:
			return cmp > 0, nil
		case OpGreaterThanOrEqual:
			return cmp >= 0, nil
		case OpLessThan:
			return cmp < 0, nil
		default:
			return cmp <= 0, nil
		}
	case OpContains, OpStartsWith, OpEndsWith:
		a, ok1 := actual.(string)
		e, ok2 := expected.(string)
		if !ok1 || !ok2 {
			return false, fmt.Errorf("%w: %s 只支持字符串", errs.ErrMalformedRule, op)
		}
		switch op {
		case OpContains:
			return strings.Contains(a, e), nil
		case OpStartsWith:
			return strings.HasPrefix(a, e), nil
		default:
			return strings.HasSuffix(a, e), nil
		}
	case OpIn:
		return in(actual, expected)
	case OpNotIn:
		found, err := in(actual, expected)
		return !found, err
	default:
		return false, fmt.Errorf("%w: 未知操作符 %q", errs.ErrMalformedRule, op)
	}
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Interface, reflect.Func, reflect.Chan:
		return rv.IsNil()
	default:
		return false
	}
}

func equal(actual, expected any) (bool, error) {
	if isNil(actual) || isNil(expected) {
		return isNil(actual) && isNil(expected), nil
	}
	if a, ok := toFloat(actual); ok {
		e, ok := toFloat(expected)
		if !ok {
			return false, fmt.Errorf("%w: %T 与 %T 无法比较", errs.ErrMalformedRule, actual, expected)
		}
		return a == e, nil
	}
	if a, ok := actual.(time.Time); ok {
		e, ok := expected.(time.Time)
		if !ok {
			return false, fmt.Errorf("%w: %T 与 %T 无法比较", errs.ErrMalformedRule, actual, expected)
		}
		return a.Equal(e), nil
	}
	if reflect.TypeOf(actual) != reflect.TypeOf(expected) {
		// 自定义字符串类型和 string 之间允许比较
		a, ok1 := asString(actual)
		e, ok2 := asString(expected)
		if ok1 && ok2 {
			return a == e, nil
		}
		return false, fmt.Errorf("%w: %T 与 %T 无法比较", errs.ErrMalformedRule, actual, expected)
	}
	// 类型可比较不代表值可比较，接口字段里装着切片时 == 会 panic
	if !reflect.ValueOf(actual).Comparable() || !reflect.ValueOf(expected).Comparable() {
		return reflect.DeepEqual(actual, expected), nil
	}
	return actual == expected, nil
}

// compare 返回 -1/0/1，支持数字、时间和字符串
func compare(actual, expected any) (int, error) {
	if a, ok := toFloat(actual); ok {
		if e, ok := toFloat(expected); ok {
			return cmpOrdered(a, e), nil
		}
	}
	if a, ok := actual.(time.Time); ok {
		if e, ok := expected.(time.Time); ok {
			return a.Compare(e), nil
		}
	}
	a, ok1 := asString(actual)
	e, ok2 := asString(expected)
	if ok1 && ok2 {
		return strings.Compare(a, e), nil
	}
	return 0, fmt.Errorf("%w: %T 与 %T 无法比较大小", errs.ErrMalformedRule, actual, expected)
}

func cmpOrdered(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// in expected 必须是切片或者数组
func in(actual, expected any) (bool, error) {
	if isNil(expected) {
		return false, fmt.Errorf("%w: in 的候选集合为空", errs.ErrMalformedRule)
	}
	rv := reflect.ValueOf(expected)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return false, fmt.Errorf("%w: in 的候选集合必须是切片，实际是 %T", errs.ErrMalformedRule, expected)
	}
	for i := 0; i < rv.Len(); i++ {
		eq, err := equal(actual, rv.Index(i).Interface())
		if err != nil {
			// 集合里类型不一致的元素直接跳过
			continue
		}
		if eq {
			return true, nil
		}
	}
	return false, nil
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case interface{ Int64() (int64, error) }:
		// json.Number
		if s, ok := v.(fmt.Stringer); ok {
			f, err := strconv.ParseFloat(s.String(), 64)
			return f, err == nil
		}
		return 0, false
	default:
		return 0, false
	}
}

func asString(v any) (string, bool) {
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.String {
		return rv.String(), true
	}
	return "", false
}
