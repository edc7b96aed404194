package gate

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type tier string

type labeled struct {
	Value any
}

func TestEvaluate(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	var nilPtr *int

	testCases := []struct {
		name     string
		actual   any
		op       Operator
		expected any
		want     bool
	}{
		{name: "字符串相等", actual: "vip", op: OpEquals, expected: "vip", want: true},
		{name: "字符串不等", actual: "vip", op: OpNotEquals, expected: "normal", want: true},
		{name: "不同整数类型相等", actual: int64(3), op: OpEquals, expected: 3, want: true},
		{name: "json 数字", actual: json.Number("18"), op: OpGreaterThanOrEqual, expected: 18, want: true},
		{name: "自定义字符串类型", actual: tier("gold"), op: OpEquals, expected: "gold", want: true},
		{name: "大于", actual: 10, op: OpGreaterThan, expected: 9.5, want: true},
		{name: "小于等于", actual: 10, op: OpLessThanOrEqual, expected: 10, want: true},
		{name: "小于", actual: 10, op: OpLessThan, expected: 10, want: false},
		{name: "时间比较", actual: now, op: OpGreaterThan, expected: now.Add(-time.Hour), want: true},
		{name: "字符串比较大小", actual: "b", op: OpGreaterThan, expected: "a", want: true},
		{name: "包含", actual: "hello world", op: OpContains, expected: "lo w", want: true},
		{name: "前缀", actual: "+8613800000000", op: OpStartsWith, expected: "+86", want: true},
		{name: "后缀", actual: "a@example.com", op: OpEndsWith, expected: "@example.com", want: true},
		{name: "属于集合", actual: "marketing", op: OpIn, expected: []string{"billing", "marketing"}, want: true},
		{name: "不属于集合", actual: "security", op: OpNotIn, expected: []string{"billing", "marketing"}, want: true},
		{name: "数字属于混合集合", actual: 2, op: OpIn, expected: []any{"x", 2.0}, want: true},
		{name: "nil", actual: nil, op: OpIsNull, want: true},
		{name: "nil 指针", actual: nilPtr, op: OpIsNull, want: true},
		{name: "非 nil", actual: 0, op: OpIsNotNull, want: true},
		{name: "nil 与 nil 相等", actual: nil, op: OpEquals, expected: nil, want: true},
		{name: "结构体里装着切片相等", actual: labeled{Value: []int{1}}, op: OpEquals, expected: labeled{Value: []int{1}}, want: true},
		{name: "结构体里装着切片不等", actual: labeled{Value: []int{1}}, op: OpNotEquals, expected: labeled{Value: []int{2}}, want: true},
		{name: "结构体里装着切片属于集合", actual: labeled{Value: []int{1}}, op: OpIn, expected: []any{labeled{Value: []int{1}}}, want: true},
		{name: "可比较的结构体", actual: labeled{Value: "a"}, op: OpEquals, expected: labeled{Value: "a"}, want: true},

		// 坏规则一律返回 false
		{name: "未知操作符", actual: 1, op: "between", expected: 1, want: false},
		{name: "字符串和数字比较", actual: "10", op: OpGreaterThan, expected: 9, want: false},
		{name: "字符串和数字相等", actual: "10", op: OpEquals, expected: 10, want: false},
		{name: "包含用在数字上", actual: 123, op: OpContains, expected: "2", want: false},
		{name: "in 的集合不是切片", actual: "a", op: OpIn, expected: "abc", want: false},
		{name: "not_in 的集合不是切片", actual: "a", op: OpNotIn, expected: 1, want: false},
		{name: "in 的集合为 nil", actual: "a", op: OpIn, expected: nil, want: false},
		{name: "时间和数字比较", actual: now, op: OpLessThan, expected: 1, want: false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, Evaluate(tc.actual, tc.op, tc.expected))
		})
	}
}

func TestMatch(t *testing.T) {
	t.Parallel()

	attrs := Attributes{
		"country": "CN",
		"age":     30,
		"plan":    "pro",
	}
	rules := []Rule{
		{Field: "country", Operator: OpEquals, Value: "CN"},
		{Field: "age", Operator: OpGreaterThanOrEqual, Value: 18},
		{Field: "plan", Operator: OpIn, Value: []string{"free"}},
	}

	assert.False(t, Match(attrs, MatchAll, rules...))
	assert.True(t, Match(attrs, MatchAny, rules...))
	assert.True(t, Match(attrs, MatchAll, rules[:2]...))
	assert.True(t, Match(attrs, MatchAll))

	// 缺失字段按 nil 处理
	assert.True(t, Rule{Field: "email", Operator: OpIsNull}.Evaluate(attrs))
	// 坏规则不会让整批判断 panic
	assert.False(t, Match(attrs, MatchAll, Rule{Field: "age", Operator: "??", Value: 1}))
}

func TestRule_Validate(t *testing.T) {
	t.Parallel()

	assert.NoError(t, Rule{Field: "a", Operator: OpEquals}.Validate())
	assert.Error(t, Rule{Operator: OpEquals}.Validate())
	assert.Error(t, Rule{Field: "a", Operator: "like"}.Validate())
}
