package gate

import (
	"fmt"

	"gitee.com/flycash/notification-tracker/internal/errs"
)

// Attributes 被判断对象的属性集合
type Attributes map[string]any

// Rule 对某个字段的一条判断
type Rule struct {
	Field    string   `json:"field" yaml:"field"`
	Operator Operator `json:"operator" yaml:"operator"`
	Value    any      `json:"value,omitempty" yaml:"value,omitempty"`
}

func (r Rule) Validate() error {
	if r.Field == "" {
		return fmt.Errorf("%w: Field 为空", errs.ErrMalformedRule)
	}
	if !r.Operator.IsValid() {
		return fmt.Errorf("%w: Operator = %q", errs.ErrMalformedRule, r.Operator)
	}
	return nil
}

// Evaluate 字段不存在时按 nil 处理，所以 is_null 可以判断缺失字段
func (r Rule) Evaluate(attrs Attributes) bool {
	return Evaluate(attrs[r.Field], r.Operator, r.Value)
}

// MatchMode 多条规则的组合方式
type MatchMode string

const (
	MatchAll MatchMode = "all"
	MatchAny MatchMode = "any"
)

// Match 没有规则时视为匹配
func Match(attrs Attributes, mode MatchMode, rules ...Rule) bool {
	if len(rules) == 0 {
		return true
	}
	if mode == MatchAny {
		for _, r := range rules {
			if r.Evaluate(attrs) {
				return true
			}
		}
		return false
	}
	for _, r := range rules {
		if !r.Evaluate(attrs) {
			return false
		}
	}
	return true
}
