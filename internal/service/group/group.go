package group

import (
	"fmt"
	"slices"

	"gitee.com/flycash/notification-tracker/internal/errs"
	"gitee.com/flycash/notification-tracker/internal/service/gate"
	"gopkg.in/yaml.v2"
)

// Group 基于规则的联系人分组，通过 ParentID 引用父分组
type Group struct {
	ID       string         `yaml:"id"`
	ParentID string         `yaml:"parentId"`
	Name     string         `yaml:"name"`
	Mode     gate.MatchMode `yaml:"mode"`
	Rules    []gate.Rule    `yaml:"rules"`
}

type file struct {
	Groups []Group `yaml:"groups"`
}

// Registry 按 ID 存放所有分组，加载之后只读
type Registry struct {
	groups map[string]Group
	order  []string
}

// Load 从 YAML 加载分组定义
//
//	groups:
//	  - id: vip
//	    mode: all
//	    rules:
//	      - {field: level, operator: gte, value: 3}
func Load(data []byte) (*Registry, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: %w", errs.ErrMalformedRule, err)
	}
	return NewRegistry(f.Groups...)
}

// NewRegistry 拒绝重复 ID、悬空的父分组和环
func NewRegistry(groups ...Group) (*Registry, error) {
	r := &Registry{
		groups: make(map[string]Group, len(groups)),
		order:  make([]string, 0, len(groups)),
	}
	for _, g := range groups {
		if g.ID == "" {
			return nil, fmt.Errorf("%w: 分组 ID 为空", errs.ErrMalformedRule)
		}
		if _, ok := r.groups[g.ID]; ok {
			return nil, fmt.Errorf("%w: 分组 %q 重复", errs.ErrMalformedRule, g.ID)
		}
		switch g.Mode {
		case "":
			g.Mode = gate.MatchAll
		case gate.MatchAll, gate.MatchAny:
		default:
			return nil, fmt.Errorf("%w: 分组 %q 的 mode = %q", errs.ErrMalformedRule, g.ID, g.Mode)
		}
		for _, rule := range g.Rules {
			if err := rule.Validate(); err != nil {
				return nil, fmt.Errorf("分组 %q: %w", g.ID, err)
			}
		}
		r.groups[g.ID] = g
		r.order = append(r.order, g.ID)
	}
	for _, id := range r.order {
		if _, err := r.Ancestors(id); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *Registry) Get(id string) (Group, error) {
	g, ok := r.groups[id]
	if !ok {
		return Group{}, fmt.Errorf("%w: id = %q", errs.ErrGroupNotFound, id)
	}
	return g, nil
}

// Ancestors 返回从自身到根的分组链
func (r *Registry) Ancestors(id string) ([]Group, error) {
	var chain []Group
	seen := map[string]bool{}
	for cur := id; cur != ""; {
		if seen[cur] {
			return nil, fmt.Errorf("%w: 分组 %q 的父分组成环", errs.ErrMalformedRule, id)
		}
		seen[cur] = true
		g, ok := r.groups[cur]
		if !ok {
			if cur == id {
				return nil, fmt.Errorf("%w: id = %q", errs.ErrGroupNotFound, id)
			}
			return nil, fmt.Errorf("%w: 分组 %q 的父分组 %q 不存在", errs.ErrGroupNotFound, id, cur)
		}
		chain = append(chain, g)
		cur = g.ParentID
	}
	return chain, nil
}

// Contains 联系人需要同时满足分组自身和所有祖先的规则
func (r *Registry) Contains(id string, attrs gate.Attributes) (bool, error) {
	chain, err := r.Ancestors(id)
	if err != nil {
		return false, err
	}
	for _, g := range chain {
		if !gate.Match(attrs, g.Mode, g.Rules...) {
			return false, nil
		}
	}
	return true, nil
}

// Resolve 返回联系人所属的全部分组 ID，按 ID 排序
func (r *Registry) Resolve(attrs gate.Attributes) []string {
	var res []string
	for _, id := range r.order {
		// 加载时已经校验过，这里不会出错
		if ok, _ := r.Contains(id, attrs); ok {
			res = append(res, id)
		}
	}
	slices.Sort(res)
	return res
}
