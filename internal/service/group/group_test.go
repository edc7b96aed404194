package group

import (
	"testing"

	"gitee.com/flycash/notification-tracker/internal/errs"
	"gitee.com/flycash/notification-tracker/internal/service/gate"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const groupsYAML = `
groups:
  - id: cn
    name: 国内用户
    rules:
      - {field: country, operator: eq, value: CN}
  - id: cn_vip
    parentId: cn
    name: 国内 VIP
    mode: any
    rules:
      - {field: level, operator: gte, value: 3}
      - {field: tags, operator: contains, value: vip}
  - id: cn_vip_sh
    parentId: cn_vip
    rules:
      - {field: city, operator: in, value: [上海, 苏州]}
  - id: everyone
`

func TestLoad(t *testing.T) {
	t.Parallel()
	r, err := Load([]byte(groupsYAML))
	require.NoError(t, err)

	g, err := r.Get("cn_vip")
	require.NoError(t, err)
	assert.Equal(t, "cn", g.ParentID)
	assert.Equal(t, gate.MatchAny, g.Mode)
	require.Len(t, g.Rules, 2)
	assert.Equal(t, gate.OpGreaterThanOrEqual, g.Rules[0].Operator)

	g, err = r.Get("cn")
	require.NoError(t, err)
	assert.Equal(t, gate.MatchAll, g.Mode)

	chain, err := r.Ancestors("cn_vip_sh")
	require.NoError(t, err)
	ids := make([]string, 0, len(chain))
	for _, c := range chain {
		ids = append(ids, c.ID)
	}
	assert.Equal(t, []string{"cn_vip_sh", "cn_vip", "cn"}, ids)

	_, err = r.Get("unknown")
	assert.ErrorIs(t, err, errs.ErrGroupNotFound)
}

func TestLoad_Malformed(t *testing.T) {
	t.Parallel()
	testCases := []struct {
		name    string
		yaml    string
		wantErr error
	}{
		{
			name:    "不是合法的 YAML",
			yaml:    "groups: [",
			wantErr: errs.ErrMalformedRule,
		},
		{
			name:    "父分组不存在",
			yaml:    "groups:\n  - {id: a, parentId: b}\n",
			wantErr: errs.ErrGroupNotFound,
		},
		{
			name:    "父分组成环",
			yaml:    "groups:\n  - {id: a, parentId: b}\n  - {id: b, parentId: c}\n  - {id: c, parentId: a}\n",
			wantErr: errs.ErrMalformedRule,
		},
		{
			name:    "自己是自己的父分组",
			yaml:    "groups:\n  - {id: a, parentId: a}\n",
			wantErr: errs.ErrMalformedRule,
		},
		{
			name:    "ID 重复",
			yaml:    "groups:\n  - {id: a}\n  - {id: a}\n",
			wantErr: errs.ErrMalformedRule,
		},
		{
			name:    "ID 为空",
			yaml:    "groups:\n  - {name: x}\n",
			wantErr: errs.ErrMalformedRule,
		},
		{
			name:    "未知的组合方式",
			yaml:    "groups:\n  - {id: a, mode: most}\n",
			wantErr: errs.ErrMalformedRule,
		},
		{
			name:    "未知的操作符",
			yaml:    "groups:\n  - id: a\n    rules:\n      - {field: x, operator: like, value: 1}\n",
			wantErr: errs.ErrMalformedRule,
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := Load([]byte(tc.yaml))
			assert.ErrorIs(t, err, tc.wantErr)
		})
	}
}

func TestRegistry_Contains(t *testing.T) {
	t.Parallel()
	r, err := Load([]byte(groupsYAML))
	require.NoError(t, err)

	testCases := []struct {
		name  string
		group string
		attrs gate.Attributes
		want  bool
	}{
		{name: "满足自身规则", group: "cn", attrs: gate.Attributes{"country": "CN"}, want: true},
		{name: "不满足自身规则", group: "cn", attrs: gate.Attributes{"country": "US"}},
		{name: "any 只需要满足一条", group: "cn_vip", attrs: gate.Attributes{"country": "CN", "level": 1, "tags": "vip,beta"}, want: true},
		{name: "不满足父分组", group: "cn_vip", attrs: gate.Attributes{"country": "US", "level": 5}},
		{name: "三层都满足", group: "cn_vip_sh", attrs: gate.Attributes{"country": "CN", "level": int64(4), "city": "苏州"}, want: true},
		{name: "祖父分组不满足", group: "cn_vip_sh", attrs: gate.Attributes{"country": "JP", "level": 4, "city": "上海"}},
		{name: "缺失字段", group: "cn_vip_sh", attrs: gate.Attributes{"country": "CN", "level": 4}},
		{name: "没有规则的分组包含所有人", group: "everyone", attrs: gate.Attributes{}, want: true},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, err := r.Contains(tc.group, tc.attrs)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}

	_, err = r.Contains("unknown", gate.Attributes{})
	assert.ErrorIs(t, err, errs.ErrGroupNotFound)
}

func TestRegistry_Resolve(t *testing.T) {
	t.Parallel()
	r, err := Load([]byte(groupsYAML))
	require.NoError(t, err)

	assert.Equal(t, []string{"cn", "cn_vip", "cn_vip_sh", "everyone"},
		r.Resolve(gate.Attributes{"country": "CN", "level": 3, "city": "上海"}))
	assert.Equal(t, []string{"cn", "everyone"},
		r.Resolve(gate.Attributes{"country": "CN", "level": 1}))
	assert.Equal(t, []string{"everyone"}, r.Resolve(gate.Attributes{}))
}
