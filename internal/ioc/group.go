package ioc

import (
	"os"

	"gitee.com/flycash/notification-tracker/internal/service/group"
	"github.com/gotomicro/ego/core/econf"
	"github.com/pkg/errors"
)

// InitGroups 没有配置分组文件时返回空的分组集合
func InitGroups() *group.Registry {
	r, err := loadGroups(econf.GetString("groups.path"))
	if err != nil {
		panic(err)
	}
	return r
}

func loadGroups(path string) (*group.Registry, error) {
	if path == "" {
		return group.NewRegistry()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "读取分组文件 %s 失败", path)
	}
	r, err := group.Load(data)
	if err != nil {
		return nil, errors.WithMessagef(err, "分组文件 %s 不合法", path)
	}
	return r, nil
}
