package ioc

import (
	"time"

	"gitee.com/flycash/notification-tracker/internal/pkg/id"
	"github.com/gotomicro/ego/core/econf"
)

func InitIDGenerator() id.Generator {
	type Config struct {
		MachineID uint16 `yaml:"machineId"`
		// StartTime 形如 2024-01-01，为空时使用 sonyflake 的默认值
		StartTime string `yaml:"startTime"`
	}
	var cfg Config
	if err := econf.UnmarshalKey("id", &cfg); err != nil {
		panic(err)
	}
	var start time.Time
	if cfg.StartTime != "" {
		t, err := time.ParseInLocation(time.DateOnly, cfg.StartTime, time.UTC)
		if err != nil {
			panic(err)
		}
		start = t
	}
	sf, err := id.NewSonyflake(cfg.MachineID, start)
	if err != nil {
		panic(err)
	}
	return sf
}
