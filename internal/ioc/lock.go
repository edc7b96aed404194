package ioc

import (
	"time"

	"gitee.com/flycash/notification-tracker/internal/pkg/lock"
	"github.com/gotomicro/ego/core/econf"
	"github.com/meoying/dlock-go"
)

// InitKeyedLocker 单实例部署用进程内的按 key 锁，多实例部署用 redis 分布式锁
func InitKeyedLocker(dclient dlock.Client) lock.KeyedLocker {
	type Config struct {
		Distributed bool          `yaml:"distributed"`
		Prefix      string        `yaml:"prefix"`
		Expiration  time.Duration `yaml:"expiration"`
		Timeout     time.Duration `yaml:"timeout"`
	}
	cfg := Config{
		Prefix:     "notification_tracker:send",
		Expiration: 10 * time.Second,
		Timeout:    3 * time.Second,
	}
	if err := econf.UnmarshalKey("lock", &cfg); err != nil {
		panic(err)
	}
	if cfg.Distributed {
		return lock.NewDistributedLocker(dclient, cfg.Prefix, cfg.Expiration, cfg.Timeout)
	}
	return lock.NewLocalLocker()
}
