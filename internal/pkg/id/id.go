package id

import (
	"fmt"
	"sync/atomic"
	"time"

	"gitee.com/flycash/notification-tracker/internal/errs"
	"github.com/sony/sonyflake"
)

// Generator 时间有序的唯一 ID。*sonyflake.Sonyflake 直接满足这个接口
type Generator interface {
	NextID() (uint64, error)
}

// NewSonyflake startTime 为零值时使用 sonyflake 的默认起始时间
func NewSonyflake(machineID uint16, startTime time.Time) (*sonyflake.Sonyflake, error) {
	sf := sonyflake.NewSonyflake(sonyflake.Settings{
		StartTime: startTime,
		MachineID: func() (uint16, error) {
			return machineID, nil
		},
	})
	if sf == nil {
		return nil, fmt.Errorf("%w: 初始化 sonyflake 失败", errs.ErrIDGenerateFailed)
	}
	return sf, nil
}

// Sequence 单调递增的 ID，用于测试或者单机场景
type Sequence struct {
	cur atomic.Uint64
}

func NewSequence(start uint64) *Sequence {
	s := &Sequence{}
	s.cur.Store(start)
	return s
}

func (s *Sequence) NextID() (uint64, error) {
	return s.cur.Add(1), nil
}
