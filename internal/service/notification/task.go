package notification

import (
	"context"
	"time"

	"gitee.com/flycash/notification-tracker/internal/pkg/loopjob"
	"github.com/gotomicro/ego/core/elog"
	"github.com/meoying/dlock-go"
)

const dispatchTaskKey = "notification_tracker:dispatch_due"

// DispatchTask 定时发出到期的排期通知
type DispatchTask struct {
	svc       Service
	dclient   dlock.Client
	batchSize int
	interval  time.Duration
	now       func() time.Time
	logger    *elog.Component
}

func NewDispatchTask(svc Service, dclient dlock.Client, batchSize int, interval time.Duration) *DispatchTask {
	return &DispatchTask{
		svc:       svc,
		dclient:   dclient,
		batchSize: batchSize,
		interval:  interval,
		now:       time.Now,
		logger:    elog.DefaultLogger,
	}
}

func (t *DispatchTask) Start(ctx context.Context) {
	go loopjob.NewInfiniteLoop(t.dclient, t.Loop, dispatchTaskKey, t.interval).Run(ctx)
}

// Loop 处理一批，不满一批说明暂时没有更多到期的通知，等一个周期
func (t *DispatchTask) Loop(ctx context.Context) error {
	n, err := t.RunOnce(ctx)
	if n >= t.batchSize {
		return err
	}
	timer := time.NewTimer(t.interval)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
	return err
}

func (t *DispatchTask) RunOnce(ctx context.Context) (int, error) {
	n, err := t.svc.DispatchDue(ctx, t.now(), t.batchSize)
	if n > 0 {
		t.logger.Info("发出到期的排期通知", elog.Int("count", n))
	}
	return n, err
}
