package signal

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"gitee.com/flycash/notification-tracker/internal/domain"
	"gitee.com/flycash/notification-tracker/internal/service/tracker"
	"github.com/ecodeclub/mq-api"
	"github.com/gotomicro/ego/core/elog"
	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/errgroup"
)

const (
	defaultBatchSize   = 20
	defaultBatchWindow = 3 * time.Second
	// 一个批次内同时处理的信号数
	defaultConcurrency = 8
)

type Consumer struct {
	svc         tracker.Service
	consumer    mq.Consumer
	batchSize   int
	batchWindow time.Duration
	logger      *elog.Component
}

func NewSignalEventConsumer(svc tracker.Service, q mq.MQ, groupID string) (*Consumer, error) {
	consumer, err := q.Consumer(SignalTopic, groupID)
	if err != nil {
		return nil, err
	}
	return &Consumer{
		svc:         svc,
		consumer:    consumer,
		batchSize:   defaultBatchSize,
		batchWindow: defaultBatchWindow,
		logger:      elog.DefaultLogger,
	}, nil
}

func (c *Consumer) Start(ctx context.Context) {
	go func() {
		for ctx.Err() == nil {
			er := c.Consume(ctx)
			if er != nil {
				c.logger.Error("消费投递信号失败", elog.FieldErr(er))
			}
		}
	}()
}

// Consume 攒够一批或者等到时间窗口结束后并发处理。
// 同一个 stamp 的信号由 tracker 的锁串行化，乱序不影响结果
func (c *Consumer) Consume(ctx context.Context) error {
	msgCh, err := c.consumer.ConsumeChan(ctx)
	if err != nil {
		return fmt.Errorf("获取消息失败: %w", err)
	}

	timer := time.NewTimer(c.batchWindow)
	defer timer.Stop()

	signals := make([]domain.Signal, 0, c.batchSize)

CollectBatch:
	for {
		select {
		case msg, ok := <-msgCh:
			if !ok {
				break CollectBatch
			}
			var evt SignalEvent
			if er := json.Unmarshal(msg.Value, &evt); er != nil {
				c.logger.Warn("解析投递信号失败",
					elog.FieldErr(er),
					elog.Any("msg", string(msg.Value)))
				continue
			}
			signals = append(signals, evt.toDomain())
			if len(signals) == c.batchSize {
				break CollectBatch
			}
		case <-timer.C:
			break CollectBatch
		case <-ctx.Done():
			// 已经取出的信号仍然要处理完
			break CollectBatch
		}
	}

	if len(signals) == 0 {
		return nil
	}
	return c.handle(context.WithoutCancel(ctx), signals)
}

func (c *Consumer) handle(ctx context.Context, signals []domain.Signal) error {
	var (
		eg     errgroup.Group
		mu     sync.Mutex
		result error
	)
	eg.SetLimit(defaultConcurrency)
	for _, sig := range signals {
		eg.Go(func() error {
			res, er := c.svc.OnSignal(ctx, sig)
			if er != nil {
				mu.Lock()
				result = multierror.Append(result, fmt.Errorf("处理信号 %s/%s 失败: %w", sig.Kind, sig.StampID, er))
				mu.Unlock()
				return nil
			}
			if res.Conflict {
				c.logger.Warn("信号与消息当前状态冲突",
					elog.String("kind", sig.Kind.String()),
					elog.String("stampId", sig.StampID),
					elog.String("reason", res.Reason))
			}
			return nil
		})
	}
	_ = eg.Wait()
	return result
}
