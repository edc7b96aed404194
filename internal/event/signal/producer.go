package signal

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ecodeclub/mq-api"
)

type SignalEventProducer interface {
	Produce(ctx context.Context, evt SignalEvent) error
}

type Producer struct {
	producer mq.Producer
}

func NewSignalEventProducer(q mq.MQ) (*Producer, error) {
	producer, err := q.Producer(SignalTopic)
	if err != nil {
		return nil, err
	}
	return &Producer{producer: producer}, nil
}

func (p *Producer) Produce(ctx context.Context, evt SignalEvent) error {
	val, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("序列化投递信号失败 %w", err)
	}
	_, err = p.producer.Produce(ctx, &mq.Message{
		Topic: SignalTopic,
		Value: val,
	})
	return err
}
