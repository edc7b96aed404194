package tracker

import (
	"context"
	"strconv"

	"gitee.com/flycash/notification-tracker/internal/domain"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TracingService 为 Service 添加链路追踪的装饰器
type TracingService struct {
	Service
	tracer trace.Tracer
}

func NewTracingService(svc Service) *TracingService {
	return &TracingService{
		Service: svc,
		tracer:  otel.Tracer("notification-tracker/tracker"),
	}
}

func (t *TracingService) OnSignal(ctx context.Context, sig domain.Signal) (domain.TrackResult, error) {
	ctx, span := t.tracer.Start(ctx, "Tracker.OnSignal",
		trace.WithAttributes(
			attribute.String("signal.kind", sig.Kind.String()),
			attribute.String("signal.stampId", sig.StampID),
			attribute.String("signal.channel", sig.Channel.String()),
		))
	defer span.End()

	res, err := t.Service.OnSignal(ctx, sig)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return res, err
	}
	span.SetAttributes(
		attribute.String("message.id", strconv.FormatUint(res.Message.ID, 10)),
		attribute.String("message.status", res.Message.Status.String()),
		attribute.Bool("result.created", res.Created),
		attribute.Bool("result.conflict", res.Conflict),
		attribute.Bool("result.blocked", res.Blocked),
	)
	return res, nil
}
