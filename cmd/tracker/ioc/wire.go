//go:build wireinject

package ioc

import (
	"gitee.com/flycash/notification-tracker/internal/ioc"
	"gitee.com/flycash/notification-tracker/internal/repository"
	"gitee.com/flycash/notification-tracker/internal/repository/dao"
	notificationsvc "gitee.com/flycash/notification-tracker/internal/service/notification"
	"github.com/google/wire"
)

var (
	BaseSet = wire.NewSet(
		ioc.InitDB,
		ioc.InitRedisClient,
		ioc.InitRedisCmd,
		ioc.InitDistributedLock,
		ioc.InitKeyedLocker,
		ioc.InitIDGenerator,
		ioc.InitGoCache,
		ioc.InitMQ,
	)
	messageSet = wire.NewSet(
		repository.NewMessageRepository,
		dao.NewMessageDAO,
	)
	preferenceSvcSet = wire.NewSet(
		ioc.InitPreferenceService,
		repository.NewPreferenceRepository,
		dao.NewPreferenceDAO,
	)
	trackerSvcSet = wire.NewSet(
		ioc.InitTrackerConfig,
		ioc.InitDedupIndex,
		ioc.InitTracker,
	)
	notificationSvcSet = wire.NewSet(
		notificationsvc.NewService,
		repository.NewNotificationRepository,
		dao.NewNotificationDAO,
	)
	taskSet = wire.NewSet(
		ioc.InitSignalConsumer,
		ioc.InitDispatchTask,
		ioc.InitTasks,
	)
)

func InitApp() *ioc.App {
	wire.Build(
		// 基础设施
		BaseSet,

		// 消息和事件
		messageSet,

		// 偏好服务
		preferenceSvcSet,

		// 投递追踪
		trackerSvcSet,

		// 通知服务
		notificationSvcSet,

		// 后台任务
		taskSet,

		ioc.InitGroups,
		ioc.InitSignalProducer,
		wire.Struct(new(ioc.App), "*"),
	)
	return new(ioc.App)
}
