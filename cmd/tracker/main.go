package main

import (
	"context"

	"gitee.com/flycash/notification-tracker/cmd/tracker/ioc"
	"github.com/gotomicro/ego"
	"github.com/gotomicro/ego/core/elog"
	"github.com/gotomicro/ego/server/egovernor"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	egoApp := ego.New()
	app := ioc.InitApp()
	// 信号消费和排期通知的发送都在后台运行
	app.StartTasks(ctx)

	if err := egoApp.Serve(
		// 暴露 /metrics 和健康检查
		egovernor.Load("server.governor").Build(),
	).Run(); err != nil {
		elog.Panic("startup", elog.FieldErr(err))
	}
}
