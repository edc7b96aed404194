package errs

import (
	"errors"
)

// 定义统一的错误类型
var (
	ErrInvalidParameter     = errors.New("参数错误")
	ErrIDGenerateFailed     = errors.New("ID生成失败")
	ErrInvalidTransition    = errors.New("状态流转不合法")
	ErrRetriesExhausted     = errors.New("重试次数已用尽")
	ErrNotificationNotFound = errors.New("通知记录不存在")
	ErrNotificationNotEdit  = errors.New("通知当前状态不可编辑")
	ErrNotificationNotSend  = errors.New("通知当前状态不可发送")
	ErrMessageNotFound      = errors.New("消息记录不存在")
	ErrMessageDuplicate     = errors.New("消息记录唯一索引冲突")
	ErrEventNotFound        = errors.New("消息事件不存在")
	ErrVersionMismatch      = errors.New("记录版本不匹配")
	ErrPreferenceNotFound   = errors.New("渠道偏好不存在")
	ErrLockFailed           = errors.New("获取锁失败")
	ErrMalformedRule        = errors.New("规则不合法")
	ErrGroupNotFound        = errors.New("分组不存在")
)
