package status

import (
	"slices"

	"gitee.com/flycash/notification-tracker/internal/domain"
)

// Machine 一个生命周期的状态机，只描述哪些边是合法的，
// 不负责重试上限之类的策略
type Machine[S comparable] struct {
	name    string
	edges   map[S][]S
	advance map[S]S
}

func newMachine[S comparable](name string, edges map[S][]S, advance map[S]S) Machine[S] {
	return Machine[S]{name: name, edges: edges, advance: advance}
}

func (m Machine[S]) Name() string {
	return m.name
}

// CanTransition from 到 to 是否是一条合法的边，自环不合法
func (m Machine[S]) CanTransition(from, to S) bool {
	return slices.Contains(m.edges[from], to)
}

// NextStatus 规范的“前进”边
func (m Machine[S]) NextStatus(from S) (S, bool) {
	next, ok := m.advance[from]
	return next, ok
}

// ValidTransitions 返回 from 出发的所有合法目标
func (m Machine[S]) ValidTransitions(from S) []S {
	return slices.Clone(m.edges[from])
}

// IsTerminal 没有任何出边
func (m Machine[S]) IsTerminal(s S) bool {
	return len(m.edges[s]) == 0
}

// Path 找到一条从 from 到 to 的最短合法路径，不包含 from 本身。
// avoid 中的状态不能作为中间节点，但可以作为终点
func (m Machine[S]) Path(from, to S, avoid ...S) ([]S, bool) {
	if from == to {
		return nil, false
	}
	prev := map[S]S{}
	visited := map[S]bool{from: true}
	queue := []S{from}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, next := range m.edges[cur] {
			if visited[next] {
				continue
			}
			visited[next] = true
			prev[next] = cur
			if next == to {
				return m.buildPath(prev, from, to), true
			}
			if slices.Contains(avoid, next) {
				continue
			}
			queue = append(queue, next)
		}
	}
	return nil, false
}

func (m Machine[S]) buildPath(prev map[S]S, from, to S) []S {
	var path []S
	for cur := to; cur != from; cur = prev[cur] {
		path = append(path, cur)
	}
	slices.Reverse(path)
	return path
}

// Message 消息状态机
//
//	pending → queued → sending → {sent | failed}
//	sent → delivered
//	{pending, queued, sending, failed, retrying} → cancelled
//	failed → retrying → queued
var Message = newMachine("message",
	map[domain.MessageStatus][]domain.MessageStatus{
		domain.MessageStatusPending: {
			domain.MessageStatusQueued,
			domain.MessageStatusCancelled,
		},
		domain.MessageStatusQueued: {
			domain.MessageStatusSending,
			domain.MessageStatusCancelled,
		},
		domain.MessageStatusSending: {
			domain.MessageStatusSent,
			domain.MessageStatusFailed,
			domain.MessageStatusCancelled,
		},
		domain.MessageStatusSent: {
			domain.MessageStatusDelivered,
		},
		domain.MessageStatusFailed: {
			domain.MessageStatusRetrying,
			domain.MessageStatusCancelled,
		},
		domain.MessageStatusRetrying: {
			domain.MessageStatusQueued,
			domain.MessageStatusCancelled,
		},
	},
	map[domain.MessageStatus]domain.MessageStatus{
		domain.MessageStatusPending:  domain.MessageStatusQueued,
		domain.MessageStatusQueued:   domain.MessageStatusSending,
		domain.MessageStatusSending:  domain.MessageStatusSent,
		domain.MessageStatusSent:     domain.MessageStatusDelivered,
		domain.MessageStatusFailed:   domain.MessageStatusRetrying,
		domain.MessageStatusRetrying: domain.MessageStatusQueued,
	},
)

// Notification 通知状态机
//
//	draft → scheduled → queued → sending → sent
//	{draft, scheduled, queued, sending} → cancelled
//	任意非 failed 状态 → failed
//	failed → queued（手动重发）
var Notification = newMachine("notification",
	map[domain.NotificationStatus][]domain.NotificationStatus{
		domain.NotificationStatusDraft: {
			domain.NotificationStatusScheduled,
			domain.NotificationStatusCancelled,
			domain.NotificationStatusFailed,
		},
		domain.NotificationStatusScheduled: {
			domain.NotificationStatusQueued,
			domain.NotificationStatusCancelled,
			domain.NotificationStatusFailed,
		},
		domain.NotificationStatusQueued: {
			domain.NotificationStatusSending,
			domain.NotificationStatusCancelled,
			domain.NotificationStatusFailed,
		},
		domain.NotificationStatusSending: {
			domain.NotificationStatusSent,
			domain.NotificationStatusCancelled,
			domain.NotificationStatusFailed,
		},
		domain.NotificationStatusSent: {
			domain.NotificationStatusFailed,
		},
		domain.NotificationStatusCancelled: {
			domain.NotificationStatusFailed,
		},
		domain.NotificationStatusFailed: {
			domain.NotificationStatusQueued,
		},
	},
	map[domain.NotificationStatus]domain.NotificationStatus{
		domain.NotificationStatusDraft:     domain.NotificationStatusScheduled,
		domain.NotificationStatusScheduled: domain.NotificationStatusQueued,
		domain.NotificationStatusQueued:    domain.NotificationStatusSending,
		domain.NotificationStatusSending:   domain.NotificationStatusSent,
		domain.NotificationStatusFailed:    domain.NotificationStatusQueued,
	},
)
