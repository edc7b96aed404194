package preference

import (
	"slices"
	"strconv"
	"strings"
	"time"

	"gitee.com/flycash/notification-tracker/internal/domain"
	"gitee.com/flycash/notification-tracker/internal/service/gate"
	"github.com/gotomicro/ego/core/elog"
)

// Reason 拒绝发送的原因
type Reason string

const (
	ReasonOptedOut    Reason = "opted_out"
	ReasonFrequency   Reason = "frequency"
	ReasonRateLimited Reason = "rate_limited"
	ReasonPriority    Reason = "priority"
	ReasonCategory    Reason = "category"
	ReasonSender      Reason = "sender"
	ReasonQuietHours  Reason = "quiet_hours"
)

// SendRequest 一次发送请求，除 SendAt 之外的字段都是可选的
type SendRequest struct {
	// Kind 为空时只检查总开关
	Kind     domain.ConsentKind
	Category string
	Priority domain.Priority
	Sender   string
	SendAt   time.Time
}

type Decision struct {
	Allowed bool
	Reason  Reason
}

func allow() Decision {
	return Decision{Allowed: true}
}

func deny(reason Reason) Decision {
	return Decision{Reason: reason}
}

// Engine 判断能否发送以及记录发送，本身无状态，偏好以值的形式传入传出
type Engine struct {
	logger *elog.Component
}

func NewEngine() *Engine {
	return &Engine{
		logger: elog.DefaultLogger,
	}
}

func (e *Engine) CanSend(pref domain.ChannelPreference, req SendRequest) bool {
	return e.Check(pref, req).Allowed
}

// Check 按顺序检查，遇到第一个不满足的条件就返回
func (e *Engine) Check(pref domain.ChannelPreference, req SendRequest) Decision {
	now := req.SendAt
	if !consented(pref.Consent, req.Kind) {
		return deny(ReasonOptedOut)
	}
	if !e.frequencyAllows(pref, now) {
		return deny(ReasonFrequency)
	}
	// 在副本上重置计数，判断本身不修改偏好
	resetExpired(&pref, now)
	if exceeds(pref.MessagesThisHour, pref.MaxPerHour) ||
		exceeds(pref.MessagesToday, pref.MaxPerDay) ||
		exceeds(pref.MessagesThisWeek, pref.MaxPerWeek) {
		return deny(ReasonRateLimited)
	}
	// 请求没有带优先级时不检查下限
	if pref.MinPriority != "" && req.Priority != "" &&
		req.Priority.Rank() < pref.MinPriority.Rank() {
		return deny(ReasonPriority)
	}
	if !listAllows(req.Category, pref.AllowedCategories, pref.BlockedCategories) {
		return deny(ReasonCategory)
	}
	if !listAllows(req.Sender, pref.AllowedSenders, pref.BlockedSenders) {
		return deny(ReasonSender)
	}
	for _, qh := range pref.QuietHours {
		if e.inQuietHours(qh, now) {
			return deny(ReasonQuietHours)
		}
	}
	return allow()
}

// RecordSend 先重置过期的窗口再累加，最后推进 LastMessageAt。
// 重置判断依赖的是上一次的 LastMessageAt，所以必须最后更新
func (e *Engine) RecordSend(pref domain.ChannelPreference, now time.Time) domain.ChannelPreference {
	resetExpired(&pref, now)
	pref.MessagesThisHour++
	pref.MessagesToday++
	pref.MessagesThisWeek++
	pref.LastMessageAt = now
	return pref
}

func consented(c domain.Consent, kind domain.ConsentKind) bool {
	if !c.NotificationsAllowed {
		return false
	}
	switch kind {
	case domain.ConsentTransactional:
		return c.TransactionalAllowed
	case domain.ConsentMarketing:
		return c.MarketingAllowed
	case domain.ConsentPromotional:
		return c.PromotionalAllowed
	default:
		return true
	}
}

func (e *Engine) frequencyAllows(pref domain.ChannelPreference, now time.Time) bool {
	switch pref.Frequency {
	case domain.FrequencyNever:
		return false
	case domain.FrequencyImmediate, "":
		return true
	}
	window, ok := pref.Frequency.Window()
	if !ok {
		e.logger.Warn("未知的发送频率档位，按不限制处理",
			elog.String("frequency", string(pref.Frequency)),
			elog.Int64("contactId", pref.ContactID))
		return true
	}
	return elapsed(pref.LastMessageAt, now, window)
}

// elapsed last 为空，或者不晚于 now - window
func elapsed(last, now time.Time, window time.Duration) bool {
	return last.IsZero() || !last.After(now.Add(-window))
}

// resetExpired 只和 LastMessageAt 比较。
// 如果每次发送都落在上一次发送后的一个窗口内，窗口会被一直延长
func resetExpired(pref *domain.ChannelPreference, now time.Time) {
	if elapsed(pref.LastMessageAt, now, domain.Hour) {
		pref.MessagesThisHour = 0
		pref.HourResetAt = now
	}
	if elapsed(pref.LastMessageAt, now, domain.Day) {
		pref.MessagesToday = 0
		pref.DayResetAt = now
	}
	if elapsed(pref.LastMessageAt, now, domain.Week) {
		pref.MessagesThisWeek = 0
		pref.WeekResetAt = now
	}
}

// exceeds 上限为 0 表示不限制
func exceeds(count, limit int) bool {
	return limit > 0 && count >= limit
}

// listAllows 黑名单优先；白名单非空时必须在白名单里。值为空时不检查
func listAllows(value string, allowed, blocked []string) bool {
	if value == "" {
		return true
	}
	if len(blocked) > 0 && gate.Evaluate(value, gate.OpIn, blocked) {
		return false
	}
	if len(allowed) > 0 {
		return gate.Evaluate(value, gate.OpIn, allowed)
	}
	return true
}

func (e *Engine) inQuietHours(qh domain.QuietHours, at time.Time) bool {
	start, err1 := parseClock(qh.Start)
	end, err2 := parseClock(qh.End)
	if err1 != nil || err2 != nil {
		e.logger.Warn("免打扰时段格式错误，忽略该时段",
			elog.String("start", qh.Start),
			elog.String("end", qh.End))
		return false
	}
	local := at.In(e.location(qh.Timezone))
	if len(qh.Days) > 0 && !slices.Contains(qh.Days, local.Weekday()) {
		return false
	}
	cur := local.Hour()*60 + local.Minute()
	if start > end {
		// 跨午夜，比如 22:00 - 06:00
		return cur >= start || cur <= end
	}
	return cur >= start && cur <= end
}

func (e *Engine) location(tz string) *time.Location {
	if tz == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		e.logger.Warn("时区不合法，使用 UTC", elog.String("timezone", tz), elog.FieldErr(err))
		return time.UTC
	}
	return loc
}

// parseClock 把 "HH:MM" 解析成一天中的分钟数
func parseClock(s string) (int, error) {
	h, m, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return 0, strconv.ErrSyntax
	}
	hour, err := strconv.Atoi(h)
	if err != nil || hour < 0 || hour > 23 {
		return 0, strconv.ErrSyntax
	}
	minute, err := strconv.Atoi(m)
	if err != nil || minute < 0 || minute > 59 {
		return 0, strconv.ErrSyntax
	}
	return hour*60 + minute, nil
}
