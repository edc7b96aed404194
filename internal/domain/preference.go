package domain

import (
	"time"
)

// FrequencyTier 发送频率档位
type FrequencyTier string

const (
	FrequencyImmediate FrequencyTier = "IMMEDIATE"
	FrequencyHourly    FrequencyTier = "HOURLY"
	FrequencyDaily     FrequencyTier = "DAILY"
	FrequencyWeekly    FrequencyTier = "WEEKLY"
	FrequencyMonthly   FrequencyTier = "MONTHLY"
	FrequencyNever     FrequencyTier = "NEVER"
)

const (
	Hour  = time.Hour
	Day   = 24 * time.Hour
	Week  = 7 * Day
	Month = 30 * Day
)

// Window 档位对应的最小发送间隔，IMMEDIATE 和 NEVER 没有窗口
func (f FrequencyTier) Window() (time.Duration, bool) {
	switch f {
	case FrequencyHourly:
		return Hour, true
	case FrequencyDaily:
		return Day, true
	case FrequencyWeekly:
		return Week, true
	case FrequencyMonthly:
		return Month, true
	default:
		return 0, false
	}
}

// Priority 消息优先级
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// Rank 未知的优先级一律为 0，低于任何有名字的下限
func (p Priority) Rank() int {
	switch p {
	case PriorityHigh:
		return 3
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 1
	default:
		return 0
	}
}

// ConsentKind 授权类型
type ConsentKind string

const (
	ConsentNotifications ConsentKind = "NOTIFICATIONS"
	ConsentTransactional ConsentKind = "TRANSACTIONAL"
	ConsentMarketing     ConsentKind = "MARKETING"
	ConsentPromotional   ConsentKind = "PROMOTIONAL"
)

type Consent struct {
	NotificationsAllowed bool `json:"notificationsAllowed"`
	TransactionalAllowed bool `json:"transactionalAllowed"`
	MarketingAllowed     bool `json:"marketingAllowed"`
	PromotionalAllowed   bool `json:"promotionalAllowed"`
}

// Set 修改某一类授权，未知类型返回 false
func (c *Consent) Set(kind ConsentKind, allowed bool) bool {
	switch kind {
	case ConsentNotifications:
		c.NotificationsAllowed = allowed
	case ConsentTransactional:
		c.TransactionalAllowed = allowed
	case ConsentMarketing:
		c.MarketingAllowed = allowed
	case ConsentPromotional:
		c.PromotionalAllowed = allowed
	default:
		return false
	}
	return true
}

// QuietHours 免打扰时段，Start/End 形如 "22:00"，Days 为空表示每天
type QuietHours struct {
	Start    string         `json:"start" yaml:"start"`
	End      string         `json:"end" yaml:"end"`
	Timezone string         `json:"timezone" yaml:"timezone"`
	Days     []time.Weekday `json:"days,omitempty" yaml:"days,omitempty"`
}

// ChannelPreference 某个联系人在某个渠道上的偏好
type ChannelPreference struct {
	ID        uint64
	ContactID int64
	Channel   Channel
	Consent   Consent

	Frequency   FrequencyTier
	MinPriority Priority
	QuietHours  []QuietHours

	AllowedCategories []string
	BlockedCategories []string
	AllowedSenders    []string
	BlockedSenders    []string

	MessagesThisHour int
	MessagesToday    int
	MessagesThisWeek int
	HourResetAt      time.Time
	DayResetAt       time.Time
	WeekResetAt      time.Time

	// 0 表示不限制
	MaxPerHour int
	MaxPerDay  int
	MaxPerWeek int

	LastMessageAt time.Time
	Version       int
	Ctime         time.Time
	Utime         time.Time
}

// DefaultChannelPreference 没有配置过偏好的联系人，默认允许发送且不限频
func DefaultChannelPreference(contactID int64, channel Channel) ChannelPreference {
	return ChannelPreference{
		ContactID: contactID,
		Channel:   channel,
		Consent: Consent{
			NotificationsAllowed: true,
			TransactionalAllowed: true,
		},
		Frequency:   FrequencyImmediate,
		MinPriority: "",
	}
}
