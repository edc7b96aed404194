package domain

// RecipientKind 接收者类型
type RecipientKind string

const (
	RecipientKindTo  RecipientKind = "TO"
	RecipientKindCC  RecipientKind = "CC"
	RecipientKindBCC RecipientKind = "BCC"
)

// RecipientStatus 单个接收者维度的状态
type RecipientStatus string

const (
	RecipientStatusPending      RecipientStatus = "PENDING"
	RecipientStatusDelivered    RecipientStatus = "DELIVERED"
	RecipientStatusBounced      RecipientStatus = "BOUNCED"
	RecipientStatusComplained   RecipientStatus = "COMPLAINED"
	RecipientStatusUnsubscribed RecipientStatus = "UNSUBSCRIBED"
)

type Recipient struct {
	ID         uint64          `json:"id"`
	Kind       RecipientKind   `json:"kind"`
	Address    string          `json:"address"`
	Status     RecipientStatus `json:"status"`
	OpenCount  int             `json:"openCount"`
	ClickCount int             `json:"clickCount"`
}

// EngagementStats 消息维度的互动统计
type EngagementStats struct {
	Recipients    int
	Opens         int
	Clicks        int
	UniqueOpens   int
	UniqueClicks  int
	Delivered     int
	Bounced       int
	Complained    int
	Unsubscribed  int
	LastEventType EventType
}

// Engagement 根据接收者计数汇总
func (m Message) Engagement() EngagementStats {
	stats := EngagementStats{Recipients: len(m.Recipients)}
	for _, r := range m.Recipients {
		stats.Opens += r.OpenCount
		stats.Clicks += r.ClickCount
		if r.OpenCount > 0 {
			stats.UniqueOpens++
		}
		if r.ClickCount > 0 {
			stats.UniqueClicks++
		}
		switch r.Status {
		case RecipientStatusDelivered:
			stats.Delivered++
		case RecipientStatusBounced:
			stats.Bounced++
		case RecipientStatusComplained:
			stats.Complained++
		case RecipientStatusUnsubscribed:
			stats.Unsubscribed++
		}
	}
	return stats
}
