package dao

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gitee.com/flycash/notification-tracker/internal/errs"
	"github.com/ecodeclub/ekit/sqlx"
	"github.com/ego-component/egorm"
	"gorm.io/gorm"
)

type PreferenceDAO interface {
	Find(ctx context.Context, contactID int64, channel string) (ChannelPreference, error)
	// Create 唯一索引冲突时返回 ErrVersionMismatch，调用方重新读取即可
	Create(ctx context.Context, pref ChannelPreference) (ChannelPreference, error)
	// Update 按版本号 CAS 更新
	Update(ctx context.Context, pref ChannelPreference) (ChannelPreference, error)
}

// ChannelPreference 联系人在某个渠道上的偏好
type ChannelPreference struct {
	ID        uint64 `gorm:"primaryKey;autoIncrement"`
	ContactID int64  `gorm:"type:BIGINT;NOT NULL;uniqueIndex:uk_contact_channel,priority:1"`
	Channel   string `gorm:"type:ENUM('EMAIL','SMS','CHAT','PUSH','WEBHOOK');NOT NULL;uniqueIndex:uk_contact_channel,priority:2"`

	NotificationsAllowed bool
	TransactionalAllowed bool
	MarketingAllowed     bool
	PromotionalAllowed   bool

	Frequency   string                          `gorm:"type:ENUM('IMMEDIATE','HOURLY','DAILY','WEEKLY','MONTHLY','NEVER');NOT NULL;DEFAULT:'IMMEDIATE'"`
	MinPriority string                          `gorm:"type:VARCHAR(16);NOT NULL;DEFAULT:''"`
	QuietHours  sqlx.JsonColumn[[]QuietHours]   `gorm:"type:JSON;comment:'免打扰时段'"`
	Categories  sqlx.JsonColumn[AllowBlockList] `gorm:"type:JSON;comment:'分类黑白名单'"`
	Senders     sqlx.JsonColumn[AllowBlockList] `gorm:"type:JSON;comment:'发送方黑白名单'"`

	MessagesThisHour int
	MessagesToday    int
	MessagesThisWeek int
	HourResetAt      int64
	DayResetAt       int64
	WeekResetAt      int64
	MaxPerHour       int `gorm:"comment:'0表示不限制'"`
	MaxPerDay        int `gorm:"comment:'0表示不限制'"`
	MaxPerWeek       int `gorm:"comment:'0表示不限制'"`
	LastMessageAt    int64

	Version int `gorm:"type:INT;NOT NULL;DEFAULT:1;comment:'版本号，用于CAS操作'"`
	Ctime   int64
	Utime   int64
}

func (ChannelPreference) TableName() string {
	return "channel_preferences"
}

type QuietHours struct {
	Start    string `json:"start"`
	End      string `json:"end"`
	Timezone string `json:"timezone"`
	Days     []int  `json:"days,omitempty"`
}

type AllowBlockList struct {
	Allowed []string `json:"allowed,omitempty"`
	Blocked []string `json:"blocked,omitempty"`
}

type preferenceDAO struct {
	db *egorm.Component
}

func NewPreferenceDAO(db *egorm.Component) PreferenceDAO {
	return &preferenceDAO{
		db: db,
	}
}

func (d *preferenceDAO) Find(ctx context.Context, contactID int64, channel string) (ChannelPreference, error) {
	var pref ChannelPreference
	err := d.db.WithContext(ctx).
		Where("contact_id = ? AND channel = ?", contactID, channel).
		First(&pref).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ChannelPreference{}, fmt.Errorf("%w: contactID = %d, channel = %s",
			errs.ErrPreferenceNotFound, contactID, channel)
	}
	return pref, err
}

func (d *preferenceDAO) Create(ctx context.Context, pref ChannelPreference) (ChannelPreference, error) {
	now := time.Now().UnixMilli()
	pref.Ctime, pref.Utime = now, now
	pref.Version = 1
	err := d.db.WithContext(ctx).Create(&pref).Error
	if isUniqueConstraintError(err) {
		// 并发创建，别人先写进去了
		return ChannelPreference{}, fmt.Errorf("%w: contactID = %d, channel = %s",
			errs.ErrVersionMismatch, pref.ContactID, pref.Channel)
	}
	return pref, err
}

func (d *preferenceDAO) Update(ctx context.Context, pref ChannelPreference) (ChannelPreference, error) {
	now := time.Now().UnixMilli()
	res := d.db.WithContext(ctx).Model(&ChannelPreference{}).
		Where("id = ? AND version = ?", pref.ID, pref.Version).
		Updates(map[string]any{
			"notifications_allowed": pref.NotificationsAllowed,
			"transactional_allowed": pref.TransactionalAllowed,
			"marketing_allowed":     pref.MarketingAllowed,
			"promotional_allowed":   pref.PromotionalAllowed,
			"frequency":             pref.Frequency,
			"min_priority":          pref.MinPriority,
			"quiet_hours":           pref.QuietHours,
			"categories":            pref.Categories,
			"senders":               pref.Senders,
			"messages_this_hour":    pref.MessagesThisHour,
			"messages_today":        pref.MessagesToday,
			"messages_this_week":    pref.MessagesThisWeek,
			"hour_reset_at":         pref.HourResetAt,
			"day_reset_at":          pref.DayResetAt,
			"week_reset_at":         pref.WeekResetAt,
			"max_per_hour":          pref.MaxPerHour,
			"max_per_day":           pref.MaxPerDay,
			"max_per_week":          pref.MaxPerWeek,
			"last_message_at":       pref.LastMessageAt,
			"version":               gorm.Expr("version + 1"),
			"utime":                 now,
		})
	if res.Error != nil {
		return ChannelPreference{}, res.Error
	}
	if res.RowsAffected == 0 {
		return ChannelPreference{}, fmt.Errorf("%w: id = %d, version = %d",
			errs.ErrVersionMismatch, pref.ID, pref.Version)
	}
	pref.Version++
	pref.Utime = now
	return pref, nil
}
