package dao

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gitee.com/flycash/notification-tracker/internal/errs"
	"github.com/ego-component/egorm"
	"gorm.io/gorm"
)

type NotificationDAO interface {
	Create(ctx context.Context, n Notification) (Notification, error)
	FindByID(ctx context.Context, id uint64) (Notification, error)
	// Update 按版本号 CAS 更新
	Update(ctx context.Context, n Notification) (Notification, error)
	// Delete 级联删除通知下的消息和事件
	Delete(ctx context.Context, id uint64) error
	// ListDue 计划发送时间不晚于 before 的 SCHEDULED 通知
	ListDue(ctx context.Context, before int64, limit int) ([]Notification, error)
}

// Notification 通知表
type Notification struct {
	ID          uint64 `gorm:"primaryKey;comment:'雪花算法ID'"`
	Type        string `gorm:"type:VARCHAR(64);NOT NULL;comment:'通知类型'"`
	Importance  string `gorm:"type:ENUM('LOW','NORMAL','HIGH','URGENT');NOT NULL;DEFAULT:'NORMAL'"`
	Status      string `gorm:"type:ENUM('DRAFT','SCHEDULED','QUEUED','SENDING','SENT','CANCELLED','FAILED');NOT NULL;DEFAULT:'DRAFT';index:idx_status_scheduled,priority:1"`
	Direction   string `gorm:"type:ENUM('INBOUND','OUTBOUND','DRAFT');NOT NULL;DEFAULT:'OUTBOUND'"`
	ScheduledAt int64  `gorm:"index:idx_status_scheduled,priority:2;comment:'计划发送时间，0表示立即'"`
	Channels    string `gorm:"type:TEXT;NOT NULL;comment:'请求的渠道，JSON数组'"`
	Context     string `gorm:"type:TEXT;comment:'上下文，JSON对象'"`
	SentAt      int64
	Version     int `gorm:"type:INT;NOT NULL;DEFAULT:1;comment:'版本号，用于CAS操作'"`
	Ctime       int64
	Utime       int64
}

func (Notification) TableName() string {
	return "notifications"
}

type notificationDAO struct {
	db *egorm.Component
}

func NewNotificationDAO(db *egorm.Component) NotificationDAO {
	return &notificationDAO{
		db: db,
	}
}

func (d *notificationDAO) Create(ctx context.Context, n Notification) (Notification, error) {
	now := time.Now().UnixMilli()
	n.Ctime, n.Utime = now, now
	n.Version = 1
	return n, d.db.WithContext(ctx).Create(&n).Error
}

func (d *notificationDAO) FindByID(ctx context.Context, id uint64) (Notification, error) {
	var n Notification
	err := d.db.WithContext(ctx).Where("id = ?", id).First(&n).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Notification{}, fmt.Errorf("%w: id = %d", errs.ErrNotificationNotFound, id)
	}
	return n, err
}

func (d *notificationDAO) Update(ctx context.Context, n Notification) (Notification, error) {
	now := time.Now().UnixMilli()
	res := d.db.WithContext(ctx).Model(&Notification{}).
		Where("id = ? AND version = ?", n.ID, n.Version).
		Updates(map[string]any{
			"type":         n.Type,
			"importance":   n.Importance,
			"status":       n.Status,
			"direction":    n.Direction,
			"scheduled_at": n.ScheduledAt,
			"channels":     n.Channels,
			"context":      n.Context,
			"sent_at":      n.SentAt,
			"version":      gorm.Expr("version + 1"),
			"utime":        now,
		})
	if res.Error != nil {
		return Notification{}, res.Error
	}
	if res.RowsAffected == 0 {
		return Notification{}, fmt.Errorf("%w: id = %d, version = %d", errs.ErrVersionMismatch, n.ID, n.Version)
	}
	n.Version++
	n.Utime = now
	return n, nil
}

func (d *notificationDAO) Delete(ctx context.Context, id uint64) error {
	return d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		sub := tx.Model(&Message{}).Select("id").Where("notification_id = ?", id)
		if err := tx.Where("message_id IN (?)", sub).Delete(&MessageEvent{}).Error; err != nil {
			return err
		}
		if err := tx.Where("notification_id = ?", id).Delete(&Message{}).Error; err != nil {
			return err
		}
		res := tx.Where("id = ?", id).Delete(&Notification{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("%w: id = %d", errs.ErrNotificationNotFound, id)
		}
		return nil
	})
}

func (d *notificationDAO) ListDue(ctx context.Context, before int64, limit int) ([]Notification, error) {
	var ns []Notification
	err := d.db.WithContext(ctx).
		Where("status = ? AND scheduled_at <= ?", "SCHEDULED", before).
		Order("scheduled_at ASC, id ASC").
		Limit(limit).
		Find(&ns).Error
	return ns, err
}

// InitTables 建表
func InitTables(db *egorm.Component) error {
	return db.AutoMigrate(
		&Notification{},
		&Message{},
		&MessageEvent{},
		&ChannelPreference{},
	)
}
