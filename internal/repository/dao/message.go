package dao

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"gitee.com/flycash/notification-tracker/internal/errs"
	"github.com/ecodeclub/ekit/sqlx"
	"github.com/ego-component/egorm"
	"github.com/go-sql-driver/mysql"
	"gorm.io/gorm"
)

type MessageDAO interface {
	FindByID(ctx context.Context, id uint64) (Message, error)
	FindByStampID(ctx context.Context, stampID string) (Message, error)
	// FindRecentByFingerprint 创建时间不早于 since 的消息，新的在前
	FindRecentByFingerprint(ctx context.Context, fingerprint string, since int64) ([]Message, error)
	ListByNotificationID(ctx context.Context, notificationID uint64) ([]Message, error)

	// Create 在一个事务里创建消息和它的第一批事件
	Create(ctx context.Context, msg Message, events ...MessageEvent) (Message, error)
	// Update 按版本号 CAS 更新消息，同时追加事件
	Update(ctx context.Context, msg Message, events ...MessageEvent) (Message, error)
	AppendEvent(ctx context.Context, event MessageEvent) error
	// ListEvents 按 (occurred_at, id) 升序
	ListEvents(ctx context.Context, messageID uint64) ([]MessageEvent, error)
}

// Message 消息表
type Message struct {
	ID             uint64         `gorm:"primaryKey;comment:'雪花算法ID'"`
	NotificationID uint64         `gorm:"type:BIGINT UNSIGNED;NOT NULL;DEFAULT:0;index:idx_notification_id;comment:'所属通知，0表示不属于任何通知'"`
	Channel        string         `gorm:"type:ENUM('EMAIL','SMS','CHAT','PUSH','WEBHOOK');NOT NULL;comment:'发送渠道'"`
	Status         string         `gorm:"type:ENUM('PENDING','QUEUED','SENDING','SENT','DELIVERED','FAILED','BOUNCED','CANCELLED','RETRYING');NOT NULL;DEFAULT:'PENDING';comment:'发送状态'"`
	Direction      string         `gorm:"type:ENUM('INBOUND','OUTBOUND','DRAFT');NOT NULL;DEFAULT:'OUTBOUND';comment:'方向'"`
	Transport      string         `gorm:"type:VARCHAR(64);NOT NULL;DEFAULT:'';comment:'传输层名称'"`
	StampID        sql.NullString `gorm:"type:VARCHAR(128);uniqueIndex:uk_stamp_id;comment:'入队时分配的发送标识，可以为空'"`
	Fingerprint    string         `gorm:"type:CHAR(64);NOT NULL;DEFAULT:'';index:idx_fingerprint_ctime,priority:1;comment:'内容指纹'"`
	RetryCount     int            `gorm:"type:INT;NOT NULL;DEFAULT:0;comment:'失败次数'"`
	FailureReason  string         `gorm:"type:VARCHAR(512);NOT NULL;DEFAULT:'';comment:'最近一次失败原因'"`
	ScheduledAt    int64          `gorm:"comment:'计划发送时间'"`
	// ScheduleOverride 消息自身的计划时间优先
	ScheduleOverride bool
	Payload          sql.NullString                 `gorm:"type:JSON;comment:'渠道相关数据'"`
	Content          sqlx.JsonColumn[MessageContent] `gorm:"type:JSON;comment:'消息正文'"`
	Recipients       sqlx.JsonColumn[[]Recipient]   `gorm:"type:JSON;comment:'接收者以及各自的状态和计数'"`
	Version          int                            `gorm:"type:INT;NOT NULL;DEFAULT:1;comment:'版本号，用于CAS操作'"`
	SentAt           int64
	Ctime            int64 `gorm:"index:idx_fingerprint_ctime,priority:2"`
	Utime            int64
}

func (Message) TableName() string {
	return "messages"
}

type MessageContent struct {
	Subject     string `json:"subject"`
	Body        string `json:"body"`
	ContentType string `json:"contentType"`
}

type Recipient struct {
	ID         uint64 `json:"id"`
	Kind       string `json:"kind"`
	Address    string `json:"address"`
	Status     string `json:"status"`
	OpenCount  int    `json:"openCount"`
	ClickCount int    `json:"clickCount"`
}

// MessageEvent 消息事件表，只追加不修改
type MessageEvent struct {
	ID          uint64         `gorm:"primaryKey;comment:'雪花算法ID'"`
	MessageID   uint64         `gorm:"type:BIGINT UNSIGNED;NOT NULL;index:idx_message_occurred,priority:1"`
	RecipientID uint64         `gorm:"type:BIGINT UNSIGNED;NOT NULL;DEFAULT:0;comment:'0表示和接收者无关'"`
	Type        string         `gorm:"type:VARCHAR(32);NOT NULL;comment:'事件类型'"`
	OccurredAt  int64          `gorm:"type:BIGINT;NOT NULL;index:idx_message_occurred,priority:2;comment:'发生时间，毫秒'"`
	Data        sql.NullString `gorm:"type:JSON;comment:'事件数据'"`
	Ctime       int64
}

func (MessageEvent) TableName() string {
	return "message_events"
}

type messageDAO struct {
	db *egorm.Component
}

func NewMessageDAO(db *egorm.Component) MessageDAO {
	return &messageDAO{
		db: db,
	}
}

func (d *messageDAO) FindByID(ctx context.Context, id uint64) (Message, error) {
	var msg Message
	err := d.db.WithContext(ctx).Where("id = ?", id).First(&msg).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Message{}, fmt.Errorf("%w: id = %d", errs.ErrMessageNotFound, id)
	}
	return msg, err
}

func (d *messageDAO) FindByStampID(ctx context.Context, stampID string) (Message, error) {
	var msg Message
	err := d.db.WithContext(ctx).Where("stamp_id = ?", stampID).First(&msg).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Message{}, fmt.Errorf("%w: stampID = %s", errs.ErrMessageNotFound, stampID)
	}
	return msg, err
}

func (d *messageDAO) FindRecentByFingerprint(ctx context.Context, fingerprint string, since int64) ([]Message, error) {
	var msgs []Message
	err := d.db.WithContext(ctx).
		Where("fingerprint = ? AND ctime >= ?", fingerprint, since).
		Order("ctime DESC, id DESC").
		Find(&msgs).Error
	return msgs, err
}

func (d *messageDAO) ListByNotificationID(ctx context.Context, notificationID uint64) ([]Message, error) {
	var msgs []Message
	err := d.db.WithContext(ctx).
		Where("notification_id = ?", notificationID).
		Order("id ASC").
		Find(&msgs).Error
	return msgs, err
}

func (d *messageDAO) Create(ctx context.Context, msg Message, events ...MessageEvent) (Message, error) {
	now := time.Now().UnixMilli()
	if msg.Ctime == 0 {
		msg.Ctime = now
	}
	msg.Utime = now
	msg.Version = 1
	err := d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&msg).Error; err != nil {
			if isUniqueConstraintError(err) {
				return fmt.Errorf("%w: stampID = %s", errs.ErrMessageDuplicate, msg.StampID.String)
			}
			return err
		}
		return d.createEvents(tx, now, events)
	})
	return msg, err
}

func (d *messageDAO) Update(ctx context.Context, msg Message, events ...MessageEvent) (Message, error) {
	now := time.Now().UnixMilli()
	err := d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&Message{}).
			Where("id = ? AND version = ?", msg.ID, msg.Version).
			Updates(map[string]any{
				"status":         msg.Status,
				"stamp_id":       msg.StampID,
				"retry_count":    msg.RetryCount,
				"failure_reason": msg.FailureReason,
				"recipients":     msg.Recipients,
				"sent_at":        msg.SentAt,
				"version":        gorm.Expr("version + 1"),
				"utime":          now,
			})
		if res.Error != nil {
			if isUniqueConstraintError(res.Error) {
				return fmt.Errorf("%w: stampID = %s", errs.ErrMessageDuplicate, msg.StampID.String)
			}
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("%w: id = %d, version = %d", errs.ErrVersionMismatch, msg.ID, msg.Version)
		}
		return d.createEvents(tx, now, events)
	})
	if err != nil {
		return Message{}, err
	}
	msg.Version++
	msg.Utime = now
	return msg, nil
}

func (d *messageDAO) AppendEvent(ctx context.Context, event MessageEvent) error {
	event.Ctime = time.Now().UnixMilli()
	return d.db.WithContext(ctx).Create(&event).Error
}

func (d *messageDAO) ListEvents(ctx context.Context, messageID uint64) ([]MessageEvent, error) {
	var events []MessageEvent
	err := d.db.WithContext(ctx).
		Where("message_id = ?", messageID).
		Order("occurred_at ASC, id ASC").
		Find(&events).Error
	return events, err
}

func (d *messageDAO) createEvents(tx *gorm.DB, now int64, events []MessageEvent) error {
	if len(events) == 0 {
		return nil
	}
	for i := range events {
		events[i].Ctime = now
	}
	return tx.Create(&events).Error
}

// isUniqueConstraintError 检查是否是唯一索引冲突错误
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	me := new(mysql.MySQLError)
	if ok := errors.As(err, &me); ok {
		const uniqueIndexErrNo uint16 = 1062
		return me.Number == uniqueIndexErrNo
	}
	return false
}
