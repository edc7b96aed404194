package repository

import (
	"context"
	"time"

	"gitee.com/flycash/notification-tracker/internal/domain"
	"gitee.com/flycash/notification-tracker/internal/repository/dao"
	"github.com/ecodeclub/ekit/slice"
	"github.com/ecodeclub/ekit/sqlx"
)

type PreferenceRepository interface {
	// Find 找不到时返回 errs.ErrPreferenceNotFound
	Find(ctx context.Context, contactID int64, channel domain.Channel) (domain.ChannelPreference, error)
	// Save ID 为 0 时创建，否则按 Version 做 CAS 更新
	Save(ctx context.Context, pref domain.ChannelPreference) (domain.ChannelPreference, error)
}

type preferenceRepository struct {
	dao dao.PreferenceDAO
}

func NewPreferenceRepository(d dao.PreferenceDAO) PreferenceRepository {
	return &preferenceRepository{dao: d}
}

func (r *preferenceRepository) Find(ctx context.Context, contactID int64, channel domain.Channel) (domain.ChannelPreference, error) {
	p, err := r.dao.Find(ctx, contactID, channel.String())
	if err != nil {
		return domain.ChannelPreference{}, err
	}
	return r.toDomain(p), nil
}

func (r *preferenceRepository) Save(ctx context.Context, pref domain.ChannelPreference) (domain.ChannelPreference, error) {
	var (
		saved dao.ChannelPreference
		err   error
	)
	if pref.ID == 0 {
		saved, err = r.dao.Create(ctx, r.toEntity(pref))
	} else {
		saved, err = r.dao.Update(ctx, r.toEntity(pref))
	}
	if err != nil {
		return domain.ChannelPreference{}, err
	}
	pref.ID = saved.ID
	pref.Version = saved.Version
	pref.Ctime = fromMillis(saved.Ctime)
	pref.Utime = fromMillis(saved.Utime)
	return pref, nil
}

func (r *preferenceRepository) toEntity(p domain.ChannelPreference) dao.ChannelPreference {
	return dao.ChannelPreference{
		ID:                   p.ID,
		ContactID:            p.ContactID,
		Channel:              p.Channel.String(),
		NotificationsAllowed: p.Consent.NotificationsAllowed,
		TransactionalAllowed: p.Consent.TransactionalAllowed,
		MarketingAllowed:     p.Consent.MarketingAllowed,
		PromotionalAllowed:   p.Consent.PromotionalAllowed,
		Frequency:            string(p.Frequency),
		MinPriority:          string(p.MinPriority),
		QuietHours: sqlx.JsonColumn[[]dao.QuietHours]{
			Val: slice.Map(p.QuietHours, func(_ int, src domain.QuietHours) dao.QuietHours {
				return dao.QuietHours{
					Start:    src.Start,
					End:      src.End,
					Timezone: src.Timezone,
					Days: slice.Map(src.Days, func(_ int, d time.Weekday) int {
						return int(d)
					}),
				}
			}),
			Valid: len(p.QuietHours) > 0,
		},
		Categories: sqlx.JsonColumn[dao.AllowBlockList]{
			Val:   dao.AllowBlockList{Allowed: p.AllowedCategories, Blocked: p.BlockedCategories},
			Valid: true,
		},
		Senders: sqlx.JsonColumn[dao.AllowBlockList]{
			Val:   dao.AllowBlockList{Allowed: p.AllowedSenders, Blocked: p.BlockedSenders},
			Valid: true,
		},
		MessagesThisHour: p.MessagesThisHour,
		MessagesToday:    p.MessagesToday,
		MessagesThisWeek: p.MessagesThisWeek,
		HourResetAt:      toMillis(p.HourResetAt),
		DayResetAt:       toMillis(p.DayResetAt),
		WeekResetAt:      toMillis(p.WeekResetAt),
		MaxPerHour:       p.MaxPerHour,
		MaxPerDay:        p.MaxPerDay,
		MaxPerWeek:       p.MaxPerWeek,
		LastMessageAt:    toMillis(p.LastMessageAt),
		Version:          p.Version,
		Ctime:            toMillis(p.Ctime),
		Utime:            toMillis(p.Utime),
	}
}

func (r *preferenceRepository) toDomain(p dao.ChannelPreference) domain.ChannelPreference {
	var quietHours []domain.QuietHours
	if p.QuietHours.Valid {
		quietHours = slice.Map(p.QuietHours.Val, func(_ int, src dao.QuietHours) domain.QuietHours {
			return domain.QuietHours{
				Start:    src.Start,
				End:      src.End,
				Timezone: src.Timezone,
				Days: slice.Map(src.Days, func(_ int, d int) time.Weekday {
					return time.Weekday(d)
				}),
			}
		})
	}
	return domain.ChannelPreference{
		ID:        p.ID,
		ContactID: p.ContactID,
		Channel:   domain.Channel(p.Channel),
		Consent: domain.Consent{
			NotificationsAllowed: p.NotificationsAllowed,
			TransactionalAllowed: p.TransactionalAllowed,
			MarketingAllowed:     p.MarketingAllowed,
			PromotionalAllowed:   p.PromotionalAllowed,
		},
		Frequency:         domain.FrequencyTier(p.Frequency),
		MinPriority:       domain.Priority(p.MinPriority),
		QuietHours:        quietHours,
		AllowedCategories: p.Categories.Val.Allowed,
		BlockedCategories: p.Categories.Val.Blocked,
		AllowedSenders:    p.Senders.Val.Allowed,
		BlockedSenders:    p.Senders.Val.Blocked,
		MessagesThisHour:  p.MessagesThisHour,
		MessagesToday:     p.MessagesToday,
		MessagesThisWeek:  p.MessagesThisWeek,
		HourResetAt:       fromMillis(p.HourResetAt),
		DayResetAt:        fromMillis(p.DayResetAt),
		WeekResetAt:       fromMillis(p.WeekResetAt),
		MaxPerHour:        p.MaxPerHour,
		MaxPerDay:         p.MaxPerDay,
		MaxPerWeek:        p.MaxPerWeek,
		LastMessageAt:     fromMillis(p.LastMessageAt),
		Version:           p.Version,
		Ctime:             fromMillis(p.Ctime),
		Utime:             fromMillis(p.Utime),
	}
}
