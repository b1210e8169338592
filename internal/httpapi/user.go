package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/Proton-105/craft-bot/internal/domain"
	apperrors "github.com/Proton-105/craft-bot/internal/errors"
	"github.com/Proton-105/craft-bot/internal/user"
)

type initRequest struct {
	TelegramID  flexID `json:"telegram_id"`
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	Username    string `json:"username"`
	ReferrerUID string `json:"referrer_uid"`
}

func (a *API) initUser(w http.ResponseWriter, r *http.Request) {
	var req initRequest
	if err := decode(w, r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	tid, err := telegramID(r.Context(), int64(req.TelegramID))
	if err != nil {
		a.fail(w, r, err)
		return
	}

	res, err := a.deps.Users.Init(r.Context(), domain.NewUser{
		TelegramID:  tid,
		FirstName:   strings.TrimSpace(req.FirstName),
		LastName:    strings.TrimSpace(req.LastName),
		Username:    strings.TrimSpace(req.Username),
		ReferrerUID: strings.TrimSpace(req.ReferrerUID),
	})
	switch {
	case errors.Is(err, user.ErrAlreadyRegistered):
		a.fail(w, r, apperrors.NewBusinessError("User already registered"))
		return
	case errors.Is(err, user.ErrUserLimit):
		a.fail(w, r, apperrors.NewBusinessError("Maximum user limit reached"))
		return
	case err != nil:
		a.fail(w, r, err)
		return
	}

	a.ok(w, envelope{
		"system_uid":   res.User.SystemUID,
		"caps_balance": res.User.Balance,
		"exists":       res.Exists,
	})
}

type achievementJSON struct {
	Code        string     `json:"code"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Icon        string     `json:"icon"`
	RewardCaps  int64      `json:"reward_caps"`
	Earned      bool       `json:"earned"`
	EarnedAt    *time.Time `json:"earned_at,omitempty"`
}

func toAchievements(list []domain.EarnedAchievement, earnedOnly bool) []achievementJSON {
	out := make([]achievementJSON, 0, len(list))
	for _, a := range list {
		if earnedOnly && !a.Earned {
			continue
		}
		out = append(out, achievementJSON{
			Code:        a.Code,
			Name:        a.Name,
			Description: a.Description,
			Icon:        a.Icon,
			RewardCaps:  a.RewardCaps,
			Earned:      a.Earned,
			EarnedAt:    a.EarnedAt,
		})
	}
	return out
}

func (a *API) profile(w http.ResponseWriter, r *http.Request) {
	tid, err := a.queryTelegramID(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}

	p, err := a.deps.Users.Profile(r.Context(), tid)
	if err != nil {
		a.fail(w, r, err)
		return
	}

	u := p.User
	a.ok(w, envelope{"profile": envelope{
		"system_uid":        u.SystemUID,
		"first_name":        u.FirstName,
		"last_name":         u.LastName,
		"username":          u.Username,
		"caps_balance":      u.Balance,
		"total_earned_caps": u.TotalEarned,
		"total_spent_caps":  u.TotalSpent,
		"ai_requests_count": u.AIRequestsCount,
		"user_level":        string(u.Level),
		"created_at":        u.CreatedAt,
		"referrals": envelope{
			"level_1":      envelope{"count": p.Referrals.Level1Count},
			"level_2":      envelope{"count": p.Referrals.Level2Count},
			"total_earned": p.Referrals.TotalEarned,
		},
		"achievements": toAchievements(p.Achievements, true),
	}})
}

type referredJSON struct {
	Name       string `json:"name"`
	SystemUID  string `json:"system_uid"`
	Level      int    `json:"level"`
	CapsEarned int64  `json:"caps_earned"`
	Date       string `json:"date"`
}

func (a *API) referralStats(w http.ResponseWriter, r *http.Request) {
	tid, err := a.queryTelegramID(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}

	stats, err := a.deps.Users.ReferralStats(r.Context(), tid)
	if err != nil {
		a.fail(w, r, err)
		return
	}

	recent := make([]referredJSON, 0, len(stats.Recent))
	for _, ref := range stats.Recent {
		name := ref.FirstName
		if ref.Username != "" {
			name = strings.TrimSpace(name + " @" + ref.Username)
		}
		recent = append(recent, referredJSON{
			Name:       name,
			SystemUID:  ref.SystemUID,
			Level:      ref.Level,
			CapsEarned: ref.CapsEarned,
			Date:       ref.CreatedAt.Format("02.01.2006"),
		})
	}

	a.ok(w, envelope{"stats": envelope{
		"level1_count": stats.Level1Count,
		"level2_count": stats.Level2Count,
		"total_earned": stats.TotalEarned,
		"recent":       recent,
	}})
}

type balanceEntryJSON struct {
	ID           int64     `json:"id"`
	Amount       int64     `json:"amount"`
	Operation    string    `json:"operation_type"`
	Description  string    `json:"description"`
	BalanceAfter int64     `json:"balance_after"`
	CreatedAt    time.Time `json:"created_at"`
}

func (a *API) balanceHistory(w http.ResponseWriter, r *http.Request) {
	tid, err := a.queryTelegramID(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}

	filter := domain.ParseHistoryFilter(r.URL.Query().Get("filter"))
	entries, err := a.deps.Users.BalanceHistory(r.Context(), tid, filter)
	if err != nil {
		a.fail(w, r, err)
		return
	}

	history := make([]balanceEntryJSON, 0, len(entries))
	for _, e := range entries {
		history = append(history, balanceEntryJSON{
			ID:           e.ID,
			Amount:       e.Amount,
			Operation:    e.Operation,
			Description:  e.Description,
			BalanceAfter: e.BalanceAfter,
			CreatedAt:    e.CreatedAt,
		})
	}
	a.ok(w, envelope{"history": history, "filter": string(filter)})
}

func (a *API) achievements(w http.ResponseWriter, r *http.Request) {
	tid, err := a.queryTelegramID(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}

	u, err := a.deps.Users.GetByTelegramID(r.Context(), tid)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	list, err := a.deps.Achievements.List(r.Context(), u.ID)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.ok(w, envelope{"achievements": toAchievements(list, false)})
}

type telegramIDRequest struct {
	TelegramID flexID `json:"telegram_id"`
}

func (a *API) checkSubscription(w http.ResponseWriter, r *http.Request) {
	tid, err := a.bodyTelegramID(w, r)
	if err != nil {
		a.fail(w, r, err)
		return
	}

	subscribed, err := a.deps.Forms.CheckSubscription(r.Context(), tid)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.ok(w, envelope{"subscribed": subscribed, "channel_id": a.bot.RequiredChannelID})
}

func (a *API) queryTelegramID(r *http.Request) (int64, error) {
	requested, err := queryID(r, "telegram_id")
	if err != nil {
		return 0, err
	}
	return telegramID(r.Context(), requested)
}

func (a *API) bodyTelegramID(w http.ResponseWriter, r *http.Request) (int64, error) {
	var req telegramIDRequest
	if err := decode(w, r, &req); err != nil {
		return 0, err
	}
	return telegramID(r.Context(), int64(req.TelegramID))
}
