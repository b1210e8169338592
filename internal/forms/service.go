// Package forms stores Mini App applications, SOS requests and support tickets and
// forwards each one to its admin chat.
package forms

import (
	"context"
	"database/sql"
	"errors"
	"html"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/Proton-105/craft-bot/internal/domain"
	apperrors "github.com/Proton-105/craft-bot/internal/errors"
	"github.com/Proton-105/craft-bot/internal/i18n"
	"github.com/Proton-105/craft-bot/internal/ratelimit"
	"github.com/Proton-105/craft-bot/internal/repository"
	"github.com/Proton-105/craft-bot/internal/telegram"
	"github.com/Proton-105/craft-bot/pkg/config"
)

// Field limits in characters.
const (
	keyChars         = 100
	valueChars       = 1000
	cityChars        = 200
	contactChars     = 200
	descriptionChars = 2000
	supportChars     = 2000
)

// AchievementChecker re-evaluates achievements after a submission.
type AchievementChecker interface {
	Check(ctx context.Context, userID int64) ([]domain.Achievement, error)
}

// MembershipChecker asks Telegram whether a user belongs to a channel.
type MembershipChecker interface {
	IsMember(ctx context.Context, channelID, userID int64) (bool, error)
}

// Receipt is returned after a stored submission.
type Receipt struct {
	ID      int64
	Message string
}

// Service handles form submissions.
type Service struct {
	db           *sql.DB
	chats        config.BotConfig
	limit        *ratelimit.Policy
	achievements AchievementChecker
	notifier     telegram.Notifier
	members      MembershipChecker
	tr           i18n.Translator
	log          *slog.Logger
	now          func() time.Time
}

// NewService creates the forms service. limit may be nil to disable rate limiting.
func NewService(
	db *sql.DB,
	chats config.BotConfig,
	limit *ratelimit.Policy,
	achievements AchievementChecker,
	notifier telegram.Notifier,
	members MembershipChecker,
	tr i18n.Translator,
	log *slog.Logger,
) *Service {
	if log == nil {
		log = slog.Default()
	}
	if tr == nil {
		tr = i18n.Default()
	}
	return &Service{
		db:           db,
		chats:        chats,
		limit:        limit,
		achievements: achievements,
		notifier:     notifier,
		members:      members,
		tr:           tr,
		log:          log,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// SubmitApplication stores a connection request and forwards it to the applications chat.
func (s *Service) SubmitApplication(ctx context.Context, telegramID int64, formData map[string]string) (*Receipt, error) {
	u, err := s.admit(ctx, telegramID)
	if err != nil {
		return nil, err
	}

	data := make(map[string]string, len(formData))
	for k, v := range formData {
		key := sanitize(k, keyChars)
		if key == "" {
			continue
		}
		data[key] = sanitize(v, valueChars)
	}
	if len(data) == 0 {
		return nil, apperrors.NewValidationError("form_data is empty")
	}

	app := &domain.Application{UserID: u.ID, FormData: data, CreatedAt: s.now()}
	if err := repository.NewFormRepository(s.db).InsertApplication(ctx, app); err != nil {
		return nil, apperrors.NewDatabaseError(err)
	}

	var b strings.Builder
	b.WriteString(s.tr.T("forms.application_admin", app.ID, html.EscapeString(u.DisplayName()), u.SystemUID, html.EscapeString(u.Username)))
	if ref := s.referrer(ctx, u); ref != nil {
		b.WriteString(s.tr.T("forms.referrer_line", html.EscapeString(ref.DisplayName()), ref.SystemUID))
	}
	b.WriteString("\n")
	for _, k := range sortedKeys(data) {
		b.WriteString(s.tr.T("forms.field_line", k, data[k]))
	}
	s.forward(ctx, s.chats.AdminChatApplyID, "application", b.String())

	s.checkAchievements(ctx, u.ID)
	return &Receipt{ID: app.ID, Message: s.tr.T("forms.application_sent")}, nil
}

// SubmitSOS stores an urgent help request and forwards it to the SOS chat.
func (s *Service) SubmitSOS(ctx context.Context, telegramID int64, city, contact, description string) (*Receipt, error) {
	city = sanitize(city, cityChars)
	contact = sanitize(contact, contactChars)
	description = sanitize(description, descriptionChars)
	if city == "" || contact == "" || description == "" {
		return nil, apperrors.NewValidationError("city, contact and description are required")
	}

	u, err := s.admit(ctx, telegramID)
	if err != nil {
		return nil, err
	}

	req := &domain.SOSRequest{UserID: u.ID, City: city, Contact: contact, Description: description, CreatedAt: s.now()}
	if err := repository.NewFormRepository(s.db).InsertSOS(ctx, req); err != nil {
		return nil, apperrors.NewDatabaseError(err)
	}

	text := s.tr.T("forms.sos_admin", req.ID, html.EscapeString(u.DisplayName()), u.SystemUID, html.EscapeString(u.Username), city, contact, description)
	s.forward(ctx, s.chats.AdminChatSOSID, "sos", text)

	s.checkAchievements(ctx, u.ID)
	return &Receipt{ID: req.ID, Message: s.tr.T("forms.sos_sent")}, nil
}

// SubmitSupport stores a support message and forwards it to the support chat.
func (s *Service) SubmitSupport(ctx context.Context, telegramID int64, message string) (*Receipt, error) {
	message = sanitize(message, supportChars)
	if message == "" {
		return nil, apperrors.NewValidationError("message is required")
	}

	u, err := s.admit(ctx, telegramID)
	if err != nil {
		return nil, err
	}

	ticket := &domain.SupportTicket{UserID: u.ID, Message: message, CreatedAt: s.now()}
	if err := repository.NewFormRepository(s.db).InsertSupport(ctx, ticket); err != nil {
		return nil, apperrors.NewDatabaseError(err)
	}

	text := s.tr.T("forms.support_admin", ticket.ID, html.EscapeString(u.DisplayName()), u.SystemUID, html.EscapeString(u.Username), message)
	s.forward(ctx, s.chats.AdminChatSupportID, "support", text)

	return &Receipt{ID: ticket.ID, Message: s.tr.T("forms.support_sent")}, nil
}

// Offers returns the active offers grouped by category.
func (s *Service) Offers(ctx context.Context) (map[string][]domain.Offer, error) {
	offers, err := repository.NewFormRepository(s.db).ActiveOffers(ctx)
	if err != nil {
		return nil, apperrors.NewDatabaseError(err)
	}

	grouped := make(map[string][]domain.Offer)
	for _, o := range offers {
		grouped[o.Category] = append(grouped[o.Category], o)
	}
	return grouped, nil
}

// CheckSubscription reports whether the user is in the required channel.
// Without a configured channel everybody counts as subscribed.
func (s *Service) CheckSubscription(ctx context.Context, telegramID int64) (bool, error) {
	if s.chats.RequiredChannelID == 0 || s.members == nil {
		return true, nil
	}

	ok, err := s.members.IsMember(ctx, s.chats.RequiredChannelID, telegramID)
	if err != nil {
		return false, apperrors.NewExternalAPIError("telegram", err)
	}
	return ok, nil
}

// admit applies the shared form limit and loads the submitting user.
func (s *Service) admit(ctx context.Context, telegramID int64) (*domain.User, error) {
	allowed, err := s.limit.Allow(ctx, strconv.FormatInt(telegramID, 10))
	if err != nil {
		s.log.Warn("form rate limiter unavailable", slog.Int64("telegram_id", telegramID), slog.Any("error", err))
	}
	if !allowed {
		appErr := apperrors.NewRateLimitError(s.limit.RetryAfter())
		appErr.UserMessage = s.tr.T("forms.rate_limited")
		return nil, appErr
	}

	u, err := repository.NewUserRepository(s.db, s.log).GetByTelegramID(ctx, telegramID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.NewNotFoundError("User")
	}
	if err != nil {
		return nil, apperrors.NewDatabaseError(err)
	}
	return u, nil
}

func (s *Service) referrer(ctx context.Context, u *domain.User) *domain.User {
	if u.ReferrerID == nil {
		return nil
	}
	ref, err := repository.NewUserRepository(s.db, s.log).GetByID(ctx, *u.ReferrerID)
	if err != nil {
		s.log.Warn("load referrer for application", slog.Int64("user_id", u.ID), slog.Any("error", err))
		return nil
	}
	return ref
}

// forward is best effort: the submission is already stored.
func (s *Service) forward(ctx context.Context, chatID int64, kind, text string) {
	if chatID == 0 || s.notifier == nil {
		s.log.Warn("admin chat not configured", slog.String("form", kind))
		return
	}
	if err := s.notifier.SendMessage(ctx, chatID, text); err != nil {
		s.log.Error("forward form to admin chat", slog.String("form", kind), slog.Int64("chat_id", chatID), slog.Any("error", err))
	}
}

func (s *Service) checkAchievements(ctx context.Context, userID int64) {
	if s.achievements == nil {
		return
	}
	if _, err := s.achievements.Check(ctx, userID); err != nil {
		s.log.Error("check achievements after form", slog.Int64("user_id", userID), slog.Any("error", err))
	}
}

// sanitize trims, cuts to limit runes and escapes HTML for the admin chat.
func sanitize(s string, limit int) string {
	s = strings.TrimSpace(s)
	if utf8.RuneCountInString(s) > limit {
		s = string([]rune(s)[:limit])
	}
	return html.EscapeString(s)
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
