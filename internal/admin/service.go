// Package admin implements operator actions that do not belong to a single
// user-facing service: the relayed user chat, level changes and schema migrations.
package admin

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Proton-105/craft-bot/internal/domain"
	apperrors "github.com/Proton-105/craft-bot/internal/errors"
	"github.com/Proton-105/craft-bot/internal/i18n"
	"github.com/Proton-105/craft-bot/internal/repository"
	"github.com/Proton-105/craft-bot/internal/telegram"
)

const (
	defaultThreads  = 100
	defaultMessages = 200
	maxMessageChars = 4000
)

// AchievementChecker re-evaluates achievements after a level change.
type AchievementChecker interface {
	Check(ctx context.Context, userID int64) ([]domain.Achievement, error)
}

// Migrator applies schema migrations and reports the resulting version.
type Migrator interface {
	Up(ctx context.Context) (int64, error)
}

// Service provides admin operations.
type Service struct {
	db           *sql.DB
	migrator     Migrator
	achievements AchievementChecker
	notifier     telegram.Notifier
	tr           i18n.Translator
	log          *slog.Logger
	now          func() time.Time
}

// NewService creates the admin service.
func NewService(db *sql.DB, migrator Migrator, achievements AchievementChecker, notifier telegram.Notifier, tr i18n.Translator, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	if tr == nil {
		tr = i18n.Default()
	}
	return &Service{
		db:           db,
		migrator:     migrator,
		achievements: achievements,
		notifier:     notifier,
		tr:           tr,
		log:          log.With(slog.String("component", "admin")),
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// Migrate applies pending migrations.
func (s *Service) Migrate(ctx context.Context) (int64, error) {
	if s.migrator == nil {
		return 0, apperrors.NewStateError("migrator is not configured")
	}
	version, err := s.migrator.Up(ctx)
	if err != nil {
		return 0, apperrors.NewDatabaseError(err)
	}
	s.log.Info("migrations triggered by admin", slog.Int64("version", version))
	return version, nil
}

// RecordUserMessage stores free text a user sent to the bot.
func (s *Service) RecordUserMessage(ctx context.Context, telegramID int64, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	m := &domain.AdminMessage{
		UserTelegramID: telegramID,
		Direction:      domain.DirectionUserToAdmin,
		Message:        text,
		CreatedAt:      s.now(),
	}
	if err := repository.NewAdminMessageRepository(s.db).Insert(ctx, m); err != nil {
		return apperrors.NewDatabaseError(err)
	}
	return nil
}

// ChatThreads lists users that wrote to the bot, most recent first.
func (s *Service) ChatThreads(ctx context.Context, limit int) ([]domain.ChatThread, error) {
	if limit <= 0 {
		limit = defaultThreads
	}
	threads, err := repository.NewAdminMessageRepository(s.db).Threads(ctx, limit)
	if err != nil {
		return nil, apperrors.NewDatabaseError(err)
	}
	return threads, nil
}

// ChatMessages returns one thread in chronological order.
func (s *Service) ChatMessages(ctx context.Context, telegramID int64, limit int) ([]domain.AdminMessage, error) {
	if limit <= 0 {
		limit = defaultMessages
	}
	msgs, err := repository.NewAdminMessageRepository(s.db).Messages(ctx, telegramID, limit)
	if err != nil {
		return nil, apperrors.NewDatabaseError(err)
	}
	return msgs, nil
}

// Reply stores an admin answer and delivers it through the bot. The row is kept
// even when delivery fails; the error is returned so the operator sees it.
func (s *Service) Reply(ctx context.Context, telegramID int64, text, adminUsername string) error {
	text = strings.TrimSpace(text)
	if telegramID == 0 || text == "" {
		return apperrors.NewValidationError("user_id and text required")
	}
	if len([]rune(text)) > maxMessageChars {
		return apperrors.NewValidationError(fmt.Sprintf("text is longer than %d characters", maxMessageChars))
	}

	m := &domain.AdminMessage{
		UserTelegramID: telegramID,
		Direction:      domain.DirectionAdminToUser,
		Message:        text,
		AdminUsername:  adminUsername,
		CreatedAt:      s.now(),
	}
	if err := repository.NewAdminMessageRepository(s.db).Insert(ctx, m); err != nil {
		return apperrors.NewDatabaseError(err)
	}

	if err := s.notifier.SendMessage(ctx, telegramID, s.tr.T("admin.reply", text)); err != nil {
		return apperrors.NewExternalAPIError("telegram", err)
	}
	return nil
}

// SetLevel changes a user's tier, notifies them and re-runs achievements.
func (s *Service) SetLevel(ctx context.Context, userID int64, level domain.Level) error {
	if !level.Valid() {
		return apperrors.NewValidationError("Invalid level")
	}

	users := repository.NewUserRepository(s.db, s.log)
	u, err := users.GetByID(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return apperrors.NewNotFoundError("User")
	}
	if err != nil {
		return apperrors.NewDatabaseError(err)
	}

	if err := users.SetLevel(ctx, userID, level); err != nil {
		return apperrors.NewDatabaseError(err)
	}
	s.log.Info("user level changed",
		slog.Int64("user_id", userID),
		slog.String("from", string(u.Level)),
		slog.String("to", string(level)),
	)

	key := "admin.level_basic"
	if level == domain.LevelVIP {
		key = "admin.level_vip"
	}
	if err := s.notifier.SendMessage(ctx, u.TelegramID, s.tr.T(key)); err != nil {
		s.log.Warn("notify level change", slog.Int64("user_id", userID), slog.Any("error", err))
	}

	if s.achievements != nil {
		if _, err := s.achievements.Check(ctx, userID); err != nil {
			s.log.Error("check achievements after level change", slog.Int64("user_id", userID), slog.Any("error", err))
		}
	}
	return nil
}
