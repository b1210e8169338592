// Package ai implements the assistant chat: injection guard, rapid-fire blocking,
// caps charging, context assembly and post-response bookkeeping.
package ai

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/Proton-105/craft-bot/internal/database"
	"github.com/Proton-105/craft-bot/internal/domain"
	apperrors "github.com/Proton-105/craft-bot/internal/errors"
	"github.com/Proton-105/craft-bot/internal/i18n"
	"github.com/Proton-105/craft-bot/internal/ledger"
	"github.com/Proton-105/craft-bot/internal/repository"
	"github.com/Proton-105/craft-bot/internal/telegram"
	"github.com/Proton-105/craft-bot/pkg/config"
	"github.com/Proton-105/craft-bot/pkg/metrics"
)

// InjectionSessionID marks conversation rows logged for rejected injection attempts.
const InjectionSessionID = "injection_blocked"

const (
	injectionResponse = "BLOCKED: prompt injection"
	injectionLogChars = 200
	minFactConfidence = 0.5
)

// ChatResult is the user-facing outcome of one chat message. Business rejections are
// results with Success=false, not errors.
type ChatResult struct {
	Success    bool
	Response   string
	CapsSpent  int64
	TokensUsed int
	CostUSD    float64
	Error      string
}

// CostSource supplies the current per-message price.
type CostSource interface {
	AIMessageCost(ctx context.Context) int64
}

// AchievementChecker re-evaluates achievements after a chat.
type AchievementChecker interface {
	Check(ctx context.Context, userID int64) ([]domain.Achievement, error)
}

// Option customizes a Service.
type Option func(*Service)

// WithGuard replaces the injection guard.
func WithGuard(g Guard) Option {
	return func(s *Service) { s.guard = g }
}

// WithClassifier replaces the fact and lead classifier.
func WithClassifier(c Classifier) Option {
	return func(s *Service) { s.classifier = c }
}

// WithClock replaces the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithBlockVideo sets the Telegram file id sent to a user when the spam block starts.
func WithBlockVideo(fileID string) Option {
	return func(s *Service) { s.blockVideo = fileID }
}

// Service runs the chat flow.
type Service struct {
	db           *sql.DB
	cfg          config.AIConfig
	policy       SpamPolicy
	costPer1K    decimal.Decimal
	ledger       *ledger.Ledger
	provider     Provider
	costs        CostSource
	achievements AchievementChecker
	notifier     telegram.Notifier
	guard        Guard
	classifier   Classifier
	blockVideo   string
	tr           i18n.Translator
	log          *slog.Logger
	now          func() time.Time
}

// NewService creates the chat service. costs and achievements may be nil.
func NewService(
	db *sql.DB,
	cfg config.AIConfig,
	spam config.SpamConfig,
	l *ledger.Ledger,
	provider Provider,
	costs CostSource,
	achievements AchievementChecker,
	notifier telegram.Notifier,
	tr i18n.Translator,
	log *slog.Logger,
	opts ...Option,
) (*Service, error) {
	if log == nil {
		log = slog.Default()
	}
	if tr == nil {
		tr = i18n.Default()
	}

	costPer1K, err := decimal.NewFromString(cfg.CostPer1KTokens)
	if err != nil {
		return nil, fmt.Errorf("parse ai cost per 1k tokens: %w", err)
	}

	s := &Service{
		db:           db,
		cfg:          cfg,
		policy:       PolicyFromConfig(spam),
		costPer1K:    costPer1K,
		ledger:       l,
		provider:     provider,
		costs:        costs,
		achievements: achievements,
		notifier:     notifier,
		guard:        NewPatternGuard(),
		classifier:   NewKeywordClassifier(),
		tr:           tr,
		log:          log.With(slog.String("component", "ai")),
		now:          func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Chat answers one message. Only an empty message or an unknown user return an error;
// every other failure, expected or not, comes back as an unsuccessful ChatResult.
func (s *Service) Chat(ctx context.Context, telegramID int64, message string) (*ChatResult, error) {
	if strings.TrimSpace(message) == "" {
		return nil, apperrors.NewValidationError(s.tr.T("ai.empty"))
	}

	u, err := repository.NewUserRepository(s.db, s.log).GetByTelegramID(ctx, telegramID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.NewNotFoundError("User")
	}
	if err != nil {
		s.log.Error("chat user lookup failed", slog.Int64("telegram_id", telegramID), slog.Any("error", err))
		return s.fail("error", s.tr.T("ai.temporary")), nil
	}

	res, err := s.chat(ctx, u, message)
	if err != nil {
		s.log.Error("chat failed",
			slog.Int64("user_id", u.ID),
			slog.Int64("telegram_id", telegramID),
			slog.Any("error", err),
		)
		return s.fail("error", s.tr.T("ai.temporary")), nil
	}
	return res, nil
}

func (s *Service) chat(ctx context.Context, u *domain.User, message string) (*ChatResult, error) {
	now := s.now()
	repo := repository.NewAIRepository(s.db)

	if s.guard.Detect(message) {
		return s.deflect(ctx, repo, u, message, now)
	}

	sess, err := s.session(ctx, repo, u.ID, now)
	if err != nil {
		return nil, err
	}

	if Release(sess, now) {
		if err := repo.SaveSessionState(ctx, sess); err != nil {
			return nil, err
		}
	}
	if IsBlocked(sess, now) {
		return s.fail("blocked", s.tr.T("ai.wait", RemainingMinutes(sess, now))), nil
	}

	caps := s.messageCost(ctx)
	if u.IsVIP() {
		caps = 0
	}
	if u.Balance < caps {
		return s.fail("insufficient", s.tr.T("ai.insufficient", caps)), nil
	}

	last, err := repo.LastResponseAt(ctx, u.ID, sess.SessionID)
	if err != nil {
		return nil, err
	}
	blocked := s.policy.Observe(sess, last, now)
	if err := repo.SaveSessionState(ctx, sess); err != nil {
		return nil, err
	}
	if blocked {
		s.log.Warn("ai session blocked for spam",
			slog.Int64("user_id", u.ID),
			slog.Time("block_expires_at", *sess.BlockExpiresAt),
		)
		s.notifyBlocked(ctx, u.TelegramID)
		return s.fail("spam_block", s.tr.T("ai.wait", s.policy.BlockMinutes())), nil
	}

	count, err := repo.CountConversations(ctx, u.ID)
	if err != nil {
		return nil, err
	}
	lead := !u.IsVIP() && s.cfg.LeadPromptEvery > 0 && count > 0 && count%int64(s.cfg.LeadPromptEvery) == 0

	msgs, err := s.buildMessages(ctx, repo, sess.SessionID, message, lead)
	if err != nil {
		return nil, err
	}

	completion, err := s.provider.Complete(ctx, msgs)
	if errors.Is(err, ErrNoAPIKey) {
		return s.canned("maintenance", s.tr.T("ai.maintenance")), nil
	}
	if err != nil {
		s.log.Warn("ai provider failed", slog.Int64("user_id", u.ID), slog.Any("error", err))
		return s.canned("fallback", s.tr.T("ai.fallback")), nil
	}

	tokens := completion.Usage.TotalTokens
	costUSD, _ := decimal.NewFromInt(int64(tokens)).
		Mul(s.costPer1K).
		Div(decimal.NewFromInt(1000)).
		Float64()

	err = database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		if err := repository.NewAIRepository(tx).InsertConversation(ctx, &domain.Conversation{
			UserID:     u.ID,
			SessionID:  sess.SessionID,
			Message:    message,
			Response:   completion.Content,
			CapsSpent:  caps,
			TokensUsed: tokens,
			CostUSD:    costUSD,
			CreatedAt:  now,
		}); err != nil {
			return err
		}

		if err := repository.NewUserRepository(tx, s.log).IncrementAIRequests(ctx, u.ID); err != nil {
			return err
		}

		if caps > 0 {
			if _, err := s.ledger.Apply(ctx, tx, ledger.Operation{
				UserID:      u.ID,
				Amount:      -caps,
				Kind:        domain.OpAICost,
				Description: "Запрос к ИИ",
				Totals:      ledger.TotalsSpent,
			}); err != nil {
				return err
			}
		}

		return repository.NewAIRepository(tx).AddSessionUsage(ctx, u.ID, tokens, costUSD, now)
	})
	if err != nil {
		return nil, fmt.Errorf("record chat: %w", err)
	}

	s.record(ctx, repo, u, message, completion.Usage, costUSD, count, now)
	s.checkAchievements(ctx, u.ID)

	metrics.RecordAIChat("success", tokens)
	return &ChatResult{
		Success:    true,
		Response:   completion.Content,
		CapsSpent:  caps,
		TokensUsed: tokens,
		CostUSD:    costUSD,
	}, nil
}

// deflect logs the attempt under InjectionSessionID and answers in character at zero cost.
func (s *Service) deflect(ctx context.Context, repo repository.AIRepository, u *domain.User, message string, now time.Time) (*ChatResult, error) {
	s.log.Warn("prompt injection blocked", slog.Int64("user_id", u.ID))

	if err := repo.InsertConversation(ctx, &domain.Conversation{
		UserID:    u.ID,
		SessionID: InjectionSessionID,
		Message:   truncate(message, injectionLogChars),
		Response:  injectionResponse,
		CreatedAt: now,
	}); err != nil {
		s.log.Warn("log injection attempt failed", slog.Int64("user_id", u.ID), slog.Any("error", err))
	}

	return s.canned("injection", s.tr.T("ai.injection")), nil
}

// session returns the user's session, creating it on first use.
func (s *Service) session(ctx context.Context, repo repository.AIRepository, userID int64, now time.Time) (*domain.AISession, error) {
	sess, err := repo.GetSession(ctx, userID)
	if err == nil {
		return sess, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}

	sess = &domain.AISession{
		UserID:       userID,
		SessionID:    uuid.NewString(),
		CreatedAt:    now,
		LastActivity: now,
	}
	if err := repo.CreateSession(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

func (s *Service) messageCost(ctx context.Context) int64 {
	if s.costs == nil {
		return s.cfg.CapsPerRequest
	}
	return s.costs.AIMessageCost(ctx)
}

func (s *Service) buildMessages(ctx context.Context, repo repository.AIRepository, sessionID, message string, lead bool) ([]Message, error) {
	history, err := repo.RecentTurns(ctx, sessionID, s.cfg.HistoryTurns)
	if err != nil {
		return nil, err
	}
	knowledge, err := repo.KnowledgeBase(ctx, s.cfg.KnowledgeEntries)
	if err != nil {
		return nil, err
	}
	facts, err := repo.LearnedFacts(ctx, minFactConfidence, s.cfg.LearnedFacts)
	if err != nil {
		return nil, err
	}

	return BuildMessages(PromptInput{
		Knowledge: knowledge,
		Facts:     facts,
		History:   history,
		Message:   truncate(message, s.cfg.MessageChars),
		Lead:      lead,
		TurnChars: s.cfg.TurnChars,
	}), nil
}

// record writes the side channels of a successful answer. Each write stands alone: in
// PostgreSQL a failed statement aborts its transaction, so none of them shares one.
func (s *Service) record(ctx context.Context, repo repository.AIRepository, u *domain.User, message string, usage domain.Usage, costUSD float64, count int64, now time.Time) {
	if err := repo.LogUsage(ctx, u.ID, usage, costUSD, now); err != nil {
		s.log.Warn("ai usage log failed", slog.Int64("user_id", u.ID), slog.Any("error", err))
	}

	if fact := s.classifier.Fact(u.ID, message); fact != nil {
		if err := repo.InsertLearnedFact(ctx, *fact, now); err != nil {
			s.log.Warn("learned fact insert failed", slog.Int64("user_id", u.ID), slog.Any("error", err))
		}
	}

	if u.IsVIP() || count == 0 {
		return
	}
	for _, f := range s.classifier.Leads(message) {
		if err := repo.UpsertLeadField(ctx, u.ID, u.TelegramID, f, now); err != nil {
			s.log.Warn("lead field upsert failed",
				slog.Int64("user_id", u.ID),
				slog.String("field", f.Name),
				slog.Any("error", err),
			)
		}
	}
}

func (s *Service) notifyBlocked(ctx context.Context, telegramID int64) {
	if s.notifier == nil {
		return
	}

	caption := s.tr.T("ai.blocked", s.policy.BlockMinutes())

	var err error
	if s.blockVideo != "" {
		err = s.notifier.SendVideo(ctx, telegramID, s.blockVideo, caption)
	} else {
		err = s.notifier.SendMessage(ctx, telegramID, caption)
	}
	if err != nil {
		s.log.Warn("spam block notification failed", slog.Int64("telegram_id", telegramID), slog.Any("error", err))
	}
}

func (s *Service) checkAchievements(ctx context.Context, userID int64) {
	if s.achievements == nil {
		return
	}
	if _, err := s.achievements.Check(ctx, userID); err != nil {
		s.log.Warn("achievement check failed", slog.Int64("user_id", userID), slog.Any("error", err))
	}
}

func (s *Service) fail(outcome, msg string) *ChatResult {
	metrics.RecordAIChat(outcome, 0)
	return &ChatResult{Success: false, Error: msg}
}

// canned is a successful answer that costs nothing and is not persisted.
func (s *Service) canned(outcome, msg string) *ChatResult {
	metrics.RecordAIChat(outcome, 0)
	return &ChatResult{Success: true, Response: msg}
}

// UserConversations returns the user's latest conversations for the admin history view.
func (s *Service) UserConversations(ctx context.Context, userID int64, limit int) ([]domain.Conversation, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	convs, err := repository.NewAIRepository(s.db).UserConversations(ctx, userID, limit)
	if err != nil {
		return nil, apperrors.NewDatabaseError(err)
	}
	return convs, nil
}

// ChatUsers lists users who talked to the assistant.
func (s *Service) ChatUsers(ctx context.Context, limit int) ([]domain.AIChatUser, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	users, err := repository.NewAIRepository(s.db).ChatUsers(ctx, limit)
	if err != nil {
		return nil, apperrors.NewDatabaseError(err)
	}
	return users, nil
}

// Unblock lifts a spam block ahead of its expiry.
func (s *Service) Unblock(ctx context.Context, userID int64) error {
	ok, err := repository.NewAIRepository(s.db).ResetSession(ctx, userID)
	if err != nil {
		return apperrors.NewDatabaseError(err)
	}
	if !ok {
		return apperrors.NewNotFoundError("AI session")
	}
	s.log.Info("ai session unblocked", slog.Int64("user_id", userID))
	return nil
}
