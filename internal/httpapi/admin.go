package httpapi

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/Proton-105/craft-bot/internal/domain"
	apperrors "github.com/Proton-105/craft-bot/internal/errors"
)

func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(mux.Vars(r)[name], 10, 64)
	if err != nil || id <= 0 {
		return 0, apperrors.NewValidationError(name + " required")
	}
	return id, nil
}

func (a *API) migrate(w http.ResponseWriter, r *http.Request) {
	version, err := a.deps.Admin.Migrate(r.Context())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.ok(w, envelope{"version": version})
}

type adminItemJSON struct {
	ID          flexID    `json:"id"`
	Category    string    `json:"category"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	PriceCaps   int64     `json:"price_caps"`
	ContentText string    `json:"content_text"`
	FileURL     string    `json:"file_url"`
	FileType    string    `json:"file_type"`
	IsActive    *bool     `json:"is_active,omitempty"`
	CreatedAt   time.Time `json:"created_at,omitempty"`
}

func (j adminItemJSON) item() *domain.ShopItem {
	active := true
	if j.IsActive != nil {
		active = *j.IsActive
	}
	return &domain.ShopItem{
		ID:          int64(j.ID),
		Category:    j.Category,
		Title:       j.Title,
		Description: j.Description,
		PriceCaps:   j.PriceCaps,
		ContentText: j.ContentText,
		FileURL:     j.FileURL,
		FileType:    j.FileType,
		IsActive:    active,
	}
}

func (a *API) adminShopItems(w http.ResponseWriter, r *http.Request) {
	items, err := a.deps.Shop.AllItems(r.Context())
	if err != nil {
		a.fail(w, r, err)
		return
	}

	out := make([]adminItemJSON, 0, len(items))
	for _, it := range items {
		active := it.IsActive
		out = append(out, adminItemJSON{
			ID:          flexID(it.ID),
			Category:    it.Category,
			Title:       it.Title,
			Description: it.Description,
			PriceCaps:   it.PriceCaps,
			ContentText: it.ContentText,
			FileURL:     it.FileURL,
			FileType:    it.FileType,
			IsActive:    &active,
			CreatedAt:   it.CreatedAt,
		})
	}
	a.ok(w, envelope{"items": out})
}

func (a *API) adminAddItem(w http.ResponseWriter, r *http.Request) {
	var req adminItemJSON
	if err := decode(w, r, &req); err != nil {
		a.fail(w, r, err)
		return
	}

	it := req.item()
	it.ID = 0
	if err := a.deps.Shop.CreateItem(r.Context(), it); err != nil {
		a.fail(w, r, err)
		return
	}
	a.ok(w, envelope{"id": it.ID})
}

func (a *API) adminUpdateItem(w http.ResponseWriter, r *http.Request) {
	var req adminItemJSON
	if err := decode(w, r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	if err := a.deps.Shop.UpdateItem(r.Context(), req.item()); err != nil {
		a.fail(w, r, err)
		return
	}
	a.ok(w, nil)
}

type idRequest struct {
	ID flexID `json:"id"`
}

func (a *API) adminDeleteItem(w http.ResponseWriter, r *http.Request) {
	var req idRequest
	if err := decode(w, r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	if req.ID <= 0 {
		a.fail(w, r, apperrors.NewValidationError("id required"))
		return
	}
	if err := a.deps.Shop.DeleteItem(r.Context(), int64(req.ID)); err != nil {
		a.fail(w, r, err)
		return
	}
	a.ok(w, nil)
}

type aiUserJSON struct {
	UserID       int64     `json:"user_id"`
	TelegramID   int64     `json:"telegram_id"`
	FirstName    string    `json:"first_name"`
	Username     string    `json:"username"`
	Messages     int64     `json:"messages"`
	LastActivity time.Time `json:"last_activity"`
}

func (a *API) adminAIUsers(w http.ResponseWriter, r *http.Request) {
	users, err := a.deps.AI.ChatUsers(r.Context(), queryInt(r, "limit"))
	if err != nil {
		a.fail(w, r, err)
		return
	}

	out := make([]aiUserJSON, 0, len(users))
	for _, u := range users {
		out = append(out, aiUserJSON(u))
	}
	a.ok(w, envelope{"users": out})
}

type conversationJSON struct {
	ID         int64     `json:"id"`
	SessionID  string    `json:"session_id"`
	Message    string    `json:"message"`
	Response   string    `json:"response"`
	CapsSpent  int64     `json:"caps_spent"`
	TokensUsed int       `json:"tokens_used"`
	CostUSD    float64   `json:"cost_usd"`
	CreatedAt  time.Time `json:"created_at"`
}

// adminAIConversations takes the internal user id, as listed by adminAIUsers.
func (a *API) adminAIConversations(w http.ResponseWriter, r *http.Request) {
	userID, err := pathID(r, "user_id")
	if err != nil {
		a.fail(w, r, err)
		return
	}

	convs, err := a.deps.AI.UserConversations(r.Context(), userID, queryInt(r, "limit"))
	if err != nil {
		a.fail(w, r, err)
		return
	}

	out := make([]conversationJSON, 0, len(convs))
	for _, c := range convs {
		out = append(out, conversationJSON{
			ID:         c.ID,
			SessionID:  c.SessionID,
			Message:    c.Message,
			Response:   c.Response,
			CapsSpent:  c.CapsSpent,
			TokensUsed: c.TokensUsed,
			CostUSD:    c.CostUSD,
			CreatedAt:  c.CreatedAt,
		})
	}
	a.ok(w, envelope{"messages": out})
}

type userIDRequest struct {
	UserID flexID `json:"user_id"`
}

func (a *API) adminUnblock(w http.ResponseWriter, r *http.Request) {
	var req userIDRequest
	if err := decode(w, r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	if req.UserID <= 0 {
		a.fail(w, r, apperrors.NewValidationError("user_id required"))
		return
	}

	if err := a.deps.AI.Unblock(r.Context(), int64(req.UserID)); err != nil {
		a.fail(w, r, err)
		return
	}
	a.ok(w, envelope{"message": fmt.Sprintf("AI unblocked for user %d", req.UserID)})
}

type chatThreadJSON struct {
	UserTelegramID int64     `json:"user_telegram_id"`
	FirstName      string    `json:"first_name"`
	Username       string    `json:"username"`
	Messages       int64     `json:"messages"`
	LastMessageAt  time.Time `json:"last_message_at"`
}

func (a *API) adminChatThreads(w http.ResponseWriter, r *http.Request) {
	threads, err := a.deps.Admin.ChatThreads(r.Context(), queryInt(r, "limit"))
	if err != nil {
		a.fail(w, r, err)
		return
	}

	out := make([]chatThreadJSON, 0, len(threads))
	for _, t := range threads {
		out = append(out, chatThreadJSON(t))
	}
	a.ok(w, envelope{"users": out})
}

type adminMessageJSON struct {
	ID            int64     `json:"id"`
	Direction     string    `json:"direction"`
	Message       string    `json:"message"`
	AdminUsername string    `json:"admin_username,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// adminChatMessages takes the Telegram id of the user.
func (a *API) adminChatMessages(w http.ResponseWriter, r *http.Request) {
	tid, err := pathID(r, "user_id")
	if err != nil {
		a.fail(w, r, err)
		return
	}

	msgs, err := a.deps.Admin.ChatMessages(r.Context(), tid, queryInt(r, "limit"))
	if err != nil {
		a.fail(w, r, err)
		return
	}

	out := make([]adminMessageJSON, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, adminMessageJSON{
			ID:            m.ID,
			Direction:     m.Direction,
			Message:       m.Message,
			AdminUsername: m.AdminUsername,
			CreatedAt:     m.CreatedAt,
		})
	}
	a.ok(w, envelope{"messages": out})
}

type chatSendRequest struct {
	UserID        flexID `json:"user_id"`
	Text          string `json:"text"`
	AdminUsername string `json:"admin_username"`
}

func (a *API) adminChatSend(w http.ResponseWriter, r *http.Request) {
	var req chatSendRequest
	if err := decode(w, r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	if req.UserID <= 0 || strings.TrimSpace(req.Text) == "" {
		a.fail(w, r, apperrors.NewValidationError("user_id and text required"))
		return
	}

	if err := a.deps.Admin.Reply(r.Context(), int64(req.UserID), req.Text, req.AdminUsername); err != nil {
		a.fail(w, r, err)
		return
	}
	a.ok(w, nil)
}

type levelRequest struct {
	Level string `json:"level"`
}

func (a *API) adminSetLevel(w http.ResponseWriter, r *http.Request) {
	userID, err := pathID(r, "user_id")
	if err != nil {
		a.fail(w, r, err)
		return
	}
	req := levelRequest{Level: string(domain.LevelBasic)}
	if err := decode(w, r, &req); err != nil {
		a.fail(w, r, err)
		return
	}

	if err := a.deps.Admin.SetLevel(r.Context(), userID, domain.Level(strings.TrimSpace(req.Level))); err != nil {
		a.fail(w, r, err)
		return
	}
	a.ok(w, nil)
}

func (a *API) adminSettings(w http.ResponseWriter, r *http.Request) {
	values, err := a.deps.Settings.All(r.Context())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.ok(w, envelope{"settings": values})
}

func (a *API) adminUpdateSettings(w http.ResponseWriter, r *http.Request) {
	var req map[string]any
	if err := decode(w, r, &req); err != nil {
		a.fail(w, r, err)
		return
	}

	values := make(map[string]string, len(req))
	for k, v := range req {
		if v != nil {
			values[k] = fmt.Sprint(v)
		}
	}

	updated, err := a.deps.Settings.Update(r.Context(), values)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.ok(w, envelope{"updated": updated})
}

type broadcastRequest struct {
	Message string `json:"message"`
}

func (a *API) adminBroadcast(w http.ResponseWriter, r *http.Request) {
	var req broadcastRequest
	if err := decode(w, r, &req); err != nil {
		a.fail(w, r, err)
		return
	}

	report, err := a.deps.News.Broadcast(r.Context(), req.Message)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.ok(w, envelope{"sent": report.Sent, "failed": report.Failed})
}

type subscriberJSON struct {
	UserID     int64  `json:"user_id"`
	TelegramID int64  `json:"telegram_id"`
	FirstName  string `json:"first_name"`
	Balance    int64  `json:"caps_balance"`
}

func (a *API) adminSubscribers(w http.ResponseWriter, r *http.Request) {
	subs, err := a.deps.News.Subscribers(r.Context())
	if err != nil {
		a.fail(w, r, err)
		return
	}

	out := make([]subscriberJSON, 0, len(subs))
	for _, s := range subs {
		out = append(out, subscriberJSON(s))
	}
	a.ok(w, envelope{"subscribers": out, "count": len(out)})
}

func (a *API) adminChargeDaily(w http.ResponseWriter, r *http.Request) {
	report, err := a.deps.News.ChargeDaily(r.Context())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.ok(w, envelope{
		"charged":     report.Charged,
		"deactivated": report.Deactivated,
		"daily_cost":  report.DailyCost,
	})
}
