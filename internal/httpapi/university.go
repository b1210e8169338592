package httpapi

import (
	"encoding/json"
	"net/http"
	"time"
)

type lessonJSON struct {
	ID            int64           `json:"id"`
	Title         string          `json:"title"`
	Content       string          `json:"content"`
	ExamQuestions json.RawMessage `json:"exam_questions"`
	RewardCaps    int64           `json:"reward_caps"`
	OrderIndex    int             `json:"order_index"`
	Completed     bool            `json:"completed"`
	Score         *int            `json:"score,omitempty"`
	CompletedAt   *time.Time      `json:"completed_at,omitempty"`
}

// examQuestions passes stored quiz JSON through; anything else is sent as a string.
func examQuestions(raw string) json.RawMessage {
	if raw == "" {
		return json.RawMessage("[]")
	}
	if json.Valid([]byte(raw)) {
		return json.RawMessage(raw)
	}
	quoted, _ := json.Marshal(raw)
	return quoted
}

func (a *API) lessons(w http.ResponseWriter, r *http.Request) {
	tid, err := a.queryTelegramID(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}

	list, err := a.deps.University.Lessons(r.Context(), tid)
	if err != nil {
		a.fail(w, r, err)
		return
	}

	out := make([]lessonJSON, 0, len(list))
	for _, l := range list {
		out = append(out, lessonJSON{
			ID:            l.ID,
			Title:         l.Title,
			Content:       l.Content,
			ExamQuestions: examQuestions(l.ExamQuestions),
			RewardCaps:    l.RewardCaps,
			OrderIndex:    l.OrderIndex,
			Completed:     l.Completed,
			Score:         l.Score,
			CompletedAt:   l.CompletedAt,
		})
	}
	a.ok(w, envelope{"lessons": out})
}

type completeRequest struct {
	TelegramID flexID `json:"telegram_id"`
	LessonID   flexID `json:"lesson_id"`
	Score      int    `json:"score"`
	Total      int    `json:"total"`
}

func (a *API) completeLesson(w http.ResponseWriter, r *http.Request) {
	var req completeRequest
	if err := decode(w, r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	tid, err := telegramID(r.Context(), int64(req.TelegramID))
	if err != nil {
		a.fail(w, r, err)
		return
	}

	res, err := a.deps.University.Complete(r.Context(), tid, int64(req.LessonID), req.Score, req.Total)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if res.AlreadyCompleted {
		a.ok(w, envelope{"already_completed": true, "message": res.Message})
		return
	}
	a.ok(w, envelope{"reward": res.Reward, "message": res.Message})
}
