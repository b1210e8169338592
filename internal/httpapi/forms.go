package httpapi

import (
	"fmt"
	"net/http"
)

type applicationRequest struct {
	TelegramID flexID         `json:"telegram_id"`
	FormData   map[string]any `json:"form_data"`
}

func (a *API) submitApplication(w http.ResponseWriter, r *http.Request) {
	var req applicationRequest
	if err := decode(w, r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	tid, err := telegramID(r.Context(), int64(req.TelegramID))
	if err != nil {
		a.fail(w, r, err)
		return
	}

	// The form builder sends numbers and booleans too; they are stored as text.
	fields := make(map[string]string, len(req.FormData))
	for k, v := range req.FormData {
		if v != nil {
			fields[k] = fmt.Sprint(v)
		}
	}

	receipt, err := a.deps.Forms.SubmitApplication(r.Context(), tid, fields)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.ok(w, envelope{"application_id": receipt.ID, "message": receipt.Message})
}

type sosRequest struct {
	TelegramID  flexID `json:"telegram_id"`
	City        string `json:"city"`
	Contact     string `json:"contact"`
	Description string `json:"description"`
}

func (a *API) submitSOS(w http.ResponseWriter, r *http.Request) {
	var req sosRequest
	if err := decode(w, r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	tid, err := telegramID(r.Context(), int64(req.TelegramID))
	if err != nil {
		a.fail(w, r, err)
		return
	}

	receipt, err := a.deps.Forms.SubmitSOS(r.Context(), tid, req.City, req.Contact, req.Description)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.ok(w, envelope{"sos_id": receipt.ID, "message": receipt.Message})
}

type supportRequest struct {
	TelegramID flexID `json:"telegram_id"`
	Message    string `json:"message"`
}

func (a *API) submitSupport(w http.ResponseWriter, r *http.Request) {
	var req supportRequest
	if err := decode(w, r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	tid, err := telegramID(r.Context(), int64(req.TelegramID))
	if err != nil {
		a.fail(w, r, err)
		return
	}

	receipt, err := a.deps.Forms.SubmitSupport(r.Context(), tid, req.Message)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.ok(w, envelope{"ticket_id": receipt.ID, "message": receipt.Message})
}

type offerJSON struct {
	ID          int64   `json:"id"`
	Description string  `json:"description"`
	RateFrom    float64 `json:"rate_from"`
	RateTo      float64 `json:"rate_to"`
}

func (a *API) offers(w http.ResponseWriter, r *http.Request) {
	grouped, err := a.deps.Forms.Offers(r.Context())
	if err != nil {
		a.fail(w, r, err)
		return
	}

	out := make(map[string][]offerJSON, len(grouped))
	for category, list := range grouped {
		for _, o := range list {
			out[category] = append(out[category], offerJSON{
				ID:          o.ID,
				Description: o.Description,
				RateFrom:    o.RateFrom,
				RateTo:      o.RateTo,
			})
		}
	}
	a.ok(w, envelope{"offers": out})
}
