package httpapi

import "net/http"

func (a *API) newsSubscribe(w http.ResponseWriter, r *http.Request) {
	tid, err := a.bodyTelegramID(w, r)
	if err != nil {
		a.fail(w, r, err)
		return
	}

	msg, err := a.deps.News.Subscribe(r.Context(), tid)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.ok(w, envelope{"subscribed": true, "message": msg})
}

func (a *API) newsUnsubscribe(w http.ResponseWriter, r *http.Request) {
	tid, err := a.bodyTelegramID(w, r)
	if err != nil {
		a.fail(w, r, err)
		return
	}

	msg, err := a.deps.News.Unsubscribe(r.Context(), tid)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.ok(w, envelope{"subscribed": false, "message": msg})
}
