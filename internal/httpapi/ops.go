package httpapi

import (
	"log/slog"
	"net/http"
)

func (a *API) livez(w http.ResponseWriter, r *http.Request) {
	a.probe(w, r, a.deps.Probes == nil || a.deps.Probes.Liveness(r.Context()) == nil)
}

func (a *API) readyz(w http.ResponseWriter, r *http.Request) {
	if a.deps.Probes == nil {
		a.probe(w, r, true)
		return
	}
	err := a.deps.Probes.Readiness(r.Context())
	if err != nil {
		a.log.Warn("not ready", slog.Any("error", err))
	}
	a.probe(w, r, err == nil)
}

func (a *API) probe(w http.ResponseWriter, _ *http.Request, up bool) {
	if !up {
		writeJSON(w, http.StatusServiceUnavailable, envelope{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, envelope{"status": "ok"})
}

// health reports component status and the user count. It stays 200 while degraded
// so dashboards can read the body.
func (a *API) health(w http.ResponseWriter, r *http.Request) {
	body := envelope{"status": "ok"}

	if a.deps.Health != nil {
		report := a.deps.Health.Check(r.Context())
		body["components"] = report.Components
		if !report.Healthy {
			body["status"] = "degraded"
		}
	}

	if a.deps.Users != nil {
		count, err := a.deps.Users.Count(r.Context())
		if err != nil {
			a.log.Warn("health: count users", slog.Any("error", err))
			body["status"] = "degraded"
		} else {
			body["users"] = count
		}
	}

	writeJSON(w, http.StatusOK, body)
}
