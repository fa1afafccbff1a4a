package httpapi

import (
	"net/http"
)

func (a *API) dailyRates(w http.ResponseWriter, r *http.Request) {
	if a.daily == nil {
		writeError(w, r, http.StatusNotFound, "daily rates are not configured")
		return
	}
	snap, err := a.daily.Today(r.Context())
	if err != nil {
		writeError(w, r, http.StatusFailedDependency, "daily rates unavailable")
		return
	}
	writeJSON(w, http.StatusOK, snap)
}
