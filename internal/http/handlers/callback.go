package handlers

import (
	"net/http"

	"github.com/abdulwaheed16/shopster-server-sub000/internal/ads"
)

// AdCallback handles POST /ads/n8n-callback. The shared secret is checked by
// middleware before this runs. Unknown or settled ads are acknowledged with
// 200 so the workflow does not keep retrying.
func (a *App) AdCallback(w http.ResponseWriter, r *http.Request) {
	var payload ads.CallbackPayload
	if err := decode(w, r, &payload); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	if err := a.Ads.HandleCallback(r.Context(), payload); err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, map[string]bool{"received": true})
}
