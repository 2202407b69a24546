package httpx

import (
	"errors"
	"net/http"

	"github.com/shortontech/showfor/internal/filters"
	"github.com/shortontech/showfor/internal/markup"
)

// MarkupToolbar describes the editor toolbar buttons.
func (e Env) MarkupToolbar(w http.ResponseWriter, r *http.Request) {
	if e.Toolbar == nil {
		writeError(w, http.StatusServiceUnavailable, "toolbar not configured")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"controls": e.Toolbar.Controls()})
}

type applyRequest struct {
	Kind   markup.Kind   `json:"kind"`
	Editor markup.Editor `json:"editor"`
	Input  markup.Input  `json:"input"`
}

// MarkupApply runs one toolbar button against the posted editor contents.
func (e Env) MarkupApply(w http.ResponseWriter, r *http.Request) {
	if e.Toolbar == nil {
		writeError(w, http.StatusServiceUnavailable, "toolbar not configured")
		return
	}
	var req applyRequest
	if !e.decodeJSON(w, r, &req) {
		return
	}
	out, err := e.Toolbar.Click(req.Kind, req.Editor, req.Input)
	switch {
	case errors.Is(err, markup.ErrUnknownButton):
		writeError(w, http.StatusNotFound, err.Error())
		return
	case err != nil:
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"editor": out})
}

// DashboardFilters validates dashboard filter query parameters and
// returns them in canonical form with their re-encoded query string.
func (e Env) DashboardFilters(w http.ResponseWriter, r *http.Request) {
	f, err := filters.Decode(r.URL.Query())
	if err == nil {
		f, err = f.Validate()
	}
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	query, err := f.Encode()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"filters": f, "query": query})
}

// AccountEmail validates the email address of the account settings form.
func (e Env) AccountEmail(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if !e.decodeJSON(w, r, &req) {
		return
	}
	addr, err := filters.ValidateEmail(req.Email)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"email": addr})
}
