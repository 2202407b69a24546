package httpx

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/shortontech/showfor/internal/detect"
	"github.com/shortontech/showfor/internal/event"
	"github.com/shortontech/showfor/internal/session"
	"github.com/shortontech/showfor/internal/showfor"
	"github.com/shortontech/showfor/internal/store"
)

// ShowForData serves the product catalog.
func (e Env) ShowForData(w http.ResponseWriter, r *http.Request) {
	if e.Catalog == nil {
		writeError(w, http.StatusServiceUnavailable, "no product catalog loaded")
		return
	}
	w.Header().Set("Cache-Control", "public, max-age=300")
	writeJSON(w, http.StatusOK, e.Catalog)
}

// requestForm returns the visitor's stored form, or defaults detected
// from the request headers when there is none.
func (e Env) requestForm(r *http.Request, c *showfor.Catalog) showfor.Form {
	if e.Sessions != nil {
		if id, ok := e.Sessions.ID(r); ok {
			form, err := e.Sessions.Load(r.Context(), id)
			if err == nil {
				return form
			}
			if !errors.Is(err, session.ErrNotFound) {
				e.logger().Warn("session load failed", "session", id, "err", err)
			}
		}
	}
	return e.defaultForm(r, c)
}

func (e Env) defaultForm(r *http.Request, c *showfor.Catalog) showfor.Form {
	res := e.resolve(r.Context(), r.UserAgent(), detect.NewClientHints(r.Header), nil)
	return showfor.Defaults(c, res)
}

func enabledProducts(f showfor.Form) []string {
	var out []string
	for slug, sel := range f {
		if sel.Enabled {
			out = append(out, slug)
		}
	}
	sort.Strings(out)
	return out
}

type matchRequest struct {
	Form     showfor.Form      `json:"form,omitempty"`
	Defaults bool              `json:"defaults,omitempty"` // use detection defaults, ignoring any session
	Criteria []string          `json:"criteria,omitempty"`
	Elements map[string]string `json:"elements,omitempty"` // element id -> data-for attribute
}

type matchResponse struct {
	State    showfor.State   `json:"state"`
	Matched  *bool           `json:"matched,omitempty"`
	Elements map[string]bool `json:"elements,omitempty"`
}

// ShowForMatch evaluates criteria against a form: the posted one, the
// session's, or detection defaults.
func (e Env) ShowForMatch(w http.ResponseWriter, r *http.Request) {
	if e.Catalog == nil {
		writeError(w, http.StatusServiceUnavailable, "no product catalog loaded")
		return
	}
	var req matchRequest
	if !e.decodeJSON(w, r, &req) {
		return
	}

	form := req.Form
	switch {
	case form != nil:
	case req.Defaults:
		form = e.defaultForm(r, e.Catalog)
	default:
		form = e.requestForm(r, e.Catalog).Restrict(e.Catalog)
	}
	state, err := e.Catalog.UpdateState(form)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	resp := matchResponse{State: state}
	if len(req.Criteria) > 0 {
		criteria := showfor.ParseCriteria(strings.Join(req.Criteria, ","))
		matched := e.Catalog.MatchesCriteria(criteria, state)
		resp.Matched = &matched
		e.recordMatch(r, criteria, matched)
	}
	if len(req.Elements) > 0 {
		resp.Elements = make(map[string]bool, len(req.Elements))
		for id, attr := range req.Elements {
			criteria := showfor.ParseCriteria(attr)
			matched := e.Catalog.MatchesCriteria(criteria, state)
			resp.Elements[id] = matched
			e.recordMatch(r, criteria, matched)
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (e Env) recordMatch(r *http.Request, criteria []string, matched bool) {
	if e.Metrics != nil {
		e.Metrics.IncrementMatches(matched)
	}
	e.emit(r, event.FromMatch(criteria, matched))
}

// render applies showfor to an HTML document for the visitor of r.
func (e Env) render(r *http.Request, body []byte) (showfor.Rendered, error) {
	var used showfor.Form
	source := func(c *showfor.Catalog) showfor.Form {
		used = e.requestForm(r, c)
		return used
	}
	out, err := showfor.ApplyDocument(bytes.NewReader(body), e.Catalog, source)
	if err != nil {
		return out, err
	}
	if e.Metrics != nil {
		e.Metrics.AddRenderedElements(out.Shown, out.Hidden)
	}
	e.emit(r, event.FromRender(out.Shown, out.Hidden, enabledProducts(used)))
	return out, nil
}

// ShowForRender rewrites a posted HTML document, hiding the [data-for]
// elements that do not apply to the visitor.
func (e Env) ShowForRender(w http.ResponseWriter, r *http.Request) {
	body, err := e.readBody(w, r)
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
		return
	}
	out, err := e.render(r, body)
	if err != nil {
		if errors.Is(err, showfor.ErrInvalidCatalog) {
			writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		e.logger().Warn("showfor render failed", "err", err)
		writeError(w, http.StatusUnprocessableEntity, "There was an error generating the preview.")
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("X-ShowFor-Shown", strconv.Itoa(out.Shown))
	w.Header().Set("X-ShowFor-Hidden", strconv.Itoa(out.Hidden))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(out.HTML))
}

type stateAction struct {
	Type    string       `json:"type"` // toggle, select, reset
	Product string       `json:"product,omitempty"`
	Enabled bool         `json:"enabled,omitempty"`
	Value   string       `json:"value,omitempty"`
	Form    showfor.Form `json:"form,omitempty"`
}

func (a stateAction) action() (store.Action, bool) {
	switch a.Type {
	case "toggle":
		return store.ToggleProduct{Product: a.Product, Enabled: a.Enabled}, true
	case "select":
		return store.SelectOption{Product: a.Product, Value: a.Value}, true
	case "reset":
		return store.Reset{Form: a.Form}, true
	}
	return nil, false
}

type stateRequest struct {
	Fragment *string       `json:"fragment,omitempty"`
	Actions  []stateAction `json:"actions,omitempty"`
}

type stateResponse struct {
	ID       string        `json:"id"`
	Form     showfor.Form  `json:"form"`
	State    showfor.State `json:"state"`
	Fragment string        `json:"fragment"`
}

// session returns the visitor's session id, issuing a cookie for a new
// one, and the stored form.
func (e Env) session(w http.ResponseWriter, r *http.Request) (string, showfor.Form) {
	id, ok := e.Sessions.ID(r)
	if !ok {
		id = session.NewID()
		http.SetCookie(w, e.Sessions.Cookie(id))
		form := e.defaultForm(r, e.Catalog)
		if err := e.Sessions.Save(r.Context(), id, form); err != nil {
			e.logger().Warn("session save failed", "session", id, "err", err)
		}
		return id, form
	}
	return id, e.requestForm(r, e.Catalog)
}

func (e Env) stateResponse(w http.ResponseWriter, id string, form showfor.Form) {
	form = form.Restrict(e.Catalog)
	state, err := e.Catalog.UpdateState(form)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, stateResponse{
		ID:       id,
		Form:     form,
		State:    state,
		Fragment: session.EncodeFragment(form),
	})
}

// GetState returns the visitor's selector form and resolved state.
func (e Env) GetState(w http.ResponseWriter, r *http.Request) {
	if e.Sessions == nil || e.Catalog == nil {
		writeError(w, http.StatusServiceUnavailable, "sessions not configured")
		return
	}
	id, form := e.session(w, r)
	e.stateResponse(w, id, form)
}

// stateAction validates a and converts it to a store action.
func (e Env) stateAction(a stateAction) (store.Action, error) {
	action, ok := a.action()
	if !ok {
		return nil, fmt.Errorf("unknown action type %q", a.Type)
	}
	switch a.Type {
	case "reset":
		if _, err := e.Catalog.UpdateState(a.Form); err != nil {
			return nil, err
		}
		return action, nil
	case "select":
		typ, value, err := showfor.DecodeOption(a.Value)
		if err != nil {
			return nil, err
		}
		if typ == showfor.OptionVersion {
			if _, owner, ok := e.Catalog.Version(value); !ok || owner != a.Product {
				return nil, fmt.Errorf("unknown version %q for product %q", value, a.Product)
			}
		}
	}
	if !e.Catalog.HasProduct(a.Product) {
		return nil, fmt.Errorf("unknown product %q", a.Product)
	}
	return action, nil
}

// PutState applies a fragment and store actions to the visitor's form.
// The whole request is validated first; a rejected request leaves the
// session untouched. Every change is persisted to the session.
func (e Env) PutState(w http.ResponseWriter, r *http.Request) {
	if e.Sessions == nil || e.Catalog == nil {
		writeError(w, http.StatusServiceUnavailable, "sessions not configured")
		return
	}
	var req stateRequest
	if !e.decodeJSON(w, r, &req) {
		return
	}

	var fragment showfor.Form
	if req.Fragment != nil {
		decoded, err := session.DecodeFragment(e.Catalog, *req.Fragment)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		fragment = decoded
	}
	actions := make([]store.Action, 0, len(req.Actions))
	for _, a := range req.Actions {
		action, err := e.stateAction(a)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		actions = append(actions, action)
	}

	id, form := e.session(w, r)
	st := store.NewForm(form)
	// Persist outlives the request context so a cancelled client does not
	// drop a save.
	stop := e.Sessions.Persist(context.WithoutCancel(r.Context()), id, st)
	defer stop()

	if fragment != nil {
		merged := make(showfor.Form, len(form)+len(fragment))
		for slug, sel := range st.State() {
			merged[slug] = sel
		}
		for slug, sel := range fragment {
			merged[slug] = sel
		}
		st.Dispatch(store.Reset{Form: merged})
	}
	for _, action := range actions {
		st.Dispatch(action)
	}

	form = st.State()
	ev := event.New(event.TypeState)
	ev.ShowFor = &event.ShowForInfo{Products: enabledProducts(form)}
	e.emit(r, ev)

	e.stateResponse(w, id, form)
}
