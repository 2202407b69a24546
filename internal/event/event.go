package event

import (
	"github.com/google/uuid"

	"github.com/shortontech/showfor/internal/detect"
)

// Event types.
const (
	TypeDetect = "detect"
	TypeMatch  = "match"
	TypeRender = "render"
	TypeState  = "state"
)

// High-level envelope. Optional fields are omitted when empty.
type Event struct {
	EventID string `json:"event_id,omitempty"`
	TS      string `json:"ts,omitempty"`   // ISO8601
	Type    string `json:"type,omitempty"` // "detect", "match", ...

	Request   RequestInfo    `json:"request,omitempty"`
	Detection *DetectionInfo `json:"detection,omitempty"`
	ShowFor   *ShowForInfo   `json:"showfor,omitempty"`
	Server    ServerMeta     `json:"server,omitempty"`
}

// --- Request ---

type RequestInfo struct {
	Method           string `json:"method,omitempty"`
	Path             string `json:"path,omitempty"`
	Referrer         string `json:"referrer,omitempty"`
	ReferrerHostname string `json:"referrer_hostname,omitempty"`
	SessionID        string `json:"session_id,omitempty"`
}

// --- Detection ---

type DetectionInfo struct {
	UA             string   `json:"ua,omitempty"`
	Mozilla        bool     `json:"mozilla"`
	Brands         []string `json:"brands,omitempty"`
	BrowserVersion string   `json:"browser_version,omitempty"`
	OS             string   `json:"os,omitempty"`
	OSVersion      string   `json:"os_version,omitempty"`
	Mobile         bool     `json:"mobile,omitempty"`
	Sources        []string `json:"sources,omitempty"`
}

// --- ShowFor ---

type ShowForInfo struct {
	Criteria []string `json:"criteria,omitempty"`
	Matched  *bool    `json:"matched,omitempty"`
	Shown    int      `json:"shown,omitempty"`
	Hidden   int      `json:"hidden,omitempty"`
	Products []string `json:"products,omitempty"` // enabled products of the applied state
}

// --- Server enrich ---

type ServerMeta struct {
	IP                string `json:"ip_hash,omitempty"` // hash of client IP
	HeaderFingerprint string `json:"header_fingerprint,omitempty"`
	ClientHints       bool   `json:"client_hints,omitempty"` // Sec-CH-UA-Platform was sent
}

// New returns an event of type typ with a fresh id.
func New(typ string) Event {
	return Event{EventID: uuid.NewString(), Type: typ}
}

// FromDetection builds a detect event from a detection result.
func FromDetection(r detect.Result) Event {
	e := New(TypeDetect)
	info := &DetectionInfo{
		UA:      r.UserAgent,
		Mozilla: r.Browser.Mozilla,
		Brands:  r.Browser.Brands,
	}
	if r.Browser.Version.Known() {
		info.BrowserVersion = r.Browser.Version.String()
	}
	if r.OS != nil {
		info.OS = r.OS.Name
		info.OSVersion = r.OS.Version
		info.Mobile = r.OS.Mobile()
	}
	info.Sources = r.Sources
	e.Detection = info
	return e
}

// FromMatch builds a match event for one criteria evaluation.
func FromMatch(criteria []string, matched bool) Event {
	e := New(TypeMatch)
	e.ShowFor = &ShowForInfo{Criteria: criteria, Matched: &matched}
	return e
}

// FromRender builds a render event from the element counts of a document.
func FromRender(shown, hidden int, products []string) Event {
	e := New(TypeRender)
	e.ShowFor = &ShowForInfo{Shown: shown, Hidden: hidden, Products: products}
	return e
}
