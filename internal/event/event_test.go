package event

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/shortontech/showfor/internal/detect"
	"github.com/shortontech/showfor/internal/version"
)

func TestNew(t *testing.T) {
	e := New(TypeDetect)
	if _, err := uuid.Parse(e.EventID); err != nil {
		t.Errorf("event id %q is not a uuid: %v", e.EventID, err)
	}
	if e.Type != TypeDetect {
		t.Errorf("type = %v, want %v", e.Type, TypeDetect)
	}
	if New(TypeDetect).EventID == e.EventID {
		t.Error("event ids should be unique")
	}
}

func TestFromDetection(t *testing.T) {
	r := detect.Result{
		UserAgent: "Mozilla/5.0 (Android 13; Mobile; rv:120.0) Gecko/120.0 Firefox/120.0",
		Browser:   detect.Browser{Mozilla: true, Brands: []string{"Firefox"}, Version: version.Parse("120.0")},
		OS:        &detect.OS{Name: detect.OSAndroid, Version: "13"},
		Sources:   []string{detect.SourceUA},
	}
	e := FromDetection(r)

	if e.Type != TypeDetect {
		t.Errorf("type = %v, want detect", e.Type)
	}
	d := e.Detection
	if d == nil {
		t.Fatal("detection should be set")
	}
	if d.BrowserVersion != "120.0" {
		t.Errorf("browser version = %q, want 120.0", d.BrowserVersion)
	}
	if d.OS != detect.OSAndroid || d.OSVersion != "13" || !d.Mobile {
		t.Errorf("os = %+v, want mobile Android 13", d)
	}
	if len(d.Sources) != 1 || d.Sources[0] != detect.SourceUA {
		t.Errorf("sources = %v", d.Sources)
	}
}

func TestFromDetectionUnknown(t *testing.T) {
	e := FromDetection(detect.Result{Browser: detect.NewBrowser()})
	if e.Detection.BrowserVersion != "" || e.Detection.OS != "" {
		t.Errorf("unknown detection should leave version and os empty, got %+v", e.Detection)
	}
}

func TestFromMatch(t *testing.T) {
	e := FromMatch([]string{"fx24", "win"}, false)
	if e.ShowFor == nil || e.ShowFor.Matched == nil {
		t.Fatal("showfor match should be set")
	}
	if *e.ShowFor.Matched {
		t.Error("matched should be false")
	}

	raw, err := json.Marshal(e)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(raw), `"matched":false`) {
		t.Errorf("false match should be serialized, got %s", raw)
	}
	if strings.Contains(string(raw), `"detection"`) {
		t.Errorf("detection should be omitted, got %s", raw)
	}
}

func TestFromRender(t *testing.T) {
	e := FromRender(3, 2, []string{"firefox"})
	if e.Type != TypeRender || e.ShowFor.Shown != 3 || e.ShowFor.Hidden != 2 {
		t.Errorf("unexpected render event %+v", e.ShowFor)
	}
}
