package markup

import (
	"fmt"
	"net/url"
	"slices"
	"strings"
)

// Kind discriminates the toolbar buttons.
type Kind string

const (
	KindBold            Kind = "bold"
	KindItalic          Kind = "italic"
	KindLink            Kind = "link"
	KindMedia           Kind = "media"
	KindCannedResponses Kind = "cannedresponses"
	KindQuote           Kind = "quote"
)

// Control describes how a button is drawn.
type Control struct {
	Kind    Kind     `json:"kind"`
	Label   string   `json:"label"`
	Title   string   `json:"title"`
	Choices []string `json:"choices,omitempty"`
}

// Input carries what the button's dialog collected, if it has one.
type Input struct {
	Target    string `json:"target,omitempty"`
	Text      string `json:"text,omitempty"`
	External  bool   `json:"external,omitempty"`
	MediaType string `json:"media_type,omitempty"`
	Name      string `json:"name,omitempty"`
	Response  string `json:"response,omitempty"`
}

// Button is one toolbar button.
type Button interface {
	Kind() Kind
	Render() Control
	HandleClick(e Editor, in Input) (Editor, error)
}

// simple wraps the selection in a fixed pair of markers.
type simple struct {
	kind              Kind
	label             string
	title             string
	openTag, closeTag string
	defaultText       string
}

func (b simple) Kind() Kind { return b.kind }

func (b simple) Render() Control {
	return Control{Kind: b.kind, Label: b.label, Title: b.title}
}

func (b simple) HandleClick(e Editor, _ Input) (Editor, error) {
	return e.wrap(b.openTag, b.closeTag, b.defaultText)
}

func Bold() Button {
	return simple{kind: KindBold, label: "B", title: "Bold", openTag: "'''", closeTag: "'''", defaultText: "bold text"}
}

func Italic() Button {
	return simple{kind: KindItalic, label: "I", title: "Italic", openTag: "''", closeTag: "''", defaultText: "italic text"}
}

func Quote() Button {
	return simple{kind: KindQuote, label: "“", title: "Quote", openTag: "<blockquote>\n", closeTag: "\n</blockquote>", defaultText: "quoted text"}
}

type link struct{}

func Link() Button { return link{} }

func (link) Kind() Kind { return KindLink }

func (link) Render() Control {
	return Control{Kind: KindLink, Label: "Link", Title: "Insert a link"}
}

// HandleClick inserts [[Target|text]] for articles or [url text] for
// external pages. The link text defaults to the selection, then the target.
func (link) HandleClick(e Editor, in Input) (Editor, error) {
	target := strings.TrimSpace(in.Target)
	if target == "" {
		return e, ErrMissingTarget
	}
	text := in.Text
	if text == "" {
		text = e.Selected()
	}

	var out string
	if in.External {
		u, err := url.Parse(target)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return e, fmt.Errorf("%w: %q", ErrInvalidURL, target)
		}
		if text == "" {
			out = "[" + target + "]"
		} else {
			out = "[" + target + " " + text + "]"
		}
	} else {
		if text == "" || text == target {
			out = "[[" + target + "]]"
		} else {
			out = "[[" + target + "|" + text + "]]"
		}
	}
	n := len([]rune(out))
	return e.replace(out, n, n)
}

type media struct{}

func Media() Button { return media{} }

func (media) Kind() Kind { return KindMedia }

func (media) Render() Control {
	return Control{Kind: KindMedia, Label: "Media", Title: "Insert media", Choices: []string{"image", "video"}}
}

func (media) HandleClick(e Editor, in Input) (Editor, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return e, ErrMissingMedia
	}
	prefix := "Image:"
	if strings.EqualFold(in.MediaType, "video") {
		prefix = "Video:"
	}
	out := "[[" + prefix + name + "]]"
	n := len([]rune(out))
	return e.replace(out, n, n)
}

type cannedResponses struct {
	responses map[string]string
}

// CannedResponses inserts one of responses, keyed by title.
func CannedResponses(responses map[string]string) Button {
	return cannedResponses{responses: responses}
}

func (cannedResponses) Kind() Kind { return KindCannedResponses }

func (b cannedResponses) Render() Control {
	titles := make([]string, 0, len(b.responses))
	for t := range b.responses {
		titles = append(titles, t)
	}
	slices.Sort(titles)
	return Control{Kind: KindCannedResponses, Label: "Common responses", Title: "Insert a common response", Choices: titles}
}

func (b cannedResponses) HandleClick(e Editor, in Input) (Editor, error) {
	text, ok := b.responses[in.Response]
	if !ok {
		return e, fmt.Errorf("%w: %q", ErrUnknownResponse, in.Response)
	}
	n := len([]rune(text))
	return e.replace(text, n, n)
}
