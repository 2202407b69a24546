package markup

import "fmt"

// DefaultKinds is the toolbar layout of the answer and article editors.
var DefaultKinds = []Kind{KindBold, KindItalic, KindLink, KindMedia, KindQuote, KindCannedResponses}

// Toolbar is an ordered set of buttons.
type Toolbar struct {
	buttons []Button
	byKind  map[Kind]Button
}

// NewToolbar builds the buttons for kinds, in order. responses feeds the
// canned responses button.
func NewToolbar(responses map[string]string, kinds ...Kind) (*Toolbar, error) {
	t := &Toolbar{byKind: make(map[Kind]Button, len(kinds))}
	for _, k := range kinds {
		var b Button
		switch k {
		case KindBold:
			b = Bold()
		case KindItalic:
			b = Italic()
		case KindLink:
			b = Link()
		case KindMedia:
			b = Media()
		case KindCannedResponses:
			b = CannedResponses(responses)
		case KindQuote:
			b = Quote()
		default:
			return nil, fmt.Errorf("%w: %q", ErrUnknownButton, k)
		}
		if _, dup := t.byKind[k]; dup {
			continue
		}
		t.buttons = append(t.buttons, b)
		t.byKind[k] = b
	}
	return t, nil
}

// Controls renders every button.
func (t *Toolbar) Controls() []Control {
	out := make([]Control, len(t.buttons))
	for i, b := range t.buttons {
		out[i] = b.Render()
	}
	return out
}

// Click runs the button of kind k.
func (t *Toolbar) Click(k Kind, e Editor, in Input) (Editor, error) {
	b, ok := t.byKind[k]
	if !ok {
		return e, fmt.Errorf("%w: %q", ErrUnknownButton, k)
	}
	return b.HandleClick(e, in)
}
