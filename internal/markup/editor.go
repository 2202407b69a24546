// Package markup implements the wiki editor toolbar: each button rewrites
// the textarea contents around the current selection.
package markup

import "fmt"

// Editor is a textarea: its text and selection, in runes.
type Editor struct {
	Text     string `json:"text"`
	SelStart int    `json:"sel_start"`
	SelEnd   int    `json:"sel_end"`
}

func (e Editor) check() ([]rune, error) {
	r := []rune(e.Text)
	if e.SelStart < 0 || e.SelEnd < e.SelStart || e.SelEnd > len(r) {
		return nil, fmt.Errorf("%w: [%d,%d) of %d", ErrInvalidSelection, e.SelStart, e.SelEnd, len(r))
	}
	return r, nil
}

// Selected returns the selected text.
func (e Editor) Selected() string {
	r, err := e.check()
	if err != nil {
		return ""
	}
	return string(r[e.SelStart:e.SelEnd])
}

// replace swaps the selection for text and selects the runes
// [selFrom, selTo) of text.
func (e Editor) replace(text string, selFrom, selTo int) (Editor, error) {
	r, err := e.check()
	if err != nil {
		return e, err
	}
	out := make([]rune, 0, len(r)+len(text))
	out = append(out, r[:e.SelStart]...)
	out = append(out, []rune(text)...)
	out = append(out, r[e.SelEnd:]...)
	return Editor{
		Text:     string(out),
		SelStart: e.SelStart + selFrom,
		SelEnd:   e.SelStart + selTo,
	}, nil
}

// wrap surrounds the selection with openTag and closeTag, inserting
// defaultText when nothing is selected. The wrapped text stays selected.
func (e Editor) wrap(openTag, closeTag, defaultText string) (Editor, error) {
	if _, err := e.check(); err != nil {
		return e, err
	}
	inner := e.Selected()
	if inner == "" {
		inner = defaultText
	}
	n := len([]rune(openTag))
	return e.replace(openTag+inner+closeTag, n, n+len([]rune(inner)))
}
