package store

import (
	"slices"
	"strings"

	"github.com/shortontech/showfor/internal/showfor"
)

// ToggleProduct flips a product's checkbox.
type ToggleProduct struct {
	Product string
	Enabled bool
}

// SelectOption selects a "type:value" option for a product, replacing any
// option of the same type.
type SelectOption struct {
	Product string
	Value   string
}

// Reset replaces the whole form.
type Reset struct {
	Form showfor.Form
}

// ReduceForm is the reducer for the ShowFor selector form.
func ReduceForm(form showfor.Form, action Action) showfor.Form {
	switch a := action.(type) {
	case ToggleProduct:
		next := cloneForm(form)
		sel := next[a.Product]
		sel.Enabled = a.Enabled
		next[a.Product] = sel
		return next

	case SelectOption:
		typ, _, err := showfor.DecodeOption(a.Value)
		if err != nil {
			return form
		}
		next := cloneForm(form)
		sel := next[a.Product]
		sel.Options = slices.DeleteFunc(sel.Options, func(opt string) bool {
			return strings.HasPrefix(opt, typ+":")
		})
		sel.Options = append(sel.Options, a.Value)
		next[a.Product] = sel
		return next

	case Reset:
		return cloneForm(a.Form)
	}
	return form
}

// NewForm creates a store for a ShowFor form.
func NewForm(initial showfor.Form) *Store[showfor.Form] {
	return New(cloneForm(initial), ReduceForm)
}

func cloneForm(f showfor.Form) showfor.Form {
	out := make(showfor.Form, len(f))
	for k, v := range f {
		v.Options = slices.Clone(v.Options)
		out[k] = v
	}
	return out
}
