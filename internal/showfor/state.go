package showfor

import (
	"fmt"
	"strings"
)

// VersionRange is the selected version of a product.
type VersionRange struct {
	Slug string  `json:"slug"`
	Min  float64 `json:"min"`
	Max  float64 `json:"max"`
}

// ProductState is the reader's selection for one product.
type ProductState struct {
	Enabled  bool          `json:"enabled"`
	Platform string        `json:"platform,omitempty"`
	Version  *VersionRange `json:"version,omitempty"`
}

// State maps product slug to selection. It holds exactly one entry per
// catalog product.
type State map[string]ProductState

// EnabledPlatforms lists the platforms selected for enabled products.
func (s State) EnabledPlatforms() []string {
	var out []string
	for _, p := range s {
		if p.Enabled {
			out = append(out, p.Platform)
		}
	}
	return out
}

// Option types of an encoded "type:value" select option.
const (
	OptionProduct  = "product"
	OptionPlatform = "platform"
	OptionVersion  = "version"
)

// Selection mirrors one product's controls: the checkbox and the values of
// the selected options.
type Selection struct {
	Enabled bool     `json:"enabled"`
	Options []string `json:"options,omitempty"`
}

// Form is the raw state of every product's controls.
type Form map[string]Selection

// EncodeOption builds a "type:value" option value.
func EncodeOption(typ, value string) string { return typ + ":" + value }

// DecodeOption splits a "type:value" option value.
func DecodeOption(s string) (typ, value string, err error) {
	typ, value, ok := strings.Cut(s, ":")
	if !ok || typ == "" || value == "" {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidOption, s)
	}
	return typ, value, nil
}

// UpdateState rebuilds the whole state from form. Products missing from
// form are present and disabled.
func (c *Catalog) UpdateState(form Form) (State, error) {
	for slug := range form {
		if !c.HasProduct(slug) {
			return nil, fmt.Errorf("%w: %q", ErrUnknownProduct, slug)
		}
	}

	state := make(State, len(c.Products))
	for _, p := range c.Products {
		sel := form[p.Slug]
		ps := ProductState{Enabled: sel.Enabled}

		for _, opt := range sel.Options {
			typ, value, err := DecodeOption(opt)
			if err != nil {
				return nil, err
			}
			switch typ {
			case OptionPlatform:
				ps.Platform = value
			case OptionVersion:
				v, owner, ok := c.Version(value)
				if !ok {
					return nil, fmt.Errorf("%w: %q", ErrUnknownVersion, value)
				}
				if owner != p.Slug {
					return nil, fmt.Errorf("%w: %q is a %s version", ErrInvalidOption, opt, owner)
				}
				ps.Version = &VersionRange{Slug: v.Slug, Min: v.MinVersion, Max: v.MaxVersion}
			case OptionProduct:
			default:
				return nil, fmt.Errorf("%w: %q", ErrInvalidOption, opt)
			}
		}
		state[p.Slug] = ps
	}
	return state, nil
}

// Restrict drops products and options the catalog does not know, so a form
// saved against one catalog can be applied to another.
func (f Form) Restrict(c *Catalog) Form {
	out := make(Form, len(f))
	for slug, sel := range f {
		if !c.HasProduct(slug) {
			continue
		}
		kept := Selection{Enabled: sel.Enabled}
		for _, opt := range sel.Options {
			typ, value, err := DecodeOption(opt)
			if err != nil {
				continue
			}
			switch typ {
			case OptionPlatform, OptionProduct:
				kept.Options = append(kept.Options, opt)
			case OptionVersion:
				if _, owner, ok := c.Version(value); ok && owner == slug {
					kept.Options = append(kept.Options, opt)
				}
			}
		}
		out[slug] = kept
	}
	return out
}
