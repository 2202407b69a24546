package session

import (
	"fmt"
	"slices"
	"strings"

	"github.com/shortontech/showfor/internal/showfor"
)

// EncodeFragment serializes form as "firefox=on,win8,fx24;mobile=off".
// Products are sorted; option types are dropped since slugs identify them.
func EncodeFragment(form showfor.Form) string {
	products := make([]string, 0, len(form))
	for p := range form {
		products = append(products, p)
	}
	slices.Sort(products)

	parts := make([]string, 0, len(products))
	for _, p := range products {
		sel := form[p]
		fields := []string{"off"}
		if sel.Enabled {
			fields[0] = "on"
		}
		for _, opt := range sel.Options {
			typ, value, err := showfor.DecodeOption(opt)
			if err != nil || typ == showfor.OptionProduct {
				continue
			}
			fields = append(fields, value)
		}
		parts = append(parts, p+"="+strings.Join(fields, ","))
	}
	return strings.Join(parts, ";")
}

// DecodeFragment parses a fragment written by EncodeFragment. Products and
// slugs unknown to c are skipped.
func DecodeFragment(c *showfor.Catalog, fragment string) (showfor.Form, error) {
	fragment = strings.TrimPrefix(fragment, "#")
	form := make(showfor.Form)
	if fragment == "" {
		return form, nil
	}

	for _, part := range strings.Split(fragment, ";") {
		product, rest, ok := strings.Cut(part, "=")
		if !ok || product == "" {
			return nil, fmt.Errorf("%w: %q", ErrInvalidFragment, part)
		}
		fields := strings.Split(rest, ",")

		var sel showfor.Selection
		switch fields[0] {
		case "on":
			sel.Enabled = true
		case "off":
		default:
			return nil, fmt.Errorf("%w: %q", ErrInvalidFragment, part)
		}
		if !c.HasProduct(product) {
			continue
		}

		for _, slug := range fields[1:] {
			if _, _, ok := c.Version(slug); ok {
				sel.Options = append(sel.Options, showfor.EncodeOption(showfor.OptionVersion, slug))
			} else if c.HasPlatform(slug) {
				sel.Options = append(sel.Options, showfor.EncodeOption(showfor.OptionPlatform, slug))
			}
		}
		form[product] = sel
	}
	return form, nil
}
