package showfor

import (
	"fmt"
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// FormSource yields the reader's form for the catalog a document uses.
type FormSource func(c *Catalog) Form

// Rendered is a document with showfor applied.
type Rendered struct {
	HTML   string
	Shown  int
	Hidden int
}

// ApplyDocument evaluates every [data-for] element of an HTML document and
// marks the ones that do not apply with the hidden attribute. The
// document's own .showfor-data catalog takes precedence over fallback.
func ApplyDocument(r io.Reader, fallback *Catalog, source FormSource) (Rendered, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return Rendered{}, fmt.Errorf("parse document: %w", err)
	}

	catalog := fallback
	if embedded, ok, err := documentCatalog(doc); err != nil {
		return Rendered{}, err
	} else if ok {
		catalog = embedded
	}
	if catalog == nil {
		return Rendered{}, fmt.Errorf("%w: document has no showfor data", ErrInvalidCatalog)
	}

	state, err := catalog.UpdateState(source(catalog).Restrict(catalog))
	if err != nil {
		return Rendered{}, err
	}

	var out Rendered
	doc.Find("[data-for]").Each(func(_ int, s *goquery.Selection) {
		if catalog.MatchesCriteria(ParseCriteria(s.AttrOr("data-for", "")), state) {
			s.RemoveAttr("hidden")
			out.Shown++
		} else {
			s.SetAttr("hidden", "")
			out.Hidden++
		}
	})

	out.HTML, err = doc.Html()
	if err != nil {
		return Rendered{}, fmt.Errorf("render document: %w", err)
	}
	return out, nil
}

// documentCatalog reads the first .showfor-data element, either from its
// data-showfor-data attribute or its text (a JSON script tag).
func documentCatalog(doc *goquery.Document) (*Catalog, bool, error) {
	el := doc.Find(".showfor-data").First()
	if el.Length() == 0 {
		return nil, false, nil
	}
	raw, ok := el.Attr("data-showfor-data")
	if !ok {
		raw = el.Text()
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, false, nil
	}
	c, err := ParseCatalogJSON([]byte(raw))
	if err != nil {
		return nil, false, err
	}
	return c, true, nil
}
