// Package showfor decides which pieces of article content apply to the
// reader's selected product, platform and version.
//
// Content is tagged with comma-separated criteria such as "fx24",
// "not win" or "=fx25". A Catalog names the known products, platforms and
// versions; a State holds the reader's current selection; MatchesCriteria
// combines the two. Criteria naming products are OR'ed together, criteria
// naming platforms are OR'ed together, and the two groups are AND'ed.
package showfor
