// Package filters serializes the dashboard filter form to and from query
// strings and validates it.
package filters

import (
	"errors"
	"fmt"
	"net/mail"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/go-querystring/query"
	"golang.org/x/text/language"
)

// DateLayout is the format of From and To.
const DateLayout = "2006-01-02"

var (
	ErrInvalidDateRange = errors.New("filters: start date must not be after end date")
	ErrInvalidDate      = errors.New("filters: invalid date")
	ErrInvalidLocale    = errors.New("filters: invalid locale")
	ErrInvalidPage      = errors.New("filters: invalid page")
	ErrEmptyEmail       = errors.New("filters: email is required")
	ErrInvalidEmail     = errors.New("filters: invalid email")
)

// Filters is the dashboard filter form.
type Filters struct {
	Locale  string `url:"locale,omitempty" json:"locale,omitempty"`
	Product string `url:"product,omitempty" json:"product,omitempty"`
	Topic   string `url:"topic,omitempty" json:"topic,omitempty"`
	From    string `url:"from,omitempty" json:"from,omitempty"`
	To      string `url:"to,omitempty" json:"to,omitempty"`
	Page    int    `url:"page,omitempty" json:"page,omitempty"`
}

// Encode returns the query string for f, leaving out empty fields.
func (f Filters) Encode() (string, error) {
	v, err := query.Values(f)
	if err != nil {
		return "", fmt.Errorf("encode filters: %w", err)
	}
	return v.Encode(), nil
}

// Decode reads filters from a query.
func Decode(v url.Values) (Filters, error) {
	f := Filters{
		Locale:  strings.TrimSpace(v.Get("locale")),
		Product: strings.TrimSpace(v.Get("product")),
		Topic:   strings.TrimSpace(v.Get("topic")),
		From:    strings.TrimSpace(v.Get("from")),
		To:      strings.TrimSpace(v.Get("to")),
	}
	if p := v.Get("page"); p != "" {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return Filters{}, fmt.Errorf("%w: %q", ErrInvalidPage, p)
		}
		f.Page = n
	}
	return f, nil
}

// Validate checks the date range and returns f with its locale in
// canonical BCP 47 form.
func (f Filters) Validate() (Filters, error) {
	from, err := parseDate(f.From)
	if err != nil {
		return f, err
	}
	to, err := parseDate(f.To)
	if err != nil {
		return f, err
	}
	if !from.IsZero() && !to.IsZero() && from.After(to) {
		return f, ErrInvalidDateRange
	}

	if f.Locale != "" {
		tag, err := language.Parse(f.Locale)
		if err != nil {
			return f, fmt.Errorf("%w: %q", ErrInvalidLocale, f.Locale)
		}
		f.Locale = tag.String()
	}
	return f, nil
}

func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return t, nil
}

// ValidateEmail checks the email field of the account forms.
func ValidateEmail(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", ErrEmptyEmail
	}
	addr, err := mail.ParseAddress(s)
	if err != nil || addr.Name != "" {
		return "", fmt.Errorf("%w: %q", ErrInvalidEmail, s)
	}
	return addr.Address, nil
}
