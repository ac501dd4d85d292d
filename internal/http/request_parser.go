package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"smartbudget/internal/analytics"
	"smartbudget/internal/core"
)

var errBadRequest = errors.New("bad request")

const dateLayout = "2006-01-02"

// transactionRequest is the POST body. Amount accepts a JSON string or
// number; Date accepts YYYY-MM-DD (in the store zone) or RFC 3339.
type transactionRequest struct {
	Type        core.TransactionType `json:"type"`
	Amount      decimal.Decimal      `json:"amount"`
	Category    core.Category        `json:"category"`
	Description string               `json:"description"`
	Date        string               `json:"date"`
}

type transactionPatchRequest struct {
	Type        *core.TransactionType `json:"type"`
	Amount      *decimal.Decimal      `json:"amount"`
	Category    *core.Category        `json:"category"`
	Description *string               `json:"description"`
	Date        *string               `json:"date"`
}

type settingsPatchRequest struct {
	Language      *core.Language `json:"language"`
	Currency      *string        `json:"currency"`
	Notifications *bool          `json:"notifications"`
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: empty body", errBadRequest)
		}
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	if dec.More() {
		return fmt.Errorf("%w: trailing data after JSON body", errBadRequest)
	}
	return nil
}

func parseDate(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.ParseInLocation(dateLayout, s, loc); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: date %q must be YYYY-MM-DD or RFC 3339", errBadRequest, s)
	}
	return t, nil
}

// draft converts the request into a validated draft with the category label
// substituted for an empty description.
func (req transactionRequest) draft(loc *time.Location) (core.TransactionDraft, error) {
	date, err := parseDate(req.Date, loc)
	if err != nil {
		return core.TransactionDraft{}, err
	}
	d := core.TransactionDraft{
		Type:        req.Type,
		Amount:      req.Amount,
		Category:    req.Category,
		Description: sanitizeInput(req.Description),
		Date:        date,
	}
	if err := d.Validate(); err != nil {
		return core.TransactionDraft{}, err
	}
	return d.WithDefaultDescription(), nil
}

func (req transactionPatchRequest) patch(loc *time.Location) (core.TransactionPatch, error) {
	p := core.TransactionPatch{
		Type:     req.Type,
		Amount:   req.Amount,
		Category: req.Category,
	}
	if req.Description != nil {
		desc := sanitizeInput(*req.Description)
		p.Description = &desc
	}
	if req.Date != nil {
		date, err := parseDate(*req.Date, loc)
		if err != nil {
			return core.TransactionPatch{}, err
		}
		p.Date = &date
	}
	if err := p.Validate(); err != nil {
		return core.TransactionPatch{}, err
	}
	return p, nil
}

func (req settingsPatchRequest) patch() (core.SettingsPatch, error) {
	if req.Language != nil && !req.Language.IsValid() {
		return core.SettingsPatch{}, fmt.Errorf("%w: unsupported language %q", errBadRequest, *req.Language)
	}
	if req.Currency != nil {
		c := strings.ToUpper(strings.TrimSpace(*req.Currency))
		if c == "" {
			return core.SettingsPatch{}, fmt.Errorf("%w: currency cannot be empty", errBadRequest)
		}
		req.Currency = &c
	}
	return core.SettingsPatch{
		Language:      req.Language,
		Currency:      req.Currency,
		Notifications: req.Notifications,
	}, nil
}

// parseQuery reads ?type=&category=&limit= for the list endpoint.
func parseQuery(r *http.Request) (analytics.Query, error) {
	q := r.URL.Query()
	var out analytics.Query

	if v := strings.TrimSpace(q.Get("type")); v != "" {
		out.Type = core.TransactionType(v)
		if !out.Type.IsValid() {
			return out, core.ErrInvalidType
		}
	}
	if v := strings.TrimSpace(q.Get("category")); v != "" {
		out.Category = core.Category(v)
		if !out.Category.IsValid() {
			return out, core.ErrInvalidCategory
		}
	}
	if v := strings.TrimSpace(q.Get("limit")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return out, fmt.Errorf("%w: limit must be a non-negative integer", errBadRequest)
		}
		out.Limit = n
	}
	return out, nil
}

// parseYearMonth reads the {year}/{month} path values; month is 1-based.
func parseYearMonth(r *http.Request) (int, time.Month, error) {
	year, err := strconv.Atoi(r.PathValue("year"))
	if err != nil || year < 1 || year > 9999 {
		return 0, 0, fmt.Errorf("%w: invalid year %q", errBadRequest, r.PathValue("year"))
	}
	month, err := strconv.Atoi(r.PathValue("month"))
	if err != nil || month < 1 || month > 12 {
		return 0, 0, fmt.Errorf("%w: invalid month %q", errBadRequest, r.PathValue("month"))
	}
	return year, time.Month(month), nil
}

// sanitizeInput removes control characters except tab and newlines, and
// trims whitespace.
func sanitizeInput(s string) string {
	return strings.TrimSpace(strings.Map(func(r rune) rune {
		if r < 32 && r != '\t' && r != '\n' && r != '\r' {
			return -1
		}
		return r
	}, s))
}
