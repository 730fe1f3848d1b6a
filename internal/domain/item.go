package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"
)

// ErrMissingSourceURL is returned when a record carries no source page URL.
var ErrMissingSourceURL = errors.New("missing sourceUrl")

// minPlausibleCodeLength is the shortest coupon code considered real.
const minPlausibleCodeLength = 3

// ItemMetadata is the free-form metadata sub-object scrapers attach to items.
type ItemMetadata struct {
	MerchantID     string `json:"merchantId,omitempty"`
	VerifyLocale   string `json:"verifyLocale,omitempty"`
	TargetPageURL  string `json:"targetPageUrl,omitempty"`
	IsNotIndexPage bool   `json:"__isNotIndexPage,omitempty"`
}

// ScrapedItem is the validated envelope around one raw dataset record. Only
// the allow-listed fields below ever cross the ingestion boundary; anything
// else a scraper emits is dropped here.
type ScrapedItem struct {
	MerchantName       string       `json:"merchantName"`
	IDInSite           string       `json:"idInSite"`
	SourceURL          string       `json:"sourceUrl"`
	Title              string       `json:"title"`
	IsExpired          bool         `json:"isExpired"`
	Domain             string       `json:"domain,omitempty"`
	Description        string       `json:"description,omitempty"`
	TermsAndConditions string       `json:"termsAndConditions,omitempty"`
	Code               string       `json:"code,omitempty"`
	StartDateAt        *time.Time   `json:"startDateAt,omitempty"`
	ExpiryDateAt       *time.Time   `json:"expiryDateAt,omitempty"`
	IsExclusive        bool         `json:"isExclusive,omitempty"`
	IsShown            *bool        `json:"isShown,omitempty"`
	Metadata           ItemMetadata `json:"metadata,omitempty"`
}

// rawItem mirrors ScrapedItem with string dates, as emitted by scrapers.
type rawItem struct {
	MerchantName       string       `json:"merchantName"`
	IDInSite           string       `json:"idInSite"`
	SourceURL          string       `json:"sourceUrl"`
	Title              string       `json:"title"`
	IsExpired          bool         `json:"isExpired"`
	Domain             string       `json:"domain"`
	Description        string       `json:"description"`
	TermsAndConditions string       `json:"termsAndConditions"`
	Code               string       `json:"code"`
	StartDateAt        string       `json:"startDateAt"`
	ExpiryDateAt       string       `json:"expiryDateAt"`
	IsExclusive        bool         `json:"isExclusive"`
	IsShown            *bool        `json:"isShown"`
	Metadata           ItemMetadata `json:"metadata"`
}

// ParseItem decodes and validates one raw dataset record. A malformed record
// (missing merchant, missing identity, missing sourceUrl, unparseable date)
// is a per-record error for the run; it never aborts the batch.
func ParseItem(raw json.RawMessage) (ScrapedItem, error) {
	var r rawItem
	if err := json.Unmarshal(raw, &r); err != nil {
		return ScrapedItem{}, fmt.Errorf("decode item: %w", err)
	}

	if strings.TrimSpace(r.MerchantName) == "" {
		return ScrapedItem{}, ErrMissingMerchant
	}
	if strings.TrimSpace(r.IDInSite) == "" && strings.TrimSpace(r.Title) == "" {
		return ScrapedItem{}, ErrMissingIdentity
	}
	if strings.TrimSpace(r.SourceURL) == "" {
		return ScrapedItem{}, ErrMissingSourceURL
	}

	item := ScrapedItem{
		MerchantName:       strings.TrimSpace(r.MerchantName),
		IDInSite:           strings.TrimSpace(r.IDInSite),
		SourceURL:          strings.TrimSpace(r.SourceURL),
		Title:              strings.TrimSpace(r.Title),
		IsExpired:          r.IsExpired,
		Domain:             strings.TrimSpace(r.Domain),
		Description:        strings.TrimSpace(r.Description),
		TermsAndConditions: strings.TrimSpace(r.TermsAndConditions),
		Code:               strings.TrimSpace(r.Code),
		IsExclusive:        r.IsExclusive,
		IsShown:            r.IsShown,
		Metadata:           r.Metadata,
	}

	start, err := parseItemTime(r.StartDateAt)
	if err != nil {
		return ScrapedItem{}, fmt.Errorf("startDateAt: %w", err)
	}
	item.StartDateAt = start

	expiry, err := parseItemTime(r.ExpiryDateAt)
	if err != nil {
		return ScrapedItem{}, fmt.Errorf("expiryDateAt: %w", err)
	}
	item.ExpiryDateAt = expiry

	if item.Domain == "" {
		item.Domain = HostOf(item.SourceURL)
	}

	return item, nil
}

// CodeLooksFake reports whether the coupon code is implausible: too short to
// be a real redemption code, or containing whitespace.
func (i *ScrapedItem) CodeLooksFake() bool {
	if i.Code == "" {
		return false
	}
	if utf8.RuneCountInString(i.Code) < minPlausibleCodeLength {
		return true
	}
	return strings.ContainsFunc(i.Code, unicode.IsSpace)
}

// itemTimeLayouts are the date formats scrapers are known to emit.
var itemTimeLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func parseItemTime(s string) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	for _, layout := range itemTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return &t, nil
		}
	}
	return nil, fmt.Errorf("unparseable date %q", s)
}
