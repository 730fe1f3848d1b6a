package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/url"
	"strings"
)

var (
	// ErrMissingMerchant is returned when a record has no merchant name.
	ErrMissingMerchant = errors.New("missing merchant name")
	// ErrMissingIdentity is returned when a record has neither idInSite nor title.
	ErrMissingIdentity = errors.New("missing idInSite and title")
)

// CouponID derives the stable content-addressed coupon identifier from the
// (merchant, idInSite-or-title, domain-of-sourceURL) fingerprint. The result
// is invariant under casing and whitespace differences in the inputs.
func CouponID(merchantName, idInSite, title, sourceURL string) (string, error) {
	if strings.TrimSpace(merchantName) == "" {
		return "", ErrMissingMerchant
	}

	identity := idInSite
	if strings.TrimSpace(identity) == "" {
		identity = title
	}
	if strings.TrimSpace(identity) == "" {
		return "", ErrMissingIdentity
	}

	parts := []string{
		Normalize(merchantName),
		Normalize(identity),
		Normalize(HostOf(sourceURL)),
	}
	return hashParts(parts), nil
}

// ItemSignature is the pre-ingest deduplication key: two fetched items with
// the same signature are upstream duplicates within one run.
func ItemSignature(title, idInSite, sourceURL, merchantName, domain string) string {
	return hashParts([]string{
		Normalize(title),
		Normalize(idInSite),
		Normalize(sourceURL),
		Normalize(merchantName),
		Normalize(domain),
	})
}

// Normalize lowercases, trims and collapses inner whitespace.
func Normalize(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

// HostOf extracts the registrable host of a URL, without a www. prefix.
// Unparseable input is returned as-is so it still contributes to the hash.
func HostOf(rawURL string) string {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || u.Hostname() == "" {
		return rawURL
	}
	return strings.TrimPrefix(u.Hostname(), "www.")
}

func hashParts(parts []string) string {
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])
}
