package payments

import (
	"math"
	"net/url"
	"regexp"
	"strings"
)

// MaxAmount is the ceiling for any single payment or recurring charge.
const MaxAmount = 250_000_000

// maxMetadataStringLen caps string values inside sanitized metadata.
const maxMetadataStringLen = 5000

var supportedCurrencies = map[string]struct{}{
	"ARS": {},
	"BRL": {},
	"CLP": {},
	"COP": {},
	"MXN": {},
	"PEN": {},
	"UYU": {},
	"USD": {},
}

var (
	uuidV4Pattern         = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-4[0-9a-fA-F]{3}-[89abAB][0-9a-fA-F]{3}-[0-9a-fA-F]{12}$`)
	idempotencyKeyPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{8,64}$`)
)

// Metadata keys that could poison object prototypes in downstream consumers.
var forbiddenMetadataKeys = map[string]struct{}{
	"__proto__":   {},
	"constructor": {},
	"prototype":   {},
}

// ValidateAmount rejects non-finite, non-positive or out-of-range amounts.
func ValidateAmount(amount float64) error {
	if math.IsNaN(amount) || math.IsInf(amount, 0) {
		return newValidationError("amount", "must be a finite number")
	}
	if amount <= 0 {
		return newValidationError("amount", "must be positive")
	}
	if amount > MaxAmount {
		return newValidationError("amount", "exceeds maximum of %d", MaxAmount)
	}
	return nil
}

// ValidateCurrency rejects currency codes outside the supported set.
func ValidateCurrency(code string) error {
	if _, ok := supportedCurrencies[strings.ToUpper(strings.TrimSpace(code))]; !ok {
		return newValidationError("currency", "unsupported currency code %q", code)
	}
	return nil
}

// ValidateRedirectURL guards against open redirects: the hostname must match
// the allow-list (exact, or wildcard-subdomain for entries like
// "*.example.com"). Outside dev mode non-HTTPS URLs are rejected outright.
func ValidateRedirectURL(raw string, allowedHosts []string, requireHTTPS bool) error {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return newValidationError("url", "invalid url: %v", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return newValidationError("url", "unsupported scheme %q", u.Scheme)
	}
	if requireHTTPS && u.Scheme != "https" {
		return newValidationError("url", "https is required")
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return newValidationError("url", "missing hostname")
	}

	for _, allowed := range allowedHosts {
		a := strings.ToLower(strings.TrimSpace(allowed))
		if a == "" {
			continue
		}
		if strings.HasPrefix(a, "*.") {
			base := a[2:]
			if host == base || strings.HasSuffix(host, "."+base) {
				return nil
			}
			continue
		}
		if host == a {
			return nil
		}
	}
	return newValidationError("url", "hostname %q is not in the allow-list", host)
}

// ValidateIdempotencyKey accepts a UUID v4 or a constrained alphanumeric key
// of 8-64 characters; anything else is rejected before reaching the store.
func ValidateIdempotencyKey(key string) error {
	k := strings.TrimSpace(key)
	if uuidV4Pattern.MatchString(k) || idempotencyKeyPattern.MatchString(k) {
		return nil
	}
	return newValidationError("idempotency_key", "must be a UUID v4 or 8-64 alphanumeric characters")
}

// SanitizeMetadata strips prototype-pollution keys, truncates long strings
// and recurses into nested objects and arrays. It is defense in depth, not an
// HTML-escaping step; renderers must still escape for their output context.
func SanitizeMetadata(metadata map[string]interface{}) map[string]interface{} {
	if metadata == nil {
		return nil
	}
	out := make(map[string]interface{}, len(metadata))
	for k, v := range metadata {
		if _, forbidden := forbiddenMetadataKeys[k]; forbidden {
			continue
		}
		out[k] = sanitizeMetadataValue(v)
	}
	return out
}

func sanitizeMetadataValue(v interface{}) interface{} {
	switch val := v.(type) {
	case string:
		if len([]rune(val)) > maxMetadataStringLen {
			return string([]rune(val)[:maxMetadataStringLen])
		}
		return val
	case map[string]interface{}:
		return SanitizeMetadata(val)
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = sanitizeMetadataValue(item)
		}
		return out
	default:
		return v
	}
}
