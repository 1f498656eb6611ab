package services

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/dealdesk-crm/intake-engine/pkg/apperrors"
	"github.com/dealdesk-crm/intake-engine/pkg/models"
)

// Payload fields with a dedup meaning, checked before the hash fallback.
const (
	payloadKeyIdempotency = "idempotency_key"
	payloadKeyExternalID  = "external_id"
)

var keySeparators = regexp.MustCompile(`[\s,-]+`)

// fieldAliases maps opportunity fields to the payload key spellings senders
// actually use (Zapier-style labels, form builders, Dutch forms). Matching
// happens on normalized keys, so "Company Name" and "company_name" both hit.
var fieldAliases = map[string][]string{
	"title":        {"title", "subject", "onderwerp"},
	"company_name": {"company_name", "company", "business_name", "business", "bedrijfsnaam", "companyname"},
	"contact_name": {"contact_name", "contact", "name", "full_name", "your_name", "naam"},
	"email":        {"email", "e_mail", "e_mail_address", "mail"},
	"phone":        {"phone", "telephone", "tel", "phone_number", "telefoon"},
	"message":      {"message", "description", "notes", "body", "comment", "bericht", "omschrijving"},
	"address":      {"address", "adres", "street"},
	"city":         {"city", "plaats", "woonplaats"},
	"postcode":     {"postcode", "zip", "zipcode", "postal_code"},
	"value":        {"value", "amount", "budget", "bedrag"},
}

// NormalizeKey normalizes a payload key for alias matching:
// lowercase, spaces/commas/hyphens collapsed to a single underscore.
func NormalizeKey(key string) string {
	n := strings.ToLower(key)
	n = keySeparators.ReplaceAllString(n, "_")
	for strings.Contains(n, "__") {
		n = strings.ReplaceAll(n, "__", "_")
	}
	return n
}

// payloadKeyValues flattens a payload (first level plus a nested "data"
// object) into a map keyed by normalized key. First occurrence wins.
func payloadKeyValues(payload map[string]any) map[string]any {
	out := make(map[string]any)
	add := func(obj map[string]any) {
		for k, v := range obj {
			if v == nil {
				continue
			}
			n := NormalizeKey(k)
			if n == "" {
				continue
			}
			if _, seen := out[n]; !seen {
				out[n] = v
			}
		}
	}
	add(payload)
	if data, ok := payload["data"].(map[string]any); ok {
		add(data)
	}
	return out
}

// payloadString returns the trimmed string form of a payload value, or ""
// when the value is absent or not usefully a string.
func payloadString(v any) string {
	s, ok := v.(string)
	if !ok {
		return ""
	}
	return strings.TrimSpace(s)
}

// MapPayload maps an inbound payload to opportunity fields using the stream's
// declared mapping and defaults, then fills remaining empty fields from the
// payload via the common alias table. Mapping values containing a dot (or a
// "payload." prefix) are treated as dot-paths into the payload; anything else
// is a literal. Strings are trimmed; empty strings count as absent.
func MapPayload(payload map[string]any, cfg models.StreamConfig) map[string]any {
	result := make(map[string]any)

	for field, source := range cfg.Mapping {
		var value any
		if strings.HasPrefix(source, "payload.") || strings.Contains(source, ".") {
			value = lookupPath(payload, strings.TrimPrefix(source, "payload."))
		} else {
			value = source
		}
		if s, ok := value.(string); ok {
			value = strings.TrimSpace(s)
		}
		if value == nil || value == "" {
			continue
		}
		result[field] = value
	}

	for field, value := range cfg.Defaults {
		if existing, ok := result[field]; !ok || existing == nil || existing == "" {
			result[field] = value
		}
	}

	// Fallback: fill still-empty fields from the payload via the alias table
	keyVals := payloadKeyValues(payload)
	for field, aliases := range fieldAliases {
		if existing, ok := result[field]; ok && existing != nil && fmt.Sprint(existing) != "" {
			continue
		}
		for _, alias := range aliases {
			v, ok := keyVals[NormalizeKey(alias)]
			if !ok || v == nil {
				continue
			}
			if s, isStr := v.(string); isStr {
				if strings.TrimSpace(s) == "" {
					continue
				}
				result[field] = strings.TrimSpace(s)
			} else {
				result[field] = v
			}
			break
		}
	}

	return result
}

// lookupPath walks a dot-path through nested payload objects.
func lookupPath(payload map[string]any, path string) any {
	var current any = payload
	for _, part := range strings.Split(path, ".") {
		obj, ok := current.(map[string]any)
		if !ok {
			return nil
		}
		current = obj[part]
	}
	return current
}

// ValidateMapped checks the minimal completeness rule: at least one of title,
// company name, or a contact identifier (email or contact name). The bar is
// intentionally low - the pipeline prefers accepting an ambiguous lead over
// rejecting a plausible one.
func ValidateMapped(mapped map[string]any) error {
	hasTitle := payloadString(mapped["title"]) != ""
	hasCompany := payloadString(mapped["company_name"]) != ""
	hasContact := payloadString(mapped["email"]) != "" || payloadString(mapped["contact_name"]) != ""

	if hasTitle || hasCompany || hasContact {
		return nil
	}
	return fmt.Errorf("payload must map to at least one of: title, company_name, or email/contact_name: %w", apperrors.ErrInsufficientData)
}

// BuildIdempotencyKey derives the dedup key for an inbound payload, in
// priority order:
//  1. an explicit idempotency_key field
//  2. an explicit external_id field
//  3. sha256 over "email|phone|message|hourBucket", where hourBucket is the
//     receipt time truncated to the hour (UTC)
//
// The hash fallback gives senders with no dedup awareness an automatic
// ~1-hour dedup window.
func BuildIdempotencyKey(payload map[string]any, now time.Time) string {
	if key := payloadString(payload[payloadKeyIdempotency]); key != "" {
		return key
	}
	if key := payloadString(payload[payloadKeyExternalID]); key != "" {
		return key
	}

	email := payloadString(payload["email"])
	phone := payloadString(payload["phone"])
	message := payloadString(payload["message"])
	if message == "" {
		message = payloadString(payload["description"])
	}
	if message == "" {
		message = payloadString(payload["notes"])
	}
	hourBucket := now.UTC().Format("2006-01-02T15")

	sum := sha256.Sum256([]byte(email + "|" + phone + "|" + message + "|" + hourBucket))
	return hex.EncodeToString(sum[:])
}

// PayloadExternalID returns the trimmed external_id field, or nil.
func PayloadExternalID(payload map[string]any) *string {
	if id := payloadString(payload[payloadKeyExternalID]); id != "" {
		return &id
	}
	return nil
}
