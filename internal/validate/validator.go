// Package validate implements C1: payload validation for the ingest
// endpoint — strict allowlist, per-field bounds, bot heuristics, and the
// origin/domain enforcement described in §4.1.
package validate

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

const (
	// MaxPayloadBytes is the default 413 threshold for an ingest request body.
	MaxPayloadBytes = 32 * 1024
	// MaxBackfillMs is how far in the past a client timestamp may be.
	MaxBackfillMs = 24 * 60 * 60 * 1000
	// MaxClientTSSkewMs is how far in the future a client timestamp may be.
	MaxClientTSSkewMs = 5 * 60 * 1000

	maxMetadataKeys   = 12
	maxMetadataKeyLen = 64
	maxStringFieldLen = 128
	maxDomainLen      = 255
	maxPathLen        = 1024
	maxReferrerLen    = 2048
	maxTrackingLen    = 255
)

// allowedKeys is the strict top-level allowlist from §4.1.
var allowedKeys = map[string]bool{
	"v": true, "type": true, "name": true, "websiteId": true, "domain": true,
	"path": true, "referrer": true, "ts": true, "timestamp": true, "visitorId": true,
	"session_id": true, "sessionId": true, "eventId": true, "bot": true, "metadata": true,
	"utm_source": true, "utm_medium": true, "utm_campaign": true, "utm_term": true,
	"utm_content": true, "source": true, "via": true, "ref": true,
}

var validEventTypes = map[string]bool{
	"pageview": true, "heartbeat": true, "goal": true, "identify": true, "payment": true,
}

// botSignatures is a fixed, case-insensitive substring list covering
// crawlers, headless browsers, and common HTTP client libraries.
var botSignatures = []string{
	"bot", "spider", "crawl", "slurp", "headlesschrome", "phantomjs", "puppeteer",
	"playwright", "curl/", "wget/", "python-requests", "go-http-client", "axios/",
	"okhttp", "libwww-perl", "scrapy", "facebookexternalhit", "mediapartners-google",
	"ahrefsbot", "semrushbot", "mj12bot", "dotbot", "discordbot", "telegrambot", "postmanruntime",
}

// Rejected is the error type returned for any validation failure; Code maps
// 1:1 onto the spec's error kinds (400/401/413).
type Rejected struct {
	Status int
	Code   string
	Reason string
}

func (r *Rejected) Error() string { return fmt.Sprintf("%s: %s", r.Code, r.Reason) }

func reject(status int, code, reason string) *Rejected {
	return &Rejected{Status: status, Code: code, Reason: reason}
}

// Payload is the validated, untyped-metadata form of an ingest request body.
type Payload struct {
	Type       string
	Name       string
	WebsiteID  string
	Domain     string
	Path       string
	Referrer   string
	TimestampRaw *float64 // nil if absent
	VisitorID  string
	SessionID  string
	EventID    string
	Bot        bool
	Metadata   map[string]any
	UTMSource  string
	UTMMedium  string
	UTMCampaign string
	UTMTerm    string
	UTMContent string
	Source     string
	Via        string
	Ref        string
}

// Meta carries request-level facts the normalizer and pipeline need
// alongside the parsed payload.
type Meta struct {
	UserAgent   string
	Origin      string
	Referer     string
	ServerKeyOK bool
}

// Validate decodes and validates body against §4.1. headers must already
// have been checked for the server key by the caller and passed in via
// meta.ServerKeyOK (bot:true and origin enforcement both depend on it).
func Validate(body []byte, siteDomain string, meta Meta) (*Payload, error) {
	if len(body) > MaxPayloadBytes {
		return nil, reject(http.StatusRequestEntityTooLarge, "payload_too_large", "body exceeds MAX_PAYLOAD_BYTES")
	}

	var raw map[string]any
	dec := json.NewDecoder(strings.NewReader(string(body)))
	if err := dec.Decode(&raw); err != nil {
		return nil, reject(http.StatusBadRequest, "invalid_json", "body must be a JSON object")
	}

	for key := range raw {
		if !allowedKeys[key] {
			return nil, reject(http.StatusBadRequest, "unknown_field", fmt.Sprintf("unknown field %q", key))
		}
	}

	p := &Payload{}

	typeVal, _ := raw["type"].(string)
	if !validEventTypes[typeVal] {
		return nil, reject(http.StatusBadRequest, "invalid_type", "type must be one of pageview, heartbeat, goal, identify, payment")
	}
	p.Type = typeVal

	var err *Rejected
	if p.Name, err = optionalString(raw, "name", maxStringFieldLen); err != nil {
		return nil, err
	}
	if p.WebsiteID, err = optionalString(raw, "websiteId", maxStringFieldLen); err != nil {
		return nil, err
	}
	if p.Domain, err = optionalString(raw, "domain", maxDomainLen); err != nil {
		return nil, err
	}
	if p.Path, err = optionalString(raw, "path", maxPathLen); err != nil {
		return nil, err
	}
	if p.Path == "" {
		return nil, reject(http.StatusBadRequest, "missing_field", "path is required")
	}
	if p.Referrer, err = optionalString(raw, "referrer", maxReferrerLen); err != nil {
		return nil, err
	}
	if p.VisitorID, err = optionalString(raw, "visitorId", maxStringFieldLen); err != nil {
		return nil, err
	}
	if p.SessionID, err = optionalString(raw, "sessionId", maxStringFieldLen); err != nil {
		return nil, err
	}
	snakeSessionID, err := optionalString(raw, "session_id", maxStringFieldLen)
	if err != nil {
		return nil, err
	}
	if snakeSessionID != "" {
		if p.SessionID != "" && p.SessionID != snakeSessionID {
			return nil, reject(http.StatusBadRequest, "conflicting_session_id", "sessionId and session_id must match when both present")
		}
		p.SessionID = snakeSessionID
	}
	if p.EventID, err = optionalString(raw, "eventId", maxStringFieldLen); err != nil {
		return nil, err
	}
	for _, field := range []struct {
		key string
		dst *string
	}{
		{"utm_source", &p.UTMSource}, {"utm_medium", &p.UTMMedium}, {"utm_campaign", &p.UTMCampaign},
		{"utm_term", &p.UTMTerm}, {"utm_content", &p.UTMContent}, {"source", &p.Source},
		{"via", &p.Via}, {"ref", &p.Ref},
	} {
		v, err := optionalString(raw, field.key, maxTrackingLen)
		if err != nil {
			return nil, err
		}
		*field.dst = v
	}

	if botRaw, ok := raw["bot"]; ok {
		botVal, _ := botRaw.(bool)
		if botVal && !meta.ServerKeyOK {
			return nil, reject(http.StatusUnauthorized, "bot_flag_forbidden", "bot:true requires the server key")
		}
		p.Bot = botVal
	}
	if !p.Bot && isBotUserAgent(meta.UserAgent) {
		p.Bot = true
	}

	metadata, err := validateMetadata(raw["metadata"])
	if err != nil {
		return nil, err
	}
	p.Metadata = metadata

	if p.Type == "goal" && p.Name == "" {
		return nil, reject(http.StatusBadRequest, "missing_field", "goal events require name")
	}
	if p.Type == "identify" {
		userID, _ := metadata["user_id"].(string)
		if strings.TrimSpace(userID) == "" {
			return nil, reject(http.StatusBadRequest, "missing_field", "identify events require metadata.user_id")
		}
	}

	ts, err := parseTimestamp(raw)
	if err != nil {
		return nil, err
	}
	p.TimestampRaw = ts

	if !meta.ServerKeyOK {
		if ok := originMatchesDomain(meta.Origin, siteDomain) || originMatchesDomain(meta.Referer, siteDomain); !ok {
			return nil, reject(http.StatusUnauthorized, "origin_mismatch", "Origin/Referer must match the site's configured domain")
		}
	}

	return p, nil
}

func optionalString(raw map[string]any, key string, maxLen int) (string, *Rejected) {
	v, ok := raw[key]
	if !ok || v == nil {
		return "", nil
	}
	s, ok := v.(string)
	if !ok {
		return "", reject(http.StatusBadRequest, "invalid_field", fmt.Sprintf("%s must be a string", key))
	}
	s = strings.TrimSpace(s)
	if len(s) > maxLen {
		return "", reject(http.StatusBadRequest, "field_too_long", fmt.Sprintf("%s exceeds max length %d", key, maxLen))
	}
	return s, nil
}

func validateMetadata(raw any) (map[string]any, *Rejected) {
	out := map[string]any{}
	if raw == nil {
		return out, nil
	}
	m, ok := raw.(map[string]any)
	if !ok {
		return nil, reject(http.StatusBadRequest, "invalid_field", "metadata must be an object")
	}
	if len(m) > maxMetadataKeys {
		return nil, reject(http.StatusBadRequest, "too_many_keys", "metadata has more than 12 keys")
	}
	keyPattern := func(k string) bool {
		if len(k) == 0 || len(k) > maxMetadataKeyLen {
			return false
		}
		for _, r := range k {
			if !((r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_' || r == '-') {
				return false
			}
		}
		return true
	}
	for k, v := range m {
		normalizedKey := strings.ToLower(strings.TrimSpace(k))
		if !keyPattern(normalizedKey) {
			return nil, reject(http.StatusBadRequest, "invalid_metadata_key", fmt.Sprintf("metadata key %q is invalid", k))
		}
		switch val := v.(type) {
		case string:
			s := stripHTML(strings.Join(strings.Fields(val), " "))
			if len(s) > maxTrackingLen {
				s = s[:maxTrackingLen]
			}
			if s == "" {
				continue // empty-string values are dropped
			}
			out[normalizedKey] = s
		case float64, bool, nil:
			out[normalizedKey] = val
		default:
			return nil, reject(http.StatusBadRequest, "invalid_metadata_value", fmt.Sprintf("metadata value for %q must be string, number, boolean, or null", k))
		}
	}
	return out, nil
}

func stripHTML(s string) string {
	var b strings.Builder
	inTag := false
	for _, r := range s {
		switch {
		case r == '<':
			inTag = true
		case r == '>':
			inTag = false
		case !inTag:
			b.WriteRune(r)
		}
	}
	return b.String()
}

func parseTimestamp(raw map[string]any) (*float64, *Rejected) {
	tsRaw, ok := raw["ts"]
	if !ok {
		tsRaw, ok = raw["timestamp"]
	}
	if !ok || tsRaw == nil {
		return nil, nil
	}
	switch v := tsRaw.(type) {
	case float64:
		return &v, nil
	case string:
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, reject(http.StatusBadRequest, "invalid_field", "ts must be a number or numeric string")
		}
		return &f, nil
	default:
		return nil, reject(http.StatusBadRequest, "invalid_field", "ts must be a number or numeric string")
	}
}

func isBotUserAgent(ua string) bool {
	if ua == "" {
		return false
	}
	lower := strings.ToLower(ua)
	for _, sig := range botSignatures {
		if strings.Contains(lower, sig) {
			return true
		}
	}
	return false
}

// originMatchesDomain reports whether raw (an Origin or Referer header
// value) parses to a hostname equal to, or a subdomain of, domain.
func originMatchesDomain(raw, domain string) bool {
	if raw == "" || domain == "" {
		return false
	}
	u, err := url.Parse(raw)
	if err != nil || u.Hostname() == "" {
		return false
	}
	host := strings.ToLower(u.Hostname())
	domain = strings.ToLower(domain)
	return host == domain || strings.HasSuffix(host, "."+domain)
}
