// Package normalize implements C2: canonicalization of domain/path/referrer/
// UTM fields, User-Agent parsing, geo resolution, and client/server clock
// reconciliation.
package normalize

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/lanternmetrics/ingest-core/internal/validate"
)

const (
	maxPathLen = 2048
)

// Result is the normalized form of a validated payload, ready to feed the
// session engine and rollup engine.
type Result struct {
	Path           string
	Referrer       string
	ReferrerDomain string
	UTMSource      string
	UTMCampaign    string
	Device         string
	Browser        string
	OS             string
	Country        string
	Region         string
	City           string
	Bot            bool

	Timestamp           int64
	UsedClientTimestamp bool
	ClockSkewMs         int64
}

// TimestampRejected is returned when client-clock reconciliation rejects the
// event as too far in the past or future.
type TimestampRejected struct {
	Reason string // "past" or "future"
}

func (e *TimestampRejected) Error() string {
	return fmt.Sprintf("timestamp rejected: %s", e.Reason)
}

// Normalize is a pure function of the validated payload, request headers,
// resolved client IP, and a geo resolver; nowMs is injected so tests are
// deterministic.
func Normalize(p *validate.Payload, headers http.Header, clientIP string, geo *GeoResolver, nowMs int64) (*Result, error) {
	r := &Result{}

	r.Path = normalizePath(p.Path)
	r.Referrer, r.ReferrerDomain = normalizeReferrer(p.Referrer)
	r.UTMSource = strings.ToLower(clamp(strings.TrimSpace(p.UTMSource), 255))
	r.UTMCampaign = strings.ToLower(clamp(strings.TrimSpace(p.UTMCampaign), 255))

	ua := ParseUA(headers.Get("User-Agent"))
	r.Device, r.Browser, r.OS = ua.Device, ua.Browser, ua.OS

	geoResult := geo.Resolve(headers, clientIP)
	r.Country, r.Region, r.City = geoResult.Country, geoResult.Region, geoResult.City

	r.Bot = p.Bot

	ts, usedClient, skew, err := reconcileTimestamp(p.TimestampRaw, nowMs)
	if err != nil {
		return nil, err
	}
	r.Timestamp = ts
	r.UsedClientTimestamp = usedClient
	r.ClockSkewMs = skew

	return r, nil
}

func normalizePath(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "/"
	}
	u, err := url.Parse(trimmed)
	if err != nil {
		return clamp(trimmed, maxPathLen)
	}
	path := u.Path
	if path == "" {
		path = "/"
	}
	if u.RawQuery != "" {
		path += "?" + u.RawQuery
	}
	return clamp(path, maxPathLen)
}

func normalizeReferrer(raw string) (referrer, domain string) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", ""
	}
	u, err := url.Parse(trimmed)
	if err != nil || u.Host == "" {
		return clamp(trimmed, 2048), ""
	}
	if u.Scheme == "http" || u.Scheme == "https" {
		referrer = u.Scheme + "://" + u.Host + u.Path
	} else {
		referrer = u.String()
	}
	return clamp(referrer, 2048), strings.ToLower(u.Hostname())
}

func clamp(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
