// Package models defines the persisted entities of the ingest pipeline.
package models

// RevenueProvider identifies which payment provider a site is wired to.
type RevenueProvider string

const (
	RevenueProviderNone         RevenueProvider = "none"
	RevenueProviderStripe       RevenueProvider = "stripe"
	RevenueProviderLemonsqueezy RevenueProvider = "lemonsqueezy"
)

// Site is a tenant of the analytics service.
type Site struct {
	ID                    string
	WebsiteID             string
	APIKeyHash            string
	Domain                string
	Timezone              string
	RevenueProvider       RevenueProvider
	RevenueProviderKey    string // encrypted envelope, see internal/crypto
	RevenueWebhookSecret  string
	CreatedAt             int64
	UpdatedAt             int64
}

// EventType enumerates the five browser-emitted event variants.
type EventType string

const (
	EventTypePageview EventType = "pageview"
	EventTypeHeartbeat EventType = "heartbeat"
	EventTypeGoal      EventType = "goal"
	EventTypeIdentify  EventType = "identify"
	EventTypePayment   EventType = "payment"
)

// RawEvent is an immutable record of one accepted event.
type RawEvent struct {
	ID         string
	SiteID     string
	EventID    string // client- or server-issued dedupe key; empty when absent
	Type       EventType
	Name       string
	VisitorID  string
	SessionID  string
	Timestamp  int64 // ms since epoch, UTC
	Metadata   map[string]any
	Normalized map[string]any
	CreatedAt  int64
}

// Session is one row per (siteId, sessionId, visitorId).
type Session struct {
	SiteID          string
	SessionID       string
	VisitorID       string
	FirstTimestamp  int64
	LastTimestamp   int64
	Pageviews       int
	FirstNormalized SessionContext
	CreatedAt       int64
	UpdatedAt       int64
}

// SessionContext is the dimensional snapshot attributed to a session's
// earliest pageview: country/region/city/device/browser plus the entry
// path and referrer/UTM context needed to emit dimension deltas.
type SessionContext struct {
	Path            string `json:"path"`
	ReferrerDomain  string `json:"referrer_domain"`
	UTMSource       string `json:"utm_source"`
	UTMCampaign     string `json:"utm_campaign"`
	Country         string `json:"country"`
	Region          string `json:"region"`
	City            string `json:"city"`
	Device          string `json:"device"`
	Browser         string `json:"browser"`
}

// PaymentEventType classifies a payment webhook event.
type PaymentEventType string

const (
	PaymentEventNew     PaymentEventType = "new"
	PaymentEventRenewal PaymentEventType = "renewal"
	PaymentEventRefund  PaymentEventType = "refund"
)

// Payment is one row per (siteId, transactionId).
type Payment struct {
	ID            string
	SiteID        string
	TransactionID string
	Provider      RevenueProvider
	EventType     PaymentEventType
	AmountCents   int64
	Currency      string
	VisitorID     string
	CustomerID    string
	Email         string
	CreatedAt     int64
}

// MetricVector M is the metric set accumulated per bucket. Visitors,
// Pageviews, Goals and the revenue fields are monotonic non-negative
// counters; Sessions, BouncedSessions and AvgSessionDurationMs are signed
// accumulators that may go transiently negative mid-migration (§4.4).
type MetricVector struct {
	Visitors             int64
	Sessions             int64
	BouncedSessions      int64
	AvgSessionDurationMs int64
	Pageviews            int64
	Goals                int64
	RevenueCents         int64
	RevenueByType        RevenueByType
}

// RevenueByType splits accumulated revenue by payment event type.
type RevenueByType struct {
	NewCents     int64
	RenewalCents int64
	RefundCents  int64
}

// Add merges other into m field-by-field, including the nested RevenueByType.
func (m *MetricVector) Add(other MetricVector) {
	m.Visitors += other.Visitors
	m.Sessions += other.Sessions
	m.BouncedSessions += other.BouncedSessions
	m.AvgSessionDurationMs += other.AvgSessionDurationMs
	m.Pageviews += other.Pageviews
	m.Goals += other.Goals
	m.RevenueCents += other.RevenueCents
	m.RevenueByType.NewCents += other.RevenueByType.NewCents
	m.RevenueByType.RenewalCents += other.RevenueByType.RenewalCents
	m.RevenueByType.RefundCents += other.RevenueByType.RefundCents
}

// Dimension is a rollup dimension a session/event can be attributed to.
type Dimension string

const (
	DimensionPage            Dimension = "page"
	DimensionReferrerDomain  Dimension = "referrer_domain"
	DimensionUTMSource       Dimension = "utm_source"
	DimensionUTMCampaign     Dimension = "utm_campaign"
	DimensionCountry         Dimension = "country"
	DimensionRegion          Dimension = "region"
	DimensionCity            Dimension = "city"
	DimensionDevice          Dimension = "device"
	DimensionBrowser         Dimension = "browser"
	DimensionGoal            Dimension = "goal"
)

// MetricsDelta is a signed change to a bucket's metric vector, emitted by
// the SessionEngine and applied by the RollupEngine in the same transaction.
type MetricsDelta struct {
	BucketTimestamp int64
	Metrics         MetricVector
}

// DimensionDelta is a signed change to the session count for a particular
// (dimension, value) pair at a specific bucket.
type DimensionDelta struct {
	BucketTimestamp int64
	Dimension       Dimension
	Value           string
	Sign            int // -1 or +1
}

// RollupBucket is the shared row shape for both hourly and daily rollups;
// Hour is -1 for daily rows.
type RollupBucket struct {
	SiteID string
	Date   string
	Hour   int
	Metrics MetricVector
}

// DimensionRollupBucket is the shared row shape for dimension rollups.
type DimensionRollupBucket struct {
	SiteID         string
	Date           string
	Hour           int
	Dimension      Dimension
	DimensionValue string
	Metrics        MetricVector
}
