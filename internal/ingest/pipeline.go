package ingest

import (
	"context"
	"fmt"
	"net/http"

	"github.com/oklog/ulid/v2"

	"github.com/lanternmetrics/ingest-core/internal/models"
	"github.com/lanternmetrics/ingest-core/internal/normalize"
	"github.com/lanternmetrics/ingest-core/internal/repository"
	"github.com/lanternmetrics/ingest-core/internal/validate"
)

// Pipeline wires C1 (Validator) through C5 (RollupEngine) into the single
// per-request transaction described in §4.3 and §5.
type Pipeline struct {
	repos *repository.Repositories
	geo   *normalize.GeoResolver
}

// NewPipeline constructs a Pipeline backed by repos and geo.
func NewPipeline(repos *repository.Repositories, geo *normalize.GeoResolver) *Pipeline {
	return &Pipeline{repos: repos, geo: geo}
}

// Request is everything the pipeline needs about one inbound ingest call.
type Request struct {
	Site        *models.Site
	Body        []byte
	Headers     http.Header
	ClientIP    string
	ServerKeyOK bool
	NowMs       int64
}

// Response mirrors the ingest endpoint's success payload (§6).
type Response struct {
	Deduped             bool
	UsedClientTimestamp bool
	ClockSkewMs         int64
}

// Ingest validates, normalizes, and applies one event end-to-end inside a
// single transaction. A *validate.Rejected or *normalize.TimestampRejected
// error indicates a client error the caller should map to the
// corresponding HTTP status; any other error is internal.
func (p *Pipeline) Ingest(ctx context.Context, req Request) (*Response, error) {
	payload, err := validate.Validate(req.Body, req.Site.Domain, validate.Meta{
		UserAgent:   req.Headers.Get("User-Agent"),
		Origin:      req.Headers.Get("Origin"),
		Referer:     req.Headers.Get("Referer"),
		ServerKeyOK: req.ServerKeyOK,
	})
	if err != nil {
		return nil, err
	}

	norm, err := normalize.Normalize(payload, req.Headers, req.ClientIP, p.geo, req.NowMs)
	if err != nil {
		return nil, err
	}

	resp := &Response{UsedClientTimestamp: norm.UsedClientTimestamp, ClockSkewMs: norm.ClockSkewMs}

	if norm.Bot {
		return resp, nil
	}

	tx, err := repository.BeginWriteTx(ctx, p.repos.DB)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	normalizedMap := map[string]any{
		"path": norm.Path, "referrer": norm.Referrer, "referrer_domain": norm.ReferrerDomain,
		"device": norm.Device, "browser": norm.Browser, "os": norm.OS, "country": norm.Country,
		"region": norm.Region, "city": norm.City, "bot": norm.Bot,
		"utm": map[string]any{"source": norm.UTMSource, "campaign": norm.UTMCampaign},
	}

	event := &models.RawEvent{
		ID:         ulid.Make().String(),
		SiteID:     req.Site.ID,
		EventID:    payload.EventID,
		Type:       models.EventType(payload.Type),
		Name:       payload.Name,
		VisitorID:  payload.VisitorID,
		SessionID:  payload.SessionID,
		Timestamp:  norm.Timestamp,
		Metadata:   payload.Metadata,
		Normalized: normalizedMap,
		CreatedAt:  req.NowMs,
	}

	deduped, err := p.repos.Events.InsertEvent(ctx, tx, event)
	if err != nil {
		return nil, fmt.Errorf("insert event: %w", err)
	}
	if deduped {
		resp.Deduped = true
		return resp, tx.Commit()
	}

	sessionCtx := models.SessionContext{
		Path: norm.Path, ReferrerDomain: norm.ReferrerDomain,
		UTMSource: norm.UTMSource, UTMCampaign: norm.UTMCampaign,
		Country: norm.Country, Region: norm.Region, City: norm.City,
		Device: norm.Device, Browser: norm.Browser,
	}

	if payload.Type == string(models.EventTypePageview) && payload.SessionID != "" {
		out, err := ApplySession(ctx, tx, p.repos.Sessions, SessionInput{
			SiteID: req.Site.ID, SessionID: payload.SessionID, VisitorID: payload.VisitorID,
			EventTimestamp: norm.Timestamp, Context: sessionCtx, NowMs: req.NowMs,
		})
		if err != nil {
			return nil, fmt.Errorf("apply session: %w", err)
		}
		if err := ApplyRollups(ctx, tx, p.repos.Rollups, req.Site.ID, payload.VisitorID, out.MetricsDeltas, out.DimensionDeltas); err != nil {
			return nil, fmt.Errorf("apply rollups: %w", err)
		}
		delta := models.MetricVector{Pageviews: 1}
		bucket := newBucketKey(norm.Timestamp)
		if err := p.repos.Rollups.ApplyHourly(ctx, tx, req.Site.ID, bucket.date, bucket.hour, delta); err != nil {
			return nil, fmt.Errorf("apply pageview hourly: %w", err)
		}
		if err := p.repos.Rollups.ApplyDaily(ctx, tx, req.Site.ID, bucket.date, delta); err != nil {
			return nil, fmt.Errorf("apply pageview daily: %w", err)
		}
	}

	if payload.Type == string(models.EventTypeGoal) {
		delta := models.MetricVector{Goals: 1}
		if err := ApplyGoalMetrics(ctx, tx, p.repos.Rollups, req.Site.ID, payload.Name, norm.Timestamp, delta); err != nil {
			return nil, fmt.Errorf("apply goal metrics: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return resp, nil
}
