package normalize

import "github.com/lanternmetrics/ingest-core/internal/validate"

// reconcileTimestamp implements §4.2's client/server clock reconciliation.
// candidate is the client-supplied ts, or nowMs if absent. skew is
// candidate-nowMs. Forward skews within the allowed window are clamped to
// nowMs (usedClientTimestamp=false); skews within the backward window pass
// through unclamped (usedClientTimestamp=true).
func reconcileTimestamp(raw *float64, nowMs int64) (ts int64, usedClient bool, skewMs int64, err error) {
	var candidate int64
	if raw == nil {
		candidate = nowMs
	} else {
		candidate = int64(*raw)
	}
	skew := candidate - nowMs

	if skew < -validate.MaxBackfillMs {
		return 0, false, skew, &TimestampRejected{Reason: "past"}
	}
	if skew > validate.MaxClientTSSkewMs {
		return 0, false, skew, &TimestampRejected{Reason: "future"}
	}
	if skew > 0 {
		return nowMs, false, skew, nil
	}
	return candidate, raw != nil, skew, nil
}
