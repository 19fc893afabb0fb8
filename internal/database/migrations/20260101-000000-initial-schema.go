package migrations

func init() {
	Register(Migration{
		Timestamp:   "20260101-000000",
		Description: "initial analytics ingest schema",
		Up: []string{
			`CREATE TABLE IF NOT EXISTS sites (
				id TEXT PRIMARY KEY,
				website_id TEXT NOT NULL UNIQUE,
				api_key_hash TEXT NOT NULL UNIQUE,
				domain TEXT NOT NULL,
				timezone TEXT NOT NULL DEFAULT 'UTC',
				revenue_provider TEXT NOT NULL DEFAULT 'none',
				revenue_provider_key TEXT NOT NULL DEFAULT '',
				revenue_webhook_secret TEXT NOT NULL DEFAULT '',
				created_at INTEGER NOT NULL,
				updated_at INTEGER NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_sites_api_key_hash ON sites(api_key_hash)`,

			`CREATE TABLE IF NOT EXISTS raw_events (
				id TEXT PRIMARY KEY,
				site_id TEXT NOT NULL REFERENCES sites(id),
				event_id TEXT NOT NULL DEFAULT '',
				type TEXT NOT NULL,
				name TEXT NOT NULL DEFAULT '',
				visitor_id TEXT NOT NULL,
				session_id TEXT NOT NULL DEFAULT '',
				timestamp INTEGER NOT NULL,
				metadata TEXT NOT NULL DEFAULT '{}',
				normalized TEXT NOT NULL DEFAULT '{}',
				created_at INTEGER NOT NULL
			)`,
			`CREATE UNIQUE INDEX IF NOT EXISTS idx_raw_events_dedup ON raw_events(site_id, event_id) WHERE event_id != ''`,
			`CREATE INDEX IF NOT EXISTS idx_raw_events_site_created ON raw_events(site_id, created_at, id)`,
			`CREATE INDEX IF NOT EXISTS idx_raw_events_visitor ON raw_events(site_id, visitor_id, timestamp)`,

			`CREATE TABLE IF NOT EXISTS sessions (
				site_id TEXT NOT NULL REFERENCES sites(id),
				session_id TEXT NOT NULL,
				visitor_id TEXT NOT NULL,
				first_timestamp INTEGER NOT NULL,
				last_timestamp INTEGER NOT NULL,
				pageviews INTEGER NOT NULL DEFAULT 1,
				first_normalized TEXT NOT NULL DEFAULT '{}',
				created_at INTEGER NOT NULL,
				updated_at INTEGER NOT NULL,
				PRIMARY KEY (site_id, session_id, visitor_id)
			)`,
			`CREATE INDEX IF NOT EXISTS idx_sessions_last_timestamp ON sessions(last_timestamp)`,

			`CREATE TABLE IF NOT EXISTS payments (
				id TEXT PRIMARY KEY,
				site_id TEXT NOT NULL REFERENCES sites(id),
				transaction_id TEXT NOT NULL,
				provider TEXT NOT NULL,
				event_type TEXT NOT NULL,
				amount_cents INTEGER NOT NULL,
				currency TEXT NOT NULL,
				visitor_id TEXT NOT NULL DEFAULT '',
				customer_id TEXT NOT NULL DEFAULT '',
				email TEXT NOT NULL DEFAULT '',
				created_at INTEGER NOT NULL,
				UNIQUE (site_id, transaction_id)
			)`,
			`CREATE INDEX IF NOT EXISTS idx_payments_site_created ON payments(site_id, created_at)`,

			`CREATE TABLE IF NOT EXISTS rollup_hourly (
				site_id TEXT NOT NULL REFERENCES sites(id),
				date TEXT NOT NULL,
				hour INTEGER NOT NULL,
				visitors INTEGER NOT NULL DEFAULT 0,
				sessions INTEGER NOT NULL DEFAULT 0,
				bounced_sessions INTEGER NOT NULL DEFAULT 0,
				avg_session_duration_ms INTEGER NOT NULL DEFAULT 0,
				pageviews INTEGER NOT NULL DEFAULT 0,
				goals INTEGER NOT NULL DEFAULT 0,
				revenue_cents INTEGER NOT NULL DEFAULT 0,
				revenue_new_cents INTEGER NOT NULL DEFAULT 0,
				revenue_renewal_cents INTEGER NOT NULL DEFAULT 0,
				revenue_refund_cents INTEGER NOT NULL DEFAULT 0,
				updated_at INTEGER NOT NULL,
				PRIMARY KEY (site_id, date, hour)
			)`,

			`CREATE TABLE IF NOT EXISTS rollup_daily (
				site_id TEXT NOT NULL REFERENCES sites(id),
				date TEXT NOT NULL,
				visitors INTEGER NOT NULL DEFAULT 0,
				sessions INTEGER NOT NULL DEFAULT 0,
				bounced_sessions INTEGER NOT NULL DEFAULT 0,
				avg_session_duration_ms INTEGER NOT NULL DEFAULT 0,
				pageviews INTEGER NOT NULL DEFAULT 0,
				goals INTEGER NOT NULL DEFAULT 0,
				revenue_cents INTEGER NOT NULL DEFAULT 0,
				revenue_new_cents INTEGER NOT NULL DEFAULT 0,
				revenue_renewal_cents INTEGER NOT NULL DEFAULT 0,
				revenue_refund_cents INTEGER NOT NULL DEFAULT 0,
				updated_at INTEGER NOT NULL,
				PRIMARY KEY (site_id, date)
			)`,

			`CREATE TABLE IF NOT EXISTS rollup_dimension_hourly (
				site_id TEXT NOT NULL REFERENCES sites(id),
				date TEXT NOT NULL,
				hour INTEGER NOT NULL,
				dimension TEXT NOT NULL,
				dimension_value TEXT NOT NULL,
				visitors INTEGER NOT NULL DEFAULT 0,
				sessions INTEGER NOT NULL DEFAULT 0,
				bounced_sessions INTEGER NOT NULL DEFAULT 0,
				avg_session_duration_ms INTEGER NOT NULL DEFAULT 0,
				pageviews INTEGER NOT NULL DEFAULT 0,
				goals INTEGER NOT NULL DEFAULT 0,
				revenue_cents INTEGER NOT NULL DEFAULT 0,
				revenue_new_cents INTEGER NOT NULL DEFAULT 0,
				revenue_renewal_cents INTEGER NOT NULL DEFAULT 0,
				revenue_refund_cents INTEGER NOT NULL DEFAULT 0,
				updated_at INTEGER NOT NULL,
				PRIMARY KEY (site_id, date, hour, dimension, dimension_value)
			)`,

			`CREATE TABLE IF NOT EXISTS rollup_dimension_daily (
				site_id TEXT NOT NULL REFERENCES sites(id),
				date TEXT NOT NULL,
				dimension TEXT NOT NULL,
				dimension_value TEXT NOT NULL,
				visitors INTEGER NOT NULL DEFAULT 0,
				sessions INTEGER NOT NULL DEFAULT 0,
				bounced_sessions INTEGER NOT NULL DEFAULT 0,
				avg_session_duration_ms INTEGER NOT NULL DEFAULT 0,
				pageviews INTEGER NOT NULL DEFAULT 0,
				goals INTEGER NOT NULL DEFAULT 0,
				revenue_cents INTEGER NOT NULL DEFAULT 0,
				revenue_new_cents INTEGER NOT NULL DEFAULT 0,
				revenue_renewal_cents INTEGER NOT NULL DEFAULT 0,
				revenue_refund_cents INTEGER NOT NULL DEFAULT 0,
				updated_at INTEGER NOT NULL,
				PRIMARY KEY (site_id, date, dimension, dimension_value)
			)`,

			`CREATE TABLE IF NOT EXISTS visitor_daily (
				site_id TEXT NOT NULL REFERENCES sites(id),
				date TEXT NOT NULL,
				visitor_id TEXT NOT NULL,
				first_seen_at INTEGER NOT NULL,
				PRIMARY KEY (site_id, date, visitor_id)
			)`,

			`CREATE TABLE IF NOT EXISTS api_key_rate_limits (
				key_hash TEXT PRIMARY KEY,
				suspended_until TEXT NOT NULL,
				backoff_count INTEGER NOT NULL DEFAULT 0,
				updated_at TEXT NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_api_key_rate_limits_suspended_until ON api_key_rate_limits(suspended_until)`,
		},
	})
}
