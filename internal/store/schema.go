package store

// Table names.
const (
	JobsTable         = "saas_edge_jobs"
	CompletenessTable = "product_template_completeness"
)

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS saas_edge_jobs (
		job_id        TEXT PRIMARY KEY,
		job_name      TEXT NOT NULL,
		job_type      TEXT NOT NULL,
		job_status    TEXT NOT NULL,
		tenant_id     TEXT,
		template_id   TEXT,
		request_args  JSONB,
		job_response  JSONB,
		metrics       JSONB,
		error_message TEXT,
		created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS product_template_completeness (
		id                   TEXT PRIMARY KEY,
		job_id               TEXT NOT NULL,
		tenant_id            TEXT,
		template_id          TEXT,
		product_id           TEXT,
		row_index            BIGINT,
		run_type             TEXT NOT NULL,
		status               TEXT NOT NULL,
		error_count          INTEGER NOT NULL DEFAULT 0,
		transformed_response JSONB,
		validation_errors    JSONB,
		input_hash           TEXT,
		cache_freshness      BOOLEAN NOT NULL DEFAULT TRUE,
		created_at           TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_ptc_job ON product_template_completeness (job_id)`,
	`CREATE INDEX IF NOT EXISTS idx_ptc_hash ON product_template_completeness (template_id, input_hash)`,
}

// SQLite keeps JSON and timestamps as TEXT; the store encodes them on write.
var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS saas_edge_jobs (
		job_id        TEXT PRIMARY KEY,
		job_name      TEXT NOT NULL,
		job_type      TEXT NOT NULL,
		job_status    TEXT NOT NULL,
		tenant_id     TEXT,
		template_id   TEXT,
		request_args  TEXT,
		job_response  TEXT,
		metrics       TEXT,
		error_message TEXT,
		created_at    TEXT NOT NULL,
		updated_at    TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS product_template_completeness (
		id                   TEXT PRIMARY KEY,
		job_id               TEXT NOT NULL,
		tenant_id            TEXT,
		template_id          TEXT,
		product_id           TEXT,
		row_index            INTEGER,
		run_type             TEXT NOT NULL,
		status               TEXT NOT NULL,
		error_count          INTEGER NOT NULL DEFAULT 0,
		transformed_response TEXT,
		validation_errors    TEXT,
		input_hash           TEXT,
		cache_freshness      INTEGER NOT NULL DEFAULT 1,
		created_at           TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_ptc_job ON product_template_completeness (job_id)`,
	`CREATE INDEX IF NOT EXISTS idx_ptc_hash ON product_template_completeness (template_id, input_hash)`,
}
