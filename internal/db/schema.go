package db

// Both schemas carry the same tables and columns; only types differ.
// ab_variants.video_db_id has no foreign key because variants are stored
// before the video row exists and keep a zero placeholder.

const postgresSchema = `
CREATE TABLE IF NOT EXISTS videos (
	id              BIGSERIAL PRIMARY KEY,
	video_id        TEXT,
	platform        TEXT NOT NULL,
	language        TEXT NOT NULL,
	topic           TEXT NOT NULL DEFAULT '',
	category        TEXT NOT NULL DEFAULT '',
	title           TEXT NOT NULL DEFAULT '',
	upload_date     TIMESTAMPTZ NOT NULL,
	run_dir         TEXT NOT NULL DEFAULT '',
	playlist_id     TEXT,
	ab_variant_id   BIGINT,
	shorts_video_id TEXT,
	ig_media_id     TEXT
);

CREATE TABLE IF NOT EXISTS metrics (
	id             BIGSERIAL PRIMARY KEY,
	video_id       TEXT NOT NULL,
	platform       TEXT NOT NULL,
	views          BIGINT NOT NULL DEFAULT 0,
	likes          BIGINT NOT NULL DEFAULT 0,
	comments       BIGINT NOT NULL DEFAULT 0,
	ctr            DOUBLE PRECISION NOT NULL DEFAULT 0,
	avg_watch_time DOUBLE PRECISION NOT NULL DEFAULT 0,
	impressions    BIGINT NOT NULL DEFAULT 0,
	fetched_at     TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS ab_variants (
	id           BIGSERIAL PRIMARY KEY,
	video_db_id  BIGINT NOT NULL DEFAULT 0,
	variant_type TEXT NOT NULL,
	variant_data TEXT NOT NULL,
	is_winner    BOOLEAN NOT NULL DEFAULT FALSE,
	ctr          DOUBLE PRECISION NOT NULL DEFAULT 0,
	created_at   TIMESTAMPTZ NOT NULL,
	recorded_at  TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS topic_scores (
	id         BIGSERIAL PRIMARY KEY,
	topic      TEXT NOT NULL UNIQUE,
	category   TEXT NOT NULL,
	avg_views  DOUBLE PRECISION NOT NULL DEFAULT 0,
	avg_ctr    DOUBLE PRECISION NOT NULL DEFAULT 0,
	times_used INTEGER NOT NULL DEFAULT 1,
	last_score DOUBLE PRECISION NOT NULL DEFAULT 0,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS playlists (
	id          BIGSERIAL PRIMARY KEY,
	playlist_id TEXT NOT NULL UNIQUE,
	platform    TEXT NOT NULL,
	language    TEXT NOT NULL,
	category    TEXT NOT NULL,
	title       TEXT NOT NULL,
	video_count INTEGER NOT NULL DEFAULT 0,
	created_at  TIMESTAMPTZ NOT NULL,
	UNIQUE (category, language, platform)
);

CREATE TABLE IF NOT EXISTS quota_usage (
	id         BIGSERIAL PRIMARY KEY,
	provider   TEXT NOT NULL,
	day        TEXT NOT NULL,
	units_used BIGINT NOT NULL DEFAULT 0,
	UNIQUE (provider, day)
);

CREATE INDEX IF NOT EXISTS idx_videos_video_id ON videos(video_id);
CREATE INDEX IF NOT EXISTS idx_videos_category ON videos(category, language, platform);
CREATE INDEX IF NOT EXISTS idx_metrics_video_id ON metrics(video_id, fetched_at);
CREATE INDEX IF NOT EXISTS idx_ab_variants_type ON ab_variants(variant_type);
`

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS videos (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	video_id        TEXT,
	platform        TEXT NOT NULL,
	language        TEXT NOT NULL,
	topic           TEXT NOT NULL DEFAULT '',
	category        TEXT NOT NULL DEFAULT '',
	title           TEXT NOT NULL DEFAULT '',
	upload_date     TEXT NOT NULL,
	run_dir         TEXT NOT NULL DEFAULT '',
	playlist_id     TEXT,
	ab_variant_id   INTEGER,
	shorts_video_id TEXT,
	ig_media_id     TEXT
);

CREATE TABLE IF NOT EXISTS metrics (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	video_id       TEXT NOT NULL,
	platform       TEXT NOT NULL,
	views          INTEGER NOT NULL DEFAULT 0,
	likes          INTEGER NOT NULL DEFAULT 0,
	comments       INTEGER NOT NULL DEFAULT 0,
	ctr            REAL NOT NULL DEFAULT 0,
	avg_watch_time REAL NOT NULL DEFAULT 0,
	impressions    INTEGER NOT NULL DEFAULT 0,
	fetched_at     TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS ab_variants (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	video_db_id  INTEGER NOT NULL DEFAULT 0,
	variant_type TEXT NOT NULL,
	variant_data TEXT NOT NULL,
	is_winner    INTEGER NOT NULL DEFAULT 0,
	ctr          REAL NOT NULL DEFAULT 0,
	created_at   TEXT NOT NULL,
	recorded_at  TEXT
);

CREATE TABLE IF NOT EXISTS topic_scores (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	topic      TEXT NOT NULL UNIQUE,
	category   TEXT NOT NULL,
	avg_views  REAL NOT NULL DEFAULT 0,
	avg_ctr    REAL NOT NULL DEFAULT 0,
	times_used INTEGER NOT NULL DEFAULT 1,
	last_score REAL NOT NULL DEFAULT 0,
	updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS playlists (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	playlist_id TEXT NOT NULL UNIQUE,
	platform    TEXT NOT NULL,
	language    TEXT NOT NULL,
	category    TEXT NOT NULL,
	title       TEXT NOT NULL,
	video_count INTEGER NOT NULL DEFAULT 0,
	created_at  TEXT NOT NULL,
	UNIQUE (category, language, platform)
);

CREATE TABLE IF NOT EXISTS quota_usage (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	provider   TEXT NOT NULL,
	day        TEXT NOT NULL,
	units_used INTEGER NOT NULL DEFAULT 0,
	UNIQUE (provider, day)
);

CREATE INDEX IF NOT EXISTS idx_videos_video_id ON videos(video_id);
CREATE INDEX IF NOT EXISTS idx_videos_category ON videos(category, language, platform);
CREATE INDEX IF NOT EXISTS idx_metrics_video_id ON metrics(video_id, fetched_at);
CREATE INDEX IF NOT EXISTS idx_ab_variants_type ON ab_variants(variant_type);
`
