package store

// Schema v1 - normalized cataloging records
const schemaV1 = `
-- Schema version tracking
CREATE TABLE IF NOT EXISTS schema_version (
  version INTEGER PRIMARY KEY,
  applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

-- One row per bibliographic record, unique by MMS Id
CREATE TABLE IF NOT EXISTS bib_records (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  mmsid TEXT UNIQUE NOT NULL,
  language_code TEXT NOT NULL DEFAULT '',
  place_code TEXT NOT NULL DEFAULT '',
  material_type TEXT NOT NULL DEFAULT '',
  resource_type TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_bib_records_language ON bib_records(language_code);
CREATE INDEX IF NOT EXISTS idx_bib_records_place ON bib_records(place_code);

-- One row per decoded 962 field
CREATE TABLE IF NOT EXISTS field_groups (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  bib_id INTEGER NOT NULL REFERENCES bib_records(id) ON DELETE CASCADE,
  cat_center TEXT NOT NULL DEFAULT '',
  cataloger TEXT NOT NULL DEFAULT '',
  yyyymm TEXT NOT NULL DEFAULT '',
  difficulty TEXT NOT NULL DEFAULT '',
  maint_info TEXT NOT NULL DEFAULT '',
  national_info TEXT NOT NULL DEFAULT '',
  naco_info TEXT NOT NULL DEFAULT '',
  saco_info TEXT NOT NULL DEFAULT '',
  project TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_field_groups_bib_id ON field_groups(bib_id);
CREATE INDEX IF NOT EXISTS idx_field_groups_cat_center ON field_groups(cat_center);
CREATE INDEX IF NOT EXISTS idx_field_groups_cataloger ON field_groups(cataloger);
CREATE INDEX IF NOT EXISTS idx_field_groups_yyyymm ON field_groups(yyyymm);

-- One row per occurrence of a repeatable subfield ($h $i $j $k)
CREATE TABLE IF NOT EXISTS repeatable_subfields (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  field_id INTEGER NOT NULL REFERENCES field_groups(id) ON DELETE CASCADE,
  subfield_code TEXT NOT NULL,
  subfield_value TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_repeatable_subfields_field_id ON repeatable_subfields(field_id);
CREATE INDEX IF NOT EXISTS idx_repeatable_subfields_code ON repeatable_subfields(subfield_code);
CREATE INDEX IF NOT EXISTS idx_repeatable_subfields_value ON repeatable_subfields(subfield_value);
`

// Schema v2 - ingest run history
const schemaV2 = `
CREATE TABLE IF NOT EXISTS ingest_runs (
  id TEXT PRIMARY KEY,
  kind TEXT NOT NULL,
  periods TEXT NOT NULL DEFAULT '',
  policy TEXT NOT NULL DEFAULT '',
  started_at DATETIME NOT NULL,
  finished_at DATETIME,
  status TEXT NOT NULL,
  rows_fetched INTEGER NOT NULL DEFAULT 0,
  bibs_created INTEGER NOT NULL DEFAULT 0,
  fields_created INTEGER NOT NULL DEFAULT 0,
  repeatables_created INTEGER NOT NULL DEFAULT 0,
  skipped_duplicates INTEGER NOT NULL DEFAULT 0,
  row_errors INTEGER NOT NULL DEFAULT 0,
  period_failures INTEGER NOT NULL DEFAULT 0,
  error TEXT
);

CREATE INDEX IF NOT EXISTS idx_ingest_runs_started_at ON ingest_runs(started_at);
`
