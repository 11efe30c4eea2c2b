package store

import (
	"context"
	"fmt"
)

// schemaSQL creates the wide table the ingestion writes to. The composite
// natural key columns default to '' rather than NULL so the unique
// constraint behind ON CONFLICT compares them reliably.
const schemaSQL = `
CREATE TABLE IF NOT EXISTS dvf_data (
	id                        BIGSERIAL PRIMARY KEY,
	id_mutation               TEXT NOT NULL DEFAULT '',
	date_mutation             DATE,
	numero_disposition        TEXT NOT NULL DEFAULT '',
	id_parcelle               TEXT NOT NULL DEFAULT '',
	lot1_numero               TEXT NOT NULL DEFAULT '',
	valeur_fonciere           NUMERIC,
	type_local                TEXT,
	code_type_local           TEXT,
	surface_reelle_bati       NUMERIC,
	surface_terrain           NUMERIC,
	lot1_surface_carrez       NUMERIC,
	nombre_pieces_principales NUMERIC,
	longitude                 DOUBLE PRECISION,
	latitude                  DOUBLE PRECISION,
	code_postal               VARCHAR(5),
	code_commune              VARCHAR(10),
	nom_commune               TEXT,
	code_departement          VARCHAR(5),
	adresse_nom_voie          TEXT,
	adresse_numero            VARCHAR(50),
	import_year               INTEGER NOT NULL,
	import_date               TIMESTAMPTZ NOT NULL DEFAULT now(),
	CONSTRAINT dvf_data_natural_key
		UNIQUE (id_mutation, numero_disposition, id_parcelle, lot1_numero)
)`

// indexSQL provisions the secondary indexes the query side relies on.
var indexSQL = []string{
	`CREATE INDEX IF NOT EXISTS idx_id_parcelle ON dvf_data (id_parcelle)`,
	`CREATE INDEX IF NOT EXISTS idx_type_local ON dvf_data (type_local)`,
	`CREATE INDEX IF NOT EXISTS idx_date_mutation ON dvf_data (date_mutation)`,
	`CREATE INDEX IF NOT EXISTS idx_code_postal ON dvf_data (code_postal)`,
	`CREATE INDEX IF NOT EXISTS idx_valeur_fonciere ON dvf_data (valeur_fonciere)`,
	`CREATE INDEX IF NOT EXISTS idx_type_local_surface ON dvf_data (type_local, surface_reelle_bati)`,
	`CREATE INDEX IF NOT EXISTS idx_code_postal_type_local ON dvf_data (code_postal, type_local)`,
	`CREATE INDEX IF NOT EXISTS idx_nom_commune ON dvf_data (nom_commune)`,
	`CREATE INDEX IF NOT EXISTS idx_id_mutation ON dvf_data (id_mutation)`,
	`CREATE INDEX IF NOT EXISTS idx_apartments ON dvf_data (id_parcelle, valeur_fonciere, surface_reelle_bati)
		WHERE type_local = 'Appartement'`,
	`CREATE INDEX IF NOT EXISTS idx_prix_m2 ON dvf_data ((valeur_fonciere / NULLIF(surface_reelle_bati, 0)))
		WHERE surface_reelle_bati > 0`,
	`CREATE INDEX IF NOT EXISTS idx_combined_filters ON dvf_data (type_local, code_postal, surface_reelle_bati, valeur_fonciere)`,
}

// trigramIndexSQL needs the pg_trgm extension, which may not be installed;
// it is attempted separately and skipped on failure.
var trigramIndexSQL = []string{
	`CREATE EXTENSION IF NOT EXISTS pg_trgm`,
	`CREATE INDEX IF NOT EXISTS idx_adresse_nom_voie_trgm ON dvf_data USING gin (adresse_nom_voie gin_trgm_ops)`,
}

// InitSchema creates the table when missing.
func (s *Store) InitSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	s.logger.Info("schema ready")
	return nil
}

// CreateIndexes provisions every secondary index and refreshes planner
// statistics. Individual index failures are logged and skipped so a partial
// provisioning run can be repeated.
func (s *Store) CreateIndexes(ctx context.Context) error {
	for _, stmt := range indexSQL {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("create index: %w", err)
		}
	}

	for _, stmt := range trigramIndexSQL {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			s.logger.Warn("trigram index skipped", "error", err)
			break
		}
	}

	if _, err := s.pool.Exec(ctx, `ANALYZE dvf_data`); err != nil {
		return fmt.Errorf("analyze: %w", err)
	}
	s.logger.Info("indexes ready", "count", len(indexSQL))
	return nil
}
