// Package store commits cleaned record batches to PostgreSQL.
//
// A batch is applied as one bulk upsert keyed on the dataset's natural
// composite key (id_mutation, numero_disposition, id_parcelle, lot1_numero).
// Key collisions leave the existing row untouched and are counted, so
// re-importing a partition is idempotent. Each upsert runs inside one
// transaction: a batch is either fully committed or fully absent.
//
// Transient storage errors (lost connections, deadlocks, resource pressure)
// retry the whole batch under the shared retry policy; anything else is a
// persistent SinkError and the caller moves on to the next batch.
//
// The package also carries the operational surface the importer needs:
// schema and index provisioning, per-year import status, table statistics
// and per-year deletion.
package store
