package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/boardtrack/apiserver/internal/logging"
	"github.com/rs/zerolog"
)

// AdminShard is the sentinel partition used for orders created by an
// Admin who has no department.
const AdminShard = "Admin"

const maxSchemaNameLen = 63

// ErrInvalidShardName is returned when a department name cannot be
// turned into a schema identifier.
var ErrInvalidShardName = errors.New("invalid shard name")

// ShardManager creates and enumerates department shards. Each shard is
// a Postgres schema named dept_<department> holding that department's
// orders and scans tables. Shards are created lazily and creation is
// idempotent.
type ShardManager struct {
	db  *sql.DB
	log zerolog.Logger
}

func NewShardManager(db *sql.DB) *ShardManager {
	return &ShardManager{
		db:  db,
		log: logging.WithComponent("shards"),
	}
}

// SchemaName derives the schema identifier for a department name.
// The result uses only [a-z0-9_] so it is safe to splice into DDL.
func SchemaName(department string) (string, error) {
	trimmed := strings.TrimSpace(department)
	if trimmed == "" {
		return "", ErrInvalidShardName
	}

	var b strings.Builder
	b.WriteString("dept_")
	for _, r := range strings.ToLower(trimmed) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}

	name := b.String()
	if len(name) > maxSchemaNameLen {
		name = name[:maxSchemaNameLen]
	}
	return name, nil
}

// EnsureShard creates the shard for a department if it does not exist
// yet. Calling it again for the same department is a no-op.
func (m *ShardManager) EnsureShard(ctx context.Context, department string) error {
	schema, err := SchemaName(department)
	if err != nil {
		return err
	}

	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return storageErr("shards.ensure", err)
	}
	defer tx.Rollback()

	statements := []string{
		fmt.Sprintf(`CREATE SCHEMA IF NOT EXISTS %s`, schema),
		fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s.orders (
				id SERIAL PRIMARY KEY,
				order_number TEXT NOT NULL,
				description TEXT NOT NULL DEFAULT '',
				created_at TIMESTAMPTZ NOT NULL,
				created_by_user_id INTEGER NOT NULL
			)`, schema),
		fmt.Sprintf(`CREATE UNIQUE INDEX IF NOT EXISTS idx_orders_order_number ON %s.orders (order_number)`, schema),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_orders_created_at ON %s.orders (created_at)`, schema),
		fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s.scans (
				id SERIAL PRIMARY KEY,
				barcode TEXT NOT NULL,
				scanned_at TIMESTAMPTZ NOT NULL,
				status TEXT NOT NULL,
				notes TEXT NOT NULL DEFAULT '',
				user_id INTEGER NOT NULL,
				order_id INTEGER NOT NULL REFERENCES %s.orders (id)
			)`, schema, schema),
		fmt.Sprintf(`CREATE UNIQUE INDEX IF NOT EXISTS idx_scans_barcode_order ON %s.scans (barcode, order_id)`, schema),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_scans_scanned_at ON %s.scans (scanned_at)`, schema),
	}

	for _, stmt := range statements {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			m.log.Error().Err(err).Str("shard", department).Msg("shard DDL failed")
			return storageErr("shards.ensure", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return storageErr("shards.ensure", err)
	}

	m.log.Debug().Str("shard", department).Msg("shard ensured")
	return nil
}

// Existing filters the candidate department names down to those whose
// shard schema actually exists. Departments that never received an
// order or scan have no shard and are skipped by readers.
func (m *ShardManager) Existing(ctx context.Context, departments []string) ([]string, error) {
	if len(departments) == 0 {
		return nil, nil
	}

	bySchema := make(map[string]string, len(departments))
	schemas := make([]string, 0, len(departments))
	for _, dept := range departments {
		schema, err := SchemaName(dept)
		if err != nil {
			continue
		}
		if _, ok := bySchema[schema]; ok {
			continue
		}
		bySchema[schema] = dept
		schemas = append(schemas, schema)
	}

	const query = `
		SELECT schema_name
		FROM information_schema.schemata
		WHERE schema_name = ANY($1)`
	rows, err := m.db.QueryContext(ctx, query, pq.Array(schemas))
	if err != nil {
		return nil, storageErr("shards.existing", err)
	}
	defer rows.Close()

	found := make(map[string]bool, len(schemas))
	for rows.Next() {
		var schema string
		if err := rows.Scan(&schema); err != nil {
			return nil, storageErr("shards.existing", err)
		}
		found[schema] = true
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("shards.existing", err)
	}

	// Preserve the caller's ordering.
	existing := make([]string, 0, len(found))
	for _, schema := range schemas {
		if found[schema] {
			existing = append(existing, bySchema[schema])
		}
	}
	return existing, nil
}
