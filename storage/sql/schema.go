package sql

import (
	"context"

	fcerrors "github.com/xmppfed/fedcore/errors"
)

// schemaStatements is applied in order by EnsureSchema. It covers the
// node/state/subscription/item tables of spec §3, plus the NodeIdx
// allocator (monotonically increasing NodeIdx starting from 1, spec §6;
// the IDs of deleted nodes are not reused). Dialect differences are
// limited to the auto-increment/serial spelling; the rest is portable SQL,
// matching the teacher's own habit of writing one statement set per
// dialect rather than an ORM-generated schema.
func schemaStatements(dialect Dialect) []string {
	autoPK := "INTEGER PRIMARY KEY AUTOINCREMENT"
	switch dialect {
	case DialectMySQL:
		autoPK = "BIGINT PRIMARY KEY AUTO_INCREMENT"
	case DialectPostgres:
		autoPK = "BIGSERIAL PRIMARY KEY"
	}
	return []string{
		`CREATE TABLE IF NOT EXISTS pubsub_node_idx (
			idx ` + autoPK + `
		)`,
		`CREATE TABLE IF NOT EXISTS pubsub_node (
			node_idx BIGINT PRIMARY KEY,
			host VARCHAR(255) NOT NULL,
			path VARCHAR(255) NOT NULL,
			type VARCHAR(64) NOT NULL,
			parent VARCHAR(255) NOT NULL DEFAULT '',
			options TEXT NOT NULL,
			UNIQUE (host, path)
		)`,
		`CREATE TABLE IF NOT EXISTS pubsub_node_owner (
			node_idx BIGINT NOT NULL,
			jid VARCHAR(255) NOT NULL,
			PRIMARY KEY (node_idx, jid)
		)`,
		`CREATE TABLE IF NOT EXISTS pubsub_state (
			node_idx BIGINT NOT NULL,
			entity VARCHAR(255) NOT NULL,
			affiliation VARCHAR(32) NOT NULL,
			PRIMARY KEY (node_idx, entity)
		)`,
		`CREATE TABLE IF NOT EXISTS pubsub_subscription (
			node_idx BIGINT NOT NULL,
			entity VARCHAR(255) NOT NULL,
			subid VARCHAR(64) NOT NULL,
			jid VARCHAR(255) NOT NULL,
			state VARCHAR(32) NOT NULL,
			options TEXT NOT NULL,
			PRIMARY KEY (node_idx, subid)
		)`,
		`CREATE TABLE IF NOT EXISTS pubsub_item (
			node_idx BIGINT NOT NULL,
			item_id VARCHAR(255) NOT NULL,
			payload TEXT NOT NULL,
			created_at BIGINT NOT NULL,
			created_by VARCHAR(255) NOT NULL,
			modified_at BIGINT NOT NULL,
			modified_by VARCHAR(255) NOT NULL,
			seq BIGINT NOT NULL,
			PRIMARY KEY (node_idx, item_id)
		)`,
	}
}

// EnsureSchema creates the repository's tables if they don't already
// exist. It is idempotent and safe to call on every process start, the way
// the teacher's own SQL storage bootstraps its schema before first use.
func (r *Repository) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schemaStatements(r.dialect) {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return fcerrors.Wrap(err, "sql: ensure schema")
		}
	}
	return nil
}
