package sql

import (
	"context"
	"database/sql"

	sq "github.com/Masterminds/squirrel"

	fcerrors "github.com/xmppfed/fedcore/errors"
	"github.com/xmppfed/fedcore/pubsub/model"
)

// PutItem inserts or, for a republish of the same ItemID (spec §3 "Item"
// is keyed by (ItemID, NodeIdx)), replaces an item in place while keeping
// its original publish order. seq is a per-node monotonic counter used
// purely for "newest-first"/"oldest" ordering (spec §4.5 "ordered
// newest-first", §4.3 retention eviction picking "the first item's ID"),
// since CreatedAt alone can tie at whatever timestamp resolution the
// caller supplies.
func (r *Repository) PutItem(ctx context.Context, item *model.Item) error {
	q := r.q(ctx)
	existing, err := r.itemSeq(ctx, item.NodeIdx, item.ItemID)
	if err != nil {
		return err
	}
	seq := existing
	if seq == 0 {
		seq, err = r.nextItemSeq(ctx, item.NodeIdx)
		if err != nil {
			return err
		}
	}
	if _, err := r.builder.Delete("pubsub_item").
		Where(sq.Eq{"node_idx": item.NodeIdx, "item_id": item.ItemID}).
		RunWith(q).ExecContext(ctx); err != nil {
		return fcerrors.Wrap(err, "sql: clear item for replace")
	}
	_, err = r.builder.Insert("pubsub_item").
		Columns("node_idx", "item_id", "payload", "created_at", "created_by", "modified_at", "modified_by", "seq").
		Values(item.NodeIdx, item.ItemID, string(item.Payload), item.CreatedAt.UnixNano(), item.CreatedBy,
			item.ModifiedAt.UnixNano(), item.ModifiedBy, seq).
		RunWith(q).ExecContext(ctx)
	if err != nil {
		return fcerrors.Wrap(err, "sql: insert item")
	}
	return nil
}

func (r *Repository) itemSeq(ctx context.Context, nodeIdx int64, itemID string) (int64, error) {
	row := r.builder.Select("seq").From("pubsub_item").
		Where(sq.Eq{"node_idx": nodeIdx, "item_id": itemID}).
		RunWith(r.q(ctx)).QueryRowContext(ctx)
	var seq int64
	if err := row.Scan(&seq); err != nil {
		if err == sql.ErrNoRows {
			return 0, nil
		}
		return 0, fcerrors.Wrap(err, "sql: scan item seq")
	}
	return seq, nil
}

func (r *Repository) nextItemSeq(ctx context.Context, nodeIdx int64) (int64, error) {
	row := r.builder.Select("COALESCE(MAX(seq), 0)").From("pubsub_item").
		Where(sq.Eq{"node_idx": nodeIdx}).
		RunWith(r.q(ctx)).QueryRowContext(ctx)
	var max int64
	if err := row.Scan(&max); err != nil {
		return 0, fcerrors.Wrap(err, "sql: max item seq")
	}
	return max + 1, nil
}

func scanItem(row interface {
	Scan(dest ...interface{}) error
}) (*model.Item, error) {
	var it model.Item
	var createdAt, modifiedAt int64
	if err := row.Scan(&it.ItemID, &it.Payload, &createdAt, &it.CreatedBy, &modifiedAt, &it.ModifiedBy); err != nil {
		return nil, err
	}
	it.CreatedAt = unixNano(createdAt)
	it.ModifiedAt = unixNano(modifiedAt)
	return &it, nil
}

func (r *Repository) GetItem(ctx context.Context, nodeIdx int64, itemID string) (*model.Item, error) {
	row := r.builder.
		Select("item_id", "payload", "created_at", "created_by", "modified_at", "modified_by").
		From("pubsub_item").Where(sq.Eq{"node_idx": nodeIdx, "item_id": itemID}).
		RunWith(r.q(ctx)).QueryRowContext(ctx)
	it, err := scanItem(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fcerrors.ErrItemNotFound
		}
		return nil, fcerrors.Wrap(err, "sql: scan item")
	}
	it.NodeIdx = nodeIdx
	return it, nil
}

// GetItems returns up to max items, newest-first (spec §4.5); max<=0 means
// unbounded.
func (r *Repository) GetItems(ctx context.Context, nodeIdx int64, max int) ([]*model.Item, error) {
	query := r.builder.
		Select("item_id", "payload", "created_at", "created_by", "modified_at", "modified_by").
		From("pubsub_item").Where(sq.Eq{"node_idx": nodeIdx}).OrderBy("seq DESC")
	if max > 0 {
		query = query.Limit(uint64(max))
	}
	rows, err := query.RunWith(r.q(ctx)).QueryContext(ctx)
	if err != nil {
		return nil, fcerrors.Wrap(err, "sql: select items")
	}
	defer rows.Close()
	var out []*model.Item
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, fcerrors.Wrap(err, "sql: scan item row")
		}
		it.NodeIdx = nodeIdx
		out = append(out, it)
	}
	return out, rows.Err()
}

func (r *Repository) DeleteItem(ctx context.Context, nodeIdx int64, itemID string) error {
	res, err := r.builder.Delete("pubsub_item").
		Where(sq.Eq{"node_idx": nodeIdx, "item_id": itemID}).
		RunWith(r.q(ctx)).ExecContext(ctx)
	if err != nil {
		return fcerrors.Wrap(err, "sql: delete item")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fcerrors.ErrItemNotFound
	}
	return nil
}

func (r *Repository) ItemCount(ctx context.Context, nodeIdx int64) (int, error) {
	row := r.builder.Select("COUNT(*)").From("pubsub_item").
		Where(sq.Eq{"node_idx": nodeIdx}).
		RunWith(r.q(ctx)).QueryRowContext(ctx)
	var count int
	if err := row.Scan(&count); err != nil {
		return 0, fcerrors.Wrap(err, "sql: count items")
	}
	return count, nil
}

// OldestItemID returns the item with the smallest seq, i.e. the one
// eviction removes first (spec §4.5 "evicts oldest when count exceeds
// max_items").
func (r *Repository) OldestItemID(ctx context.Context, nodeIdx int64) (string, bool, error) {
	row := r.builder.Select("item_id").From("pubsub_item").
		Where(sq.Eq{"node_idx": nodeIdx}).OrderBy("seq ASC").Limit(1).
		RunWith(r.q(ctx)).QueryRowContext(ctx)
	var id string
	if err := row.Scan(&id); err != nil {
		if err == sql.ErrNoRows {
			return "", false, nil
		}
		return "", false, fcerrors.Wrap(err, "sql: scan oldest item")
	}
	return id, true, nil
}
