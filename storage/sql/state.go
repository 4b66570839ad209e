package sql

import (
	"database/sql"
	"encoding/json"

	"context"

	sq "github.com/Masterminds/squirrel"

	fcerrors "github.com/xmppfed/fedcore/errors"
	"github.com/xmppfed/fedcore/pubsub/model"
)

func (r *Repository) GetState(ctx context.Context, nodeIdx int64, entity string) (*model.StateRecord, error) {
	row := r.builder.
		Select("affiliation").From("pubsub_state").
		Where(sq.Eq{"node_idx": nodeIdx, "entity": entity}).
		RunWith(r.q(ctx)).QueryRowContext(ctx)
	var aff string
	if err := row.Scan(&aff); err != nil {
		if err == sql.ErrNoRows {
			return nil, fcerrors.ErrSubscriptionNotFound
		}
		return nil, fcerrors.Wrap(err, "sql: scan state")
	}
	subs, err := r.subscriptionsFor(ctx, nodeIdx, entity)
	if err != nil {
		return nil, err
	}
	return &model.StateRecord{NodeIdx: nodeIdx, Entity: entity, Affiliation: model.Affiliation(aff), Subs: subs}, nil
}

func (r *Repository) subscriptionsFor(ctx context.Context, nodeIdx int64, entity string) ([]model.Subscription, error) {
	rows, err := r.builder.
		Select("subid", "jid", "state", "options").From("pubsub_subscription").
		Where(sq.Eq{"node_idx": nodeIdx, "entity": entity}).OrderBy("subid").
		RunWith(r.q(ctx)).QueryContext(ctx)
	if err != nil {
		return nil, fcerrors.Wrap(err, "sql: select subscriptions")
	}
	defer rows.Close()
	var out []model.Subscription
	for rows.Next() {
		var s model.Subscription
		var state, optsJSON string
		if err := rows.Scan(&s.SubID, &s.JID, &state, &optsJSON); err != nil {
			return nil, fcerrors.Wrap(err, "sql: scan subscription")
		}
		s.State = model.SubState(state)
		if err := json.Unmarshal([]byte(optsJSON), &s.Options); err != nil {
			return nil, fcerrors.Wrap(err, "sql: unmarshal subscription options")
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// PutState upserts the affiliation row and replaces the entity's
// subscription set wholesale. Subscriptions are few per (entity, node)
// pair (spec §3 "at most one subscribed entry... unless multi-subscribe"),
// so a delete-then-reinsert is simpler and plenty fast versus a diff.
func (r *Repository) PutState(ctx context.Context, rec *model.StateRecord) error {
	q := r.q(ctx)
	_, err := r.builder.
		Insert("pubsub_state").Columns("node_idx", "entity", "affiliation").
		Values(rec.NodeIdx, rec.Entity, string(rec.Affiliation)).
		Suffix("ON CONFLICT (node_idx, entity) DO UPDATE SET affiliation = EXCLUDED.affiliation").
		RunWith(q).ExecContext(ctx)
	if err != nil {
		// MySQL lacks ON CONFLICT; fall back to its upsert syntax.
		_, err = r.builder.
			Insert("pubsub_state").Columns("node_idx", "entity", "affiliation").
			Values(rec.NodeIdx, rec.Entity, string(rec.Affiliation)).
			Suffix("ON DUPLICATE KEY UPDATE affiliation = VALUES(affiliation)").
			RunWith(q).ExecContext(ctx)
		if err != nil {
			return fcerrors.Wrap(err, "sql: upsert state")
		}
	}
	if _, err := r.builder.Delete("pubsub_subscription").
		Where(sq.Eq{"node_idx": rec.NodeIdx, "entity": rec.Entity}).
		RunWith(q).ExecContext(ctx); err != nil {
		return fcerrors.Wrap(err, "sql: clear subscriptions")
	}
	if len(rec.Subs) == 0 {
		return nil
	}
	ins := r.builder.Insert("pubsub_subscription").Columns("node_idx", "entity", "subid", "jid", "state", "options")
	for _, s := range rec.Subs {
		optsJSON, err := json.Marshal(s.Options)
		if err != nil {
			return fcerrors.Wrap(err, "sql: marshal subscription options")
		}
		ins = ins.Values(rec.NodeIdx, rec.Entity, s.SubID, s.JID, string(s.State), string(optsJSON))
	}
	if _, err := ins.RunWith(q).ExecContext(ctx); err != nil {
		return fcerrors.Wrap(err, "sql: insert subscriptions")
	}
	return nil
}

func (r *Repository) DeleteState(ctx context.Context, nodeIdx int64, entity string) error {
	q := r.q(ctx)
	if _, err := r.builder.Delete("pubsub_subscription").
		Where(sq.Eq{"node_idx": nodeIdx, "entity": entity}).RunWith(q).ExecContext(ctx); err != nil {
		return fcerrors.Wrap(err, "sql: delete subscriptions")
	}
	if _, err := r.builder.Delete("pubsub_state").
		Where(sq.Eq{"node_idx": nodeIdx, "entity": entity}).RunWith(q).ExecContext(ctx); err != nil {
		return fcerrors.Wrap(err, "sql: delete state")
	}
	return nil
}

func (r *Repository) ListStates(ctx context.Context, nodeIdx int64) ([]*model.StateRecord, error) {
	rows, err := r.builder.
		Select("entity", "affiliation").From("pubsub_state").
		Where(sq.Eq{"node_idx": nodeIdx}).OrderBy("entity").
		RunWith(r.q(ctx)).QueryContext(ctx)
	if err != nil {
		return nil, fcerrors.Wrap(err, "sql: select states")
	}
	var out []*model.StateRecord
	var entities []string
	var affs []string
	for rows.Next() {
		var entity, aff string
		if err := rows.Scan(&entity, &aff); err != nil {
			rows.Close()
			return nil, fcerrors.Wrap(err, "sql: scan state row")
		}
		entities = append(entities, entity)
		affs = append(affs, aff)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()
	for i, entity := range entities {
		subs, err := r.subscriptionsFor(ctx, nodeIdx, entity)
		if err != nil {
			return nil, err
		}
		out = append(out, &model.StateRecord{NodeIdx: nodeIdx, Entity: entity, Affiliation: model.Affiliation(affs[i]), Subs: subs})
	}
	return out, nil
}
