// Package storage defines the Pub/Sub persistence contract, spec §3/§7: node,
// state, item, and index records behind a transactional Repository. Mirrors
// the teacher's own storage package shape (a narrow interface implemented by
// a SQL backend and an in-memory backend for tests).
package storage

import (
	"context"

	"github.com/xmppfed/fedcore/pubsub/model"
)

// Repository is the Pub/Sub node-tree persistence contract. Outside Transact
// each call runs on its own, and in the SQL backend a call that issues
// several statements (PutNode, PutItem) is not atomic; callers that need one
// or several operations to be atomic use Transact.
type Repository interface {
	// NextNodeIdx allocates a fresh, process-wide-unique NodeIdx, spec §3
	// "Node... NodeIdx is unique process-wide; once assigned, immutable."
	NextNodeIdx(ctx context.Context) (int64, error)

	PutNode(ctx context.Context, node *model.Node) error
	GetNode(ctx context.Context, host, path string) (*model.Node, error)
	GetNodeByIdx(ctx context.Context, idx int64) (*model.Node, error)
	DeleteNode(ctx context.Context, idx int64) error
	ChildNodes(ctx context.Context, host, parentPath string) ([]*model.Node, error)

	GetState(ctx context.Context, nodeIdx int64, entity string) (*model.StateRecord, error)
	PutState(ctx context.Context, rec *model.StateRecord) error
	DeleteState(ctx context.Context, nodeIdx int64, entity string) error
	ListStates(ctx context.Context, nodeIdx int64) ([]*model.StateRecord, error)

	PutItem(ctx context.Context, item *model.Item) error
	GetItem(ctx context.Context, nodeIdx int64, itemID string) (*model.Item, error)
	GetItems(ctx context.Context, nodeIdx int64, max int) ([]*model.Item, error)
	DeleteItem(ctx context.Context, nodeIdx int64, itemID string) error
	ItemCount(ctx context.Context, nodeIdx int64) (int, error)
	OldestItemID(ctx context.Context, nodeIdx int64) (string, bool, error)

	// Transact runs fn inside a transaction. The SQL backend retries fn
	// once in a fresh transaction after a failed attempt and logs and
	// returns the second failure (spec §7); the in-memory backend runs fn
	// once, without rollback.
	Transact(ctx context.Context, fn func(ctx context.Context) error) error
}
