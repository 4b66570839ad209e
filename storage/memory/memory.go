// Package memory is an in-memory storage.Repository used by controller and
// broadcaster unit tests, grounded on the teacher's own habit of pairing a
// SQL-backed production repository with a fast in-process one for tests
// that don't need go-sqlmock's wire-level fidelity.
package memory

import (
	"context"
	"sort"
	"sync"

	fcerrors "github.com/xmppfed/fedcore/errors"
	"github.com/xmppfed/fedcore/pubsub/model"
)

type nodeKey struct {
	host string
	path string
}

type stateKey struct {
	nodeIdx int64
	entity  string
}

// Repository is a mutex-guarded, map-backed storage.Repository.
type Repository struct {
	mu       sync.Mutex
	nextIdx  int64
	nodes    map[nodeKey]*model.Node
	byIdx    map[int64]*model.Node
	states   map[stateKey]*model.StateRecord
	items    map[int64][]*model.Item // nodeIdx -> items, oldest first
}

// New returns an empty repository.
func New() *Repository {
	return &Repository{
		nodes:  map[nodeKey]*model.Node{},
		byIdx:  map[int64]*model.Node{},
		states: map[stateKey]*model.StateRecord{},
		items:  map[int64][]*model.Item{},
	}
}

func (r *Repository) NextNodeIdx(ctx context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextIdx++
	return r.nextIdx, nil
}

func (r *Repository) PutNode(ctx context.Context, node *model.Node) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *node
	r.nodes[nodeKey{host: node.Host, path: node.Path}] = &cp
	r.byIdx[node.NodeIdx] = &cp
	return nil
}

func (r *Repository) GetNode(ctx context.Context, host, path string) (*model.Node, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.nodes[nodeKey{host: host, path: path}]
	if !ok {
		return nil, fcerrors.ErrNodeNotFound
	}
	cp := *n
	return &cp, nil
}

func (r *Repository) GetNodeByIdx(ctx context.Context, idx int64) (*model.Node, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.byIdx[idx]
	if !ok {
		return nil, fcerrors.ErrNodeNotFound
	}
	cp := *n
	return &cp, nil
}

func (r *Repository) DeleteNode(ctx context.Context, idx int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.byIdx[idx]
	if !ok {
		return fcerrors.ErrNodeNotFound
	}
	delete(r.byIdx, idx)
	delete(r.nodes, nodeKey{host: n.Host, path: n.Path})
	delete(r.items, idx)
	for k := range r.states {
		if k.nodeIdx == idx {
			delete(r.states, k)
		}
	}
	return nil
}

func (r *Repository) ChildNodes(ctx context.Context, host, parentPath string) ([]*model.Node, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.Node
	for k, n := range r.nodes {
		if k.host == host && n.Parent == parentPath {
			cp := *n
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

func (r *Repository) GetState(ctx context.Context, nodeIdx int64, entity string) (*model.StateRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.states[stateKey{nodeIdx: nodeIdx, entity: entity}]
	if !ok {
		return nil, fcerrors.ErrSubscriptionNotFound
	}
	cp := *s
	return &cp, nil
}

func (r *Repository) PutState(ctx context.Context, rec *model.StateRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *rec
	r.states[stateKey{nodeIdx: rec.NodeIdx, entity: rec.Entity}] = &cp
	return nil
}

func (r *Repository) DeleteState(ctx context.Context, nodeIdx int64, entity string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.states, stateKey{nodeIdx: nodeIdx, entity: entity})
	return nil
}

func (r *Repository) ListStates(ctx context.Context, nodeIdx int64) ([]*model.StateRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.StateRecord
	for k, s := range r.states {
		if k.nodeIdx == nodeIdx {
			cp := *s
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Entity < out[j].Entity })
	return out, nil
}

func (r *Repository) PutItem(ctx context.Context, item *model.Item) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	list := r.items[item.NodeIdx]
	cp := *item
	for i, existing := range list {
		if existing.ItemID == item.ItemID {
			list[i] = &cp
			return nil
		}
	}
	r.items[item.NodeIdx] = append(list, &cp)
	return nil
}

func (r *Repository) GetItem(ctx context.Context, nodeIdx int64, itemID string) (*model.Item, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, it := range r.items[nodeIdx] {
		if it.ItemID == itemID {
			cp := *it
			return &cp, nil
		}
	}
	return nil, fcerrors.ErrItemNotFound
}

// GetItems returns up to max items, newest-first, spec §4.5 "get_items...
// ordered newest-first." max<=0 means unbounded.
func (r *Repository) GetItems(ctx context.Context, nodeIdx int64, max int) ([]*model.Item, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	list := r.items[nodeIdx]
	out := make([]*model.Item, 0, len(list))
	for i := len(list) - 1; i >= 0; i-- {
		cp := *list[i]
		out = append(out, &cp)
		if max > 0 && len(out) >= max {
			break
		}
	}
	return out, nil
}

func (r *Repository) DeleteItem(ctx context.Context, nodeIdx int64, itemID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	list := r.items[nodeIdx]
	for i, it := range list {
		if it.ItemID == itemID {
			r.items[nodeIdx] = append(list[:i], list[i+1:]...)
			return nil
		}
	}
	return fcerrors.ErrItemNotFound
}

func (r *Repository) ItemCount(ctx context.Context, nodeIdx int64) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.items[nodeIdx]), nil
}

func (r *Repository) OldestItemID(ctx context.Context, nodeIdx int64) (string, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	list := r.items[nodeIdx]
	if len(list) == 0 {
		return "", false, nil
	}
	return list[0].ItemID, true, nil
}

// Transact runs fn directly: the in-memory repository serializes every
// operation under its own mutex, so there is no separate transaction
// context to thread through, and nothing ever aborts.
func (r *Repository) Transact(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}
