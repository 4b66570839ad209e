// Package errors collects the sentinel errors shared by the storage,
// s2s, and pubsub packages, and re-exports github.com/pkg/errors' Wrap/Wrapf
// for attaching context at package boundaries — the same combination the
// teacher's storage and transport layers use throughout the pack.
package errors

import (
	"errors"

	pkgerrors "github.com/pkg/errors"
)

// Wrap and Wrapf re-export github.com/pkg/errors so callers only need one
// import for "new sentinel" + "wrap with context".
var (
	Wrap  = pkgerrors.Wrap
	Wrapf = pkgerrors.Wrapf
	Cause = pkgerrors.Cause
	New   = errors.New
	Is    = errors.Is
	As    = errors.As
)

// Storage-layer sentinels.
var (
	ErrNodeNotFound         = errors.New("fedcore: node not found")
	ErrNodeAlreadyExists    = errors.New("fedcore: node already exists")
	ErrParentNodeNotFound   = errors.New("fedcore: parent node not found")
	ErrItemNotFound         = errors.New("fedcore: item not found")
	ErrSubscriptionNotFound = errors.New("fedcore: subscription not found")
	ErrTransactionAborted   = errors.New("fedcore: storage transaction aborted")
)

// S2S registry sentinels.
var (
	ErrSessionLost = errors.New("fedcore: session lost registry race")
)
