package sql

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	fcerrors "github.com/xmppfed/fedcore/errors"
)

func TestTransactCommitsOnSuccess(t *testing.T) {
	r, mock := NewMock(t)
	mock.ExpectBegin()
	mock.ExpectCommit()

	err := r.Transact(context.Background(), func(ctx context.Context) error {
		return nil
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactRetriesOnceThenGivesUp(t *testing.T) {
	r, mock := NewMock(t)
	mock.ExpectBegin()
	mock.ExpectRollback()
	mock.ExpectBegin()
	mock.ExpectRollback()

	callCount := 0
	err := r.Transact(context.Background(), func(ctx context.Context) error {
		callCount++
		return fcerrors.ErrTransactionAborted
	})
	require.Error(t, err)
	require.Equal(t, 2, callCount)
	require.NoError(t, mock.ExpectationsWereMet())
}
