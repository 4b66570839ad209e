package sql

import (
	"context"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/xmppfed/fedcore/pubsub/model"
)

func TestRepositoryPutNode(t *testing.T) {
	r, mock := NewMock(t)
	ctx := context.Background()

	mock.ExpectExec("INSERT INTO pubsub_node (.+)").
		WithArgs(int64(1), "pubsub.localhost", "/tests", "flat", "", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("DELETE FROM pubsub_node_owner (.+)").
		WithArgs(int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INSERT INTO pubsub_node_owner (.+)").
		WithArgs(int64(1), "owner@localhost").
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := r.PutNode(ctx, &model.Node{
		NodeIdx: 1, Host: "pubsub.localhost", Path: "/tests", Type: "flat",
		Owners:  []string{"owner@localhost"},
		Options: model.DefaultOptions(10),
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRepositoryGetNodeNotFound(t *testing.T) {
	r, mock := NewMock(t)
	ctx := context.Background()

	mock.ExpectQuery("SELECT (.+) FROM pubsub_node (.+)").
		WithArgs("pubsub.localhost", "/missing").
		WillReturnRows(sqlmock.NewRows([]string{"node_idx", "host", "path", "type", "parent", "options"}))

	_, err := r.GetNode(ctx, "pubsub.localhost", "/missing")
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRepositoryDeleteNodeCascades(t *testing.T) {
	r, mock := NewMock(t)
	ctx := context.Background()

	mock.ExpectExec("DELETE FROM pubsub_node (.+)").
		WithArgs(int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	for _, tbl := range []string{"pubsub_node_owner", "pubsub_state", "pubsub_subscription", "pubsub_item"} {
		mock.ExpectExec("DELETE FROM " + tbl + " (.+)").
			WithArgs(int64(7)).
			WillReturnResult(sqlmock.NewResult(0, 0))
	}

	err := r.DeleteNode(ctx, 7)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
