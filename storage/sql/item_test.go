package sql

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/xmppfed/fedcore/pubsub/model"
)

func TestRepositoryPutItemFreshAssignsSeq(t *testing.T) {
	r, mock := NewMock(t)
	ctx := context.Background()

	mock.ExpectQuery("SELECT seq FROM pubsub_item (.+)").
		WithArgs(int64(1), "x1").
		WillReturnRows(sqlmock.NewRows([]string{"seq"}))
	mock.ExpectQuery("SELECT COALESCE\\(MAX\\(seq\\), 0\\) FROM pubsub_item (.+)").
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"coalesce"}).AddRow(int64(0)))
	mock.ExpectExec("DELETE FROM pubsub_item (.+)").
		WithArgs(int64(1), "x1").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INSERT INTO pubsub_item (.+)").
		WithArgs(int64(1), "x1", "<payload/>", sqlmock.AnyArg(), "pub@localhost", sqlmock.AnyArg(), "pub@localhost", int64(1)).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := r.PutItem(ctx, &model.Item{
		NodeIdx: 1, ItemID: "x1", Payload: []byte("<payload/>"),
		CreatedAt: time.Now(), CreatedBy: "pub@localhost",
		ModifiedAt: time.Now(), ModifiedBy: "pub@localhost",
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRepositoryOldestItemIDEmpty(t *testing.T) {
	r, mock := NewMock(t)
	ctx := context.Background()

	mock.ExpectQuery("SELECT item_id FROM pubsub_item (.+)").
		WithArgs(int64(5)).
		WillReturnRows(sqlmock.NewRows([]string{"item_id"}))

	_, ok, err := r.OldestItemID(ctx, 5)
	require.NoError(t, err)
	require.False(t, ok)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRepositoryGetItemsOrdersNewestFirst(t *testing.T) {
	r, mock := NewMock(t)
	ctx := context.Background()

	now := time.Now().UnixNano()
	rows := sqlmock.NewRows([]string{"item_id", "payload", "created_at", "created_by", "modified_at", "modified_by"}).
		AddRow("x2", "<b/>", now, "pub@localhost", now, "pub@localhost").
		AddRow("x1", "<a/>", now, "pub@localhost", now, "pub@localhost")
	mock.ExpectQuery("SELECT (.+) FROM pubsub_item (.+) ORDER BY seq DESC LIMIT 2").
		WithArgs(int64(1)).
		WillReturnRows(rows)

	items, err := r.GetItems(ctx, 1, 2)
	require.NoError(t, err)
	require.Len(t, items, 2)
	require.Equal(t, "x2", items[0].ItemID)
	require.Equal(t, "x1", items[1].ItemID)
	require.NoError(t, mock.ExpectationsWereMet())
}
