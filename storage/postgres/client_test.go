package postgres_test

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/require"

	"github.com/oasisprotocol/custody/log"
	"github.com/oasisprotocol/custody/storage"
	"github.com/oasisprotocol/custody/storage/postgres"
	"github.com/oasisprotocol/custody/storage/postgres/testutil"
)

func TestInvalidConnect(t *testing.T) {
	_, err := postgres.NewClient("an invalid connstring", log.NewDefaultLogger("postgres-test"))
	require.Error(t, err)
}

func TestQuery(t *testing.T) {
	client := testutil.NewTestClient(t)
	defer client.Close()

	rows, err := client.Query(context.Background(), `
		SELECT * FROM ( VALUES (0),(1),(2) ) AS q;
	`)
	require.NoError(t, err)
	defer rows.Close()

	i := 0
	for rows.Next() {
		var result int
		require.NoError(t, rows.Scan(&result))
		require.Equal(t, i, result)
		i++
	}
	require.Equal(t, 3, i)
}

func TestInvalidQuery(t *testing.T) {
	client := testutil.NewTestClient(t)
	defer client.Close()

	_, err := client.Query(context.Background(), `an invalid query`)
	require.Error(t, err)
}

func TestQueryRow(t *testing.T) {
	client := testutil.NewTestClient(t)
	defer client.Close()

	var result int
	require.NoError(t, client.QueryRow(context.Background(), `SELECT 1+1;`).Scan(&result))
	require.Equal(t, 2, result)
}

func TestSendBatch(t *testing.T) {
	client := testutil.NewTestClient(t)
	defer client.Close()
	ctx := context.Background()
	require.NoError(t, client.Wipe(ctx))

	create := &storage.QueryBatch{}
	create.Queue(`CREATE TABLE films (fid smallint, name text);`)
	require.NoError(t, client.SendBatch(ctx, create))

	insert := &storage.QueryBatch{}
	insert.Queue(`INSERT INTO films VALUES ($1, $2);`, 1, "Stickman Hero")
	insert.Queue(`INSERT INTO films VALUES ($1, $2);`, 2, "Hero Marketplace")
	require.NoError(t, client.SendBatch(ctx, insert))

	var count int
	require.NoError(t, client.QueryRow(ctx, `SELECT COUNT(*) FROM films;`).Scan(&count))
	require.Equal(t, 2, count)

	// A failing query reverts the whole batch.
	bad := &storage.QueryBatch{}
	bad.Queue(`INSERT INTO films VALUES ($1, $2);`, 3, "reverted")
	bad.Queue(`INSERT INTO no_such_table VALUES (1);`)
	require.Error(t, client.SendBatch(ctx, bad))

	require.NoError(t, client.QueryRow(ctx, `SELECT COUNT(*) FROM films;`).Scan(&count))
	require.Equal(t, 2, count)

	require.NoError(t, client.Wipe(ctx))
}

func TestWithTxRollsBack(t *testing.T) {
	client := testutil.NewTestClient(t)
	defer client.Close()
	ctx := context.Background()
	require.NoError(t, client.Wipe(ctx))

	_, err := client.Exec(ctx, `CREATE TABLE counters (n int);`)
	require.NoError(t, err)

	err = client.WithTx(ctx, pgx.TxOptions{}, func(tx storage.Tx) error {
		if _, err2 := tx.Exec(ctx, `INSERT INTO counters VALUES (1);`); err2 != nil {
			return err2
		}
		_, err2 := tx.Exec(ctx, `INSERT INTO counters VALUES ('not a number');`)
		return err2
	})
	require.Error(t, err)

	var count int
	require.NoError(t, client.QueryRow(ctx, `SELECT COUNT(*) FROM counters;`).Scan(&count))
	require.Zero(t, count)

	require.NoError(t, client.Wipe(ctx))
}
