package invoice

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"testing"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/Gobusters/ectologger/zapadapter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fleetconnect/matchbook/pkg/database"
	"github.com/fleetconnect/matchbook/pkg/models"
)

func testLogger() ectologger.Logger {
	zapLogger, _ := zap.NewDevelopment()
	return zapadapter.NewZapEctoLogger(zapLogger, nil)
}

type fakeTx struct {
	database.Tx
	invoices  []models.Invoice
	total     int
	selectErr error
	committed bool
}

func (f *fakeTx) SelectContext(ctx context.Context, dest any, query string, args ...any) error {
	if f.selectErr != nil {
		return f.selectErr
	}
	*dest.(*[]models.Invoice) = f.invoices
	return nil
}

func (f *fakeTx) GetContext(ctx context.Context, dest any, query string, args ...any) error {
	*dest.(*int) = f.total
	return nil
}

func (f *fakeTx) Commit(ctx context.Context) error {
	f.committed = true
	return nil
}

func (f *fakeTx) Rollback(ctx context.Context) error { return nil }

type fakeTxDB struct {
	database.DB
	tx *fakeTx
}

func (f *fakeTxDB) GetTx(ctx context.Context, opts *sql.TxOptions) (context.Context, database.Tx, error) {
	return ctx, f.tx, nil
}

func TestList(t *testing.T) {
	t.Run("returns rows and total from one transaction", func(t *testing.T) {
		tx := &fakeTx{
			invoices: []models.Invoice{{ID: "inv-1"}, {ID: "inv-2"}},
			total:    7,
		}
		repo := NewRepository(&fakeTxDB{tx: tx}, testLogger())

		invoices, total, err := repo.List(context.Background(), "t1", "", 1, 50)

		require.NoError(t, err)
		assert.Len(t, invoices, 2)
		assert.Equal(t, 7, total)
		assert.True(t, tx.committed)
	})

	t.Run("query failure surfaces without commit", func(t *testing.T) {
		tx := &fakeTx{selectErr: errors.New("relation does not exist")}
		repo := NewRepository(&fakeTxDB{tx: tx}, testLogger())

		_, _, err := repo.List(context.Background(), "t1", models.MatchStatusMatched, 1, 50)

		require.Error(t, err)
		assert.Equal(t, http.StatusInternalServerError, httperror.GetStatusCode(err))
		assert.False(t, tx.committed)
	})
}
