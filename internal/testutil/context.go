package testutil

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/jackc/pgx/v5"
	"github.com/muid-io/tracehub/internal/adaptive"
	"github.com/muid-io/tracehub/internal/db"
	"github.com/muid-io/tracehub/internal/environment"
	"github.com/muid-io/tracehub/internal/notify"
	"github.com/muid-io/tracehub/pkg/api"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

type TestCtx struct {
	t      *testing.T
	log    *zap.Logger
	dbConn *DbTestConnector
	clock  *clock.Mock
	store  *adaptive.Store
	ctx    context.Context
}

func NewTestCtx(t *testing.T) TestCtx {
	uri := os.Getenv("DB_URI")
	if uri == "" {
		t.Skip("DB_URI not set")
	}

	ctx := context.Background()

	log := zaptest.NewLogger(t)
	zap.ReplaceGlobals(log)

	dbConn, err := newDbTestConnector(ctx, uri)
	require.NoError(t, err, "connecting to DB")

	tx, closer, err := dbConn.Connect(ctx)
	require.NoError(t, err, "opening migration tx")
	require.NoError(t, db.Migrate(ctx, tx), "migrating DB")
	require.NoError(t, tx.Commit(ctx), "committing migration")
	closer(ctx)

	mock := clock.NewMock()
	mock.Set(time.Now())

	return TestCtx{
		t:      t,
		log:    log,
		dbConn: dbConn,
		clock:  mock,
		store:  adaptive.NewStore(adaptive.DefaultParams(), mock),
		ctx:    ctx,
	}
}

func (tc *TestCtx) Logger() *zap.Logger {
	return tc.log
}

func (tc *TestCtx) Connector() db.DbConnector {
	return tc.dbConn
}

func (tc *TestCtx) Clock() *clock.Mock {
	return tc.clock
}

func (tc *TestCtx) Store() *adaptive.Store {
	return tc.store
}

func (tc *TestCtx) Context() context.Context {
	return tc.ctx
}

func (tc *TestCtx) Connect() pgx.Tx {
	tx, _, err := tc.dbConn.Connect(tc.ctx)
	require.NoError(tc.t, err, "connecting to db")

	return tx
}

func (tc *TestCtx) T() *testing.T {
	return tc.t
}

func (tc *TestCtx) Close() {
	tc.dbConn.close(tc.ctx)
}

func (tc *TestCtx) Hub(secret string) *api.TraceHub {
	browse, err := db.NewBrowseCache(time.Second)
	require.NoError(tc.t, err, "create browse cache")

	return api.NewTraceHub(
		environment.Test,
		tc.Connector(),
		tc.store,
		notify.NewNotifier(),
		browse,
		secret,
		300*time.Second,
		24*time.Hour,
		30*time.Second,
	)
}
