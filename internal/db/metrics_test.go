package db_test

import (
	"context"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"greeting-service/internal/db"
	"greeting-service/internal/db/dbtest"
)

func TestPoolCollector(t *testing.T) {
	src := dbtest.New()
	p := newTestPool(t, src, db.PoolConfig{MaxConns: 4})

	held, err := p.Acquire(context.Background())
	require.NoError(t, err)
	defer held.Release()

	expected := `
# HELP db_pool_acquired_connections Number of connections currently borrowed
# TYPE db_pool_acquired_connections gauge
db_pool_acquired_connections 1
# HELP db_pool_max_connections Maximum number of connections the pool may hold
# TYPE db_pool_max_connections gauge
db_pool_max_connections 4
`
	err = testutil.CollectAndCompare(db.NewPoolCollector(p), strings.NewReader(expected),
		"db_pool_acquired_connections", "db_pool_max_connections")
	assert.NoError(t, err)
}
