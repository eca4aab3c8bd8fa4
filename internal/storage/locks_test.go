package db

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
)

func TestReleaseAdvisoryLockNotHeld(t *testing.T) {
	database := &DB{lockConns: make(map[int64]*pgxpool.Conn)}

	err := database.ReleaseAdvisoryLock(context.Background(), MaintenanceLockID)
	assert.ErrorContains(t, err, "not held by this process")
}
