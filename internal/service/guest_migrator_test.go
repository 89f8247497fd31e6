package service

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestMigrateRequiresLock(t *testing.T) {
	st, mock := newMockStore(t)
	redis := newTestRedis()
	bus, pub := newTestBus()
	gm := NewGuestMigrator(st, redis, NewPointsLedger(st, redis, bus), bus)

	// Lock acquisition fails, so the migration never touches the database.
	_, err := gm.Migrate(context.Background(), "device-1", uuid.New())
	assert.Error(t, err)
	assert.Empty(t, pub.events)
	assert.NoError(t, mock.ExpectationsWereMet())
}
