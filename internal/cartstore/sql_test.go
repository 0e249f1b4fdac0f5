package cartstore

import (
	"context"
	"testing"

	"github.com/angelmondragon/webstore-backend/internal/cart"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func newSQLiteDB(t *testing.T) *gorm.DB {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{SkipDefaultTransaction: true})
	require.NoError(t, err)
	sqlDB, err := conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, conn.AutoMigrate(&slotRow{}))
	return conn
}

func TestSQLSlotUpsertAndDelete(t *testing.T) {
	ctx := context.Background()
	db := newSQLiteDB(t)
	factory := NewSQLFactory(db, "webstore_cart")
	store := cart.NewSlotStore(factory.Slot("device-1"), cart.StoreOptions{Backend: factory.Backend()})

	require.NoError(t, store.Save(ctx, sampleCart()))

	updated := sampleCart()
	updated.Items[0].Quantity = 5
	require.NoError(t, store.Save(ctx, updated))

	var count int64
	require.NoError(t, db.Model(&slotRow{}).Count(&count).Error)
	assert.Equal(t, int64(1), count, "save must overwrite, not append")

	loaded := store.Load(ctx)
	require.Len(t, loaded.Items, 1)
	assert.Equal(t, 5, loaded.Items[0].Quantity)

	var row slotRow
	require.NoError(t, db.Where("slot_key = ?", "device-1:webstore_cart").Take(&row).Error)
	assert.False(t, row.UpdatedAt.IsZero())

	require.NoError(t, store.Clear(ctx))
	require.NoError(t, db.Model(&slotRow{}).Count(&count).Error)
	assert.Equal(t, int64(0), count)
	assert.True(t, store.Load(ctx).Empty())
}

func TestSQLSlotMissingIsEmpty(t *testing.T) {
	factory := NewSQLFactory(newSQLiteDB(t), "webstore_cart")
	_, err := factory.Slot("nobody").Read(context.Background())
	assert.ErrorIs(t, err, cart.ErrSlotEmpty)
}

func TestSQLSlotCorruptPayloadRecovered(t *testing.T) {
	ctx := context.Background()
	db := newSQLiteDB(t)
	require.NoError(t, db.Create(&slotRow{SlotKey: "device-1:webstore_cart", Payload: "garbage"}).Error)

	var failures int
	store := cart.NewSlotStore(NewSQLFactory(db, "webstore_cart").Slot("device-1"), cart.StoreOptions{
		Backend:     BackendSQL,
		OnReadError: func(context.Context, *cart.StoreReadError) { failures++ },
	})
	assert.True(t, store.Load(ctx).Empty())
	assert.Equal(t, 1, failures)
}
