package cartstore

import (
	"context"
	"errors"
	"time"

	"github.com/angelmondragon/webstore-backend/internal/cart"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// slotRow maps the cart_slots table created by the goose migrations.
type slotRow struct {
	SlotKey   string    `gorm:"column:slot_key;primaryKey"`
	Payload   string    `gorm:"column:payload;not null"`
	UpdatedAt time.Time `gorm:"column:updated_at"`
}

func (slotRow) TableName() string {
	return "cart_slots"
}

// SQLSlot stores one serialized cart as a row of cart_slots.
type SQLSlot struct {
	db  *gorm.DB
	key string
}

func (s *SQLSlot) Read(ctx context.Context) ([]byte, error) {
	var row slotRow
	err := s.db.WithContext(ctx).Where("slot_key = ?", s.key).Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, cart.ErrSlotEmpty
		}
		return nil, err
	}
	return []byte(row.Payload), nil
}

// Write upserts the slot row.
func (s *SQLSlot) Write(ctx context.Context, payload []byte) error {
	row := slotRow{SlotKey: s.key, Payload: string(payload), UpdatedAt: time.Now().UTC()}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "slot_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"payload", "updated_at"}),
	}).Create(&row).Error
}

func (s *SQLSlot) Delete(ctx context.Context) error {
	return s.db.WithContext(ctx).Where("slot_key = ?", s.key).Delete(&slotRow{}).Error
}

// SQLFactory hands out cart_slots rows keyed by device and slot name.
type SQLFactory struct {
	db       *gorm.DB
	slotName string
}

func NewSQLFactory(db *gorm.DB, slotName string) *SQLFactory {
	return &SQLFactory{db: db, slotName: slotName}
}

func (f *SQLFactory) Slot(deviceID string) cart.Slot {
	return &SQLSlot{db: f.db, key: deviceID + ":" + f.slotName}
}

func (f *SQLFactory) Backend() string {
	return BackendSQL
}
