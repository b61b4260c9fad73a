package sequence

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"raffle/internal/checked"
	"raffle/internal/models"
)

const raffleCounter = "raffle"

// Gorm keeps the counter in the counters table and serialises increments with
// a row lock.
type Gorm struct {
	db *gorm.DB
}

// NewGorm returns an Allocator backed by a row of the counters table.
func NewGorm(db *gorm.DB) *Gorm {
	return &Gorm{db: db}
}

// Init inserts the counter row at zero. ErrAlreadyInitialised if it exists.
func (g *Gorm) Init(ctx context.Context) error {
	res := g.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&models.Counter{Name: raffleCounter})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrAlreadyInitialised
	}
	return nil
}

// Next locks the counter row, increments it and returns the previous value.
func (g *Gorm) Next(ctx context.Context) (uint64, error) {
	var id uint64
	err := g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var c models.Counter
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("name = ?", raffleCounter).
			First(&c).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotInitialised
		}
		if err != nil {
			return err
		}
		next, err := checked.Add(c.Value, 1)
		if err != nil {
			return err
		}
		id = c.Value
		return tx.Model(&c).Update("value", next).Error
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}
