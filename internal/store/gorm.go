package store

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"raffle/internal/models"
)

// Gorm stores raffles in a SQL database. Update locks the row for the length of
// the transaction, which gives the same per-raffle serialisation as Memory.
type Gorm struct {
	db *gorm.DB
}

// NewGorm returns a Store on the raffles table.
func NewGorm(db *gorm.DB) *Gorm {
	return &Gorm{db: db}
}

// Create inserts r. ErrExists if the id is taken.
func (g *Gorm) Create(ctx context.Context, r *models.Raffle) error {
	res := g.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(r)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrExists
	}
	return nil
}

// Get loads one raffle. ErrNotFound if there is none.
func (g *Gorm) Get(ctx context.Context, id uint64) (*models.Raffle, error) {
	var r models.Raffle
	err := g.db.WithContext(ctx).First(&r, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// List queries raffles ordered by id.
func (g *Gorm) List(ctx context.Context, params ListParams) ([]*models.Raffle, error) {
	query := g.db.WithContext(ctx).Model(&models.Raffle{})
	if params.Status != nil {
		query = query.Where("status = ?", *params.Status)
	}
	if params.DeadlineBefore != nil {
		query = query.Where("deadline < ?", *params.DeadlineBefore)
	}
	if params.Limit > 0 {
		query = query.Limit(params.Limit)
	}
	if params.Offset > 0 {
		query = query.Offset(params.Offset)
	}
	var items []*models.Raffle
	if err := query.Order("id asc").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// Update locks the row with SELECT ... FOR UPDATE, runs fn and saves the
// result in the same transaction.
func (g *Gorm) Update(ctx context.Context, id uint64, fn func(r *models.Raffle) error) (*models.Raffle, error) {
	var out *models.Raffle
	err := g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var r models.Raffle
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&r, "id = ?", id).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		if err := fn(&r); err != nil {
			return err
		}
		r.ID = id
		if err := tx.Save(&r).Error; err != nil {
			return err
		}
		out = &r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
