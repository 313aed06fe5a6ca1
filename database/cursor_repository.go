package database

import (
	"context"
	"errors"

	"github.com/40acres/htlc-bridge/database/models"
	"github.com/40acres/htlc-bridge/utils"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

func (d *Database) GetCursor(ctx context.Context, chain models.Chain) (uint64, error) {
	var cursor models.ChainCursor
	err := d.orm.WithContext(ctx).First(&cursor, "chain = ?", chain).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	return utils.SafeInt64ToUint64(cursor.Sequence)
}

// SaveCursor stores sequence unless a higher one is already stored.
func (d *Database) SaveCursor(ctx context.Context, chain models.Chain, sequence uint64) error {
	seq, err := utils.SafeUint64ToInt64(sequence)
	if err != nil {
		return err
	}

	return d.orm.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "chain"}},
		DoUpdates: clause.Set{
			{Column: clause.Column{Name: "sequence"}, Value: gorm.Expr("GREATEST(chain_cursors.sequence, EXCLUDED.sequence)")},
			{Column: clause.Column{Name: "updated_at"}, Value: d.now().UTC()},
		},
	}).Create(&models.ChainCursor{Chain: chain, Sequence: seq}).Error
}
