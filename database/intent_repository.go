package database

import (
	"context"
	"errors"
	"time"

	"github.com/40acres/htlc-bridge/database/models"
	"github.com/40acres/htlc-bridge/registry"
	"github.com/lightningnetwork/lnd/lntypes"
	"gorm.io/gorm"
)

func (d *Database) CreateIntent(ctx context.Context, intent *models.SwapIntent) error {
	return d.orm.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.Swap{}).Where("hashlock = ?", intent.Hashlock.String()).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return registry.ErrDuplicateHashlock
		}

		err := tx.Create(intent).Error
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return registry.ErrDuplicateHashlock
		}

		return err
	})
}

func (d *Database) GetIntent(ctx context.Context, id string) (*models.SwapIntent, error) {
	var intent models.SwapIntent
	if err := d.orm.WithContext(ctx).First(&intent, "id = ?", id).Error; err != nil {
		return nil, notFound(err, registry.ErrIntentNotFound)
	}

	return &intent, nil
}

func (d *Database) GetIntentByHashlock(ctx context.Context, hashlock lntypes.Hash) (*models.SwapIntent, error) {
	var intent models.SwapIntent
	if err := d.orm.WithContext(ctx).First(&intent, "hashlock = ?", hashlock.String()).Error; err != nil {
		return nil, notFound(err, registry.ErrIntentNotFound)
	}

	return &intent, nil
}

func (d *Database) DeleteIntent(ctx context.Context, id string) error {
	res := d.orm.WithContext(ctx).Where("id = ?", id).Delete(&models.SwapIntent{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return registry.ErrIntentNotFound
	}

	return nil
}

func (d *Database) PurgeIntents(ctx context.Context, before time.Time) (int64, error) {
	res := d.orm.WithContext(ctx).Where("expires_at < ?", before).Delete(&models.SwapIntent{})

	return res.RowsAffected, res.Error
}
