package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/40acres/htlc-bridge/database/models"
	"github.com/40acres/htlc-bridge/registry"
	"github.com/lightningnetwork/lnd/lntypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var _ registry.Store = (*Database)(nil)

func withChildren(tx *gorm.DB) *gorm.DB {
	return tx.
		Preload("Fills", func(db *gorm.DB) *gorm.DB { return db.Order("position") }).
		Preload("CounterEscrows", func(db *gorm.DB) *gorm.DB { return db.Order("created_at, escrow_ref") })
}

func notFound(err error, sentinel error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return sentinel
	}

	return err
}

func (d *Database) Create(ctx context.Context, swap *models.Swap) error {
	if err := registry.ValidateNew(swap, d.now()); err != nil {
		return err
	}

	return d.orm.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.Swap{}).Where("hashlock = ? OR id = ?", swap.Hashlock.String(), swap.ID).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return registry.ErrDuplicateHashlock
		}

		err := tx.Create(swap).Error
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return registry.ErrDuplicateHashlock
		}

		return err
	})
}

func (d *Database) Get(ctx context.Context, id string) (*models.Swap, error) {
	var swap models.Swap
	err := withChildren(d.orm.WithContext(ctx)).First(&swap, "id = ?", id).Error
	if err != nil {
		return nil, notFound(err, registry.ErrSwapNotFound)
	}

	return &swap, nil
}

func (d *Database) GetByHashlock(ctx context.Context, hashlock lntypes.Hash) (*models.Swap, error) {
	var swap models.Swap
	err := withChildren(d.orm.WithContext(ctx)).First(&swap, "hashlock = ?", hashlock.String()).Error
	if err != nil {
		return nil, notFound(err, registry.ErrSwapNotFound)
	}

	return &swap, nil
}

func (d *Database) GetByEscrowRef(ctx context.Context, chain models.Chain, escrowRef string) (*models.Swap, error) {
	db := d.orm.WithContext(ctx)
	counter := db.Model(&models.CounterEscrow{}).Select("swap_id").Where("escrow_ref = ?", escrowRef)

	var swap models.Swap
	err := withChildren(db).
		Where("source_chain = ? AND source_escrow_ref = ?", chain, escrowRef).
		Or("destination_chain = ? AND id IN (?)", chain, counter).
		First(&swap).Error
	if err != nil {
		return nil, notFound(err, registry.ErrSwapNotFound)
	}

	return &swap, nil
}

func (d *Database) ListByAccount(ctx context.Context, account string, offset, limit int) ([]*models.Swap, error) {
	query := withChildren(d.orm.WithContext(ctx)).
		Where("initiator_address = ? OR beneficiary_address = ?", account, account).
		Order("created_at, id").
		Offset(offset)
	if limit > 0 {
		query = query.Limit(limit)
	}

	swaps := []*models.Swap{}
	if err := query.Find(&swaps).Error; err != nil {
		return nil, err
	}

	return swaps, nil
}

// lockSwap loads a swap with its children and holds a row lock on it until
// the transaction ends.
func lockSwap(tx *gorm.DB, id string) (*models.Swap, error) {
	var swap models.Swap
	err := withChildren(tx.Clauses(clause.Locking{Strength: "UPDATE"})).First(&swap, "id = ?", id).Error
	if err != nil {
		return nil, notFound(err, registry.ErrSwapNotFound)
	}

	return &swap, nil
}

func (d *Database) save(tx *gorm.DB, swap *models.Swap) error {
	return tx.Session(&gorm.Session{FullSaveAssociations: true}).Save(swap).Error
}

func (d *Database) Transition(ctx context.Context, id string, from, to models.SwapStatus, mutate registry.Mutation) (*models.Swap, error) {
	var next *models.Swap
	err := d.orm.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := lockSwap(tx, id)
		if err != nil {
			return err
		}
		next, err = registry.ApplyTransition(current, from, to, mutate, d.now())
		if err != nil {
			return err
		}

		return d.save(tx, next)
	})
	if err != nil {
		return nil, err
	}

	return next, nil
}

func (d *Database) Update(ctx context.Context, id string, mutate registry.Mutation) (*models.Swap, error) {
	var next *models.Swap
	err := d.orm.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := lockSwap(tx, id)
		if err != nil {
			return err
		}
		next, err = registry.ApplyUpdate(current, mutate, d.now())
		if err != nil {
			return err
		}

		return d.save(tx, next)
	})
	if err != nil {
		return nil, err
	}

	return next, nil
}

func (d *Database) RecordFill(ctx context.Context, id string, fill models.PartialFill) (*models.Swap, error) {
	var next *models.Swap
	err := d.orm.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := lockSwap(tx, id)
		if err != nil {
			return err
		}
		var changed bool
		next, changed, err = registry.ApplyFill(current, fill, d.now())
		if err != nil || !changed {
			return err
		}

		return d.save(tx, next)
	})
	if err != nil {
		return nil, err
	}

	return next, nil
}

func (d *Database) SweepExpired(ctx context.Context, now time.Time) ([]*models.Swap, error) {
	var swaps []*models.Swap
	err := withChildren(d.orm.WithContext(ctx)).
		Where("status IN ?", []models.SwapStatus{models.StatusCreated, models.StatusLocked}).
		Where("destination_timelock <= ?", now).
		Order("destination_timelock").
		Find(&swaps).Error
	if err != nil {
		return nil, fmt.Errorf("failed to sweep expired swaps: %w", err)
	}

	return swaps, nil
}

// pendingRecovery mirrors models.Swap.NeedsRecovery. Purge uses its negation
// for settled statuses.
func pendingRecovery(db *gorm.DB) *gorm.DB {
	return db.
		Where("status = ?", models.StatusExpired).
		Or("status = ? AND source_escrow_ref <> '' AND source_refund_tx = '' AND source_withdraw_tx = ''", models.StatusFailed).
		Or("status = ? AND source_withdraw_tx = ''", models.StatusCompleted).
		Or("status = ? AND secret IS NOT NULL", models.StatusLocked)
}

func (d *Database) PendingRecovery(ctx context.Context) ([]*models.Swap, error) {
	db := d.orm.WithContext(ctx)

	var swaps []*models.Swap
	err := withChildren(db).
		Where(pendingRecovery(db.Session(&gorm.Session{NewDB: true}))).
		Order("created_at, id").
		Find(&swaps).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list pending recovery swaps: %w", err)
	}

	return swaps, nil
}

func (d *Database) Purge(ctx context.Context, before time.Time) (int64, error) {
	var purged int64
	err := d.orm.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var ids []string
		err := tx.Model(&models.Swap{}).
			Where("updated_at < ?", before).
			Where("status = ? OR (status = ? AND source_withdraw_tx <> '') OR (status = ? AND (source_escrow_ref = '' OR source_refund_tx <> '' OR source_withdraw_tx <> ''))",
				models.StatusRefunded, models.StatusCompleted, models.StatusFailed).
			Pluck("id", &ids).Error
		if err != nil || len(ids) == 0 {
			return err
		}

		if err := tx.Where("swap_id IN ?", ids).Delete(&models.PartialFill{}).Error; err != nil {
			return err
		}
		if err := tx.Where("swap_id IN ?", ids).Delete(&models.CounterEscrow{}).Error; err != nil {
			return err
		}
		res := tx.Where("id IN ?", ids).Delete(&models.Swap{})
		purged = res.RowsAffected

		return res.Error
	})
	if err != nil {
		return 0, fmt.Errorf("failed to purge swaps: %w", err)
	}

	return purged, nil
}
