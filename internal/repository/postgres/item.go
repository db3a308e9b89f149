package postgres

import (
	"context"

	"github.com/usagebilling/core/internal/domain/subscription"
	ierr "github.com/usagebilling/core/internal/ierr"
	"github.com/usagebilling/core/internal/logger"
	"github.com/usagebilling/core/internal/postgres"
)

type itemRepository struct {
	db     *postgres.DB
	logger *logger.Logger
}

func NewItemRepository(db *postgres.DB, logger *logger.Logger) subscription.ItemRepository {
	return &itemRepository{db: db, logger: logger}
}

func (r *itemRepository) Create(ctx context.Context, item *subscription.SubscriptionItem) error {
	query := `
		INSERT INTO subscription_items (
			id, subscription_phase_id, subscription_id, feature_plan_version_id, units,
			status, created_at, updated_at, created_by, updated_by
		) VALUES (
			:id, :subscription_phase_id, :subscription_id, :feature_plan_version_id, :units,
			:status, :created_at, :updated_at, :created_by, :updated_by
		)`

	_, err := r.db.NamedExecContext(ctx, query, item)
	if err != nil {
		return ierr.WithError(err).WithMessage("failed to create subscription item").Mark(ierr.ErrDependencyMissing)
	}
	return nil
}

func (r *itemRepository) CreateBulk(ctx context.Context, items []*subscription.SubscriptionItem) error {
	if len(items) == 0 {
		return nil
	}
	return r.db.WithTx(ctx, func(ctx context.Context) error {
		for _, item := range items {
			if err := r.Create(ctx, item); err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *itemRepository) Get(ctx context.Context, id string) (*subscription.SubscriptionItem, error) {
	var item subscription.SubscriptionItem
	rows, err := r.db.NamedQueryContext(ctx, "SELECT * FROM subscription_items WHERE id = :id", map[string]interface{}{"id": id})
	if err != nil {
		return nil, ierr.WithError(err).WithMessage("failed to get subscription item").Mark(ierr.ErrDependencyMissing)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, ierr.NewError("subscription item not found").
			WithReportableDetails(map[string]any{"item_id": id}).
			Mark(ierr.ErrNotFound)
	}
	if err := rows.StructScan(&item); err != nil {
		return nil, ierr.WithError(err).WithMessage("failed to scan subscription item").Mark(ierr.ErrDependencyMissing)
	}
	return &item, nil
}

func (r *itemRepository) ListByPhase(ctx context.Context, phaseID string) ([]*subscription.SubscriptionItem, error) {
	rows, err := r.db.NamedQueryContext(ctx, "SELECT * FROM subscription_items WHERE subscription_phase_id = :phase_id", map[string]interface{}{"phase_id": phaseID})
	if err != nil {
		return nil, ierr.WithError(err).WithMessage("failed to list subscription items by phase").Mark(ierr.ErrDependencyMissing)
	}
	defer rows.Close()

	var items []*subscription.SubscriptionItem
	for rows.Next() {
		var item subscription.SubscriptionItem
		if err := rows.StructScan(&item); err != nil {
			return nil, ierr.WithError(err).WithMessage("failed to scan subscription item").Mark(ierr.ErrDependencyMissing)
		}
		items = append(items, &item)
	}
	return items, nil
}

func (r *itemRepository) ListBySubscription(ctx context.Context, subscriptionID string) ([]*subscription.SubscriptionItem, error) {
	rows, err := r.db.NamedQueryContext(ctx, "SELECT * FROM subscription_items WHERE subscription_id = :subscription_id", map[string]interface{}{"subscription_id": subscriptionID})
	if err != nil {
		return nil, ierr.WithError(err).WithMessage("failed to list subscription items by subscription").Mark(ierr.ErrDependencyMissing)
	}
	defer rows.Close()

	var items []*subscription.SubscriptionItem
	for rows.Next() {
		var item subscription.SubscriptionItem
		if err := rows.StructScan(&item); err != nil {
			return nil, ierr.WithError(err).WithMessage("failed to scan subscription item").Mark(ierr.ErrDependencyMissing)
		}
		items = append(items, &item)
	}
	return items, nil
}
