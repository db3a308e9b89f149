// Package usage implements customers.getUsage (spec.md §6): a filtered,
// row-level usage history read, as distinct from EntitlementEvaluator's
// aggregated cursor-based reconciliation. It resolves the caller's
// optional customer/feature/entitlement filters down to the
// (eventName, externalCustomerID) pair analytics.UsageStore queries
// against, then normalizes the raw rows it gets back.
package usage

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/usagebilling/core/internal/analytics"
	"github.com/usagebilling/core/internal/domain/customer"
	"github.com/usagebilling/core/internal/domain/entitlement"
	"github.com/usagebilling/core/internal/domain/feature"
	"github.com/usagebilling/core/internal/domain/meter"
	ierr "github.com/usagebilling/core/internal/ierr"
	"github.com/usagebilling/core/internal/logger"
	"github.com/usagebilling/core/internal/types"
)

// Row is one usage event normalized against the customer/feature it counts
// toward — the shape customers.getUsage returns per entry.
type Row struct {
	EntitlementID string
	CustomerID    string
	FeatureSlug   string
	EventName     string
	Quantity      decimal.Decimal
	Timestamp     time.Time
}

// Filter is customers.getUsage's input. Every field is optional; ProjectID
// falls back to the caller's request-scoped project when empty.
// EntitlementID, if set, resolves CustomerID/FeatureSlug on its own and
// overrides whatever those two fields were given as.
type Filter struct {
	ProjectID     string
	CustomerID    string
	FeatureSlug   string
	EntitlementID string
	Start         time.Time
	End           time.Time
}

// Result is customers.getUsage's response envelope. The field is named
// Usage, not Data: spec.md documents {usage: []} on both the success and
// error path (one router path previously let an error handler overwrite it
// with {data: []} — a shape mismatch this type makes impossible to repeat),
// and a nil slice would marshal to {usage: null} instead of {usage: []}.
type Result struct {
	Usage []Row `json:"usage"`
}

func emptyResult() Result { return Result{Usage: []Row{}} }

// Service implements customers.getUsage.
type Service struct {
	entitlements entitlement.Repository
	features     feature.Repository
	meters       meter.Repository
	customers    customer.Repository
	store        analytics.UsageStore
	logger       *logger.Logger
}

func New(
	entitlements entitlement.Repository,
	features feature.Repository,
	meters meter.Repository,
	customers customer.Repository,
	store analytics.UsageStore,
	log *logger.Logger,
) *Service {
	return &Service{
		entitlements: entitlements,
		features:     features,
		meters:       meters,
		customers:    customers,
		store:        store,
		logger:       log,
	}
}

// GetUsage resolves f's filters and returns the matching usage rows. On any
// error it still returns the {usage: []} shape, never a nil Usage slice, so
// a caller's error-path handling can't diverge from its success-path shape.
func (s *Service) GetUsage(ctx context.Context, f Filter) (Result, error) {
	projectID := f.ProjectID
	if projectID == "" {
		projectID = types.GetProjectID(ctx)
	}
	if projectID == "" {
		return emptyResult(), ierr.NewError("project id is required").
			WithHint("getUsage needs a projectId filter or a project-scoped context").
			Mark(ierr.ErrValidation)
	}

	customerID := f.CustomerID
	featureSlug := f.FeatureSlug
	entitlementID := f.EntitlementID

	if entitlementID != "" {
		ent, err := s.entitlements.GetByID(ctx, entitlementID)
		if err != nil {
			return emptyResult(), err
		}
		if ent.ProjectID != projectID {
			return emptyResult(), ierr.NewError("entitlement not found").
				WithReportableDetails(map[string]any{"entitlement_id": entitlementID, "project_id": projectID}).
				Mark(ierr.ErrNotFound)
		}
		customerID = ent.CustomerID
		featureSlug = ent.FeatureSlug
	}

	var externalCustomerID string
	if customerID != "" {
		cust, err := s.customers.Get(ctx, customerID)
		if err != nil {
			return emptyResult(), err
		}
		externalCustomerID = cust.ExternalID
	}

	var eventName string
	var quantityField string
	if featureSlug != "" {
		feat, err := s.features.GetBySlug(ctx, projectID, featureSlug)
		if err != nil {
			return emptyResult(), err
		}
		met, err := s.meters.GetMeter(ctx, feat.MeterID)
		if err != nil {
			return emptyResult(), err
		}
		eventName = met.EventName
		quantityField = met.Aggregation.Field
	}

	rows, err := s.store.QueryEvents(ctx, analytics.EventFilter{
		EventName:          eventName,
		ExternalCustomerID: externalCustomerID,
		Start:              f.Start,
		End:                f.End,
	})
	if err != nil {
		return emptyResult(), err
	}

	out := make([]Row, 0, len(rows))
	for _, r := range rows {
		out = append(out, Row{
			EntitlementID: entitlementID,
			CustomerID:    customerID,
			FeatureSlug:   featureSlug,
			EventName:     r.EventName,
			Quantity:      quantityOf(r, quantityField),
			Timestamp:     r.Timestamp,
		})
	}
	return Result{Usage: out}, nil
}

// quantityOf reads the numeric property named field off an event row's
// decoded properties. field is empty when the caller didn't scope the query
// to one feature (no meter to read an aggregation field from), in which
// case the row is returned with a zero quantity rather than guessing.
func quantityOf(r analytics.EventRow, field string) decimal.Decimal {
	if field == "" || r.Properties == nil {
		return decimal.Zero
	}
	switch v := r.Properties[field].(type) {
	case float64:
		return decimal.NewFromFloat(v)
	case string:
		d, err := decimal.NewFromString(v)
		if err != nil {
			return decimal.Zero
		}
		return d
	default:
		return decimal.Zero
	}
}
