package meter

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/usagebilling/core/internal/types"
)

// Meter defines how raw usage events for a feature are aggregated into the
// value an Entitlement's UsageMeter reconciles against.
type Meter struct {
	ID string `db:"id" json:"id"`

	// EventName is the event type this meter aggregates, as reported by
	// callers to the ingestion transport.
	EventName string `db:"event_name" json:"event_name"`

	Name string `db:"name" json:"name"`

	Aggregation Aggregation `db:"aggregation" json:"aggregation"`

	// Filters restrict which events of EventName this meter counts, matched
	// against top-level keys on the event's properties.
	Filters FilterList `db:"filters" json:"filters"`

	// ResetConfig controls whether usage rolls over on cycle boundaries or
	// accumulates forever (e.g. total storage used never resets).
	ResetConfig types.ResetConfig `db:"reset_config" json:"reset_config"`

	ProjectID string `db:"project_id" json:"project_id"`

	types.BaseModel
}

type Filter struct {
	Key    string   `json:"key"`
	Values []string `json:"values"`
}

// FilterList is the stored form of a Meter's Filters, marshaled as a single
// JSONB column rather than a child table.
type FilterList []Filter

func (f *FilterList) Scan(value interface{}) error {
	if value == nil {
		*f = FilterList{}
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return fmt.Errorf("failed to unmarshal JSONB value: %v", value)
	}
	result := FilterList{}
	if err := json.Unmarshal(bytes, &result); err != nil {
		return err
	}
	*f = result
	return nil
}

func (f FilterList) Value() (driver.Value, error) {
	if f == nil {
		return json.Marshal(FilterList{})
	}
	return json.Marshal(f)
}

type Aggregation struct {
	Type  types.AggregationType `json:"type"`
	Field string                `json:"field,omitempty"`
}

func (a *Aggregation) Scan(value interface{}) error {
	if value == nil {
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return fmt.Errorf("failed to unmarshal JSONB value: %v", value)
	}
	return json.Unmarshal(bytes, a)
}

func (a Aggregation) Value() (driver.Value, error) {
	return json.Marshal(a)
}

func (m *Meter) Validate() error {
	if m.ID == "" {
		return fmt.Errorf("id is required")
	}
	if m.Name == "" {
		return fmt.Errorf("name is required")
	}
	if m.EventName == "" {
		return fmt.Errorf("event_name is required")
	}
	if !m.Aggregation.Type.Validate() {
		return fmt.Errorf("invalid aggregation type: %s", m.Aggregation.Type)
	}
	if m.Aggregation.Type.RequiresField() && m.Aggregation.Field == "" {
		return fmt.Errorf("field is required for aggregation type: %s", m.Aggregation.Type)
	}

	for _, filter := range m.Filters {
		if filter.Key == "" {
			return fmt.Errorf("filter key cannot be empty")
		}
		if len(filter.Values) == 0 {
			return fmt.Errorf("filter values cannot be empty for key: %s", filter.Key)
		}
	}
	return nil
}

func NewMeter(projectID, name, eventName string, agg Aggregation) *Meter {
	now := time.Now().UTC()
	return &Meter{
		ID:          types.GenerateUUIDWithPrefix(types.UUID_PREFIX_METER),
		ProjectID:   projectID,
		Name:        name,
		EventName:   eventName,
		Aggregation: agg,
		Filters:     []Filter{},
		ResetConfig: types.ResetConfigBillingPeriod,
		BaseModel: types.BaseModel{
			Status:    types.StatusActive,
			CreatedAt: now,
			UpdatedAt: now,
		},
	}
}
