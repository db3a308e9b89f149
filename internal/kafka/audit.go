package kafka

import (
	"context"

	"github.com/usagebilling/core/internal/entitlementevaluator"
)

// AuditSink publishes verify/reportUsage outcomes to the analytics
// ingestion topic, satisfying entitlementevaluator.AuditSink. Record never
// blocks the caller (spec.md §4.5's "asynchronously ingested into
// analytics") by handing the publish off to its own goroutine; Producer.Publish
// already swallows its own errors, so there is nothing for Record to return.
type AuditSink struct {
	producer *Producer
}

func NewAuditSink(producer *Producer) entitlementevaluator.AuditSink {
	return &AuditSink{producer: producer}
}

func (s *AuditSink) Record(_ context.Context, rec entitlementevaluator.VerifyAudit) {
	go s.producer.Publish(rec.ProjectID+":"+rec.CustomerID+":"+rec.FeatureSlug, rec)
}
