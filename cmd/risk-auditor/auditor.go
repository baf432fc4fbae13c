package main

import (
	"time"

	"github.com/twmb/franz-go/pkg/kgo"

	"payment-lifecycle-engine/internal/adapters/analytics/clickhouse"
	"payment-lifecycle-engine/internal/adapters/messaging/kafka"
	"payment-lifecycle-engine/internal/core/domain"
)

// batch is the outcome of one poll: reports to store and records to dead-letter.
type batch struct {
	reports []clickhouse.RiskReport
	dlq     []*kgo.Record
	skipped int
}

// collect turns finished-transaction events into risk reports. Other event
// types and unscored transactions are skipped; undecodable records go to the DLQ.
func collect(records []*kgo.Record, dlqTopic string, now time.Time) batch {
	var b batch
	for _, record := range records {
		env, err := kafka.Decode(record)
		if err != nil {
			b.dlq = append(b.dlq, kafka.DLQRecord(dlqTopic, record, "decode_error", err.Error()))
			continue
		}
		if env.Type != domain.EventTransactionCompleted && env.Type != domain.EventTransactionFailed {
			b.skipped++
			continue
		}
		report, ok, err := clickhouse.ReportFromTransaction(env.Payload, env.OccurredAt, now)
		if err != nil {
			b.dlq = append(b.dlq, kafka.DLQRecord(dlqTopic, record, "payload_error", err.Error()))
			continue
		}
		if !ok {
			b.skipped++
			continue
		}
		b.reports = append(b.reports, report)
	}
	return b
}
