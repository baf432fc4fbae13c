// Package clickhouse stores risk reports of finished transactions for offline
// analysis.
package clickhouse

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"payment-lifecycle-engine/internal/core/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS risk_reports (
	transaction_id UUID,
	customer_id    UUID,
	status         LowCardinality(String),
	amount         Int64,
	currency       LowCardinality(String),
	risk_score     Int32,
	risk_level     LowCardinality(String),
	factors        Array(String),
	response_code  LowCardinality(String),
	occurred_at    DateTime64(3, 'UTC'),
	processed_at   DateTime64(3, 'UTC')
) ENGINE = ReplacingMergeTree(processed_at)
ORDER BY (occurred_at, transaction_id)`

// RiskReport is one row of risk_reports.
type RiskReport struct {
	TransactionID string    `json:"transactionId"`
	CustomerID    string    `json:"customerId"`
	Status        string    `json:"status"`
	Amount        int64     `json:"amount"`
	Currency      string    `json:"currency"`
	RiskScore     int32     `json:"riskScore"`
	RiskLevel     string    `json:"riskLevel"`
	Factors       []string  `json:"factors"`
	ResponseCode  string    `json:"responseCode"`
	OccurredAt    time.Time `json:"occurredAt"`
	ProcessedAt   time.Time `json:"processedAt"`
}

// ReportFromTransaction builds a report from a transaction event payload.
// Transactions without a risk assessment (cancelled before scoring) yield ok=false.
func ReportFromTransaction(payload []byte, occurredAt, processedAt time.Time) (report RiskReport, ok bool, err error) {
	var tx domain.Transaction
	if err := json.Unmarshal(payload, &tx); err != nil {
		return RiskReport{}, false, fmt.Errorf("failed to decode transaction payload: %w", err)
	}
	if tx.Risk == nil {
		return RiskReport{}, false, nil
	}
	factors := make([]string, 0, len(tx.Risk.Factors))
	for _, f := range tx.Risk.Factors {
		factors = append(factors, f.Code)
	}
	return RiskReport{
		TransactionID: tx.ID.String(),
		CustomerID:    tx.CustomerID.String(),
		Status:        string(tx.Status),
		Amount:        tx.Amount,
		Currency:      tx.Currency,
		RiskScore:     int32(tx.Risk.Score),
		RiskLevel:     string(tx.Risk.Level),
		Factors:       factors,
		ResponseCode:  string(tx.ResponseCode),
		OccurredAt:    occurredAt.UTC(),
		ProcessedAt:   processedAt.UTC(),
	}, true, nil
}

// Reports reads and writes risk_reports.
type Reports struct {
	conn clickhouse.Conn
}

// Open connects to addr and pings the server.
func Open(ctx context.Context, addr, database, username, password string) (*Reports, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{addr},
		Auth: clickhouse.Auth{Database: database, Username: username, Password: password},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open clickhouse: %w", err)
	}
	if err := conn.Ping(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping clickhouse: %w", err)
	}
	return &Reports{conn: conn}, nil
}

func (r *Reports) Close() error { return r.conn.Close() }

func (r *Reports) EnsureSchema(ctx context.Context) error {
	if err := r.conn.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to create risk_reports: %w", err)
	}
	return nil
}

// Write inserts reports in one batch.
func (r *Reports) Write(ctx context.Context, reports []RiskReport) error {
	if len(reports) == 0 {
		return nil
	}
	batch, err := r.conn.PrepareBatch(ctx, `INSERT INTO risk_reports`)
	if err != nil {
		return fmt.Errorf("failed to prepare batch: %w", err)
	}
	for _, rep := range reports {
		if err := batch.Append(
			rep.TransactionID, rep.CustomerID, rep.Status, rep.Amount, rep.Currency,
			rep.RiskScore, rep.RiskLevel, rep.Factors, rep.ResponseCode, rep.OccurredAt, rep.ProcessedAt,
		); err != nil {
			_ = batch.Abort()
			return fmt.Errorf("failed to append report %s: %w", rep.TransactionID, err)
		}
	}
	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to send batch: %w", err)
	}
	return nil
}

// Recent returns the newest reports at or above minLevel.
func (r *Reports) Recent(ctx context.Context, minLevel domain.RiskLevel, limit int) ([]RiskReport, error) {
	levels := levelsFrom(minLevel)
	rows, err := r.conn.Query(ctx, `
		SELECT toString(transaction_id), toString(customer_id), status, amount, currency,
		       risk_score, risk_level, factors, response_code, occurred_at, processed_at
		FROM risk_reports FINAL
		WHERE risk_level IN (?)
		ORDER BY occurred_at DESC
		LIMIT ?`, levels, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query risk reports: %w", err)
	}
	defer rows.Close()

	var out []RiskReport
	for rows.Next() {
		var rep RiskReport
		if err := rows.Scan(&rep.TransactionID, &rep.CustomerID, &rep.Status, &rep.Amount, &rep.Currency,
			&rep.RiskScore, &rep.RiskLevel, &rep.Factors, &rep.ResponseCode, &rep.OccurredAt, &rep.ProcessedAt); err != nil {
			return nil, fmt.Errorf("failed to scan risk report: %w", err)
		}
		out = append(out, rep)
	}
	return out, rows.Err()
}

// LevelCount is the number of reports per risk level.
type LevelCount struct {
	Level domain.RiskLevel
	Count uint64
}

// CountByLevel summarises reports that occurred at or after since.
func (r *Reports) CountByLevel(ctx context.Context, since time.Time) ([]LevelCount, error) {
	rows, err := r.conn.Query(ctx, `
		SELECT risk_level, count() FROM risk_reports FINAL
		WHERE occurred_at >= ?
		GROUP BY risk_level
		ORDER BY risk_level`, since)
	if err != nil {
		return nil, fmt.Errorf("failed to count risk reports: %w", err)
	}
	defer rows.Close()

	var out []LevelCount
	for rows.Next() {
		var (
			level string
			count uint64
		)
		if err := rows.Scan(&level, &count); err != nil {
			return nil, fmt.Errorf("failed to scan level count: %w", err)
		}
		out = append(out, LevelCount{Level: domain.RiskLevel(level), Count: count})
	}
	return out, rows.Err()
}

var levelOrder = []domain.RiskLevel{domain.RiskLow, domain.RiskMedium, domain.RiskHigh, domain.RiskVeryHigh}

// levelsFrom lists minLevel and every level above it. Unknown levels match all.
func levelsFrom(minLevel domain.RiskLevel) []string {
	var out []string
	found := false
	for _, l := range levelOrder {
		if l == minLevel {
			found = true
		}
		if found {
			out = append(out, string(l))
		}
	}
	if !found {
		for _, l := range levelOrder {
			out = append(out, string(l))
		}
	}
	return out
}
