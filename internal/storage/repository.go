package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
)

const (
	upsertMetricSampleSQL = `INSERT INTO metric_samples (
        bucket_ts,
        total_market_cap,
        btc_dominance,
        hhi,
        gini,
        entropy_pct,
        market_structure,
        regime,
        confidence,
        status,
        error
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11
    )
    ON CONFLICT (bucket_ts) DO UPDATE
    SET
        total_market_cap = EXCLUDED.total_market_cap,
        btc_dominance    = EXCLUDED.btc_dominance,
        hhi              = EXCLUDED.hhi,
        gini             = EXCLUDED.gini,
        entropy_pct      = EXCLUDED.entropy_pct,
        market_structure = EXCLUDED.market_structure,
        regime           = EXCLUDED.regime,
        confidence       = EXCLUDED.confidence,
        status           = EXCLUDED.status,
        error            = EXCLUDED.error;`

	listSamplesBetweenSQL = `SELECT
        bucket_ts,
        total_market_cap,
        btc_dominance,
        hhi,
        gini,
        entropy_pct,
        market_structure,
        regime,
        confidence,
        status,
        error,
        created_at
    FROM metric_samples
    WHERE bucket_ts >= $1
      AND bucket_ts < $2
    ORDER BY bucket_ts;`

	listRecentSamplesSQL = `SELECT
        bucket_ts,
        total_market_cap,
        btc_dominance,
        hhi,
        gini,
        entropy_pct,
        market_structure,
        regime,
        confidence,
        status,
        error,
        created_at
    FROM metric_samples
    ORDER BY bucket_ts DESC
    LIMIT $1;`

	latestSampleSQL = `SELECT
        bucket_ts,
        total_market_cap,
        btc_dominance,
        hhi,
        gini,
        entropy_pct,
        market_structure,
        regime,
        confidence,
        status,
        error,
        created_at
    FROM metric_samples
    WHERE status = 'complete'
    ORDER BY bucket_ts DESC
    LIMIT 1;`

	markSampleErroredSQL = `UPDATE metric_samples
    SET status = 'errored', error = $2
    WHERE bucket_ts = $1;`

	countSamplesSQL = `SELECT COUNT(*) FROM metric_samples;`

	insertRegimeAlertSQL = `INSERT INTO regime_alerts (
        sample_ts,
        previous_regime,
        regime,
        confidence,
        channels
    ) VALUES (
        $1,$2,$3,$4,$5
    )
    ON CONFLICT (sample_ts) DO UPDATE
    SET previous_regime = EXCLUDED.previous_regime,
        regime          = EXCLUDED.regime,
        confidence      = EXCLUDED.confidence,
        channels        = EXCLUDED.channels
    RETURNING id, sample_ts, previous_regime, regime, confidence, channels, created_at;`

	listRecentAlertsSQL = `SELECT
        id,
        sample_ts,
        previous_regime,
        regime,
        confidence,
        channels,
        created_at
    FROM regime_alerts
    ORDER BY created_at DESC
    LIMIT $1;`

	deleteAlertsBeforeSQL = `DELETE FROM regime_alerts WHERE created_at < $1;`

	tryAdvisoryLockSQL = `SELECT pg_try_advisory_lock($1);`
	advisoryUnlockSQL  = `SELECT pg_advisory_unlock($1);`
)

// MetricSampleStore defines operations for metric sample persistence.
type MetricSampleStore interface {
	UpsertMetricSample(ctx context.Context, sample MetricSample) error
	ListSamplesBetween(ctx context.Context, from, to time.Time) ([]MetricSample, error)
	ListRecentSamples(ctx context.Context, limit int) ([]MetricSample, error)
	LatestSample(ctx context.Context) (*MetricSample, error)
	MarkSampleErrored(ctx context.Context, bucket time.Time, errMsg string) error
	CountSamples(ctx context.Context) (int64, error)
}

// AlertStore defines operations for regime alert auditing.
type AlertStore interface {
	InsertAlert(ctx context.Context, alert RegimeAlert) (RegimeAlert, error)
	ListRecentAlerts(ctx context.Context, limit int) ([]RegimeAlert, error)
	DeleteAlertsBefore(ctx context.Context, olderThan time.Time) error
}

// AdvisoryLocker exposes advisory lock helpers.
type AdvisoryLocker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (unlock func(), acquired bool, err error)
}

// Store aggregates access to metric samples and regime alerts.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wires a pgx pool into a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// TryAdvisoryLock attempts to acquire a postgres advisory lock and returns a release func.
func (s *Store) TryAdvisoryLock(ctx context.Context, key int64) (func(), bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, false, err
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquire connection: %w", err)
	}

	var acquired bool
	if err := conn.QueryRow(ctx, tryAdvisoryLockSQL, key).Scan(&acquired); err != nil {
		conn.Release()
		return nil, false, fmt.Errorf("try advisory lock: %w", err)
	}
	if !acquired {
		conn.Release()
		return nil, false, nil
	}

	unlock := func() {
		ctxUnlock, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if _, err := conn.Exec(ctxUnlock, advisoryUnlockSQL, key); err != nil {
			// unlock best effort; log omitted in storage package
		}
		conn.Release()
	}
	return unlock, true, nil
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// UpsertMetricSample persists or updates a metric sample.
func (s *Store) UpsertMetricSample(ctx context.Context, sample MetricSample) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	var errMsg interface{}
	if sample.Error != nil {
		errMsg = *sample.Error
	}

	_, execErr := pool.Exec(ctx, upsertMetricSampleSQL,
		sample.Bucket,
		sample.TotalMarketCap.String(),
		sample.BTCDominance.String(),
		sample.HHI,
		sample.Gini,
		sample.EntropyPct,
		sample.MarketStructure,
		sample.Regime,
		sample.Confidence,
		sample.Status,
		errMsg,
	)
	if execErr != nil {
		return fmt.Errorf("upsert metric sample: %w", execErr)
	}
	return nil
}

// ListSamplesBetween lists samples within a time window.
func (s *Store) ListSamplesBetween(ctx context.Context, from, to time.Time) ([]MetricSample, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listSamplesBetweenSQL, from, to)
	if queryErr != nil {
		return nil, fmt.Errorf("list samples between: %w", queryErr)
	}
	defer rows.Close()

	return collectSamples(rows, 0)
}

// ListRecentSamples lists the most recent samples ordered by descending bucket.
func (s *Store) ListRecentSamples(ctx context.Context, limit int) ([]MetricSample, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentSamplesSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent samples: %w", queryErr)
	}
	defer rows.Close()

	return collectSamples(rows, limit)
}

// LatestSample returns the most recent complete sample, or nil when none exist.
func (s *Store) LatestSample(ctx context.Context) (*MetricSample, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, latestSampleSQL)
	if queryErr != nil {
		return nil, fmt.Errorf("latest sample: %w", queryErr)
	}
	defer rows.Close()

	samples, err := collectSamples(rows, 1)
	if err != nil {
		return nil, err
	}
	if len(samples) == 0 {
		return nil, nil
	}
	return &samples[0], nil
}

// MarkSampleErrored marks a sample as errored.
func (s *Store) MarkSampleErrored(ctx context.Context, bucket time.Time, errMsg string) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	cmdTag, execErr := pool.Exec(ctx, markSampleErroredSQL, bucket, errMsg)
	if execErr != nil {
		return fmt.Errorf("mark sample errored: %w", execErr)
	}
	if cmdTag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// CountSamples counts stored samples.
func (s *Store) CountSamples(ctx context.Context) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}
	var count int64
	if scanErr := pool.QueryRow(ctx, countSamplesSQL).Scan(&count); scanErr != nil {
		return 0, fmt.Errorf("count samples: %w", scanErr)
	}
	return count, nil
}

// InsertAlert persists a regime alert emission.
func (s *Store) InsertAlert(ctx context.Context, alert RegimeAlert) (RegimeAlert, error) {
	pool, err := s.getPool()
	if err != nil {
		return RegimeAlert{}, err
	}

	row := pool.QueryRow(ctx, insertRegimeAlertSQL,
		alert.SampleTS,
		alert.PreviousRegime,
		alert.Regime,
		alert.Confidence,
		alert.Channels,
	)

	var rec RegimeAlert
	if scanErr := row.Scan(
		&rec.ID,
		&rec.SampleTS,
		&rec.PreviousRegime,
		&rec.Regime,
		&rec.Confidence,
		&rec.Channels,
		&rec.CreatedAt,
	); scanErr != nil {
		return RegimeAlert{}, fmt.Errorf("insert regime alert: %w", scanErr)
	}

	return rec, nil
}

// ListRecentAlerts lists most recent regime alerts.
func (s *Store) ListRecentAlerts(ctx context.Context, limit int) ([]RegimeAlert, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentAlertsSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent alerts: %w", queryErr)
	}
	defer rows.Close()

	alerts := make([]RegimeAlert, 0, limit)
	for rows.Next() {
		var rec RegimeAlert
		if err := rows.Scan(
			&rec.ID,
			&rec.SampleTS,
			&rec.PreviousRegime,
			&rec.Regime,
			&rec.Confidence,
			&rec.Channels,
			&rec.CreatedAt,
		); err != nil {
			return nil, err
		}
		alerts = append(alerts, rec)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return alerts, nil
}

// DeleteAlertsBefore deletes historical alerts.
func (s *Store) DeleteAlertsBefore(ctx context.Context, olderThan time.Time) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, execErr := pool.Exec(ctx, deleteAlertsBeforeSQL, olderThan); execErr != nil {
		return fmt.Errorf("delete alerts before: %w", execErr)
	}
	return nil
}

func collectSamples(rows pgx.Rows, capacity int) ([]MetricSample, error) {
	samples := make([]MetricSample, 0, capacity)
	for rows.Next() {
		sample, scanErr := scanMetricSample(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		samples = append(samples, sample)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return samples, nil
}

func scanMetricSample(rows pgx.Rows) (MetricSample, error) {
	var (
		bucket          time.Time
		totalStr        string
		dominanceStr    string
		hhi             float64
		gini            float64
		entropyPct      float64
		marketStructure string
		regime          string
		confidence      float64
		status          string
		errMsg          sql.NullString
		createdAt       time.Time
	)

	if err := rows.Scan(
		&bucket,
		&totalStr,
		&dominanceStr,
		&hhi,
		&gini,
		&entropyPct,
		&marketStructure,
		&regime,
		&confidence,
		&status,
		&errMsg,
		&createdAt,
	); err != nil {
		return MetricSample{}, err
	}

	total, err := decimal.NewFromString(totalStr)
	if err != nil {
		return MetricSample{}, fmt.Errorf("parse total market cap: %w", err)
	}
	dominance, err := decimal.NewFromString(dominanceStr)
	if err != nil {
		return MetricSample{}, fmt.Errorf("parse btc dominance: %w", err)
	}

	sample := MetricSample{
		Bucket:          bucket,
		TotalMarketCap:  total,
		BTCDominance:    dominance,
		HHI:             hhi,
		Gini:            gini,
		EntropyPct:      entropyPct,
		MarketStructure: marketStructure,
		Regime:          regime,
		Confidence:      confidence,
		Status:          status,
		CreatedAt:       createdAt,
	}
	if errMsg.Valid {
		msg := errMsg.String
		sample.Error = &msg
	}

	return sample, nil
}
