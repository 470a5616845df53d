package repository

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/okian/offerwise/internal/domain/model"
	"github.com/okian/offerwise/pkg/logger"
	"github.com/okian/offerwise/pkg/metrics"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// PostgresStore keeps history in PostgreSQL. Records are stored as JSONB
// next to the columns used for filtering and ranking.
type PostgresStore struct {
	pool *pgxpool.Pool
	opts options
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore connects to dsn and applies the embedded migrations.
func NewPostgresStore(ctx context.Context, dsn string, opts ...Option) (*PostgresStore, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, o.connectTimeout)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &PostgresStore{pool: pool, opts: o}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	o.logger.Info(ctx, "history store ready", logger.String("backend", "postgres"))
	return s, nil
}

func (s *PostgresStore) migrate(ctx context.Context) error {
	db := stdlib.OpenDBFromPool(s.pool)
	defer db.Close()

	goose.SetBaseFS(migrationsFS)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}
	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

// retry runs fn until it succeeds, fails permanently or the budget runs out.
// Serialization failures, deadlocks and errors pgconn marks safe to retry
// are transient.
func (s *PostgresStore) retry(ctx context.Context, op string, fn func() error) error {
	start := time.Now()
	defer func() { metrics.RecordRepositoryLatency(op, float64(time.Since(start).Milliseconds())) }()

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 100 * time.Millisecond
	bo.MaxElapsedTime = s.opts.retryMaxElapsed

	return backoff.Retry(func() error {
		err := fn()
		if err == nil || !transient(err) {
			if err != nil {
				return backoff.Permanent(err)
			}
			return nil
		}
		s.opts.logger.Warn(ctx, "retrying history call", logger.String("op", op), logger.Error(err))
		return err
	}, backoff.WithContext(bo, ctx))
}

func transient(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgerrcode.SerializationFailure || pgErr.Code == pgerrcode.DeadlockDetected
	}
	return pgconn.SafeToRetry(err)
}

// SaveOrder implements Store.SaveOrder. Final rows are never overwritten.
func (s *PostgresStore) SaveOrder(ctx context.Context, o *model.Order) error {
	if o == nil || o.ID == "" {
		return fmt.Errorf("%w: order needs an id", ErrInvalidRecord)
	}
	data, err := json.Marshal(o)
	if err != nil {
		return fmt.Errorf("encode order: %w", err)
	}

	const q = `
		INSERT INTO orders (id, user_id, session_id, status, score, offered_at, data, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now())
		ON CONFLICT (id) DO UPDATE SET
			user_id = EXCLUDED.user_id,
			session_id = EXCLUDED.session_id,
			status = EXCLUDED.status,
			score = EXCLUDED.score,
			offered_at = EXCLUDED.offered_at,
			data = EXCLUDED.data,
			updated_at = now()
		WHERE orders.status NOT IN ('complete', 'expired')
	`
	var affected int64
	err = s.retry(ctx, "save_order", func() error {
		tag, err := s.pool.Exec(ctx, q, o.ID, o.UserID, o.SessionID, o.Status, o.Score.Value, o.OfferedAt, data)
		affected = tag.RowsAffected()
		return err
	})
	if err != nil {
		return fmt.Errorf("save order: %w", err)
	}
	if affected == 0 {
		metrics.RecordErrorByComponent("repository", "order_finalized")
		return fmt.Errorf("%w: %s", ErrOrderFinalized, o.ID)
	}
	return nil
}

// GetOrder implements Store.GetOrder.
func (s *PostgresStore) GetOrder(ctx context.Context, id string) (*model.Order, error) {
	var data []byte
	err := s.retry(ctx, "get_order", func() error {
		return s.pool.QueryRow(ctx, `SELECT data FROM orders WHERE id = $1`, id).Scan(&data)
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("order %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get order: %w", err)
	}
	return decodeOrder(data)
}

// ListOrders implements Store.ListOrders.
func (s *PostgresStore) ListOrders(ctx context.Context, f OrderFilter) ([]*model.Order, error) {
	limit, err := s.limit(f.Limit)
	if err != nil {
		return nil, err
	}

	const q = `
		SELECT data FROM orders
		WHERE ($1 = '' OR user_id = $1)
		  AND ($2 = '' OR session_id = $2)
		  AND ($3 = '' OR status = $3)
		ORDER BY offered_at DESC, id ASC
		LIMIT $4
	`
	var out []*model.Order
	err = s.retry(ctx, "list_orders", func() error {
		rows, err := s.pool.Query(ctx, q, f.UserID, f.SessionID, f.Status, limit)
		if err != nil {
			return err
		}
		out, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (*model.Order, error) {
			var data []byte
			if err := row.Scan(&data); err != nil {
				return nil, err
			}
			return decodeOrder(data)
		})
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	return out, nil
}

// Rank implements Store.Rank.
func (s *PostgresStore) Rank(ctx context.Context, orderID string) (Entry, error) {
	const q = `
		SELECT o.data, (SELECT COUNT(*) FROM orders h WHERE h.score > o.score) + 1
		FROM orders o WHERE o.id = $1
	`
	var (
		data []byte
		rank int
	)
	err := s.retry(ctx, "rank", func() error {
		return s.pool.QueryRow(ctx, q, orderID).Scan(&data, &rank)
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return Entry{}, fmt.Errorf("order %s: %w", orderID, ErrNotFound)
	}
	if err != nil {
		return Entry{}, fmt.Errorf("rank order: %w", err)
	}
	o, err := decodeOrder(data)
	if err != nil {
		return Entry{}, err
	}
	return entryFor(o, rank), nil
}

// TopN implements Store.TopN.
func (s *PostgresStore) TopN(ctx context.Context, n int) ([]Entry, error) {
	if n < 1 {
		return nil, ErrInvalidLimit
	}
	const q = `
		SELECT data, RANK() OVER (ORDER BY score DESC)
		FROM orders
		ORDER BY score DESC, id ASC
		LIMIT $1
	`
	var out []Entry
	err := s.retry(ctx, "top_n", func() error {
		rows, err := s.pool.Query(ctx, q, n)
		if err != nil {
			return err
		}
		out, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (Entry, error) {
			var (
				data []byte
				rank int
			)
			if err := row.Scan(&data, &rank); err != nil {
				return Entry{}, err
			}
			o, err := decodeOrder(data)
			if err != nil {
				return Entry{}, err
			}
			return entryFor(o, rank), nil
		})
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("top orders: %w", err)
	}
	return out, nil
}

// SaveSession implements Store.SaveSession. The partial unique index on
// active sessions surfaces as ErrActiveSessionExists.
func (s *PostgresStore) SaveSession(ctx context.Context, sess *model.Session) error {
	if sess == nil || sess.ID == "" {
		return fmt.Errorf("%w: session needs an id", ErrInvalidRecord)
	}
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}

	const q = `
		INSERT INTO sessions (id, user_id, status, start_time, end_time, data, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, now())
		ON CONFLICT (id) DO UPDATE SET
			user_id = EXCLUDED.user_id,
			status = EXCLUDED.status,
			start_time = EXCLUDED.start_time,
			end_time = EXCLUDED.end_time,
			data = EXCLUDED.data,
			updated_at = now()
	`
	err = s.retry(ctx, "save_session", func() error {
		_, err := s.pool.Exec(ctx, q, sess.ID, sess.UserID, sess.Status, sess.StartTime, sess.EndTime, data)
		return err
	})
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return fmt.Errorf("%w: user %s", ErrActiveSessionExists, sess.UserID)
		}
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// GetSession implements Store.GetSession.
func (s *PostgresStore) GetSession(ctx context.Context, id string) (*model.Session, error) {
	var data []byte
	err := s.retry(ctx, "get_session", func() error {
		return s.pool.QueryRow(ctx, `SELECT data FROM sessions WHERE id = $1`, id).Scan(&data)
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	return decodeSession(data)
}

// ListSessions implements Store.ListSessions.
func (s *PostgresStore) ListSessions(ctx context.Context, userID string, limit int) ([]*model.Session, error) {
	limit, err := s.limit(limit)
	if err != nil {
		return nil, err
	}
	const q = `
		SELECT data FROM sessions
		WHERE ($1 = '' OR user_id = $1)
		ORDER BY start_time DESC
		LIMIT $2
	`
	var out []*model.Session
	err = s.retry(ctx, "list_sessions", func() error {
		rows, err := s.pool.Query(ctx, q, userID, limit)
		if err != nil {
			return err
		}
		out, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (*model.Session, error) {
			var data []byte
			if err := row.Scan(&data); err != nil {
				return nil, err
			}
			return decodeSession(data)
		})
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return out, nil
}

// Count implements Store.Count. Errors count as zero.
func (s *PostgresStore) Count(ctx context.Context) int {
	var n int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM orders`).Scan(&n); err != nil {
		s.opts.logger.Warn(ctx, "count orders failed", logger.Error(err))
		return 0
	}
	return n
}

// Close releases the pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) limit(n int) (int, error) {
	switch {
	case n < 0:
		return 0, ErrInvalidLimit
	case n == 0 || n > s.opts.maxListLimit:
		return s.opts.maxListLimit, nil
	default:
		return n, nil
	}
}

func decodeOrder(data []byte) (*model.Order, error) {
	var o model.Order
	if err := json.Unmarshal(data, &o); err != nil {
		return nil, fmt.Errorf("decode order: %w", err)
	}
	return &o, nil
}

func decodeSession(data []byte) (*model.Session, error) {
	var s model.Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	return &s, nil
}
