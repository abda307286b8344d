package postgres

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"net"
	"time"

	"cloud.google.com/go/cloudsqlconn"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"gitlab.com/d21d3q/gofindmy/internal/advert"
	"gitlab.com/d21d3q/gofindmy/internal/config"
	"gitlab.com/d21d3q/gofindmy/internal/sink"
)

// Schema creates the table Store writes to.
const Schema = `CREATE TABLE IF NOT EXISTS offline_finding_adverts (
	id          BIGSERIAL PRIMARY KEY,
	message_id  BIGINT,
	device_mac  BYTEA,
	gateway_mac BYTEA,
	received_at TIMESTAMPTZ NOT NULL,
	rssi        INTEGER,
	raw_payload BYTEA NOT NULL,
	driver      TEXT NOT NULL,
	parsed_json JSONB NOT NULL
)`

const insertAdvert = `INSERT INTO offline_finding_adverts
	(message_id, device_mac, gateway_mac, received_at, rssi, raw_payload, driver, parsed_json)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

type execer interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

// Store writes decoded advertisements to Postgres.
type Store struct {
	db      execer
	closers []func() error
}

var _ sink.Sink = (*Store)(nil)

// Open connects with the settings in cfg. When an instance connection name is
// configured the pool dials through the Cloud SQL connector.
func Open(ctx context.Context, cfg config.DBConfig) (*Store, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, errors.Wrap(err, "pgxpool.ParseConfig")
	}
	poolCfg.MinConns = 0
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	poolCfg.MaxConnIdleTime = 5 * time.Minute

	s := &Store{}
	if cfg.InstanceConnectionName != "" {
		var opts []cloudsqlconn.Option
		if cfg.PrivateIP {
			opts = append(opts, cloudsqlconn.WithDefaultDialOptions(cloudsqlconn.WithPrivateIP()))
		}
		d, err := cloudsqlconn.NewDialer(ctx, opts...)
		if err != nil {
			return nil, errors.Wrap(err, "cloudsql dialer")
		}
		instance := cfg.InstanceConnectionName
		poolCfg.ConnConfig.DialFunc = func(ctx context.Context, _, _ string) (net.Conn, error) {
			return d.Dial(ctx, instance)
		}
		s.closers = append(s.closers, d.Close)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		s.Close()
		return nil, errors.Wrap(err, "pgxpool.NewWithConfig")
	}
	s.db = pool
	s.closers = append([]func() error{func() error { pool.Close(); return nil }}, s.closers...)
	if err := pool.Ping(ctx); err != nil {
		s.Close()
		return nil, errors.Wrap(err, "db ping")
	}
	logrus.WithField("db", cfg.String()).Info("connected to database")
	return s, nil
}

// Migrate creates the table if it does not exist.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.db.Exec(ctx, Schema)
	return describe(err, "create schema")
}

func (s *Store) Name() string { return "postgres" }

// Store inserts one row per event.
func (s *Store) Store(ctx context.Context, evt sink.Event) error {
	parsed, err := json.Marshal(evt.Fields)
	if err != nil {
		return errors.Wrap(err, "marshal parsed_json")
	}
	raw, err := hex.DecodeString(evt.RawHex)
	if err != nil {
		return errors.Wrap(err, "raw payload")
	}
	tag, err := s.db.Exec(ctx, insertAdvert,
		nullableID(evt.MessageID),
		macBytes(evt.DeviceMAC),
		macBytes(evt.GatewayMAC),
		receivedAt(evt.Timestamp),
		evt.RSSI,
		raw,
		evt.Driver,
		parsed,
	)
	if err != nil {
		return describe(err, "insert advertisement")
	}
	if tag.RowsAffected() == 0 {
		return errors.Errorf("insert advertisement: no row written for message_id=%d", evt.MessageID)
	}
	return nil
}

// Close releases the pool and dialer.
func (s *Store) Close() error {
	var first error
	for _, c := range s.closers {
		if err := c(); err != nil && first == nil {
			first = err
		}
	}
	s.closers = nil
	return first
}

// describe keeps the SQLSTATE and detail of server errors in the message.
func describe(err error, op string) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return errors.Wrapf(err, "%s: %s (%s) detail=%s", op, pgErr.Message, pgErr.Code, pgErr.Detail)
	}
	return errors.Wrap(err, op)
}

func macBytes(s string) []byte {
	if s == "" {
		return nil
	}
	addr, err := advert.ParseDeviceAddress(s)
	if err != nil {
		return nil
	}
	return addr[:]
}

func nullableID(id int64) *int64 {
	if id <= 0 {
		return nil
	}
	return &id
}

func receivedAt(ms int64) time.Time {
	if ms <= 0 {
		return time.Now().UTC()
	}
	return time.UnixMilli(ms).UTC()
}
