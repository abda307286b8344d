package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"

	"gitlab.com/d21d3q/gofindmy/internal/sink"
)

type fakeExec struct {
	sql  []string
	args [][]any
	tag  pgconn.CommandTag
	err  error
}

func (f *fakeExec) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.sql = append(f.sql, sql)
	f.args = append(f.args, args)
	return f.tag, f.err
}

func TestStoreInsert(t *testing.T) {
	db := &fakeExec{tag: pgconn.NewCommandTag("INSERT 0 1")}
	s := &Store{db: db}
	rssi := -71
	err := s.Store(context.Background(), sink.Event{
		MessageID:  42,
		DeviceMAC:  "aabbccddeeff",
		GatewayMAC: "01:02:03:04:05:06",
		Timestamp:  1700000000000,
		RSSI:       &rssi,
		RawHex:     "121900",
		Driver:     "offinding",
		Fields:     map[string]any{"battery_level": "Full"},
	})
	require.NoError(t, err)
	require.Len(t, db.args, 1)
	args := db.args[0]
	require.Equal(t, insertAdvert, db.sql[0])
	require.Equal(t, int64(42), *args[0].(*int64))
	require.Equal(t, []byte{0xAA, 0xBB, 0xCC, 0xDD, 0xEE, 0xFF}, args[1])
	require.Equal(t, []byte{1, 2, 3, 4, 5, 6}, args[2])
	require.Equal(t, time.UnixMilli(1700000000000).UTC(), args[3])
	require.Equal(t, &rssi, args[4])
	require.Equal(t, []byte{0x12, 0x19, 0x00}, args[5])
	require.Equal(t, "offinding", args[6])

	var parsed map[string]any
	require.NoError(t, json.Unmarshal(args[7].([]byte), &parsed))
	require.Equal(t, "Full", parsed["battery_level"])
}

func TestStoreNoRows(t *testing.T) {
	s := &Store{db: &fakeExec{tag: pgconn.NewCommandTag("INSERT 0 0")}}
	err := s.Store(context.Background(), sink.Event{MessageID: 7, RawHex: "12"})
	require.ErrorContains(t, err, "message_id=7")
}

func TestStoreBadHex(t *testing.T) {
	s := &Store{db: &fakeExec{}}
	require.ErrorContains(t, s.Store(context.Background(), sink.Event{RawHex: "zz"}), "raw payload")
}

func TestStorePgError(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "42P01", Message: `relation "offline_finding_adverts" does not exist`}
	s := &Store{db: &fakeExec{err: pgErr}}
	err := s.Store(context.Background(), sink.Event{RawHex: "12"})
	require.ErrorContains(t, err, "(42P01)")

	var target *pgconn.PgError
	require.True(t, errors.As(err, &target))
}

func TestMigrate(t *testing.T) {
	db := &fakeExec{}
	require.NoError(t, (&Store{db: db}).Migrate(context.Background()))
	require.Equal(t, []string{Schema}, db.sql)
}

func TestHelpers(t *testing.T) {
	require.Nil(t, nullableID(0))
	require.Nil(t, macBytes(""))
	require.Nil(t, macBytes("not a mac"))
	require.WithinDuration(t, time.Now(), receivedAt(0), time.Minute)
}

func TestCloseRunsClosers(t *testing.T) {
	calls := 0
	s := &Store{closers: []func() error{
		func() error { calls++; return nil },
		func() error { calls++; return errors.New("dialer") },
	}}
	require.EqualError(t, s.Close(), "dialer")
	require.Equal(t, 2, calls)
	require.NoError(t, s.Close())
}
