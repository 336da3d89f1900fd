package db

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseConfigDefaults(t *testing.T) {
	cfg, err := ParseConfig([]byte("version: \"1\"\n"))
	require.NoError(t, err)

	assert.Equal(t, "dev", cfg.Mode)
	assert.Equal(t, ":8443", cfg.Server.Addr)
	assert.Equal(t, []string{"http://localhost:3000"}, cfg.Server.CORSOrigins)
	assert.Equal(t, StoreMySQL, cfg.Store.Driver)
	assert.Equal(t, "+05:00", cfg.Attendance.TimezoneOffset)
	assert.Equal(t, "09:00", cfg.Attendance.ScheduledStart)
	assert.Equal(t, 30, *cfg.Attendance.GraceMinutes)
	assert.Equal(t, 540, *cfg.Attendance.ShiftMinutes)
	assert.Equal(t, 24*time.Hour, cfg.Auth.TokenTTL)
}

func TestParseConfig(t *testing.T) {
	cfg, err := ParseConfig([]byte(`
mode: release
server:
  addr: ":9000"
store:
  driver: memory
attendance:
  timezone_offset: "+09:00"
  scheduled_start: "08:30"
  grace_minutes: 0
  shift_minutes: 480
auth:
  jwt_secret: s3cret
  token_ttl: 2h
database:
  host: db
  port: 3306
  dbname: kintai
`))
	require.NoError(t, err)

	assert.Equal(t, "release", cfg.Mode)
	assert.Equal(t, ":9000", cfg.Server.Addr)
	assert.Equal(t, StoreMemory, cfg.Store.Driver)
	assert.Equal(t, "+09:00", cfg.Attendance.TimezoneOffset)
	// 0 は明示指定として残る
	assert.Equal(t, 0, *cfg.Attendance.GraceMinutes)
	assert.Equal(t, 480, *cfg.Attendance.ShiftMinutes)
	assert.Equal(t, 2*time.Hour, cfg.Auth.TokenTTL)
	assert.Equal(t, "kintai", cfg.DB.DBName)
}

func TestParseConfigInvalid(t *testing.T) {
	_, err := ParseConfig([]byte(`
mode: staging
store:
  driver: sqlite
attendance:
  grace_minutes: -1
  shift_minutes: 0
`))
	require.Error(t, err)
	for _, field := range []string{"mode", "store.driver", "attendance.grace_minutes", "attendance.shift_minutes"} {
		assert.Contains(t, err.Error(), field)
	}

	_, err = ParseConfig([]byte("mode: release\n"))
	assert.ErrorContains(t, err, "auth.jwt_secret")

	_, err = ParseConfig([]byte("mode: [dev"))
	assert.Error(t, err)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(t.TempDir() + "/nope.yaml")
	assert.Error(t, err)
}

func TestRunInTx(t *testing.T) {
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer conn.Close()
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE t").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	err = RunInTx(ctx, conn, nil, func(ctx context.Context, tx DBTX) error {
		_, err := tx.ExecContext(ctx, "UPDATE t SET x = 1")
		return err
	})
	require.NoError(t, err)

	boom := errors.New("boom")
	mock.ExpectBegin()
	mock.ExpectRollback()
	err = RunInTx(ctx, conn, nil, func(context.Context, DBTX) error { return boom })
	assert.Equal(t, boom, err)

	mock.ExpectBegin()
	mock.ExpectRollback().WillReturnError(errors.New("conn lost"))
	err = ReadOnly(ctx, conn, func(context.Context, DBTX) error { return boom })
	assert.ErrorIs(t, err, boom)
	assert.ErrorContains(t, err, "rollback: conn lost")

	mock.ExpectBegin().WillReturnError(errors.New("too many connections"))
	err = RunInTx(ctx, conn, nil, func(context.Context, DBTX) error { return nil })
	assert.ErrorContains(t, err, "begin tx")

	assert.NoError(t, mock.ExpectationsWereMet())
}
