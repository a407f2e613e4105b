package database

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"mediaapi/internal/config"
)

func TestBuildPostgresDSN(t *testing.T) {
	base := config.DatabaseConfig{Host: "db", Port: "5432", User: "media", Name: "media"}

	tests := []struct {
		name    string
		mutate  func(*config.DatabaseConfig)
		want    string
		wantErr string
	}{
		{
			name:   "password and sslmode",
			mutate: func(c *config.DatabaseConfig) { c.Password = "s3cr@t"; c.SSLMode = "disable" },
			want:   "postgres://media:s3cr%40t@db:5432/media?sslmode=disable",
		},
		{
			name:   "no password",
			mutate: func(c *config.DatabaseConfig) { c.SSLMode = "require" },
			want:   "postgres://media@db:5432/media?sslmode=require",
		},
		{
			name: "no sslmode",
			want: "postgres://media@db:5432/media",
		},
		{
			name:   "ipv6 host",
			mutate: func(c *config.DatabaseConfig) { c.Host = "::1" },
			want:   "postgres://media@[::1]:5432/media",
		},
		{
			name:    "missing host",
			mutate:  func(c *config.DatabaseConfig) { c.Host = "" },
			wantErr: "missing host",
		},
		{
			name:    "missing several",
			mutate:  func(c *config.DatabaseConfig) { c.User = ""; c.Name = "" },
			wantErr: "missing user, name",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := base
			if tt.mutate != nil {
				tt.mutate(&c)
			}
			got, err := BuildPostgresDSN(c)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

// stubOpen makes NewPostgres open db (or fail with err) instead of dialing.
func stubOpen(t *testing.T, db *sql.DB, err error) {
	t.Helper()
	orig := sqlOpen
	sqlOpen = func(string, string) (*sql.DB, error) { return db, err }
	t.Cleanup(func() { sqlOpen = orig })
}

func TestNewPostgres(t *testing.T) {
	conf := config.DatabaseConfig{
		Host:               "localhost",
		Port:               "5432",
		User:               "user",
		Password:           "pass",
		Name:               "media",
		MaxOpenConns:       10,
		MaxIdleConns:       5,
		ConnMaxLifetimeSec: 300,
	}

	t.Run("success", func(t *testing.T) {
		db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
		require.NoError(t, err)
		defer db.Close()
		stubOpen(t, db, nil)
		mock.ExpectPing()

		core, logs := observer.New(zap.InfoLevel)
		got, err := NewPostgres(context.Background(), conf, zap.New(core))
		require.NoError(t, err)
		assert.Same(t, db, got)
		assert.Equal(t, 10, got.Stats().MaxOpenConnections)
		assert.NoError(t, mock.ExpectationsWereMet())

		entries := logs.FilterMessage("db_connected").All()
		require.Len(t, entries, 1)
		assert.Equal(t, "localhost", entries[0].ContextMap()["db_host"])
		assert.Equal(t, "media", entries[0].ContextMap()["db_name"])
	})

	t.Run("open error", func(t *testing.T) {
		stubOpen(t, nil, errors.New("open error"))

		got, err := NewPostgres(context.Background(), conf, zap.NewNop())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "sql open: open error")
		assert.Nil(t, got)
	})

	t.Run("ping error", func(t *testing.T) {
		db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
		require.NoError(t, err)
		stubOpen(t, db, nil)
		mock.ExpectPing().WillReturnError(errors.New("ping failed"))

		got, err := NewPostgres(context.Background(), conf, zap.NewNop())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "db ping: ping failed")
		assert.Nil(t, got)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("cancelled context", func(t *testing.T) {
		db, _, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
		require.NoError(t, err)
		stubOpen(t, db, nil)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		got, err := NewPostgres(ctx, conf, zap.NewNop())
		assert.ErrorIs(t, err, context.Canceled)
		assert.Nil(t, got)
	})

	t.Run("invalid config", func(t *testing.T) {
		got, err := NewPostgres(context.Background(), config.DatabaseConfig{Host: "localhost"}, zap.NewNop())
		assert.Error(t, err)
		assert.Nil(t, got)
	})
}
