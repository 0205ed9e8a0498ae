package postgres

import (
	"database/sql"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Store struct {
	pool            *pgxpool.Pool
	defaultWaitMins int
}

type Options struct {
	DefaultServiceMinutes int
}

func NewStore(pool *pgxpool.Pool, options Options) *Store {
	mins := options.DefaultServiceMinutes
	if mins <= 0 {
		mins = 10
	}
	return &Store{
		pool:            pool,
		defaultWaitMins: mins,
	}
}

func nullTimePtr(value sql.NullTime) *time.Time {
	if !value.Valid {
		return nil
	}
	t := value.Time
	return &t
}

func nullStringPtr(value sql.NullString) *string {
	if !value.Valid {
		return nil
	}
	s := value.String
	return &s
}

func nullIfEmpty(value string) interface{} {
	if value == "" {
		return nil
	}
	return value
}
