/*
Copyright 2024 Blnk Finance Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package database

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"
)

type Datasource struct {
	Conn    *sql.DB
	Dialect string
}

// LoadBlob reads the payload stored under key.
func (d *Datasource) LoadBlob(ctx context.Context, key string) ([]byte, error) {
	query := "SELECT payload FROM blobs WHERE blob_key = ?"
	if d.Dialect == DialectPostgres {
		query = "SELECT payload FROM blobs WHERE blob_key = $1"
	}

	var payload string
	err := d.Conn.QueryRowContext(ctx, query, key).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, errors.Wrapf(err, "loading blob %s", key)
	}
	return []byte(payload), nil
}

// SaveBlob upserts the payload stored under key.
func (d *Datasource) SaveBlob(ctx context.Context, key string, payload []byte) error {
	_, err := d.Conn.ExecContext(ctx, d.upsertQuery(), key, string(payload), time.Now().UTC())
	if err != nil {
		return errors.Wrapf(err, "saving blob %s", key)
	}
	return nil
}

func (d *Datasource) upsertQuery() string {
	switch d.Dialect {
	case DialectPostgres:
		return `INSERT INTO blobs (blob_key, payload, updated_at) VALUES ($1, $2, $3)
			ON CONFLICT (blob_key) DO UPDATE SET payload = EXCLUDED.payload, updated_at = EXCLUDED.updated_at`
	case DialectMySQL:
		return `INSERT INTO blobs (blob_key, payload, updated_at) VALUES (?, ?, ?)
			ON DUPLICATE KEY UPDATE payload = VALUES(payload), updated_at = VALUES(updated_at)`
	default:
		return `INSERT INTO blobs (blob_key, payload, updated_at) VALUES (?, ?, ?)
			ON CONFLICT (blob_key) DO UPDATE SET payload = excluded.payload, updated_at = excluded.updated_at`
	}
}

func (d *Datasource) Close() error {
	return d.Conn.Close()
}
