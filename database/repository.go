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
)

// Blob keys under which the reconciliation state is persisted.
const (
	LedgersKey = "ledgers"
	PendingKey = "pending"
)

// IDataSource defines the interface for data source operations, grouping related functionalities.
type IDataSource interface {
	blob // Interface for key-value blob persistence
	Close() error
}

// blob defines methods for persisting opaque state snapshots.
type blob interface {
	LoadBlob(ctx context.Context, key string) ([]byte, error)      // Returns nil and no error when the key was never saved
	SaveBlob(ctx context.Context, key string, payload []byte) error // Replaces the stored payload
}
