// Copyright 2025 Alibaba Group Holding Ltd.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package kvstore provides an optional SQL-backed discovery.KeyValueStore,
// for deployments that want the kernel-spec-list and preferred-kernel caches
// to survive a process restart.
package kvstore

import (
	"database/sql"
	"fmt"
	"sync"

	_ "github.com/go-sql-driver/mysql"

	"github.com/alibaba/opensandbox/kernelcore/pkg/log"
)

const createTableSQL = `
CREATE TABLE IF NOT EXISTS kernelcore_discovery_cache (
	cache_key   VARCHAR(255) NOT NULL PRIMARY KEY,
	cache_value LONGBLOB NOT NULL,
	updated_at  TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP
)`

// SQLStore persists discovery cache entries to a MySQL-compatible database.
// It satisfies discovery.KeyValueStore without importing that package,
// matching the spec's requirement that the store be a caller-supplied
// collaborator rather than something discovery owns.
type SQLStore struct {
	mu sync.Mutex
	db *sql.DB
}

// Open connects to dsn and ensures the backing table exists. Callers own
// closing the returned store via Close.
func Open(dsn string) (*SQLStore, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("open kernelcore discovery store: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping kernelcore discovery store: %w", err)
	}
	if _, err := db.Exec(createTableSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create kernelcore discovery table: %w", err)
	}
	return &SQLStore{db: db}, nil
}

// Get implements discovery.KeyValueStore.
func (s *SQLStore) Get(key string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var value []byte
	row := s.db.QueryRow("SELECT cache_value FROM kernelcore_discovery_cache WHERE cache_key = ?", key)
	if err := row.Scan(&value); err != nil {
		if err != sql.ErrNoRows {
			log.Warn("discovery kvstore: get %s: %v", key, err)
		}
		return nil, false
	}
	return value, true
}

// Set implements discovery.KeyValueStore. Last write wins under concurrent
// writers, matching the store contract's tolerance for that.
func (s *SQLStore) Set(key string, value []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(
		"INSERT INTO kernelcore_discovery_cache (cache_key, cache_value) VALUES (?, ?) "+
			"ON DUPLICATE KEY UPDATE cache_value = VALUES(cache_value)",
		key, value,
	)
	if err != nil {
		log.Warn("discovery kvstore: set %s: %v", key, err)
	}
}

// Close releases the underlying database connection pool.
func (s *SQLStore) Close() error {
	return s.db.Close()
}
