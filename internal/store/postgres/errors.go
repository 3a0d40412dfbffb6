// Copyright 2026 The Heimdall Authors
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

package postgres

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// ErrStorageUnavailable marks a transient infrastructure failure. It is
// the only error class retried automatically; everything else
// propagates to the caller on the first attempt.
var ErrStorageUnavailable = errors.New("storage unavailable")

// readAttempts bounds the automatic retry of transient read failures
const readAttempts = 3

// isTransient classifies an error as retry-safe infrastructure trouble:
// connection loss (class 08), resource exhaustion (class 53), admin
// shutdown (57P01..57P03), serialization failures, timeouts, and
// network errors. Constraint violations and not-found are never
// transient.
func isTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	if pgconn.SafeToRetry(err) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case strings.HasPrefix(pgErr.Code, "08"), // connection exception
			strings.HasPrefix(pgErr.Code, "53"), // insufficient resources
			strings.HasPrefix(pgErr.Code, "57P"): // operator intervention
			return true
		case pgErr.Code == "40001" || pgErr.Code == "40P01": // serialization, deadlock
			return true
		}
	}
	return false
}

// withRetry runs a side-effect-free read, retrying transient failures
// with short backoff. Each attempt gets a fresh query timeout. Writes
// do not go through here: a write whose connection died mid-flight may
// have committed, and re-running it is not idempotent.
func (db *DB) withRetry(ctx context.Context, fn func(ctx context.Context) error) error {
	var err error
	for attempt := 1; attempt <= readAttempts; attempt++ {
		attemptCtx, cancel := db.withTimeout(ctx)
		err = fn(attemptCtx)
		cancel()
		if err == nil || !isTransient(err) {
			return err
		}
		if attempt == readAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %v", ErrStorageUnavailable, ctx.Err())
		case <-time.After(time.Duration(attempt) * 50 * time.Millisecond):
		}
	}
	return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
}

// getWithRetry runs a single-row lookup through withRetry
func getWithRetry[T any](ctx context.Context, db *DB, scan func(pgx.Row) (*T, error), sql string, args ...any) (*T, error) {
	var out *T
	err := db.withRetry(ctx, func(ctx context.Context) error {
		var scanErr error
		out, scanErr = scan(db.pool.QueryRow(ctx, sql, args...))
		return scanErr
	})
	return out, err
}
