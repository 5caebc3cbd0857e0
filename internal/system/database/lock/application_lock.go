/*
 * Copyright (c) 2025, WSO2 LLC. (http://www.wso2.com).
 *
 * WSO2 LLC. licenses this file to you under the Apache License,
 * Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.
 * You may obtain a copy of the License at
 *
 * http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing,
 * software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY
 * KIND, either express or implied. See the License for the
 * specific language governing permissions and limitations
 * under the License.
 */

package lock

import (
	"context"
	"database/sql"
	"fmt"
	"hash/fnv"
	"sync"

	"github.com/wso2/identity-contact-resolution-service/internal/system/database/provider"
	"github.com/wso2/identity-contact-resolution-service/internal/system/errors"
	"github.com/wso2/identity-contact-resolution-service/internal/system/log"
)

// DistributedLock serializes reconciliation requests that address the same
// contact identifier.
type DistributedLock interface {
	Acquire(key string) (bool, error)
	Release(key string) error
}

// PostgresLock implements DistributedLock using PostgreSQL advisory locks.
// Advisory locks are scoped to the database session that took them, so every
// acquired key pins a dedicated session until it is released.
type PostgresLock struct {
	mu       sync.Mutex
	sessions map[string]*lockSession
}

type lockSession struct {
	conn  *sql.Conn
	close func() error
}

func NewPostgresLock() *PostgresLock {
	return &PostgresLock{
		sessions: make(map[string]*lockSession),
	}
}

// PostgreSQL advisory locks take a bigint; string keys are hashed down to one.
func (l *PostgresLock) generateLockKey(key string) (int64, error) {

	logger := log.GetLogger()
	h := fnv.New64a()
	_, err := h.Write([]byte(key))
	if err != nil {
		errorMsg := fmt.Sprintf("failed to hash lock key '%s'", key)
		logger.Debug(errorMsg, log.Error(err))
		serverError := errors.NewServerError(errors.ErrorMessage{
			Code:        errors.LOCK_KEY_GEN.Code,
			Message:     errors.LOCK_KEY_GEN.Message,
			Description: errorMsg,
		}, err)
		return 0, serverError
	}
	return int64(h.Sum64()), nil
}

func (l *PostgresLock) Acquire(key string) (bool, error) {

	logger := log.GetLogger()
	lockID, err := l.generateLockKey(key)
	if err != nil {
		return false, err
	}

	conn, closeSession, err := provider.NewDBProvider().GetDBSession(context.Background())
	if err != nil {
		errorMsg := "Failed during DB session creation for advisory lock acquiring."
		logger.Error(errorMsg, log.Error(err))
		return false, errors.NewServerError(errors.ErrorMessage{
			Code:        errors.DB_CLIENT_INIT.Code,
			Message:     errors.DB_CLIENT_INIT.Message,
			Description: errorMsg,
		}, err)
	}

	var acquired bool
	err = conn.QueryRowContext(context.Background(),
		"SELECT pg_try_advisory_lock($1)", lockID).Scan(&acquired)
	if err != nil {
		_ = closeSession()
		errorMsg := "Failed to execute pg_try_advisory_lock"
		logger.Error(errorMsg, log.Error(err))
		return false, errors.NewServerError(errors.ErrorMessage{
			Code:        errors.LOCK_ACQUIRE.Code,
			Message:     errors.LOCK_ACQUIRE.Message,
			Description: errorMsg,
		}, err)
	}
	if !acquired {
		_ = closeSession()
		return false, nil
	}

	l.mu.Lock()
	l.sessions[key] = &lockSession{conn: conn, close: closeSession}
	l.mu.Unlock()
	logger.Debug(fmt.Sprintf("Advisory lock acquired for lock id: %d", lockID))
	return true, nil
}

func (l *PostgresLock) Release(key string) error {

	logger := log.GetLogger()

	l.mu.Lock()
	session := l.sessions[key]
	delete(l.sessions, key)
	l.mu.Unlock()

	if session == nil {
		errorMsg := fmt.Sprintf("no session holds the advisory lock for key: %s", key)
		logger.Error(errorMsg)
		return errors.NewServerError(errors.ErrorMessage{
			Code:        errors.LOCK_RELEASE.Code,
			Message:     errors.LOCK_RELEASE.Message,
			Description: errorMsg,
		}, nil)
	}
	// The lock falls with its session even when the unlock query fails.
	defer func() { _ = session.close() }()

	lockID, err := l.generateLockKey(key)
	if err != nil {
		return err
	}

	var released bool
	err = session.conn.QueryRowContext(context.Background(),
		"SELECT pg_advisory_unlock($1)", lockID).Scan(&released)
	if err != nil {
		errorMsg := "pg_advisory_unlock failed"
		logger.Error(errorMsg, log.Error(err))
		return errors.NewServerError(errors.ErrorMessage{
			Code:        errors.LOCK_RELEASE.Code,
			Message:     errors.LOCK_RELEASE.Message,
			Description: errorMsg,
		}, err)
	}
	if !released {
		errorMsg := fmt.Sprintf("pg_advisory_unlock reported no lock held for key: %s", key)
		logger.Error(errorMsg)
		return errors.NewServerError(errors.ErrorMessage{
			Code:        errors.LOCK_RELEASE.Code,
			Message:     errors.LOCK_RELEASE.Message,
			Description: errorMsg,
		}, nil)
	}
	logger.Debug(fmt.Sprintf("Advisory lock released for lock id: %d", lockID))
	return nil
}
