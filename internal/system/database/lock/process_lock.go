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
 * KIND, either express or implied.  See the License for the
 * specific language governing permissions and limitations
 * under the License.
 */

package lock

import "sync"

// ProcessLock implements DistributedLock with in-process keyed mutexes. It is
// used for datasources without an advisory lock primitive; it only serializes
// requests within a single server instance.
type ProcessLock struct {
	mu   sync.Mutex
	held map[string]bool
}

func NewProcessLock() *ProcessLock {
	return &ProcessLock{
		held: make(map[string]bool),
	}
}

func (l *ProcessLock) Acquire(key string) (bool, error) {

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[key] {
		return false, nil
	}
	l.held[key] = true
	return true, nil
}

func (l *ProcessLock) Release(key string) error {

	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.held, key)
	return nil
}
