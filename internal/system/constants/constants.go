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

package constants

import "time"

const (
	// ApiBasePath is the base path for all service endpoints.
	ApiBasePath = "/api"

	// DataSourceTypePostgres selects the relational contact store backend.
	DataSourceTypePostgres = "postgres"
	// DataSourceTypeMongoDB selects the document contact store backend.
	DataSourceTypeMongoDB = "mongodb"

	// ContactCollection is the collection holding contact records in the document store.
	ContactCollection = "contacts"
	// CounterCollection holds the monotonic id sequence for the document store.
	CounterCollection = "counters"

	// LinkPrecedencePrimary marks the canonical record of an identity group.
	LinkPrecedencePrimary = "primary"
	// LinkPrecedenceSecondary marks a record merged into an existing group.
	LinkPrecedenceSecondary = "secondary"

	// MaxRetryAttempts bounds lock acquisition retries for a reconciliation request.
	MaxRetryAttempts = 10
	// RetryDelay is the pause between lock acquisition attempts.
	RetryDelay = 100 * time.Millisecond

	// MaxClosureIterations bounds the fixed-point expansion over the link graph.
	// A correct graph converges in two passes; the cap guards a corrupted one.
	MaxClosureIterations = 50
)
