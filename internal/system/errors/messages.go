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

package errors

const errorPrefix = "ICR-"

var (
	// Server error codes

	ADD_CONTACT = ErrorMessage{
		Code:    errorPrefix + "15001",
		Message: "Error while adding contact record.",
	}

	GET_CONTACT = ErrorMessage{
		Code:    errorPrefix + "15002",
		Message: "Error while fetching contact record(s).",
	}

	UPDATE_CONTACT = ErrorMessage{
		Code:    errorPrefix + "15003",
		Message: "Error while updating contact record.",
	}

	RESOLVE_IDENTITY = ErrorMessage{
		Code:    errorPrefix + "15004",
		Message: "Error while resolving contact identity.",
	}

	LINK_CLOSURE = ErrorMessage{
		Code:    errorPrefix + "15005",
		Message: "Error while resolving linked contact set.",
	}

	CONSISTENCY_VIOLATION = ErrorMessage{
		Code:    errorPrefix + "15006",
		Message: "Contact link graph is in an inconsistent state.",
	}

	DB_CLIENT_INIT = ErrorMessage{
		Code:    errorPrefix + "15007",
		Message: "Unable to initialize database client.",
	}

	LOCK_ACQUIRE = ErrorMessage{
		Code:    errorPrefix + "15008",
		Message: "Advisory lock acquisition failed",
	}

	LOCK_RELEASE = ErrorMessage{
		Code:    errorPrefix + "15009",
		Message: "Error while releasing the lock.",
	}

	LOCK_KEY_GEN = ErrorMessage{
		Code:    errorPrefix + "15010",
		Message: "Error generating advisory lock key",
	}

	PARSING_ERROR = ErrorMessage{
		Code:    errorPrefix + "15012",
		Message: "Error while parsing the token.",
	}

	// Client error codes

	BAD_REQUEST = ErrorMessage{
		Code:    errorPrefix + "16001",
		Message: "Invalid request body.",
	}

	MISSING_IDENTIFIERS = ErrorMessage{
		Code:        errorPrefix + "16002",
		Message:     "Missing contact identifiers.",
		Description: "At least one of email or phoneNumber is mandatory.",
	}

	UNAUTHORIZED = ErrorMessage{
		Code:        errorPrefix + "16003",
		Message:     "Unauthorized request.",
		Description: "A valid bearer token is required to access this resource.",
	}
)
