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

package integration

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wso2/identity-contact-resolution-service/internal/contact/handler"
	"github.com/wso2/identity-contact-resolution-service/internal/contact/model"
	"github.com/wso2/identity-contact-resolution-service/internal/contact/store"
	"github.com/wso2/identity-contact-resolution-service/internal/system/constants"
)

func identify(t *testing.T, body map[string]interface{}) (*httptest.ResponseRecorder, *model.IdentifyResponse) {
	t.Helper()

	payload, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/identify", bytes.NewBuffer(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	handler.NewContactHandler().HandleIdentify(rec, req)

	if rec.Code != http.StatusOK {
		return rec, nil
	}
	var response model.IdentifyResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
	return rec, &response
}

func TestIdentify_NewContact(t *testing.T) {
	rec, response := identify(t, map[string]interface{}{
		"email":       "marty@hillvalley.edu",
		"phoneNumber": "555-0001",
	})

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"marty@hillvalley.edu"}, response.Contact.Emails)
	assert.Equal(t, []string{"555-0001"}, response.Contact.PhoneNumbers)
	assert.Empty(t, response.Contact.SecondaryContactIds)
}

func TestIdentify_LinksSharedPhone(t *testing.T) {
	_, first := identify(t, map[string]interface{}{
		"email":       "lorraine@hillvalley.edu",
		"phoneNumber": "555-0002",
	})
	require.NotNil(t, first)

	rec, second := identify(t, map[string]interface{}{
		"email":       "mcfly@hillvalley.edu",
		"phoneNumber": "555-0002",
	})

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, first.Contact.PrimaryContactId, second.Contact.PrimaryContactId)
	assert.Equal(t, []string{"lorraine@hillvalley.edu", "mcfly@hillvalley.edu"}, second.Contact.Emails)
	assert.Len(t, second.Contact.SecondaryContactIds, 1)
}

func TestIdentify_RepeatRequestIsIdempotent(t *testing.T) {
	_, first := identify(t, map[string]interface{}{
		"email":       "doc@hillvalley.edu",
		"phoneNumber": "555-0003",
	})
	require.NotNil(t, first)

	_, second := identify(t, map[string]interface{}{
		"email":       "doc@hillvalley.edu",
		"phoneNumber": "555-0003",
	})
	require.NotNil(t, second)

	assert.Equal(t, first, second)
}

func TestIdentify_MergesPrimaries(t *testing.T) {
	_, older := identify(t, map[string]interface{}{
		"email":       "george@hillvalley.edu",
		"phoneNumber": "555-0004",
	})
	require.NotNil(t, older)

	_, younger := identify(t, map[string]interface{}{
		"email":       "biffsucks@hillvalley.edu",
		"phoneNumber": "555-0005",
	})
	require.NotNil(t, younger)
	require.NotEqual(t, older.Contact.PrimaryContactId, younger.Contact.PrimaryContactId)

	rec, merged := identify(t, map[string]interface{}{
		"email":       "george@hillvalley.edu",
		"phoneNumber": "555-0005",
	})

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, older.Contact.PrimaryContactId, merged.Contact.PrimaryContactId)
	assert.ElementsMatch(t, []string{"george@hillvalley.edu", "biffsucks@hillvalley.edu"},
		merged.Contact.Emails)
	assert.Contains(t, merged.Contact.SecondaryContactIds, younger.Contact.PrimaryContactId)
}

func TestIdentify_EmailOnlyLookup(t *testing.T) {
	_, created := identify(t, map[string]interface{}{
		"email":       "einstein@hillvalley.edu",
		"phoneNumber": "555-0006",
	})
	require.NotNil(t, created)

	rec, found := identify(t, map[string]interface{}{
		"email": "einstein@hillvalley.edu",
	})

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, created.Contact.PrimaryContactId, found.Contact.PrimaryContactId)
	assert.Equal(t, created.Contact, found.Contact)
}

func TestIdentify_RejectsEmptyRequest(t *testing.T) {
	rec, _ := identify(t, map[string]interface{}{})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestIdentify_PhoneOnlyCreatesPrimary(t *testing.T) {
	rec, response := identify(t, map[string]interface{}{
		"phoneNumber": "555-0007",
	})

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, response.Contact.Emails)
	assert.Equal(t, []string{"555-0007"}, response.Contact.PhoneNumbers)
}

func TestIdentify_EmailFromOneGroupPhoneFromAnother(t *testing.T) {
	// Group one: a primary and a secondary with its own email.
	_, first := identify(t, map[string]interface{}{
		"email":       "jennifer@hillvalley.edu",
		"phoneNumber": "555-0010",
	})
	require.NotNil(t, first)
	_, second := identify(t, map[string]interface{}{
		"email":       "jen@hillvalley.edu",
		"phoneNumber": "555-0010",
	})
	require.NotNil(t, second)

	// Group two: an unrelated primary.
	_, other := identify(t, map[string]interface{}{
		"email":       "strickland@hillvalley.edu",
		"phoneNumber": "555-0011",
	})
	require.NotNil(t, other)

	// The email matches only group one's secondary and the phone matches group
	// two's primary; the consolidated view must cover both groups.
	rec, resolved := identify(t, map[string]interface{}{
		"email":       "jen@hillvalley.edu",
		"phoneNumber": "555-0011",
	})

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, first.Contact.PrimaryContactId, resolved.Contact.PrimaryContactId)
	assert.Equal(t, []string{"jennifer@hillvalley.edu", "jen@hillvalley.edu", "strickland@hillvalley.edu"},
		resolved.Contact.Emails)
	assert.Equal(t, []string{"555-0010", "555-0011"}, resolved.Contact.PhoneNumbers)
	// The unmerged group-two primary appears in the identifier lists only.
	assert.NotContains(t, resolved.Contact.SecondaryContactIds, other.Contact.PrimaryContactId)
	assert.Equal(t, second.Contact.SecondaryContactIds, resolved.Contact.SecondaryContactIds)
}

func TestIdentify_ConcurrentRequestsShareOnePrimary(t *testing.T) {
	email := "needles@hillvalley.edu"
	phone := "555-0012"
	payload, err := json.Marshal(map[string]interface{}{
		"email":       email,
		"phoneNumber": phone,
	})
	require.NoError(t, err)

	responses := make(chan *model.IdentifyResponse, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			req := httptest.NewRequest(http.MethodPost, "/api/identify", bytes.NewBuffer(payload))
			req.Header.Set("Content-Type", "application/json")
			rec := httptest.NewRecorder()
			handler.NewContactHandler().HandleIdentify(rec, req)
			if rec.Code != http.StatusOK {
				responses <- nil
				return
			}
			var response model.IdentifyResponse
			if json.Unmarshal(rec.Body.Bytes(), &response) != nil {
				responses <- nil
				return
			}
			responses <- &response
		}()
	}
	wg.Wait()
	close(responses)

	var primaries []int64
	for response := range responses {
		require.NotNil(t, response)
		primaries = append(primaries, response.Contact.PrimaryContactId)
	}
	require.Len(t, primaries, 2)
	assert.Equal(t, primaries[0], primaries[1])

	// Racing identical requests must leave a single record behind.
	matches, err := store.NewContactStore().FindSharingContacts(&email, &phone)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, constants.LinkPrecedencePrimary, matches[0].LinkPrecedence)
}

func TestIdentify_PhoneOnlyAgainstExistingPair(t *testing.T) {
	_, created := identify(t, map[string]interface{}{
		"email":       "clara@hillvalley.edu",
		"phoneNumber": "555-0008",
	})
	require.NotNil(t, created)

	// Phone alone does not exactly match the stored pair, but resolution must
	// still land on the existing group without creating a record.
	rec, found := identify(t, map[string]interface{}{
		"phoneNumber": "555-0008",
	})

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, created.Contact.PrimaryContactId, found.Contact.PrimaryContactId)
	assert.Empty(t, found.Contact.SecondaryContactIds)
}
