package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/wso2/identity-contact-resolution-service/internal/contact/model"
	errors2 "github.com/wso2/identity-contact-resolution-service/internal/system/errors"
	"github.com/wso2/identity-contact-resolution-service/internal/system/log"
	"github.com/wso2/identity-contact-resolution-service/internal/system/pagination"
)

func TestMain(m *testing.M) {
	_ = log.Init("ERROR")
	os.Exit(m.Run())
}

type MockContactService struct {
	mock.Mock
}

func (m *MockContactService) ResolveIdentity(email, phoneNumber *string) (*model.ResolvedContact, error) {
	args := m.Called(email, phoneNumber)
	resolved, _ := args.Get(0).(*model.ResolvedContact)
	return resolved, args.Error(1)
}

func (m *MockContactService) ListContacts(cursor *pagination.ContactCursor, limit int) (*model.ContactPage, error) {
	args := m.Called(cursor, limit)
	page, _ := args.Get(0).(*model.ContactPage)
	return page, args.Error(1)
}

func newTestHandler(svc *MockContactService) *ContactHandler {
	return &ContactHandler{contactService: svc}
}

func postIdentify(t *testing.T, handler *ContactHandler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/identify", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.HandleIdentify(rec, req)
	return rec
}

func TestHandleIdentify_Success(t *testing.T) {
	mockService := new(MockContactService)
	resolved := &model.ResolvedContact{
		PrimaryContactId:    1,
		Emails:              []string{"lorraine@hillvalley.edu", "mcfly@hillvalley.edu"},
		PhoneNumbers:        []string{"123456"},
		SecondaryContactIds: []int64{23},
	}
	mockService.On("ResolveIdentity",
		mock.MatchedBy(func(e *string) bool { return e != nil && *e == "mcfly@hillvalley.edu" }),
		mock.MatchedBy(func(p *string) bool { return p != nil && *p == "123456" }),
	).Return(resolved, nil)

	rec := postIdentify(t, newTestHandler(mockService),
		`{"email":"mcfly@hillvalley.edu","phoneNumber":"123456"}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var response model.IdentifyResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
	assert.Equal(t, int64(1), response.Contact.PrimaryContactId)
	assert.Equal(t, []string{"lorraine@hillvalley.edu", "mcfly@hillvalley.edu"}, response.Contact.Emails)
	assert.Equal(t, []int64{23}, response.Contact.SecondaryContactIds)
	mockService.AssertExpectations(t)
}

func TestHandleIdentify_BothIdentifiersMissing(t *testing.T) {
	mockService := new(MockContactService)

	rec := postIdentify(t, newTestHandler(mockService), `{}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var response map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
	assert.Equal(t, errors2.MISSING_IDENTIFIERS.Code, response["code"])
	mockService.AssertNotCalled(t, "ResolveIdentity")
}

func TestHandleIdentify_EmptyStringsTreatedAsAbsent(t *testing.T) {
	mockService := new(MockContactService)

	rec := postIdentify(t, newTestHandler(mockService), `{"email":"","phoneNumber":""}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	mockService.AssertNotCalled(t, "ResolveIdentity")
}

func TestHandleIdentify_NullIdentifierPassedAsNil(t *testing.T) {
	mockService := new(MockContactService)
	resolved := &model.ResolvedContact{
		PrimaryContactId:    7,
		Emails:              []string{},
		PhoneNumbers:        []string{"555"},
		SecondaryContactIds: []int64{},
	}
	mockService.On("ResolveIdentity",
		mock.MatchedBy(func(e *string) bool { return e == nil }),
		mock.MatchedBy(func(p *string) bool { return p != nil && *p == "555" }),
	).Return(resolved, nil)

	rec := postIdentify(t, newTestHandler(mockService), `{"email":null,"phoneNumber":"555"}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	mockService.AssertExpectations(t)
}

func TestHandleIdentify_MalformedBody(t *testing.T) {
	mockService := new(MockContactService)

	rec := postIdentify(t, newTestHandler(mockService), `{"email":`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	mockService.AssertNotCalled(t, "ResolveIdentity")
}

func TestHandleIdentify_UnknownFieldRejected(t *testing.T) {
	mockService := new(MockContactService)

	rec := postIdentify(t, newTestHandler(mockService),
		`{"email":"a@hillvalley.edu","unexpected":true}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	mockService.AssertNotCalled(t, "ResolveIdentity")
}

func TestHandleIdentify_ServiceErrorReturns500(t *testing.T) {
	mockService := new(MockContactService)
	mockService.On("ResolveIdentity", mock.Anything, mock.Anything).
		Return(nil, errors2.NewServerError(errors2.RESOLVE_IDENTITY, nil))

	rec := postIdentify(t, newTestHandler(mockService), `{"email":"boom@hillvalley.edu"}`)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	mockService.AssertExpectations(t)
}

func TestHandleListContacts_Unauthorized(t *testing.T) {
	mockService := new(MockContactService)
	handler := newTestHandler(mockService)

	req := httptest.NewRequest(http.MethodGet, "/api/contacts", nil)
	rec := httptest.NewRecorder()
	handler.HandleListContacts(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	mockService.AssertNotCalled(t, "ListContacts")
}
