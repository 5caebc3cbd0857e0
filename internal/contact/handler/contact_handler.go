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

package handler

import (
	"encoding/json"
	"net/http"

	"github.com/wso2/identity-contact-resolution-service/internal/contact/model"
	"github.com/wso2/identity-contact-resolution-service/internal/contact/provider"
	"github.com/wso2/identity-contact-resolution-service/internal/contact/service"
	"github.com/wso2/identity-contact-resolution-service/internal/system/authn"
	syscontext "github.com/wso2/identity-contact-resolution-service/internal/system/context"
	errors2 "github.com/wso2/identity-contact-resolution-service/internal/system/errors"
	"github.com/wso2/identity-contact-resolution-service/internal/system/log"
	"github.com/wso2/identity-contact-resolution-service/internal/system/pagination"
	"github.com/wso2/identity-contact-resolution-service/internal/system/utils"
)

// ContactHandler serves the contact resolution endpoints.
type ContactHandler struct {
	contactService service.ContactServiceInterface
}

func NewContactHandler() *ContactHandler {

	return &ContactHandler{
		contactService: provider.NewContactProvider().GetContactService(),
	}
}

// HandleIdentify handles POST /api/identify requests.
func (ch *ContactHandler) HandleIdentify(w http.ResponseWriter, r *http.Request) {

	logger := log.GetLogger()
	traceID := syscontext.GetOrGenerateTraceID(r.Context())

	var identifyRequest model.IdentifyRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&identifyRequest); err != nil {
		description := utils.HandleDecodeError(err, "identify request")
		utils.HandleError(w, errors2.NewClientErrorWithTraceID(errors2.ErrorMessage{
			Code:        errors2.BAD_REQUEST.Code,
			Message:     errors2.BAD_REQUEST.Message,
			Description: description,
		}, http.StatusBadRequest, traceID))
		return
	}

	email := normalizeIdentifier(identifyRequest.Email)
	phoneNumber := normalizeIdentifier(identifyRequest.PhoneNumber)
	if email == nil && phoneNumber == nil {
		utils.HandleError(w, errors2.NewClientErrorWithTraceID(errors2.MISSING_IDENTIFIERS,
			http.StatusBadRequest, traceID))
		return
	}

	resolved, err := ch.contactService.ResolveIdentity(email, phoneNumber)
	if err != nil {
		logger.Debug("Identity resolution failed", log.String("traceId", traceID), log.Error(err))
		utils.HandleError(w, attachTraceID(err, traceID))
		return
	}

	utils.WriteJSONResponse(w, http.StatusOK, model.IdentifyResponse{Contact: *resolved})
}

// HandleListContacts handles GET /api/contacts requests. The endpoint is
// restricted to administrative tokens and pages through records with an
// opaque cursor.
func (ch *ContactHandler) HandleListContacts(w http.ResponseWriter, r *http.Request) {

	if _, err := authn.ValidateAuthentication(r); err != nil {
		utils.HandleError(w, err)
		return
	}

	limit, err := pagination.ParseLimit(r)
	if err != nil {
		utils.HandleError(w, errors2.NewClientError(errors2.ErrorMessage{
			Code:        errors2.BAD_REQUEST.Code,
			Message:     errors2.BAD_REQUEST.Message,
			Description: err.Error(),
		}, http.StatusBadRequest))
		return
	}

	cursor, err := pagination.DecodeContactCursor(r.URL.Query().Get("cursor"))
	if err != nil {
		utils.HandleError(w, errors2.NewClientError(errors2.ErrorMessage{
			Code:        errors2.BAD_REQUEST.Code,
			Message:     errors2.BAD_REQUEST.Message,
			Description: err.Error(),
		}, http.StatusBadRequest))
		return
	}

	page, err := ch.contactService.ListContacts(cursor, limit)
	if err != nil {
		utils.HandleError(w, err)
		return
	}

	utils.WriteJSONResponse(w, http.StatusOK, page)
}

// normalizeIdentifier treats empty strings as absent identifiers.
func normalizeIdentifier(value *string) *string {

	if value == nil || *value == "" {
		return nil
	}
	return value
}

// attachTraceID stamps the trace id onto server errors that lack one.
func attachTraceID(err error, traceID string) error {

	if serverError, ok := err.(*errors2.ServerError); ok && serverError.TraceID == "" {
		serverError.TraceID = traceID
		return serverError
	}
	if clientError, ok := err.(*errors2.ClientError); ok && clientError.TraceID == "" {
		clientError.TraceID = traceID
		return clientError
	}
	return err
}
