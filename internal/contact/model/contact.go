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

package model

import (
	"time"

	"github.com/wso2/identity-contact-resolution-service/internal/system/pagination"
)

// Contact is a single contact record. Records sharing an email or phone number
// are linked into one identity group with a single primary record.
type Contact struct {
	Id             int64      `json:"id" bson:"id"`
	Email          *string    `json:"email,omitempty" bson:"email"`
	PhoneNumber    *string    `json:"phoneNumber,omitempty" bson:"phone_number"`
	LinkedId       *int64     `json:"linkedId,omitempty" bson:"linked_id"`
	LinkPrecedence string     `json:"linkPrecedence" bson:"link_precedence"`
	CreatedAt      time.Time  `json:"createdAt" bson:"created_at"`
	UpdatedAt      time.Time  `json:"updatedAt" bson:"updated_at"`
	DeletedAt      *time.Time `json:"deletedAt,omitempty" bson:"deleted_at"`
}

// IdentifyRequest is the request body of the identify endpoint.
type IdentifyRequest struct {
	Email       *string `json:"email"`
	PhoneNumber *string `json:"phoneNumber"`
}

// ResolvedContact is the consolidated view of an identity group.
type ResolvedContact struct {
	PrimaryContactId    int64    `json:"primaryContactId"`
	Emails              []string `json:"emails"`
	PhoneNumbers        []string `json:"phoneNumbers"`
	SecondaryContactIds []int64  `json:"secondaryContactIds"`
}

// IdentifyResponse wraps the consolidated view for the wire.
type IdentifyResponse struct {
	Contact ResolvedContact `json:"contact"`
}

// ContactPage is one page of the contact listing.
type ContactPage struct {
	Contacts   []Contact             `json:"contacts"`
	Pagination pagination.Pagination `json:"pagination"`
}
