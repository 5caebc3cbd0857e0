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

package provider

import (
	"sync"

	"github.com/wso2/identity-contact-resolution-service/internal/contact/service"
	"github.com/wso2/identity-contact-resolution-service/internal/contact/store"
	"github.com/wso2/identity-contact-resolution-service/internal/system/config"
	"github.com/wso2/identity-contact-resolution-service/internal/system/constants"
	"github.com/wso2/identity-contact-resolution-service/internal/system/database/lock"
)

// ContactProviderInterface defines the interface for the contact provider.
type ContactProviderInterface interface {
	GetContactService() service.ContactServiceInterface
}

// ContactProvider is the default implementation of the ContactProviderInterface.
type ContactProvider struct{}

var (
	contactService     service.ContactServiceInterface
	contactServiceOnce sync.Once
)

// NewContactProvider creates a new instance of ContactProvider.
func NewContactProvider() ContactProviderInterface {

	return &ContactProvider{}
}

// GetContactService returns the contact resolution service instance, backed by
// the store and lock matching the configured datasource type.
func (cp *ContactProvider) GetContactService() service.ContactServiceInterface {

	contactServiceOnce.Do(func() {
		runtime := config.GetICRRuntime()
		switch runtime.Config.DataSource.Type {
		case constants.DataSourceTypeMongoDB:
			contactService = service.NewContactService(store.NewContactRepository(), lock.NewProcessLock())
		default:
			contactService = service.NewContactService(store.NewContactStore(), lock.NewPostgresLock())
		}
	})
	return contactService
}
