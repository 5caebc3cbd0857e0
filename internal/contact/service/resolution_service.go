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

package service

import (
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/wso2/identity-contact-resolution-service/internal/contact/model"
	"github.com/wso2/identity-contact-resolution-service/internal/contact/store"
	"github.com/wso2/identity-contact-resolution-service/internal/system/constants"
	"github.com/wso2/identity-contact-resolution-service/internal/system/database/lock"
	errors2 "github.com/wso2/identity-contact-resolution-service/internal/system/errors"
	"github.com/wso2/identity-contact-resolution-service/internal/system/log"
	"github.com/wso2/identity-contact-resolution-service/internal/system/pagination"
)

// ContactServiceInterface exposes identity resolution over contact records.
type ContactServiceInterface interface {
	ResolveIdentity(email, phoneNumber *string) (*model.ResolvedContact, error)
	ListContacts(cursor *pagination.ContactCursor, limit int) (*model.ContactPage, error)
}

// ContactService resolves incoming identifiers against stored contacts,
// linking records that share an email or phone number under a single primary.
type ContactService struct {
	store store.ContactStoreInterface
	lock  lock.DistributedLock
}

func NewContactService(contactStore store.ContactStoreInterface, distributedLock lock.DistributedLock) *ContactService {

	return &ContactService{
		store: contactStore,
		lock:  distributedLock,
	}
}

// ResolveIdentity links the incoming identifiers into the contact graph and
// returns the consolidated view of the identity they belong to.
//
// Requests touching the same email or phone number are serialized through the
// distributed lock so concurrent identifies cannot create duplicate primaries.
func (cs *ContactService) ResolveIdentity(email, phoneNumber *string) (*model.ResolvedContact, error) {

	logger := log.GetLogger()

	if email == nil && phoneNumber == nil {
		return nil, errors2.NewClientError(errors2.MISSING_IDENTIFIERS, 400)
	}

	lockKeys := resolutionLockKeys(email, phoneNumber)
	acquired, err := cs.acquireLocks(lockKeys)
	if err != nil {
		return nil, err
	}
	defer cs.releaseLocks(acquired, logger)

	primaryId, err := cs.linkContact(email, phoneNumber, logger)
	if err != nil {
		return nil, err
	}

	return cs.buildResolvedContact(email, phoneNumber, primaryId)
}

// linkContact performs the mutating half of resolution and returns the id of
// the primary contact the request resolved to.
func (cs *ContactService) linkContact(email, phoneNumber *string, logger *log.Logger) (int64, error) {

	// Fast path: a record carrying exactly this email and phone pair already
	// exists, so no new information can be added.
	exact, err := cs.store.FindExactMatch(email, phoneNumber)
	if err != nil {
		return 0, err
	}
	if exact != nil {
		if exact.LinkPrecedence == constants.LinkPrecedenceSecondary && exact.LinkedId != nil {
			return *exact.LinkedId, nil
		}
		return exact.Id, nil
	}

	sharing, err := cs.store.FindSharingContacts(email, phoneNumber)
	if err != nil {
		return 0, err
	}

	if len(sharing) == 0 {
		created, err := cs.store.InsertContact(email, phoneNumber, nil, constants.LinkPrecedencePrimary)
		if err != nil {
			return 0, err
		}
		logger.Debug("Created new primary contact", log.Int64("contactId", created.Id))
		logger.Audit(log.AuditEvent{
			InitiatorType: log.InitiatorTypeSystem,
			TargetID:      strconv.FormatInt(created.Id, 10),
			TargetType:    log.TargetTypeContact,
			ActionID:      log.ActionAddContact,
		})
		return created.Id, nil
	}

	anchor := sharing[0]
	anchorId := anchor.Id
	if anchor.LinkPrecedence == constants.LinkPrecedenceSecondary && anchor.LinkedId != nil {
		anchorId = *anchor.LinkedId
	}

	// Demote every other primary in the sharing set. The sort guarantees the
	// anchor is the oldest primary, so demotion always points younger groups
	// at the older one.
	for _, contact := range sharing[1:] {
		if contact.LinkPrecedence != constants.LinkPrecedencePrimary || contact.Id == anchorId {
			continue
		}
		linkedId := anchorId
		if err := cs.store.UpdateLinkPrecedence(contact.Id, constants.LinkPrecedenceSecondary, &linkedId); err != nil {
			return 0, err
		}
		if err := cs.store.RelinkSecondaries(contact.Id, anchorId); err != nil {
			return 0, err
		}
		logger.Debug("Merged contact group into older primary",
			log.Int64("demotedContactId", contact.Id), log.Int64("primaryContactId", anchorId))
		logger.Audit(log.AuditEvent{
			InitiatorType: log.InitiatorTypeSystem,
			TargetID:      strconv.FormatInt(anchorId, 10),
			TargetType:    log.TargetTypeContactGroup,
			ActionID:      log.ActionMergeContactGroups,
			Data:          map[string]int64{"demotedContactId": contact.Id},
		})
	}

	if needsNewRecord(email, phoneNumber, sharing) {
		linkedId := anchorId
		created, err := cs.store.InsertContact(email, phoneNumber, &linkedId, constants.LinkPrecedenceSecondary)
		if err != nil {
			return 0, err
		}
		logger.Debug("Created secondary contact for new identifier",
			log.Int64("contactId", created.Id), log.Int64("primaryContactId", anchorId))
		logger.Audit(log.AuditEvent{
			InitiatorType: log.InitiatorTypeSystem,
			TargetID:      strconv.FormatInt(created.Id, 10),
			TargetType:    log.TargetTypeContact,
			ActionID:      log.ActionLinkContact,
		})
	}

	return anchorId, nil
}

// needsNewRecord reports whether the request carries an identifier value not
// yet present in the sharing set. Only then is a secondary record created.
func needsNewRecord(email, phoneNumber *string, sharing []model.Contact) bool {

	emailSeen := email == nil
	phoneSeen := phoneNumber == nil
	for _, contact := range sharing {
		if !emailSeen && contact.Email != nil && *contact.Email == *email {
			emailSeen = true
		}
		if !phoneSeen && contact.PhoneNumber != nil && *contact.PhoneNumber == *phoneNumber {
			phoneSeen = true
		}
	}
	return !emailSeen || !phoneSeen
}

// buildResolvedContact re-reads the records matching the request after the
// mutation phase and flattens their full linked closure into the consolidated
// response shape. Seeding from both the matched ids and their linked ids keeps
// a group visible even when the request touched only one of its secondaries.
func (cs *ContactService) buildResolvedContact(email, phoneNumber *string,
	primaryId int64) (*model.ResolvedContact, error) {

	sharing, err := cs.store.FindSharingContacts(email, phoneNumber)
	if err != nil {
		return nil, err
	}

	seen := map[int64]bool{primaryId: true}
	seeds := []int64{primaryId}
	for _, contact := range sharing {
		if !seen[contact.Id] {
			seen[contact.Id] = true
			seeds = append(seeds, contact.Id)
		}
		if contact.LinkedId != nil && !seen[*contact.LinkedId] {
			seen[*contact.LinkedId] = true
			seeds = append(seeds, *contact.LinkedId)
		}
	}

	group, err := cs.resolveLinkedClosure(seeds)
	if err != nil {
		return nil, err
	}
	if len(group) == 0 {
		return nil, errors2.NewServerError(errors2.ErrorMessage{
			Code:        errors2.CONSISTENCY_VIOLATION.Code,
			Message:     errors2.CONSISTENCY_VIOLATION.Message,
			Description: fmt.Sprintf("No contact records found for the group of primary %d", primaryId),
		}, nil)
	}

	// The group is ordered by creation, so the oldest record is first and must
	// be a primary.
	primary := group[0]
	if primary.LinkPrecedence != constants.LinkPrecedencePrimary {
		return nil, errors2.NewServerError(errors2.ErrorMessage{
			Code:    errors2.CONSISTENCY_VIOLATION.Code,
			Message: errors2.CONSISTENCY_VIOLATION.Message,
			Description: fmt.Sprintf("Oldest contact %d in group of primary %d is not marked primary",
				primary.Id, primaryId),
		}, nil)
	}

	resolved := &model.ResolvedContact{
		PrimaryContactId:    primary.Id,
		Emails:              []string{},
		PhoneNumbers:        []string{},
		SecondaryContactIds: []int64{},
	}

	seenEmails := make(map[string]bool)
	seenPhones := make(map[string]bool)
	appendContact := func(contact model.Contact) {
		if contact.Email != nil && !seenEmails[*contact.Email] {
			seenEmails[*contact.Email] = true
			resolved.Emails = append(resolved.Emails, *contact.Email)
		}
		if contact.PhoneNumber != nil && !seenPhones[*contact.PhoneNumber] {
			seenPhones[*contact.PhoneNumber] = true
			resolved.PhoneNumbers = append(resolved.PhoneNumbers, *contact.PhoneNumber)
		}
	}

	// The primary's identifiers lead the lists. Records still marked primary,
	// as after a cross-group read that merged nothing, are reported in the
	// identifier lists but not as secondaries.
	appendContact(primary)
	for _, contact := range group[1:] {
		appendContact(contact)
		if contact.LinkPrecedence != constants.LinkPrecedencePrimary {
			resolved.SecondaryContactIds = append(resolved.SecondaryContactIds, contact.Id)
		}
	}
	return resolved, nil
}

// resolveLinkedClosure expands the seed ids to the full set of records
// reachable through linked_id references in either direction, iterating to a
// fixed point. The iteration cap guards against reference cycles left by bad
// data.
func (cs *ContactService) resolveLinkedClosure(seeds []int64) ([]model.Contact, error) {

	known := make(map[int64]bool, len(seeds))
	var frontier []int64
	for _, id := range seeds {
		if !known[id] {
			known[id] = true
			frontier = append(frontier, id)
		}
	}

	for iteration := 0; len(frontier) > 0; iteration++ {
		if iteration >= constants.MaxClosureIterations {
			return nil, errors2.NewServerError(errors2.ErrorMessage{
				Code:    errors2.LINK_CLOSURE.Code,
				Message: errors2.LINK_CLOSURE.Message,
				Description: fmt.Sprintf("Linked contact closure did not converge within %d iterations",
					constants.MaxClosureIterations),
			}, nil)
		}

		outgoing, err := cs.store.FindByIds(frontier)
		if err != nil {
			return nil, err
		}
		incoming, err := cs.store.FindByLinkedIds(frontier)
		if err != nil {
			return nil, err
		}

		frontier = nil
		for _, contact := range outgoing {
			if contact.LinkedId != nil && !known[*contact.LinkedId] {
				known[*contact.LinkedId] = true
				frontier = append(frontier, *contact.LinkedId)
			}
		}
		for _, contact := range incoming {
			if !known[contact.Id] {
				known[contact.Id] = true
				frontier = append(frontier, contact.Id)
			}
		}
	}

	ids := make([]int64, 0, len(known))
	for id := range known {
		ids = append(ids, id)
	}
	group, err := cs.store.FindByIds(ids)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(group, func(i, j int) bool {
		if group[i].CreatedAt.Equal(group[j].CreatedAt) {
			return group[i].Id < group[j].Id
		}
		return group[i].CreatedAt.Before(group[j].CreatedAt)
	})
	return group, nil
}

// resolutionLockKeys derives the lock keys guarding this request. Keys are
// sorted so concurrent requests always acquire them in the same order.
func resolutionLockKeys(email, phoneNumber *string) []string {

	var keys []string
	if email != nil {
		keys = append(keys, "lock:contact:email:"+*email)
	}
	if phoneNumber != nil {
		keys = append(keys, "lock:contact:phone:"+*phoneNumber)
	}
	sort.Strings(keys)
	return keys
}

func (cs *ContactService) acquireLocks(keys []string) ([]string, error) {

	var acquired []string
	for _, key := range keys {
		ok := false
		var err error
		for attempt := 0; attempt < constants.MaxRetryAttempts; attempt++ {
			ok, err = cs.lock.Acquire(key)
			if err != nil {
				cs.releaseLocks(acquired, log.GetLogger())
				return nil, err
			}
			if ok {
				break
			}
			time.Sleep(constants.RetryDelay)
		}
		if !ok {
			cs.releaseLocks(acquired, log.GetLogger())
			return nil, errors2.NewServerError(errors2.ErrorMessage{
				Code:        errors2.LOCK_ACQUIRE.Code,
				Message:     errors2.LOCK_ACQUIRE.Message,
				Description: fmt.Sprintf("Could not acquire resolution lock %s", key),
			}, nil)
		}
		acquired = append(acquired, key)
	}
	return acquired, nil
}

func (cs *ContactService) releaseLocks(keys []string, logger *log.Logger) {

	for i := len(keys) - 1; i >= 0; i-- {
		if err := cs.lock.Release(keys[i]); err != nil {
			logger.Warn("Failed to release resolution lock", log.String("lockKey", keys[i]), log.Error(err))
		}
	}
}

// ListContacts returns a page of stored contact records, oldest first.
func (cs *ContactService) ListContacts(cursor *pagination.ContactCursor, limit int) (*model.ContactPage, error) {

	contacts, err := cs.store.ListContacts(cursor, limit)
	if err != nil {
		return nil, err
	}
	if contacts == nil {
		contacts = []model.Contact{}
	}

	page := &model.ContactPage{
		Contacts: contacts,
		Pagination: pagination.Pagination{
			Count:    len(contacts),
			PageSize: limit,
		},
	}
	if limit > 0 && len(contacts) == limit {
		last := contacts[len(contacts)-1]
		page.Pagination.NextCursor = pagination.EncodeContactCursor(pagination.ContactCursor{
			CreatedAt: last.CreatedAt,
			ContactId: last.Id,
		})
	}
	return page, nil
}
