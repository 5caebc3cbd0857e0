package store

import (
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/wso2/identity-contact-resolution-service/internal/contact/model"
	"github.com/wso2/identity-contact-resolution-service/internal/system/constants"
	"github.com/wso2/identity-contact-resolution-service/internal/system/database/provider"
	errors2 "github.com/wso2/identity-contact-resolution-service/internal/system/errors"
	"github.com/wso2/identity-contact-resolution-service/internal/system/log"
	"github.com/wso2/identity-contact-resolution-service/internal/system/pagination"
)

// ContactStoreInterface is the record store contract the resolution service
// depends on.
type ContactStoreInterface interface {
	FindExactMatch(email, phoneNumber *string) (*model.Contact, error)
	FindSharingContacts(email, phoneNumber *string) ([]model.Contact, error)
	FindByIds(ids []int64) ([]model.Contact, error)
	FindByLinkedIds(linkedIds []int64) ([]model.Contact, error)
	InsertContact(email, phoneNumber *string, linkedId *int64, linkPrecedence string) (*model.Contact, error)
	UpdateLinkPrecedence(id int64, linkPrecedence string, linkedId *int64) error
	RelinkSecondaries(oldPrimaryId, newPrimaryId int64) error
	ListContacts(cursor *pagination.ContactCursor, limit int) ([]model.Contact, error)
}

// ContactStore is the PostgreSQL implementation of ContactStoreInterface.
type ContactStore struct{}

func NewContactStore() *ContactStore {
	return &ContactStore{}
}

const contactColumns = `id, email, phone_number, linked_id, link_precedence, created_at, updated_at, deleted_at`

// scanContactRow converts an ExecuteQuery row map into a Contact.
func scanContactRow(row map[string]interface{}) (model.Contact, error) {

	var contact model.Contact

	id, ok := row["id"].(int64)
	if !ok {
		return model.Contact{}, fmt.Errorf("contact row has a non-integer id: %T", row["id"])
	}
	contact.Id = id

	if email, ok := asString(row["email"]); ok {
		contact.Email = &email
	}
	if phone, ok := asString(row["phone_number"]); ok {
		contact.PhoneNumber = &phone
	}
	if linkedId, ok := row["linked_id"].(int64); ok {
		contact.LinkedId = &linkedId
	}
	precedence, ok := asString(row["link_precedence"])
	if !ok {
		return model.Contact{}, fmt.Errorf("contact row has an invalid link_precedence: %T", row["link_precedence"])
	}
	contact.LinkPrecedence = precedence

	createdAt, ok := row["created_at"].(time.Time)
	if !ok {
		return model.Contact{}, fmt.Errorf("contact row has an invalid created_at: %T", row["created_at"])
	}
	contact.CreatedAt = createdAt
	if updatedAt, ok := row["updated_at"].(time.Time); ok {
		contact.UpdatedAt = updatedAt
	}
	if deletedAt, ok := row["deleted_at"].(time.Time); ok {
		contact.DeletedAt = &deletedAt
	}
	return contact, nil
}

// FindExactMatch returns the contact whose email and phone number both equal
// the given values, treating null as a value that only matches null.
func (s *ContactStore) FindExactMatch(email, phoneNumber *string) (*model.Contact, error) {

	dbClient, err := provider.NewDBProvider().GetDBClient()
	logger := log.GetLogger()
	if err != nil {
		errorMsg := "Failed to get db client for exact contact lookup"
		logger.Debug(errorMsg, log.Error(err))
		return nil, errors2.NewServerError(errors2.ErrorMessage{
			Code:        errors2.GET_CONTACT.Code,
			Message:     errors2.GET_CONTACT.Message,
			Description: errorMsg,
		}, err)
	}
	defer dbClient.Close()

	query := `
		SELECT ` + contactColumns + `
		FROM contact
		WHERE email IS NOT DISTINCT FROM $1 AND phone_number IS NOT DISTINCT FROM $2
		ORDER BY created_at ASC, id ASC
		LIMIT 1;`

	results, err := dbClient.ExecuteQuery(query, email, phoneNumber)
	if err != nil {
		errorMsg := "Failed executing exact contact lookup"
		logger.Debug(errorMsg, log.Error(err))
		return nil, errors2.NewServerError(errors2.ErrorMessage{
			Code:        errors2.GET_CONTACT.Code,
			Message:     errors2.GET_CONTACT.Message,
			Description: errorMsg,
		}, err)
	}
	if len(results) == 0 {
		return nil, nil
	}

	contact, err := scanContactRow(results[0])
	if err != nil {
		return nil, errors2.NewServerError(errors2.ErrorMessage{
			Code:        errors2.GET_CONTACT.Code,
			Message:     errors2.GET_CONTACT.Message,
			Description: "Failed scanning exact contact lookup result",
		}, err)
	}
	return &contact, nil
}

// FindSharingContacts returns every contact sharing the email or the phone
// number, ordered primary-first and then oldest-first.
func (s *ContactStore) FindSharingContacts(email, phoneNumber *string) ([]model.Contact, error) {

	dbClient, err := provider.NewDBProvider().GetDBClient()
	logger := log.GetLogger()
	if err != nil {
		errorMsg := "Failed to get db client for sharing contacts lookup"
		logger.Debug(errorMsg, log.Error(err))
		return nil, errors2.NewServerError(errors2.ErrorMessage{
			Code:        errors2.GET_CONTACT.Code,
			Message:     errors2.GET_CONTACT.Message,
			Description: errorMsg,
		}, err)
	}
	defer dbClient.Close()

	// A null parameter never compares equal, so a missing identifier simply
	// drops out of the OR.
	query := `
		SELECT ` + contactColumns + `
		FROM contact
		WHERE email = $1 OR phone_number = $2
		ORDER BY link_precedence ASC, created_at ASC, id ASC;`

	results, err := dbClient.ExecuteQuery(query, email, phoneNumber)
	if err != nil {
		errorMsg := "Failed executing sharing contacts lookup"
		logger.Debug(errorMsg, log.Error(err))
		return nil, errors2.NewServerError(errors2.ErrorMessage{
			Code:        errors2.GET_CONTACT.Code,
			Message:     errors2.GET_CONTACT.Message,
			Description: errorMsg,
		}, err)
	}

	return scanContactRows(results)
}

// FindByIds returns the contacts with the given ids, oldest first.
func (s *ContactStore) FindByIds(ids []int64) ([]model.Contact, error) {

	if len(ids) == 0 {
		return nil, nil
	}

	dbClient, err := provider.NewDBProvider().GetDBClient()
	logger := log.GetLogger()
	if err != nil {
		errorMsg := "Failed to get db client for contact id lookup"
		logger.Debug(errorMsg, log.Error(err))
		return nil, errors2.NewServerError(errors2.ErrorMessage{
			Code:        errors2.GET_CONTACT.Code,
			Message:     errors2.GET_CONTACT.Message,
			Description: errorMsg,
		}, err)
	}
	defer dbClient.Close()

	query := `
		SELECT ` + contactColumns + `
		FROM contact
		WHERE id = ANY($1)
		ORDER BY created_at ASC, id ASC;`

	results, err := dbClient.ExecuteQuery(query, pq.Array(ids))
	if err != nil {
		errorMsg := "Failed executing contact id lookup"
		logger.Debug(errorMsg, log.Error(err))
		return nil, errors2.NewServerError(errors2.ErrorMessage{
			Code:        errors2.GET_CONTACT.Code,
			Message:     errors2.GET_CONTACT.Message,
			Description: errorMsg,
		}, err)
	}

	return scanContactRows(results)
}

// FindByLinkedIds returns the secondary contacts pointing at any of the given
// ids, oldest first.
func (s *ContactStore) FindByLinkedIds(linkedIds []int64) ([]model.Contact, error) {

	if len(linkedIds) == 0 {
		return nil, nil
	}

	dbClient, err := provider.NewDBProvider().GetDBClient()
	logger := log.GetLogger()
	if err != nil {
		errorMsg := "Failed to get db client for linked contact lookup"
		logger.Debug(errorMsg, log.Error(err))
		return nil, errors2.NewServerError(errors2.ErrorMessage{
			Code:        errors2.GET_CONTACT.Code,
			Message:     errors2.GET_CONTACT.Message,
			Description: errorMsg,
		}, err)
	}
	defer dbClient.Close()

	query := `
		SELECT ` + contactColumns + `
		FROM contact
		WHERE linked_id = ANY($1)
		ORDER BY created_at ASC, id ASC;`

	results, err := dbClient.ExecuteQuery(query, pq.Array(linkedIds))
	if err != nil {
		errorMsg := "Failed executing linked contact lookup"
		logger.Debug(errorMsg, log.Error(err))
		return nil, errors2.NewServerError(errors2.ErrorMessage{
			Code:        errors2.GET_CONTACT.Code,
			Message:     errors2.GET_CONTACT.Message,
			Description: errorMsg,
		}, err)
	}

	return scanContactRows(results)
}

// InsertContact creates a contact record and returns it with the assigned id.
func (s *ContactStore) InsertContact(email, phoneNumber *string, linkedId *int64,
	linkPrecedence string) (*model.Contact, error) {

	dbClient, err := provider.NewDBProvider().GetDBClient()
	logger := log.GetLogger()
	if err != nil {
		errorMsg := "Failed to get db client for adding a contact"
		logger.Debug(errorMsg, log.Error(err))
		return nil, errors2.NewServerError(errors2.ErrorMessage{
			Code:        errors2.ADD_CONTACT.Code,
			Message:     errors2.ADD_CONTACT.Message,
			Description: errorMsg,
		}, err)
	}
	defer dbClient.Close()

	query := `
		INSERT INTO contact (email, phone_number, linked_id, link_precedence, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NOW(), NOW())
		RETURNING ` + contactColumns + `;`

	results, err := dbClient.ExecuteQuery(query, email, phoneNumber, linkedId, linkPrecedence)
	if err != nil || len(results) == 0 {
		errorMsg := fmt.Sprintf("Failed to insert %s contact record", linkPrecedence)
		logger.Debug(errorMsg, log.Error(err))
		return nil, errors2.NewServerError(errors2.ErrorMessage{
			Code:        errors2.ADD_CONTACT.Code,
			Message:     errors2.ADD_CONTACT.Message,
			Description: errorMsg,
		}, err)
	}

	contact, err := scanContactRow(results[0])
	if err != nil {
		return nil, errors2.NewServerError(errors2.ErrorMessage{
			Code:        errors2.ADD_CONTACT.Code,
			Message:     errors2.ADD_CONTACT.Message,
			Description: "Failed scanning inserted contact record",
		}, err)
	}
	logger.Debug("Contact record added", log.Int64("contactId", contact.Id),
		log.String("linkPrecedence", contact.LinkPrecedence))
	return &contact, nil
}

// UpdateLinkPrecedence mutates the link fields of a contact. Email and phone
// number are immutable after creation and are never touched here.
func (s *ContactStore) UpdateLinkPrecedence(id int64, linkPrecedence string, linkedId *int64) error {

	dbClient, err := provider.NewDBProvider().GetDBClient()
	logger := log.GetLogger()
	if err != nil {
		errorMsg := fmt.Sprintf("Failed to get db client for updating contact: %d", id)
		logger.Debug(errorMsg, log.Error(err))
		return errors2.NewServerError(errors2.ErrorMessage{
			Code:        errors2.UPDATE_CONTACT.Code,
			Message:     errors2.UPDATE_CONTACT.Message,
			Description: errorMsg,
		}, err)
	}
	defer dbClient.Close()

	query := `
		UPDATE contact SET
			link_precedence = $1,
			linked_id = $2,
			updated_at = NOW()
		WHERE id = $3;`

	_, err = dbClient.ExecuteQuery(query, linkPrecedence, linkedId, id)
	if err != nil {
		errorMsg := fmt.Sprintf("Failed updating link precedence of contact: %d", id)
		logger.Debug(errorMsg, log.Error(err))
		return errors2.NewServerError(errors2.ErrorMessage{
			Code:        errors2.UPDATE_CONTACT.Code,
			Message:     errors2.UPDATE_CONTACT.Message,
			Description: errorMsg,
		}, err)
	}
	return nil
}

// RelinkSecondaries re-points secondaries of a demoted primary at the new
// anchor so link pointers stay one hop from the primary.
func (s *ContactStore) RelinkSecondaries(oldPrimaryId, newPrimaryId int64) error {

	dbClient, err := provider.NewDBProvider().GetDBClient()
	logger := log.GetLogger()
	if err != nil {
		errorMsg := fmt.Sprintf("Failed to get db client for relinking secondaries of contact: %d", oldPrimaryId)
		logger.Debug(errorMsg, log.Error(err))
		return errors2.NewServerError(errors2.ErrorMessage{
			Code:        errors2.UPDATE_CONTACT.Code,
			Message:     errors2.UPDATE_CONTACT.Message,
			Description: errorMsg,
		}, err)
	}
	defer dbClient.Close()

	query := `
		UPDATE contact SET
			linked_id = $2,
			updated_at = NOW()
		WHERE linked_id = $1 AND link_precedence = $3;`

	_, err = dbClient.ExecuteQuery(query, oldPrimaryId, newPrimaryId, constants.LinkPrecedenceSecondary)
	if err != nil {
		errorMsg := fmt.Sprintf("Failed relinking secondaries from contact %d to %d", oldPrimaryId, newPrimaryId)
		logger.Debug(errorMsg, log.Error(err))
		return errors2.NewServerError(errors2.ErrorMessage{
			Code:        errors2.UPDATE_CONTACT.Code,
			Message:     errors2.UPDATE_CONTACT.Message,
			Description: errorMsg,
		}, err)
	}
	return nil
}

// ListContacts returns every contact record, oldest first.
func (s *ContactStore) ListContacts(cursor *pagination.ContactCursor, limit int) ([]model.Contact, error) {

	dbClient, err := provider.NewDBProvider().GetDBClient()
	logger := log.GetLogger()
	if err != nil {
		errorMsg := "Failed to get db client for listing contacts"
		logger.Debug(errorMsg, log.Error(err))
		return nil, errors2.NewServerError(errors2.ErrorMessage{
			Code:        errors2.GET_CONTACT.Code,
			Message:     errors2.GET_CONTACT.Message,
			Description: errorMsg,
		}, err)
	}
	defer dbClient.Close()

	query := `
		SELECT ` + contactColumns + `
		FROM contact
		WHERE (created_at, id) > ($1, $2)
		ORDER BY created_at ASC, id ASC
		LIMIT $3;`

	afterCreatedAt := time.Time{}
	afterId := int64(0)
	if cursor != nil {
		afterCreatedAt = cursor.CreatedAt
		afterId = cursor.ContactId
	}

	results, err := dbClient.ExecuteQuery(query, afterCreatedAt, afterId, limit)
	if err != nil {
		errorMsg := "Failed listing contacts"
		logger.Debug(errorMsg, log.Error(err))
		return nil, errors2.NewServerError(errors2.ErrorMessage{
			Code:        errors2.GET_CONTACT.Code,
			Message:     errors2.GET_CONTACT.Message,
			Description: errorMsg,
		}, err)
	}

	return scanContactRows(results)
}

// asString normalizes text column values, which surface as string or []byte
// depending on the driver path.
func asString(val interface{}) (string, bool) {

	switch v := val.(type) {
	case string:
		return v, true
	case []byte:
		return string(v), true
	}
	return "", false
}

func scanContactRows(results []map[string]interface{}) ([]model.Contact, error) {

	var contacts []model.Contact
	for _, row := range results {
		contact, err := scanContactRow(row)
		if err != nil {
			return nil, errors2.NewServerError(errors2.ErrorMessage{
				Code:        errors2.GET_CONTACT.Code,
				Message:     errors2.GET_CONTACT.Message,
				Description: "Failed scanning contact row",
			}, err)
		}
		contacts = append(contacts, contact)
	}
	return contacts, nil
}
