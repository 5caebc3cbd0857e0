package store

import (
	"context"
	"sort"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/wso2/identity-contact-resolution-service/internal/contact/model"
	"github.com/wso2/identity-contact-resolution-service/internal/system/constants"
	"github.com/wso2/identity-contact-resolution-service/internal/system/database/provider"
	errors2 "github.com/wso2/identity-contact-resolution-service/internal/system/errors"
	"github.com/wso2/identity-contact-resolution-service/internal/system/log"
	"github.com/wso2/identity-contact-resolution-service/internal/system/pagination"
)

// ContactRepository is the MongoDB implementation of ContactStoreInterface.
// Records keep the same integer ids as the relational backend, assigned from a
// counter document.
type ContactRepository struct{}

func NewContactRepository() *ContactRepository {
	return &ContactRepository{}
}

func (repo *ContactRepository) collection() (*mongo.Collection, error) {

	mongoDB, err := provider.GetMongoDBInstance()
	if err != nil {
		return nil, errors2.NewServerError(errors2.ErrorMessage{
			Code:        errors2.DB_CLIENT_INIT.Code,
			Message:     errors2.DB_CLIENT_INIT.Message,
			Description: "Failed to get MongoDB instance for contact store",
		}, err)
	}
	return mongoDB.Database.Collection(constants.ContactCollection), nil
}

// nextContactId increments and returns the contact id sequence.
func (repo *ContactRepository) nextContactId(ctx context.Context) (int64, error) {

	mongoDB, err := provider.GetMongoDBInstance()
	if err != nil {
		return 0, err
	}
	counters := mongoDB.Database.Collection(constants.CounterCollection)

	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)
	var counter struct {
		Seq int64 `bson:"seq"`
	}
	err = counters.FindOneAndUpdate(ctx,
		bson.M{"_id": "contact_id"},
		bson.M{"$inc": bson.M{"seq": int64(1)}},
		opts,
	).Decode(&counter)
	if err != nil {
		return 0, err
	}
	return counter.Seq, nil
}

func (repo *ContactRepository) FindExactMatch(email, phoneNumber *string) (*model.Contact, error) {

	coll, err := repo.collection()
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// A nil value matches only documents where the field is null or absent,
	// mirroring the strict null equality of the relational backend.
	filter := bson.M{"email": email, "phone_number": phoneNumber}
	opts := options.FindOne().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "id", Value: 1}})

	var contact model.Contact
	err = coll.FindOne(ctx, filter, opts).Decode(&contact)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, wrapStoreError(errors2.GET_CONTACT, "Failed executing exact contact lookup", err)
	}
	return &contact, nil
}

func (repo *ContactRepository) FindSharingContacts(email, phoneNumber *string) ([]model.Contact, error) {

	var clauses []bson.M
	if email != nil {
		clauses = append(clauses, bson.M{"email": *email})
	}
	if phoneNumber != nil {
		clauses = append(clauses, bson.M{"phone_number": *phoneNumber})
	}
	if len(clauses) == 0 {
		return nil, nil
	}

	coll, err := repo.collection()
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// "primary" sorts before "secondary", matching the relational ordering.
	opts := options.Find().SetSort(bson.D{
		{Key: "link_precedence", Value: 1},
		{Key: "created_at", Value: 1},
		{Key: "id", Value: 1},
	})
	cursor, err := coll.Find(ctx, bson.M{"$or": clauses}, opts)
	if err != nil {
		return nil, wrapStoreError(errors2.GET_CONTACT, "Failed executing sharing contacts lookup", err)
	}
	defer cursor.Close(ctx)

	var contacts []model.Contact
	if err := cursor.All(ctx, &contacts); err != nil {
		return nil, wrapStoreError(errors2.GET_CONTACT, "Failed decoding sharing contacts", err)
	}
	return contacts, nil
}

func (repo *ContactRepository) FindByIds(ids []int64) ([]model.Contact, error) {

	if len(ids) == 0 {
		return nil, nil
	}

	coll, err := repo.collection()
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "id", Value: 1}})
	cursor, err := coll.Find(ctx, bson.M{"id": bson.M{"$in": ids}}, opts)
	if err != nil {
		return nil, wrapStoreError(errors2.GET_CONTACT, "Failed executing contact id lookup", err)
	}
	defer cursor.Close(ctx)

	var contacts []model.Contact
	if err := cursor.All(ctx, &contacts); err != nil {
		return nil, wrapStoreError(errors2.GET_CONTACT, "Failed decoding contacts by id", err)
	}

	// Timestamps round-trip through BSON at millisecond precision, so id is
	// the deciding key for records created in the same millisecond.
	sort.SliceStable(contacts, func(i, j int) bool {
		if contacts[i].CreatedAt.Equal(contacts[j].CreatedAt) {
			return contacts[i].Id < contacts[j].Id
		}
		return contacts[i].CreatedAt.Before(contacts[j].CreatedAt)
	})
	return contacts, nil
}

func (repo *ContactRepository) FindByLinkedIds(linkedIds []int64) ([]model.Contact, error) {

	if len(linkedIds) == 0 {
		return nil, nil
	}

	coll, err := repo.collection()
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "id", Value: 1}})
	cursor, err := coll.Find(ctx, bson.M{"linked_id": bson.M{"$in": linkedIds}}, opts)
	if err != nil {
		return nil, wrapStoreError(errors2.GET_CONTACT, "Failed executing linked contact lookup", err)
	}
	defer cursor.Close(ctx)

	var contacts []model.Contact
	if err := cursor.All(ctx, &contacts); err != nil {
		return nil, wrapStoreError(errors2.GET_CONTACT, "Failed decoding linked contacts", err)
	}
	return contacts, nil
}

func (repo *ContactRepository) InsertContact(email, phoneNumber *string, linkedId *int64,
	linkPrecedence string) (*model.Contact, error) {

	coll, err := repo.collection()
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	id, err := repo.nextContactId(ctx)
	if err != nil {
		return nil, wrapStoreError(errors2.ADD_CONTACT, "Failed to assign contact id", err)
	}

	now := time.Now().UTC()
	contact := model.Contact{
		Id:             id,
		Email:          email,
		PhoneNumber:    phoneNumber,
		LinkedId:       linkedId,
		LinkPrecedence: linkPrecedence,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if _, err := coll.InsertOne(ctx, contact); err != nil {
		return nil, wrapStoreError(errors2.ADD_CONTACT, "Failed to insert contact record", err)
	}

	log.GetLogger().Debug("Contact record added", log.Int64("contactId", contact.Id),
		log.String("linkPrecedence", contact.LinkPrecedence))
	return &contact, nil
}

func (repo *ContactRepository) UpdateLinkPrecedence(id int64, linkPrecedence string, linkedId *int64) error {

	coll, err := repo.collection()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	update := bson.M{"$set": bson.M{
		"link_precedence": linkPrecedence,
		"linked_id":       linkedId,
		"updated_at":      time.Now().UTC(),
	}}
	if _, err := coll.UpdateOne(ctx, bson.M{"id": id}, update); err != nil {
		return wrapStoreError(errors2.UPDATE_CONTACT, "Failed updating link precedence of contact", err)
	}
	return nil
}

func (repo *ContactRepository) RelinkSecondaries(oldPrimaryId, newPrimaryId int64) error {

	coll, err := repo.collection()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	filter := bson.M{
		"linked_id":       oldPrimaryId,
		"link_precedence": constants.LinkPrecedenceSecondary,
	}
	update := bson.M{"$set": bson.M{
		"linked_id":  newPrimaryId,
		"updated_at": time.Now().UTC(),
	}}
	if _, err := coll.UpdateMany(ctx, filter, update); err != nil {
		return wrapStoreError(errors2.UPDATE_CONTACT, "Failed relinking secondaries to new anchor", err)
	}
	return nil
}

func (repo *ContactRepository) ListContacts(pageCursor *pagination.ContactCursor, limit int) ([]model.Contact, error) {

	coll, err := repo.collection()
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	filter := bson.M{}
	if pageCursor != nil {
		filter = bson.M{"$or": []bson.M{
			{"created_at": bson.M{"$gt": pageCursor.CreatedAt}},
			{"created_at": pageCursor.CreatedAt, "id": bson.M{"$gt": pageCursor.ContactId}},
		}}
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "id", Value: 1}}).
		SetLimit(int64(limit))
	cursor, err := coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, wrapStoreError(errors2.GET_CONTACT, "Failed listing contacts", err)
	}
	defer cursor.Close(ctx)

	var contacts []model.Contact
	if err := cursor.All(ctx, &contacts); err != nil {
		return nil, wrapStoreError(errors2.GET_CONTACT, "Failed decoding contact listing", err)
	}
	return contacts, nil
}

func wrapStoreError(msg errors2.ErrorMessage, description string, err error) error {

	log.GetLogger().Debug(description, log.Error(err))
	return errors2.NewServerError(errors2.ErrorMessage{
		Code:        msg.Code,
		Message:     msg.Message,
		Description: description,
	}, err)
}
