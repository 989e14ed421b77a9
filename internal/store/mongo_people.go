package store

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"posbackend/internal/models"
)

/* =======================
   CUSTOMERS
======================= */

func (m *Mongo) ListCustomers(ctx context.Context) ([]models.Customer, error) {
	cursor, err := m.customers().Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "name", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	customers := make([]models.Customer, 0)
	if err := cursor.All(ctx, &customers); err != nil {
		return nil, err
	}
	return customers, nil
}

func (m *Mongo) CustomerByID(ctx context.Context, id primitive.ObjectID) (models.Customer, error) {
	var customer models.Customer
	err := m.customers().FindOne(ctx, bson.M{"_id": id}).Decode(&customer)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.Customer{}, NotFoundError{Kind: "customer", Key: id.Hex()}
	}
	return customer, err
}

// SearchCustomers matches names by prefix. Names are stored lowercased.
func (m *Mongo) SearchCustomers(ctx context.Context, term string, limit int64) ([]models.Customer, error) {
	term = normalizeCustomerName(term)
	filter := bson.M{}
	if term != "" {
		filter["name"] = bson.M{"$regex": "^" + regexp.QuoteMeta(term)}
	}

	opts := options.Find().SetSort(bson.D{{Key: "name", Value: 1}})
	if limit > 0 {
		opts.SetLimit(limit)
	}

	cursor, err := m.customers().Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	customers := make([]models.Customer, 0)
	if err := cursor.All(ctx, &customers); err != nil {
		return nil, err
	}
	return customers, nil
}

func (m *Mongo) CreateCustomer(ctx context.Context, name string) (models.Customer, error) {
	customer, err := newCustomer(name, m.now())
	if err != nil {
		return models.Customer{}, err
	}

	res, err := m.customers().InsertOne(ctx, customer)
	if err != nil {
		return models.Customer{}, err
	}
	customer.ID = res.InsertedID.(primitive.ObjectID)
	return customer, nil
}

/* =======================
   SUPPLIERS
======================= */

func (m *Mongo) ListSuppliers(ctx context.Context) ([]models.Supplier, error) {
	cursor, err := m.suppliers().Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "name", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	suppliers := make([]models.Supplier, 0)
	if err := cursor.All(ctx, &suppliers); err != nil {
		return nil, err
	}
	return suppliers, nil
}

func (m *Mongo) CreateSupplier(ctx context.Context, s models.Supplier) (models.Supplier, error) {
	s.Name = strings.TrimSpace(s.Name)
	s.ID = primitive.NilObjectID
	s.CreatedAt = m.now()

	count, err := m.suppliers().CountDocuments(ctx, bson.M{"name": s.Name})
	if err != nil {
		return models.Supplier{}, err
	}
	if count > 0 {
		return models.Supplier{}, fmt.Errorf("supplier %s: %w", s.Name, ErrDuplicate)
	}

	res, err := m.suppliers().InsertOne(ctx, s)
	if err != nil {
		return models.Supplier{}, err
	}
	s.ID = res.InsertedID.(primitive.ObjectID)
	return s, nil
}

/* =======================
   USERS
======================= */

func (m *Mongo) UserByEmail(ctx context.Context, email string) (models.User, error) {
	email = normalizeEmail(email)
	var user models.User
	err := m.users().FindOne(ctx, bson.M{"email": email}).Decode(&user)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.User{}, NotFoundError{Kind: "user", Key: email}
	}
	return user, err
}

func (m *Mongo) UserByID(ctx context.Context, id primitive.ObjectID) (models.User, error) {
	var user models.User
	err := m.users().FindOne(ctx, bson.M{"_id": id}).Decode(&user)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.User{}, NotFoundError{Kind: "user", Key: id.Hex()}
	}
	return user, err
}

func (m *Mongo) CreateUser(ctx context.Context, u models.User) (models.User, error) {
	now := m.now()
	u.ID = primitive.NilObjectID
	u.Email = normalizeEmail(u.Email)
	u.CreatedAt = now
	u.UpdatedAt = now

	res, err := m.users().InsertOne(ctx, u)
	if mongo.IsDuplicateKeyError(err) {
		return models.User{}, fmt.Errorf("user %s: %w", u.Email, ErrDuplicate)
	}
	if err != nil {
		return models.User{}, err
	}
	u.ID = res.InsertedID.(primitive.ObjectID)
	return u, nil
}

func (m *Mongo) ListUsers(ctx context.Context) ([]models.User, error) {
	cursor, err := m.users().Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	users := make([]models.User, 0)
	if err := cursor.All(ctx, &users); err != nil {
		return nil, err
	}
	return users, nil
}

func (m *Mongo) UpdateUser(ctx context.Context, id primitive.ObjectID, update models.UserUpdate) (models.User, error) {
	set := bson.M{"updatedAt": m.now()}
	if update.Email != nil {
		set["email"] = normalizeEmail(*update.Email)
	}
	if update.DisplayName != nil {
		set["displayName"] = strings.TrimSpace(*update.DisplayName)
	}
	if update.Role != nil {
		set["role"] = *update.Role
	}

	var user models.User
	err := m.users().FindOneAndUpdate(ctx,
		bson.M{"_id": id},
		bson.M{"$set": set},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&user)
	switch {
	case errors.Is(err, mongo.ErrNoDocuments):
		return models.User{}, NotFoundError{Kind: "user", Key: id.Hex()}
	case mongo.IsDuplicateKeyError(err):
		return models.User{}, fmt.Errorf("email %s: %w", set["email"], ErrDuplicate)
	case err != nil:
		return models.User{}, err
	}
	return user, nil
}
