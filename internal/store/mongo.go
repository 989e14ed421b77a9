package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"posbackend/internal/models"
)

// Mongo implements Store on a MongoDB replica set (transactions need one).
type Mongo struct {
	db  *mongo.Database
	now func() time.Time
}

func NewMongo(db *mongo.Database) *Mongo {
	return &Mongo{db: db, now: time.Now}
}

var _ Store = (*Mongo)(nil)

func (m *Mongo) Ping(ctx context.Context) error {
	return m.db.Client().Ping(ctx, readpref.Primary())
}

func (m *Mongo) products() *mongo.Collection     { return m.db.Collection(ProductsCollection) }
func (m *Mongo) customers() *mongo.Collection    { return m.db.Collection(CustomersCollection) }
func (m *Mongo) bills() *mongo.Collection        { return m.db.Collection(BillsCollection) }
func (m *Mongo) transactions() *mongo.Collection { return m.db.Collection(TransactionsCollection) }
func (m *Mongo) suppliers() *mongo.Collection    { return m.db.Collection(SuppliersCollection) }
func (m *Mongo) users() *mongo.Collection        { return m.db.Collection(UsersCollection) }

// withTransaction runs fn inside a session transaction. The driver retries
// transient conflicts; any other error aborts every write made by fn.
func (m *Mongo) withTransaction(ctx context.Context, fn func(sc mongo.SessionContext) error) error {
	session, err := m.db.Client().StartSession()
	if err != nil {
		return fmt.Errorf("start session: %w", err)
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		return nil, fn(sc)
	})
	return err
}

/* =======================
   PRODUCTS
======================= */

func (m *Mongo) ListProducts(ctx context.Context) ([]models.Product, error) {
	cursor, err := m.products().Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "name", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	return decodeProducts(ctx, cursor)
}

func (m *Mongo) ProductByBarcode(ctx context.Context, barcode string) (models.Product, error) {
	product, err := decodeProduct(m.products().FindOne(ctx, bson.M{"barcode": barcode}))
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.Product{}, NotFoundError{Kind: "product", Key: barcode}
	}
	return product, err
}

func (m *Mongo) ProductByID(ctx context.Context, id primitive.ObjectID) (models.Product, error) {
	product, err := decodeProduct(m.products().FindOne(ctx, bson.M{"_id": id}))
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.Product{}, productNotFound(id)
	}
	return product, err
}

func (m *Mongo) CreateProduct(ctx context.Context, p models.Product) (models.Product, error) {
	now := m.now()
	p.ID = primitive.NilObjectID
	p.LastRestocked = &now

	res, err := m.products().InsertOne(ctx, p)
	if mongo.IsDuplicateKeyError(err) {
		return models.Product{}, fmt.Errorf("barcode %s: %w", p.Barcode, ErrDuplicate)
	}
	if err != nil {
		return models.Product{}, err
	}

	p.ID = res.InsertedID.(primitive.ObjectID)
	return p, nil
}

func (m *Mongo) AdjustStock(ctx context.Context, id primitive.ObjectID, change int, userID string) (models.Product, error) {
	var updated models.Product
	err := m.withTransaction(ctx, func(sc mongo.SessionContext) error {
		product, err := decodeProduct(m.products().FindOne(sc, bson.M{"_id": id}))
		if errors.Is(err, mongo.ErrNoDocuments) {
			return productNotFound(id)
		}
		if err != nil {
			return err
		}

		movement, newStock := stockAdjustment(product, change, userID, m.now())
		if _, err := m.products().UpdateByID(sc, id, bson.M{"$set": bson.M{"stock": newStock}}); err != nil {
			return err
		}
		if movement != nil {
			if _, err := m.transactions().InsertOne(sc, movement); err != nil {
				return err
			}
		}

		product.Stock = newStock
		updated = product
		return nil
	})
	return updated, err
}

func (m *Mongo) Restock(ctx context.Context, id primitive.ObjectID, quantity int, userID string) (models.Product, error) {
	if quantity <= 0 {
		return models.Product{}, fmt.Errorf("restock quantity must be positive, got %d", quantity)
	}

	var updated models.Product
	err := m.withTransaction(ctx, func(sc mongo.SessionContext) error {
		product, err := decodeProduct(m.products().FindOne(sc, bson.M{"_id": id}))
		if errors.Is(err, mongo.ErrNoDocuments) {
			return productNotFound(id)
		}
		if err != nil {
			return err
		}

		now := m.now()
		_, err = m.products().UpdateByID(sc, id, bson.M{
			"$inc": bson.M{"stock": quantity},
			"$set": bson.M{"lastRestocked": now},
		})
		if err != nil {
			return err
		}

		_, err = m.transactions().InsertOne(sc, models.InventoryTransaction{
			ProductID: id,
			Type:      models.MovementIn,
			Quantity:  quantity,
			Reason:    models.ReasonRestock,
			Date:      now,
			UserID:    userID,
		})
		if err != nil {
			return err
		}

		product.Stock += quantity
		product.LastRestocked = &now
		updated = product
		return nil
	})
	return updated, err
}

func (m *Mongo) LowStockProducts(ctx context.Context, fallbackMin int) ([]models.Product, error) {
	filter := bson.M{
		"$expr": bson.M{
			"$lte": bson.A{"$stock", bson.M{"$ifNull": bson.A{"$minStock", fallbackMin}}},
		},
	}

	cursor, err := m.products().Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "stock", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	return decodeProducts(ctx, cursor)
}

func (m *Mongo) InventoryTransactions(ctx context.Context, filter models.TransactionFilter) ([]models.InventoryTransaction, int64, error) {
	query := bson.M{}
	if !filter.ProductID.IsZero() {
		query["productId"] = filter.ProductID
	}
	dateRange := bson.M{}
	if !filter.From.IsZero() {
		dateRange["$gte"] = filter.From
	}
	if !filter.To.IsZero() {
		dateRange["$lte"] = filter.To
	}
	if len(dateRange) > 0 {
		query["date"] = dateRange
	}

	total, err := m.transactions().CountDocuments(ctx, query)
	if err != nil {
		return nil, 0, err
	}

	opts := options.Find().SetSort(bson.D{{Key: "date", Value: -1}})
	if filter.Limit > 0 {
		page := max(filter.Page, 1)
		opts.SetSkip((page - 1) * filter.Limit).SetLimit(filter.Limit)
	}

	cursor, err := m.transactions().Find(ctx, query, opts)
	if err != nil {
		return nil, 0, err
	}
	defer cursor.Close(ctx)

	movements := make([]models.InventoryTransaction, 0)
	if err := cursor.All(ctx, &movements); err != nil {
		return nil, 0, err
	}
	return movements, total, nil
}

// stockAdjustment clamps the new stock at zero and describes the movement, if any.
func stockAdjustment(product models.Product, change int, userID string, at time.Time) (*models.InventoryTransaction, int) {
	newStock := clampStock(product.Stock + change)
	delta := newStock - product.Stock
	if delta == 0 {
		return nil, newStock
	}

	movement := &models.InventoryTransaction{
		ProductID: product.ID,
		Type:      models.MovementIn,
		Quantity:  delta,
		Reason:    models.ReasonAdjustment,
		Date:      at,
		UserID:    userID,
	}
	if delta < 0 {
		movement.Type = models.MovementOut
		movement.Quantity = -delta
	}
	return movement, newStock
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
