package store

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"posbackend/internal/models"
)

func (m *Mongo) Checkout(ctx context.Context, purchase models.Purchase) (CheckoutResult, error) {
	purchase, err := preparePurchase(purchase, m.now())
	if err != nil {
		return CheckoutResult{}, err
	}

	var result CheckoutResult
	err = m.withTransaction(ctx, func(sc mongo.SessionContext) error {
		if purchase.ReplayKey != "" {
			seen, err := m.bills().CountDocuments(sc, bson.M{"replayKey": purchase.ReplayKey})
			if err != nil {
				return err
			}
			if seen > 0 {
				return ErrAlreadyApplied
			}
		}

		var customer models.Customer
		if err := m.customers().FindOne(sc, bson.M{"_id": purchase.CustomerID}).Decode(&customer); err != nil {
			if errors.Is(err, mongo.ErrNoDocuments) {
				return NotFoundError{Kind: "customer", Key: purchase.CustomerID.Hex()}
			}
			return err
		}

		products := make([]models.Product, 0, len(purchase.Items))
		movements := make([]interface{}, 0, len(purchase.Items))
		for _, item := range purchase.Items {
			product, err := decodeProduct(m.products().FindOne(sc, bson.M{"_id": item.ProductID}))
			if errors.Is(err, mongo.ErrNoDocuments) {
				return productNotFound(item.ProductID)
			}
			if err != nil {
				return err
			}

			shortage := InsufficientStockError{
				ProductID: product.ID,
				Name:      product.Name,
				Available: product.Stock,
				Requested: item.Quantity,
			}
			if product.Stock < item.Quantity {
				return shortage
			}

			res, err := m.products().UpdateOne(sc,
				bson.M{"_id": item.ProductID, "stock": bson.M{"$gte": item.Quantity}},
				bson.M{"$inc": bson.M{"stock": -item.Quantity}},
			)
			if err != nil {
				return err
			}
			if res.MatchedCount == 0 {
				return shortage
			}

			product.Stock -= item.Quantity
			products = append(products, product)
			movements = append(movements, saleMovement(purchase, item))
		}

		if _, err := m.bills().InsertOne(sc, purchase); err != nil {
			return err
		}
		if _, err := m.transactions().InsertMany(sc, movements); err != nil {
			return err
		}

		_, err := m.customers().UpdateByID(sc, customer.ID, bson.M{
			"$inc": bson.M{"totalPurchases": 1, "totalSpent": purchase.Total},
			"$set": bson.M{"lastPurchaseDate": purchase.Date},
		})
		if err != nil {
			return err
		}
		customer.RecordPurchase(purchase.Total, purchase.Date)

		result = CheckoutResult{Purchase: purchase, Products: products, Customer: customer}
		return nil
	})
	if err != nil {
		return CheckoutResult{}, checkoutError(err, purchase.ReplayKey)
	}
	return result, nil
}

// checkoutError maps a failed checkout transaction onto store errors. Two
// replays of one queued checkout can both pass the replayKey lookup; the
// loser then hits the unique replayKey index instead.
func checkoutError(err error, replayKey string) error {
	if replayKey != "" && mongo.IsDuplicateKeyError(err) {
		return ErrAlreadyApplied
	}
	return err
}

func (m *Mongo) CancelPurchase(ctx context.Context, id primitive.ObjectID, userID string) (CancelResult, error) {
	var result CancelResult
	err := m.withTransaction(ctx, func(sc mongo.SessionContext) error {
		result = CancelResult{}

		var purchase models.Purchase
		if err := m.bills().FindOne(sc, bson.M{"_id": id}).Decode(&purchase); err != nil {
			if errors.Is(err, mongo.ErrNoDocuments) {
				return NotFoundError{Kind: "purchase", Key: id.Hex()}
			}
			return err
		}
		if purchase.Status == models.PurchaseCancelled {
			return ErrAlreadyCancelled
		}

		now := m.now()
		products := make([]models.Product, 0, len(purchase.Items))
		movements := make([]interface{}, 0, len(purchase.Items))
		for _, item := range purchase.Items {
			product, err := decodeProduct(m.products().FindOneAndUpdate(sc,
				bson.M{"_id": item.ProductID},
				bson.M{"$inc": bson.M{"stock": item.Quantity}},
				options.FindOneAndUpdate().SetReturnDocument(options.After),
			))
			if errors.Is(err, mongo.ErrNoDocuments) {
				return productNotFound(item.ProductID)
			}
			if err != nil {
				return err
			}
			products = append(products, product)
			movements = append(movements, returnMovement(purchase, item, userID, now))
		}

		if _, err := m.transactions().InsertMany(sc, movements); err != nil {
			return err
		}
		if _, err := m.bills().UpdateByID(sc, id, bson.M{"$set": bson.M{"status": models.PurchaseCancelled}}); err != nil {
			return err
		}
		purchase.Status = models.PurchaseCancelled

		var customer models.Customer
		err := m.customers().FindOneAndUpdate(sc,
			bson.M{"_id": purchase.CustomerID},
			bson.M{"$inc": bson.M{"totalPurchases": -1, "totalSpent": -purchase.Total}},
			options.FindOneAndUpdate().SetReturnDocument(options.After),
		).Decode(&customer)
		switch {
		case err == nil:
			result.Customer = &customer
		case !errors.Is(err, mongo.ErrNoDocuments):
			return err
		}

		result.Purchase = purchase
		result.Products = products
		return nil
	})
	if err != nil {
		return CancelResult{}, err
	}
	return result, nil
}

func (m *Mongo) ListPurchases(ctx context.Context, page, limit int64) ([]models.Purchase, int64, error) {
	total, err := m.bills().CountDocuments(ctx, bson.M{})
	if err != nil {
		return nil, 0, err
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "date", Value: -1}}).
		SetSkip((page - 1) * limit).
		SetLimit(limit)

	cursor, err := m.bills().Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, 0, err
	}
	defer cursor.Close(ctx)

	purchases := make([]models.Purchase, 0)
	if err := cursor.All(ctx, &purchases); err != nil {
		return nil, 0, err
	}
	return purchases, total, nil
}
