package storage

import (
	"context"
	"fmt"
	"time"

	"cotton-extractor/internal/types"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// productDocument is the stored form of a product, keyed by its id
type productDocument struct {
	ID             string               `bson:"_id"`
	Name           string               `bson:"name"`
	Brand          string               `bson:"brand"`
	Price          primitive.Decimal128 `bson:"price"`
	Currency       string               `bson:"currency"`
	CurrencySymbol string               `bson:"currency_symbol"`
	URL            string               `bson:"url"`
	ImageURL       string               `bson:"image_url"`
	Gender         string               `bson:"gender"`
	Category       string               `bson:"category"`
	Material       string               `bson:"material"`
	Color          string               `bson:"color,omitempty"`
	Sizes          []string             `bson:"sizes"`
	Source         string               `bson:"source"`
	Region         string               `bson:"region"`
	ScrapedAt      time.Time            `bson:"scraped_at"`
}

func newProductDocument(product types.Product) (productDocument, error) {
	price, err := primitive.ParseDecimal128(product.Price.String())
	if err != nil {
		return productDocument{}, fmt.Errorf("invalid price %s for %s: %w", product.Price, product.ID, err)
	}

	return productDocument{
		ID:             product.ID,
		Name:           product.Name,
		Brand:          product.Brand,
		Price:          price,
		Currency:       product.Currency,
		CurrencySymbol: product.CurrencySymbol,
		URL:            product.URL,
		ImageURL:       product.ImageURL,
		Gender:         string(product.Gender),
		Category:       product.Category,
		Material:       product.Material,
		Color:          product.Color,
		Sizes:          product.Sizes,
		Source:         product.Source,
		Region:         product.Region,
		ScrapedAt:      product.ScrapedAt,
	}, nil
}

// MongoSink upserts products into a collection by id
type MongoSink struct {
	client     *mongo.Client
	collection *mongo.Collection
}

// NewMongoSink connects and pings the database
func NewMongoSink(ctx context.Context, uri, database, collection string) (*MongoSink, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}

	return &MongoSink{
		client:     client,
		collection: client.Database(database).Collection(collection),
	}, nil
}

// Save replaces or inserts every product of the batch
func (m *MongoSink) Save(ctx context.Context, label Label, batch *types.Batch) error {
	if len(batch.Products) == 0 {
		return nil
	}

	models := make([]mongo.WriteModel, 0, len(batch.Products))
	for _, product := range batch.Products {
		doc, err := newProductDocument(product)
		if err != nil {
			return err
		}
		models = append(models, mongo.NewReplaceOneModel().
			SetFilter(bson.M{"_id": doc.ID}).
			SetReplacement(doc).
			SetUpsert(true))
	}

	if _, err := m.collection.BulkWrite(ctx, models, options.BulkWrite().SetOrdered(false)); err != nil {
		return fmt.Errorf("failed to upsert %d products: %w", len(models), err)
	}
	return nil
}

// Close disconnects the client
func (m *MongoSink) Close(ctx context.Context) error {
	return m.client.Disconnect(ctx)
}
