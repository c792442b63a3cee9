package storage

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"cotton-extractor/internal/types"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testTime = time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC)

func product(id, source string, gender types.Gender, price string) types.Product {
	return types.Product{
		ID:        id,
		Name:      "Tee " + id,
		Price:     decimal.RequireFromString(price),
		Gender:    gender,
		Source:    source,
		Region:    "UK",
		Material:  "100% Cotton",
		Sizes:     []string{"S", "M"},
		ScrapedAt: testTime,
	}
}

func TestLabel_FileName(t *testing.T) {
	assert.Equal(t, "hm_uk_20250314_092653.json", Label{Retailer: "hm", Region: "UK", Time: testTime}.FileName())
	assert.Equal(t, "all_products_20250314_092653.json", Label{Region: "UK", Time: testTime}.FileName())
	assert.True(t, Label{Region: "ALL"}.Combined())
}

func TestFileSink(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "data")
	sink := NewFileSink(dir)

	files, err := sink.ListFiles()
	require.NoError(t, err)
	assert.Empty(t, files)

	latest, err := sink.Latest()
	require.NoError(t, err)
	assert.Equal(t, 0, latest.TotalProducts)
	assert.Empty(t, latest.Products)

	older := Label{Retailer: "hm", Region: "UK", Time: testTime}
	require.NoError(t, sink.Save(ctx, older, types.NewBatch([]types.Product{product("a", "hm", types.GenderMen, "12.99")})))
	olderPath := filepath.Join(dir, older.FileName())
	require.NoError(t, os.Chtimes(olderPath, testTime, testTime))

	newer := Label{Region: "UK", Time: testTime.Add(time.Minute)}
	batch := types.NewBatch([]types.Product{
		product("a", "hm", types.GenderMen, "12.99"),
		product("b", "asos", types.GenderWomen, "20"),
	})
	require.NoError(t, sink.Save(ctx, newer, batch))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0644))

	files, err = sink.ListFiles()
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, newer.FileName(), files[0].Name)
	assert.Equal(t, older.FileName(), files[1].Name)
	assert.Positive(t, files[0].Size)

	latest, err = sink.Latest()
	require.NoError(t, err)
	assert.Equal(t, 2, latest.TotalProducts)
	require.Len(t, latest.Products, 2)
	assert.Equal(t, "b", latest.Products[1].ID)
	assert.True(t, latest.Products[1].Price.Equal(decimal.NewFromInt(20)))

	loaded, err := sink.LoadFile(older.FileName())
	require.NoError(t, err)
	assert.Equal(t, 1, loaded.TotalProducts)
	assert.Equal(t, types.GenderMen, loaded.Products[0].Gender)
}

func TestFileSink_Path(t *testing.T) {
	sink := NewFileSink(t.TempDir())

	_, err := sink.Path("../etc/passwd.json")
	assert.ErrorIs(t, err, ErrInvalidName)
	_, err = sink.Path("products.csv")
	assert.ErrorIs(t, err, ErrInvalidName)
	_, err = sink.LoadFile("missing.json")
	assert.ErrorIs(t, err, ErrNotFound)
}

type failingSink struct{ err error }

func (f failingSink) Save(ctx context.Context, label Label, batch *types.Batch) error {
	return f.err
}

type recordingSink struct{ labels []Label }

func (r *recordingSink) Save(ctx context.Context, label Label, batch *types.Batch) error {
	r.labels = append(r.labels, label)
	return nil
}

func TestMultiSink(t *testing.T) {
	boom := errors.New("boom")
	recorder := &recordingSink{}
	sink := MultiSink{failingSink{err: boom}, recorder, Discard{}}

	err := sink.Save(context.Background(), Label{Retailer: "hm"}, types.NewBatch(nil))
	assert.ErrorIs(t, err, boom)
	assert.Len(t, recorder.labels, 1)

	assert.NoError(t, MultiSink{}.Save(context.Background(), Label{}, types.NewBatch(nil)))
}

type fakePutter struct {
	input *s3.PutObjectInput
	body  []byte
}

func (f *fakePutter) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.input = params
	body, err := io.ReadAll(params.Body)
	if err != nil {
		return nil, err
	}
	f.body = body
	return &s3.PutObjectOutput{}, nil
}

func TestS3Sink(t *testing.T) {
	putter := &fakePutter{}
	sink := NewS3SinkWithClient(putter, "cotton-bucket", "/batches/")
	label := Label{Retailer: "asos", Region: "UK", Time: testTime}

	require.NoError(t, sink.Save(context.Background(), label, types.NewBatch([]types.Product{product("a", "asos", types.GenderMen, "10")})))

	require.NotNil(t, putter.input)
	assert.Equal(t, "cotton-bucket", *putter.input.Bucket)
	assert.Equal(t, "batches/uk/asos_uk_20250314_092653.json", *putter.input.Key)
	assert.Equal(t, "application/json", *putter.input.ContentType)
	assert.Contains(t, string(putter.body), `"total_products":1`)
	assert.Contains(t, string(putter.body), `"price":"10"`)
}

func TestNewProductDocument(t *testing.T) {
	doc, err := newProductDocument(product("abc", "hm", types.GenderKids, "7.50"))
	require.NoError(t, err)

	assert.Equal(t, "abc", doc.ID)
	assert.Equal(t, "kids", doc.Gender)
	assert.Equal(t, "7.5", doc.Price.String())
	assert.Equal(t, []string{"S", "M"}, doc.Sizes)
}

func TestRedisSink(t *testing.T) {
	ctx := context.Background()
	sink := NewRedisSink("localhost:6379", 15, "cotton:test", 10)
	defer sink.Close()

	if err := sink.Ping(ctx); err != nil {
		t.Skip("Redis not available:", err)
	}
	sink.client.Del(ctx, "cotton:test")

	assert.NoError(t, sink.Save(ctx, Label{Region: "UK"}, types.NewBatch([]types.Product{product("a", "hm", types.GenderMen, "1")})))
	length, err := sink.client.XLen(ctx, "cotton:test").Result()
	require.NoError(t, err)
	assert.Equal(t, int64(0), length)

	products := make([]types.Product, 0, 12)
	for i := 0; i < 12; i++ {
		products = append(products, product(string(rune('a'+i)), "hm", types.GenderMen, "1"))
	}
	require.NoError(t, sink.Save(ctx, Label{Retailer: "hm", Region: "UK"}, types.NewBatch(products)))

	length, err = sink.client.XLen(ctx, "cotton:test").Result()
	require.NoError(t, err)
	assert.Equal(t, int64(10), length)
	sink.client.Del(ctx, "cotton:test")
}

func TestMergeProducts(t *testing.T) {
	existing := []types.Product{product("a", "hm", types.GenderMen, "1"), product("b", "hm", types.GenderMen, "2")}
	incoming := []types.Product{product("b", "asos", types.GenderWomen, "9"), product("c", "asos", types.GenderWomen, "3")}

	merged := MergeProducts(existing, incoming)
	require.Len(t, merged, 3)
	assert.Equal(t, "hm", merged[1].Source)
	assert.Equal(t, "c", merged[2].ID)

	assert.Empty(t, MergeProducts(nil, nil))
}

func TestSummarize(t *testing.T) {
	summary := Summarize([]types.Product{
		product("a", "hm", types.GenderMen, "12.99"),
		product("b", "hm", types.GenderWomen, "4.50"),
		product("c", "asos", types.GenderWomen, "30"),
		product("d", "asos", types.GenderKids, "0"),
	})

	assert.Equal(t, 4, summary.Total)
	assert.Equal(t, map[string]int{"men": 1, "women": 2, "kids": 1}, summary.ByGender)
	assert.Equal(t, map[string]int{"hm": 2, "asos": 2}, summary.ByRetailer)
	assert.True(t, summary.Priced)
	assert.Equal(t, "4.50", summary.MinPrice.StringFixed(2))
	assert.Equal(t, "30.00", summary.MaxPrice.StringFixed(2))

	rendered := summary.Render()
	assert.Contains(t, rendered, "Women")
	assert.Contains(t, rendered, "asos")
	assert.Contains(t, rendered, "4.50 - 30.00")

	assert.Equal(t, "No products found.", Summarize(nil).Render())
}
