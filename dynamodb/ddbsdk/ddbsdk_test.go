package ddbsdk

import (
	"context"
	"errors"
	"testing"
	"time"

	dynamodbv2 "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/acksell/ddbq/dynamodb/expr"
	"github.com/acksell/ddbq/dynamodb/table"
	"github.com/acksell/ddbq/dynamodb/table/example"
)

var (
	products = example.Products
	id       = products.Column("id")
	sku      = products.Column("sku")
	price    = products.Column("price")
	category = products.Column("category")
	name     = products.Column("name")
)

type product struct {
	ID    string `dynamodbav:"id" ddb:"partition"`
	SKU   string `dynamodbav:"sku" ddb:"sort"`
	Price int    `dynamodbav:"price"`
	Name  string `dynamodbav:"name,omitempty"`
}

// fakeDynamo records every request and serves canned pages.
type fakeDynamo struct {
	gets    []*dynamodbv2.GetItemInput
	queries []*dynamodbv2.QueryInput
	scans   []*dynamodbv2.ScanInput
	puts    []*dynamodbv2.PutItemInput
	deletes []*dynamodbv2.DeleteItemInput
	batches []*dynamodbv2.BatchGetItemInput
	txs     []*dynamodbv2.TransactGetItemsInput
	updates []*dynamodbv2.UpdateItemInput
	writes  []*dynamodbv2.BatchWriteItemInput
	txWrite []*dynamodbv2.TransactWriteItemsInput

	getItem     Item
	queryPages  []*dynamodbv2.QueryOutput
	scanPages   []*dynamodbv2.ScanOutput
	batchPages  []*dynamodbv2.BatchGetItemOutput
	txResponses []types.ItemResponse
	updateAttrs Item
	// unprocessed is handed back by successive BatchWriteItem calls.
	unprocessed []map[string][]types.WriteRequest
	writeErr    error
}

var _ AWSDynamoClientV2 = &fakeDynamo{}

func (f *fakeDynamo) GetItem(_ context.Context, in *dynamodbv2.GetItemInput, _ ...func(*dynamodbv2.Options)) (*dynamodbv2.GetItemOutput, error) {
	f.gets = append(f.gets, in)
	return &dynamodbv2.GetItemOutput{Item: f.getItem}, nil
}

func (f *fakeDynamo) Query(_ context.Context, in *dynamodbv2.QueryInput, _ ...func(*dynamodbv2.Options)) (*dynamodbv2.QueryOutput, error) {
	f.queries = append(f.queries, in)
	if len(f.queryPages) == 0 {
		return &dynamodbv2.QueryOutput{}, nil
	}
	out := f.queryPages[0]
	f.queryPages = f.queryPages[1:]
	return out, nil
}

func (f *fakeDynamo) Scan(_ context.Context, in *dynamodbv2.ScanInput, _ ...func(*dynamodbv2.Options)) (*dynamodbv2.ScanOutput, error) {
	f.scans = append(f.scans, in)
	if len(f.scanPages) == 0 {
		return &dynamodbv2.ScanOutput{}, nil
	}
	out := f.scanPages[0]
	f.scanPages = f.scanPages[1:]
	return out, nil
}

func (f *fakeDynamo) PutItem(_ context.Context, in *dynamodbv2.PutItemInput, _ ...func(*dynamodbv2.Options)) (*dynamodbv2.PutItemOutput, error) {
	f.puts = append(f.puts, in)
	return &dynamodbv2.PutItemOutput{}, f.writeErr
}

func (f *fakeDynamo) DeleteItem(_ context.Context, in *dynamodbv2.DeleteItemInput, _ ...func(*dynamodbv2.Options)) (*dynamodbv2.DeleteItemOutput, error) {
	f.deletes = append(f.deletes, in)
	return &dynamodbv2.DeleteItemOutput{}, f.writeErr
}

func (f *fakeDynamo) BatchGetItem(_ context.Context, in *dynamodbv2.BatchGetItemInput, _ ...func(*dynamodbv2.Options)) (*dynamodbv2.BatchGetItemOutput, error) {
	f.batches = append(f.batches, in)
	if len(f.batchPages) == 0 {
		return &dynamodbv2.BatchGetItemOutput{}, nil
	}
	out := f.batchPages[0]
	f.batchPages = f.batchPages[1:]
	return out, nil
}

func (f *fakeDynamo) TransactGetItems(_ context.Context, in *dynamodbv2.TransactGetItemsInput, _ ...func(*dynamodbv2.Options)) (*dynamodbv2.TransactGetItemsOutput, error) {
	f.txs = append(f.txs, in)
	return &dynamodbv2.TransactGetItemsOutput{Responses: f.txResponses}, nil
}

func (f *fakeDynamo) UpdateItem(_ context.Context, in *dynamodbv2.UpdateItemInput, _ ...func(*dynamodbv2.Options)) (*dynamodbv2.UpdateItemOutput, error) {
	f.updates = append(f.updates, in)
	return &dynamodbv2.UpdateItemOutput{Attributes: f.updateAttrs}, f.writeErr
}

func (f *fakeDynamo) BatchWriteItem(_ context.Context, in *dynamodbv2.BatchWriteItemInput, _ ...func(*dynamodbv2.Options)) (*dynamodbv2.BatchWriteItemOutput, error) {
	f.writes = append(f.writes, in)
	if f.writeErr != nil {
		return nil, f.writeErr
	}
	if len(f.unprocessed) == 0 {
		return &dynamodbv2.BatchWriteItemOutput{}, nil
	}
	out := f.unprocessed[0]
	f.unprocessed = f.unprocessed[1:]
	return &dynamodbv2.BatchWriteItemOutput{UnprocessedItems: out}, nil
}

func (f *fakeDynamo) TransactWriteItems(_ context.Context, in *dynamodbv2.TransactWriteItemsInput, _ ...func(*dynamodbv2.Options)) (*dynamodbv2.TransactWriteItemsOutput, error) {
	f.txWrite = append(f.txWrite, in)
	return &dynamodbv2.TransactWriteItemsOutput{}, f.writeErr
}

func str(v string) types.AttributeValue { return &types.AttributeValueMemberS{Value: v} }
func num(v string) types.AttributeValue { return &types.AttributeValueMemberN{Value: v} }

func productItem(id, sku, price string) Item {
	return Item{"id": str(id), "sku": str(sku), "price": num(price)}
}

func mustKey(t *testing.T, pv, sv any) table.Key {
	t.Helper()
	k, err := products.Key(pv, sv)
	require.NoError(t, err)
	return k
}

func TestQueryDowngradesToGetItem(t *testing.T) {
	ctx := context.Background()
	fake := &fakeDynamo{getItem: productItem("p1", "s1", "12")}
	c := New(fake)

	res, err := c.NewQuery(products, expr.Equal(id, "p1"), expr.Equal(sku, "s1")).Next(ctx)
	require.NoError(t, err)
	require.True(t, res.IsDone)
	require.Len(t, res.Items, 1)

	require.Empty(t, fake.queries)
	require.Len(t, fake.gets, 1)
	in := fake.gets[0]
	assert.Equal(t, "products", *in.TableName)
	assert.Equal(t, Item{"id": str("p1"), "sku": str("s1")}, in.Key)
	assert.True(t, *in.ConsistentRead)
	assert.Nil(t, in.ProjectionExpression)
}

func TestQueryDowngradeMissingItem(t *testing.T) {
	fake := &fakeDynamo{}
	res, err := New(fake).NewQuery(products, expr.Equal(id, "p1"), expr.Equal(sku, "s1")).QueryAll(context.Background())
	require.NoError(t, err)
	require.True(t, res.IsDone)
	require.Empty(t, res.Items)
}

func TestQueryPagination(t *testing.T) {
	ctx := context.Background()
	cursor := Item{"id": str("p1"), "sku": str("s2")}
	fake := &fakeDynamo{queryPages: []*dynamodbv2.QueryOutput{
		{Items: []Item{productItem("p1", "s1", "11"), productItem("p1", "s2", "12")}, LastEvaluatedKey: cursor},
		{Items: []Item{productItem("p1", "s3", "13")}},
	}}
	q := New(fake).NewQuery(products, expr.Equal(id, "p1"), expr.Greater(price, 10))

	res, err := q.QueryAll(ctx)
	require.NoError(t, err)
	require.True(t, res.IsDone)
	require.Len(t, res.Items, 3)

	require.Len(t, fake.queries, 2)
	first := fake.queries[0]
	assert.Equal(t, "products", *first.TableName)
	assert.Nil(t, first.IndexName)
	assert.Equal(t, "#id = :id", *first.KeyConditionExpression)
	assert.Equal(t, "#price > :price", *first.FilterExpression)
	assert.Equal(t, map[string]string{"#id": "id", "#price": "price"}, first.ExpressionAttributeNames)
	assert.Equal(t, map[string]types.AttributeValue{":id": str("p1"), ":price": num("10")}, first.ExpressionAttributeValues)
	assert.Equal(t, int32(defaultPageSize), *first.Limit)
	assert.True(t, *first.ScanIndexForward)
	assert.True(t, *first.ConsistentRead)
	assert.Nil(t, first.ExclusiveStartKey)
	assert.Equal(t, cursor, fake.queries[1].ExclusiveStartKey)

	res, err = q.Next(ctx)
	require.NoError(t, err)
	require.True(t, res.IsDone)
	require.Len(t, fake.queries, 2, "a finished querier must not issue more requests")
}

func TestQueryOptions(t *testing.T) {
	fake := &fakeDynamo{}
	_, err := New(fake).NewQuery(products, expr.Equal(id, "p1")).
		WithDescending().
		WithPageSize(25).
		WithEventuallyConsistentReads().
		WithProjection("name", "price").
		Next(context.Background())
	require.NoError(t, err)

	in := fake.queries[0]
	assert.False(t, *in.ScanIndexForward)
	assert.Equal(t, int32(25), *in.Limit)
	assert.False(t, *in.ConsistentRead)
	require.NotNil(t, in.ProjectionExpression)
	assert.Equal(t, "#0, #1", *in.ProjectionExpression)
	assert.Equal(t, map[string]string{"#id": "id", "#0": "name", "#1": "price"}, in.ExpressionAttributeNames)
}

func TestQueryGlobalIndex(t *testing.T) {
	fake := &fakeDynamo{}
	_, err := New(fake).NewQuery(products,
		expr.Equal(category, "shoes"),
		expr.Greater(price, 10),
		expr.Equal(id, "p1"),
	).WithIndexName("by_category").Next(context.Background())
	require.NoError(t, err)

	in := fake.queries[0]
	assert.Equal(t, "by_category", *in.IndexName)
	assert.Equal(t, "#category = :category AND #price > :price", *in.KeyConditionExpression)
	assert.Equal(t, "#id = :id", *in.FilterExpression)
	assert.False(t, *in.ConsistentRead, "global indices only serve eventually consistent reads")
}

func TestQueryLocalIndexKeepsConsistentReads(t *testing.T) {
	fake := &fakeDynamo{}
	_, err := New(fake).NewQuery(products, expr.Equal(id, "p1"), expr.Greater(price, 10)).
		WithIndex(price).
		Next(context.Background())
	require.NoError(t, err)

	in := fake.queries[0]
	assert.Equal(t, "price", *in.IndexName)
	assert.Equal(t, "#id = :id AND #price > :price", *in.KeyConditionExpression)
	assert.Nil(t, in.FilterExpression)
	assert.True(t, *in.ConsistentRead)
}

func TestQueryErrors(t *testing.T) {
	ctx := context.Background()

	_, err := New(&fakeDynamo{}).NewQuery(products, expr.Greater(price, 1)).Next(ctx)
	require.ErrorIs(t, err, ErrNoKeyCondition)

	_, err = New(&fakeDynamo{}).NewQuery(products, expr.Equal(id, "p1")).WithIndexName("missing").Next(ctx)
	require.ErrorIs(t, err, expr.ErrUnknownIndex)

	_, err = New(&fakeDynamo{}).NewQuery(products, expr.Equal(id, 12)).Next(ctx)
	require.ErrorIs(t, err, expr.ErrValueType)
}

func TestScan(t *testing.T) {
	ctx := context.Background()
	fake := &fakeDynamo{scanPages: []*dynamodbv2.ScanOutput{
		{Items: []Item{productItem("p1", "s1", "11")}, LastEvaluatedKey: Item{"id": str("p1"), "sku": str("s1")}},
		{Items: []Item{productItem("p2", "s1", "12")}},
	}}
	res, err := New(fake).NewScan(products, expr.Equal(id, "p1"), expr.Greater(price, 1)).
		WithSegment(1, 4).
		ScanAll(ctx)
	require.NoError(t, err)
	require.Len(t, res.Items, 2)

	require.Len(t, fake.scans, 2)
	in := fake.scans[0]
	assert.Equal(t, "#id = :id AND #price > :price", *in.FilterExpression)
	assert.Equal(t, int32(1), *in.Segment)
	assert.Equal(t, int32(4), *in.TotalSegments)
	assert.NotNil(t, fake.scans[1].ExclusiveStartKey)
}

func TestScanWithoutPredicates(t *testing.T) {
	fake := &fakeDynamo{}
	_, err := New(fake).NewScan(products).Next(context.Background())
	require.NoError(t, err)
	assert.Nil(t, fake.scans[0].FilterExpression)
	assert.Nil(t, fake.scans[0].ExpressionAttributeNames)
	assert.Nil(t, fake.scans[0].Segment)
}

func TestPut(t *testing.T) {
	ctx := context.Background()

	t.Run("conditional", func(t *testing.T) {
		fake := &fakeDynamo{}
		err := New(fake).PutItem(ctx, NewPut(products, productItem("p1", "s1", "10")).WithCondition(expr.NotExists(id)))
		require.NoError(t, err)
		in := fake.puts[0]
		assert.Equal(t, "attribute_not_exists(#id)", *in.ConditionExpression)
		assert.Equal(t, map[string]string{"#id": "id"}, in.ExpressionAttributeNames)
		assert.Nil(t, in.ExpressionAttributeValues)
	})

	t.Run("ttl", func(t *testing.T) {
		fake := &fakeDynamo{}
		item := productItem("p1", "s1", "10")
		err := New(fake).PutItem(ctx, NewPut(products, item).WithTTL(time.Unix(1700000000, 0)))
		require.NoError(t, err)
		assert.Equal(t, num("1700000000"), fake.puts[0].Item["expires_at"])
		assert.NotContains(t, item, "expires_at", "the caller's item must not be modified")
	})

	t.Run("ttl without attribute", func(t *testing.T) {
		_, err := NewPut(example.Sessions, Item{"session_id": str("a")}).WithTTL(time.Now()).Build()
		require.ErrorContains(t, err, "no time to live attribute")
	})

	t.Run("missing key", func(t *testing.T) {
		_, err := NewPut(products, Item{"id": str("p1")}).Build()
		require.ErrorContains(t, err, `sort key "sku" not found in item`)
	})

	t.Run("condition failed", func(t *testing.T) {
		fake := &fakeDynamo{writeErr: &types.ConditionalCheckFailedException{}}
		err := New(fake).PutItem(ctx, NewPut(products, productItem("p1", "s1", "10")).WithCondition(expr.NotExists(id)))
		require.ErrorIs(t, err, ErrConditionFailed)
	})

	t.Run("other errors pass through", func(t *testing.T) {
		boom := errors.New("boom")
		err := New(&fakeDynamo{writeErr: boom}).PutItem(ctx, NewPut(products, productItem("p1", "s1", "10")))
		require.ErrorIs(t, err, boom)
		require.NotErrorIs(t, err, ErrConditionFailed)
	})
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	fake := &fakeDynamo{}
	c := New(fake)

	err := DeleteKey(ctx, c, products, mustKey(t, "p1", "s1"), expr.Less(price, 5))
	require.NoError(t, err)
	in := fake.deletes[0]
	assert.Equal(t, Item{"id": str("p1"), "sku": str("s1")}, in.Key)
	assert.Equal(t, "#price < :price", *in.ConditionExpression)
	assert.Equal(t, map[string]types.AttributeValue{":price": num("5")}, in.ExpressionAttributeValues)

	sessionKey, err := example.Sessions.Key("abc", nil)
	require.NoError(t, err)
	err = c.DeleteItem(ctx, NewDelete(products, sessionKey))
	require.ErrorContains(t, err, "does not address table")
}

func TestRecords(t *testing.T) {
	ctx := context.Background()

	t.Run("put", func(t *testing.T) {
		fake := &fakeDynamo{}
		p := &product{ID: "p1", SKU: "s1", Price: 12}
		require.NoError(t, PutRecord(ctx, New(fake), products, p))
		assert.Equal(t, productItem("p1", "s1", "12"), fake.puts[0].Item)
		assert.Nil(t, fake.puts[0].ConditionExpression)
	})

	t.Run("get", func(t *testing.T) {
		fake := &fakeDynamo{getItem: Item{"id": str("p1"), "sku": str("s1"), "price": num("12"), "name": str("boot")}}
		got, err := GetRecord[product](ctx, New(fake), products, mustKey(t, "p1", "s1"))
		require.NoError(t, err)
		assert.Equal(t, product{ID: "p1", SKU: "s1", Price: 12, Name: "boot"}, got)
	})

	t.Run("get missing", func(t *testing.T) {
		_, err := GetRecord[product](ctx, New(&fakeDynamo{}), products, mustKey(t, "p1", "s1"))
		require.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("query", func(t *testing.T) {
		fake := &fakeDynamo{queryPages: []*dynamodbv2.QueryOutput{
			{Items: []Item{productItem("p1", "s1", "11"), productItem("p1", "s2", "12")}},
		}}
		got, err := QueryRecords[product](ctx, New(fake).NewQuery(products, expr.Equal(id, "p1")))
		require.NoError(t, err)
		assert.Equal(t, []product{{ID: "p1", SKU: "s1", Price: 11}, {ID: "p1", SKU: "s2", Price: 12}}, got)
	})

	t.Run("scan decode error", func(t *testing.T) {
		fake := &fakeDynamo{scanPages: []*dynamodbv2.ScanOutput{
			{Items: []Item{{"id": str("p1"), "sku": str("s1"), "price": str("cheap")}}},
		}}
		_, err := ScanRecords[product](ctx, New(fake).NewScan(products))
		require.ErrorContains(t, err, "item 0")
	})
}

func TestGetItemsBatchRetriesUnprocessedKeys(t *testing.T) {
	k1, k2 := mustKey(t, "p1", "s1"), mustKey(t, "p2", "s1")
	fake := &fakeDynamo{batchPages: []*dynamodbv2.BatchGetItemOutput{
		{
			Responses:       map[string][]Item{"products": {productItem("p1", "s1", "1")}},
			UnprocessedKeys: map[string]types.KeysAndAttributes{"products": {Keys: []Item{k2.DDB()}}},
		},
		{
			Responses: map[string][]Item{"products": {productItem("p2", "s1", "2")}},
		},
	}}

	items, err := New(fake).NewLookup(WithEventualConsistency()).GetItemsBatch(context.Background(),
		GetItemRequest{Table: products, Key: k1, Projection: []string{"price"}},
		GetItemRequest{Table: products, Key: k2},
	)
	require.NoError(t, err)
	require.Len(t, items, 2)
	require.Len(t, fake.batches, 2)

	first := fake.batches[0].RequestItems["products"]
	assert.Len(t, first.Keys, 2)
	assert.False(t, *first.ConsistentRead)
	assert.Equal(t, "#0", *first.ProjectionExpression)
}

func TestGetItemsTxSkipsMissing(t *testing.T) {
	fake := &fakeDynamo{txResponses: []types.ItemResponse{
		{Item: productItem("p1", "s1", "1")},
		{},
	}}
	items, err := New(fake).NewLookup().GetItemsTx(context.Background(),
		GetItemRequest{Table: products, Key: mustKey(t, "p1", "s1")},
		GetItemRequest{Table: products, Key: mustKey(t, "p2", "s1")},
	)
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Len(t, fake.txs[0].TransactItems, 2)
}

func TestGetItemsLimit(t *testing.T) {
	reqs := make([]GetItemRequest, maxGetItems+1)
	_, err := New(&fakeDynamo{}).NewLookup().GetItemsBatch(context.Background(), reqs...)
	require.ErrorContains(t, err, "limited to 100 items")
}

func TestMergeNames(t *testing.T) {
	got, err := mergeNames(map[string]string{"#a": "a"}, map[string]string{"#0": "name", "#a": "a"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"#a": "a", "#0": "name"}, got)

	_, err = mergeNames(map[string]string{"#0": "0"}, map[string]string{"#0": "name"})
	require.ErrorIs(t, err, ErrNameCollision)
}

func TestQueryCompiledIsReused(t *testing.T) {
	q := New(&fakeDynamo{}).NewQuery(products, expr.Equal(id, "p1"), expr.Has(name, "boot"))
	a, err := q.Compiled()
	require.NoError(t, err)
	b, err := q.Compiled()
	require.NoError(t, err)
	require.Same(t, a, b)

	q.WithIndexName("by_category")
	c, err := q.Compiled()
	require.NoError(t, err)
	require.NotSame(t, a, c)
}
