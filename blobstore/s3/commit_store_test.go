package s3

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/hupe1980/postings/blobstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockDDBClient keeps commit rows in memory.
type mockDDBClient struct {
	mu    sync.Mutex
	items map[string]map[string]types.AttributeValue
	// beforePut runs once before the next PutItem, simulating a racing writer.
	beforePut func()
}

func newMockDDBClient() *mockDDBClient {
	return &mockDDBClient{items: make(map[string]map[string]types.AttributeValue)}
}

func itemKey(item map[string]types.AttributeValue) string {
	return item["base_uri"].(*types.AttributeValueMemberS).Value + ":" +
		item["version"].(*types.AttributeValueMemberN).Value
}

func (m *mockDDBClient) PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	if hook := m.beforePut; hook != nil {
		m.beforePut = nil
		hook()
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	key := itemKey(params.Item)
	if aws.ToString(params.ConditionExpression) == "attribute_not_exists(version)" {
		if _, exists := m.items[key]; exists {
			return nil, &types.ConditionalCheckFailedException{Message: aws.String("condition failed")}
		}
	}
	m.items[key] = params.Item
	return &dynamodb.PutItemOutput{}, nil
}

func (m *mockDDBClient) Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	uri := params.ExpressionAttributeValues[":uri"].(*types.AttributeValueMemberS).Value
	var items []map[string]types.AttributeValue
	for _, item := range m.items {
		if item["base_uri"].(*types.AttributeValueMemberS).Value == uri {
			items = append(items, item)
		}
	}
	version := func(i int) uint64 {
		v, _ := strconv.ParseUint(items[i]["version"].(*types.AttributeValueMemberN).Value, 10, 64)
		return v
	}
	sort.Slice(items, func(i, j int) bool { return version(i) > version(j) })
	if params.Limit != nil && int(*params.Limit) < len(items) {
		items = items[:*params.Limit]
	}
	return &dynamodb.QueryOutput{Items: items}, nil
}

func newTestCommitStore(ddb *mockDDBClient, baseURI string) *CommitStore {
	return NewCommitStore(NewStore(new(MockS3Client), "test-bucket", "test/"), ddb, "postings-commits", baseURI)
}

func readCurrent(t *testing.T, s blobstore.BlobStore) string {
	t.Helper()
	data, err := blobstore.ReadAll(context.Background(), s, CurrentName)
	require.NoError(t, err)
	return string(data)
}

func TestCommitStore_Empty(t *testing.T) {
	store := newTestCommitStore(newMockDDBClient(), "s3://test-bucket/test/")
	_, err := store.Open(context.Background(), CurrentName)
	assert.ErrorIs(t, err, blobstore.ErrNotFound)
}

func TestCommitStore_Commits(t *testing.T) {
	ctx := context.Background()
	store := newTestCommitStore(newMockDDBClient(), "s3://test-bucket/test/")

	for i := 1; i <= 3; i++ {
		require.NoError(t, store.Put(ctx, CurrentName, []byte(fmt.Sprintf("checkpoints/%d", i))))
	}
	assert.Equal(t, "checkpoints/3", readCurrent(t, store))

	v, err := store.Version(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), v)
}

func TestCommitStore_IsolatedByBaseURI(t *testing.T) {
	ctx := context.Background()
	ddb := newMockDDBClient()
	a := newTestCommitStore(ddb, "s3://bucket/a/")
	b := newTestCommitStore(ddb, "s3://bucket/b/")

	require.NoError(t, a.Put(ctx, CurrentName, []byte("checkpoints/a1")))
	require.NoError(t, b.Put(ctx, CurrentName, []byte("checkpoints/b1")))
	require.NoError(t, a.Put(ctx, CurrentName, []byte("checkpoints/a2")))

	assert.Equal(t, "checkpoints/a2", readCurrent(t, a))
	assert.Equal(t, "checkpoints/b1", readCurrent(t, b))
}

func TestCommitStore_ConcurrentWriterLoses(t *testing.T) {
	ctx := context.Background()
	ddb := newMockDDBClient()
	store := newTestCommitStore(ddb, "s3://test-bucket/test/")
	other := newTestCommitStore(ddb, "s3://test-bucket/test/")

	require.NoError(t, store.Put(ctx, CurrentName, []byte("checkpoints/1")))

	ddb.beforePut = func() {
		require.NoError(t, other.Put(ctx, CurrentName, []byte("checkpoints/other")))
	}
	err := store.Put(ctx, CurrentName, []byte("checkpoints/2"))
	assert.ErrorIs(t, err, ErrConcurrentModification)
	assert.Equal(t, "checkpoints/other", readCurrent(t, store))
}
