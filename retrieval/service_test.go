package retrieval

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/varunalfred/Finmentor-sub000/intent"
	"github.com/varunalfred/Finmentor-sub000/logging"
)

type fakeEmbedder struct{}

func (fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return []float32{0.1, 0.2, 0.3}, nil
}

type fakeStore struct {
	id      StoreID
	healthy bool
	results []Fragment
	calls   int
}

func (s *fakeStore) ID() StoreID { return s.id }
func (s *fakeStore) Healthy(ctx context.Context) bool { return s.healthy }
func (s *fakeStore) Search(ctx context.Context, embedding []float32, k int, filters Filters) ([]Fragment, error) {
	s.calls++
	if !s.healthy {
		return nil, nil
	}
	return s.results, nil
}

func TestRetrieveEducationalQueryUsesEducationStoreOnly(t *testing.T) {
	classifier := intent.New(nil, nil)
	education := &fakeStore{id: StoreEducation, healthy: true, results: []Fragment{
		{Source: StoreEducation, Text: "A P/E ratio...", Score: 0.8},
	}}
	svc := New(classifier, fakeEmbedder{}, map[StoreID]Store{StoreEducation: education}, logging.NoOp{})

	bundle, in, err := svc.Retrieve(context.Background(), "What is a P/E ratio?", Facets{})
	require.NoError(t, err)
	assert.Equal(t, intent.EducationalQuery, in)
	require.Len(t, bundle.Fragments, 1)
	assert.Equal(t, StoreEducation, bundle.Fragments[0].Source)
}

func TestRetrieveTreatsUnhealthyStoreAsEmptyNotFailure(t *testing.T) {
	classifier := intent.New(nil, nil)
	unhealthy := &fakeStore{id: StoreEducation, healthy: false}
	svc := New(classifier, fakeEmbedder{}, map[StoreID]Store{StoreEducation: unhealthy}, logging.NoOp{})

	bundle, _, err := svc.Retrieve(context.Background(), "What is a P/E ratio?", Facets{})
	require.NoError(t, err)
	assert.Empty(t, bundle.Fragments)
}

func TestRetrieveMissingStoreAdapterIsSkipped(t *testing.T) {
	classifier := intent.New(nil, nil)
	svc := New(classifier, fakeEmbedder{}, map[StoreID]Store{}, logging.NoOp{})

	bundle, _, err := svc.Retrieve(context.Background(), "What is a P/E ratio?", Facets{})
	require.NoError(t, err)
	assert.Empty(t, bundle.Fragments)
}

func TestRetrieveCacheHitSkipsStoreSearch(t *testing.T) {
	classifier := intent.New(nil, nil)
	education := &fakeStore{id: StoreEducation, healthy: true, results: []Fragment{
		{Source: StoreEducation, Text: "A P/E ratio...", Score: 0.8},
	}}
	svc := New(classifier, fakeEmbedder{}, map[StoreID]Store{StoreEducation: education}, logging.NoOp{})
	svc.EnableCache(time.Minute)

	first, firstIntent, err := svc.Retrieve(context.Background(), "  What IS a P/E Ratio?  ", Facets{})
	require.NoError(t, err)
	assert.Equal(t, 1, education.calls)
	assert.Equal(t, 1, svc.CacheLen())

	second, secondIntent, err := svc.Retrieve(context.Background(), "what is a p/e ratio?", Facets{})
	require.NoError(t, err)
	assert.Equal(t, 1, education.calls, "a normalised cache hit must not search the store again")
	assert.Equal(t, firstIntent, secondIntent)
	assert.Equal(t, first, second)
}

func TestRetrieveCacheIsScopedByOwnerFacet(t *testing.T) {
	classifier := intent.New(nil, nil)
	conversations := &fakeStore{id: StoreConversations, healthy: true, results: []Fragment{
		{Source: StoreConversations, Text: "earlier we discussed bonds", Score: 0.7},
	}}
	svc := New(classifier, fakeEmbedder{}, map[StoreID]Store{StoreConversations: conversations}, logging.NoOp{})
	svc.EnableCache(time.Minute)

	_, _, err := svc.Retrieve(context.Background(), "what did we say last time", Facets{OwnerID: "alice"})
	require.NoError(t, err)
	_, _, err = svc.Retrieve(context.Background(), "what did we say last time", Facets{OwnerID: "bob"})
	require.NoError(t, err)

	assert.Equal(t, 2, conversations.calls, "different owners must not share a cache entry")
	assert.Equal(t, 2, svc.CacheLen())
}

func TestRetrieveCacheDisabledByDefault(t *testing.T) {
	classifier := intent.New(nil, nil)
	education := &fakeStore{id: StoreEducation, healthy: true, results: []Fragment{
		{Source: StoreEducation, Text: "A P/E ratio...", Score: 0.8},
	}}
	svc := New(classifier, fakeEmbedder{}, map[StoreID]Store{StoreEducation: education}, logging.NoOp{})

	_, _, err := svc.Retrieve(context.Background(), "What is a P/E ratio?", Facets{})
	require.NoError(t, err)
	_, _, err = svc.Retrieve(context.Background(), "What is a P/E ratio?", Facets{})
	require.NoError(t, err)

	assert.Equal(t, 2, education.calls)
	assert.Equal(t, 0, svc.CacheLen())
}
