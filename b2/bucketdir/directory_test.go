package bucketdir

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bitrise-io/go-b2/b2/kv"
	"github.com/bitrise-io/go-b2/b2/model"
	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockLister struct {
	mock.Mock
}

func (m *mockLister) ListBuckets(ctx context.Context) ([]model.BucketRecord, error) {
	args := m.Called(ctx)
	buckets, _ := args.Get(0).([]model.BucketRecord)
	return buckets, args.Error(1)
}

var testBuckets = []model.BucketRecord{
	{ID: "b1", Name: "photos", AccountID: "acc", Type: model.BucketTypeAllPrivate, Revision: 1},
	{ID: "b2", Name: "backups", AccountID: "acc", Type: model.BucketTypeAllPublic, Revision: 3},
}

func newDirectory(lister Lister) *Directory {
	return New(lister, kv.NewMemoryStore(), DefaultTTL, log.NewLogger())
}

func TestDirectory_ListAllCachesListing(t *testing.T) {
	lister := new(mockLister)
	lister.On("ListBuckets", mock.Anything).Return(testBuckets, nil).Once()
	dir := newDirectory(lister)

	first, err := dir.ListAll(context.Background(), false)
	require.NoError(t, err)
	second, err := dir.ListAll(context.Background(), false)
	require.NoError(t, err)

	assert.Equal(t, testBuckets, first)
	assert.Equal(t, testBuckets, second)
	lister.AssertNumberOfCalls(t, "ListBuckets", 1)
}

func TestDirectory_ListAllRefresh(t *testing.T) {
	updated := append([]model.BucketRecord{}, testBuckets...)
	updated = append(updated, model.BucketRecord{ID: "b3", Name: "logs", Type: model.BucketTypeAllPrivate})

	lister := new(mockLister)
	lister.On("ListBuckets", mock.Anything).Return(testBuckets, nil).Once()
	lister.On("ListBuckets", mock.Anything).Return(updated, nil).Once()
	dir := newDirectory(lister)

	_, err := dir.ListAll(context.Background(), false)
	require.NoError(t, err)
	buckets, err := dir.ListAll(context.Background(), true)
	require.NoError(t, err)

	assert.Len(t, buckets, 3)
	lister.AssertNumberOfCalls(t, "ListBuckets", 2)
}

func TestDirectory_Invalidate(t *testing.T) {
	lister := new(mockLister)
	lister.On("ListBuckets", mock.Anything).Return(testBuckets, nil).Twice()
	dir := newDirectory(lister)

	_, err := dir.ListAll(context.Background(), false)
	require.NoError(t, err)
	dir.Invalidate()
	_, err = dir.ListAll(context.Background(), false)
	require.NoError(t, err)

	lister.AssertNumberOfCalls(t, "ListBuckets", 2)
}

// gatedLister holds its first call until release is closed.
type gatedLister struct {
	calls   int32
	started chan struct{}
	release chan struct{}
	answers [][]model.BucketRecord
}

func newGatedLister(answers ...[]model.BucketRecord) *gatedLister {
	return &gatedLister{
		started: make(chan struct{}),
		release: make(chan struct{}),
		answers: answers,
	}
}

func (l *gatedLister) ListBuckets(context.Context) ([]model.BucketRecord, error) {
	call := atomic.AddInt32(&l.calls, 1)
	if call == 1 {
		close(l.started)
		<-l.release
	}
	return l.answers[int(call)-1], nil
}

func TestDirectory_ConcurrentRefreshIsCoalesced(t *testing.T) {
	lister := newGatedLister(testBuckets)
	dir := newDirectory(lister)

	const callers = 8
	var wg sync.WaitGroup
	results := make([][]model.BucketRecord, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = dir.ListAll(context.Background(), true)
		}(i)
	}

	<-lister.started
	time.Sleep(50 * time.Millisecond)
	close(lister.release)
	wg.Wait()

	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, testBuckets, results[i])
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&lister.calls))
}

func TestDirectory_InvalidateDuringFetch(t *testing.T) {
	created := append([]model.BucketRecord{}, testBuckets...)
	created = append(created, model.BucketRecord{ID: "b3", Name: "logs", Type: model.BucketTypeAllPrivate})
	lister := newGatedLister(testBuckets, created)
	dir := newDirectory(lister)

	done := make(chan []model.BucketRecord)
	go func() {
		buckets, err := dir.ListAll(context.Background(), false)
		assert.NoError(t, err)
		done <- buckets
	}()

	<-lister.started
	dir.Invalidate()
	close(lister.release)
	assert.Equal(t, testBuckets, <-done)

	buckets, err := dir.ListAll(context.Background(), false)
	require.NoError(t, err)

	assert.Equal(t, created, buckets)
	assert.Equal(t, int32(2), atomic.LoadInt32(&lister.calls))
}

func TestDirectory_Resolve(t *testing.T) {
	lister := new(mockLister)
	lister.On("ListBuckets", mock.Anything).Return(testBuckets, nil).Once()
	dir := newDirectory(lister)

	tests := []struct {
		name    string
		resolve func() (model.BucketRecord, bool, error)
		want    model.BucketRecord
		wantOK  bool
	}{
		{
			name:    "by name",
			resolve: func() (model.BucketRecord, bool, error) { return dir.ByName(context.Background(), "backups") },
			want:    testBuckets[1],
			wantOK:  true,
		},
		{
			name:    "by id",
			resolve: func() (model.BucketRecord, bool, error) { return dir.ByID(context.Background(), "b1") },
			want:    testBuckets[0],
			wantOK:  true,
		},
		{
			name:    "unknown name",
			resolve: func() (model.BucketRecord, bool, error) { return dir.ByName(context.Background(), "b1") },
		},
		{
			name:    "unknown id",
			resolve: func() (model.BucketRecord, bool, error) { return dir.ByID(context.Background(), "photos") },
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok, err := tt.resolve()
			require.NoError(t, err)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
	lister.AssertNumberOfCalls(t, "ListBuckets", 1)
}

func TestDirectory_EmptyAccountIsCached(t *testing.T) {
	lister := new(mockLister)
	lister.On("ListBuckets", mock.Anything).Return(nil, nil).Once()
	dir := newDirectory(lister)

	for i := 0; i < 2; i++ {
		buckets, err := dir.ListAll(context.Background(), false)
		require.NoError(t, err)
		assert.Empty(t, buckets)
	}
	lister.AssertNumberOfCalls(t, "ListBuckets", 1)
}

func TestDirectory_ListingFailure(t *testing.T) {
	lister := new(mockLister)
	lister.On("ListBuckets", mock.Anything).Return(nil, errors.New("HTTP 500")).Once()
	dir := newDirectory(lister)

	_, _, err := dir.ByName(context.Background(), "photos")

	assert.EqualError(t, err, "list buckets: HTTP 500")
}

func TestDirectory_PersistsAttributes(t *testing.T) {
	withRules := model.BucketRecord{ID: "b1", Name: "photos"}
	require.NoError(t, withRules.UnmarshalJSON([]byte(`{"bucketId":"b1","bucketName":"photos","bucketType":"allPrivate","revision":2,"corsRules":[{"corsRuleName":"all"}]}`)))

	lister := new(mockLister)
	lister.On("ListBuckets", mock.Anything).Return([]model.BucketRecord{withRules}, nil).Once()
	store, err := kv.NewFileStore(t.TempDir(), log.NewLogger())
	require.NoError(t, err)
	dir := New(lister, store, time.Hour, log.NewLogger())

	_, err = dir.ListAll(context.Background(), false)
	require.NoError(t, err)
	bucket, ok, err := dir.ByID(context.Background(), "b1")
	require.NoError(t, err)
	require.True(t, ok)

	assert.JSONEq(t, `[{"corsRuleName":"all"}]`, string(bucket.CORSRules()))
	lister.AssertNumberOfCalls(t, "ListBuckets", 1)
}
