// Copyright 2025 gorse Project Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"syscall"
	"testing"

	"github.com/gorse-io/meeple/storage/blob"
	"github.com/juju/errors"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

type RecommendationsTestSuite struct {
	suite.Suite
	store    blob.Store
	cache    *Recommendations
	computed atomic.Int32
	result   []Score
	err      error
}

func (suite *RecommendationsTestSuite) SetupTest() {
	suite.store = blob.NewPOSIX(suite.T().TempDir())
	suite.computed.Store(0)
	suite.result = []Score{{ItemId: 1, Score: 9.5}, {ItemId: 2, Score: 8.25}}
	suite.err = nil
	suite.cache = NewRecommendations(suite.store, ComputerFunc(suite.compute), true)
}

func (suite *RecommendationsTestSuite) compute(_ context.Context, _ string) ([]Score, error) {
	suite.computed.Add(1)
	return suite.result, suite.err
}

func (suite *RecommendationsTestSuite) TestGetOrComputeOnce() {
	ctx := context.Background()
	hits := testutil.ToFloat64(HitsTotal)
	first, err := suite.cache.GetOrCompute(ctx, "alice")
	suite.NoError(err)
	second, err := suite.cache.GetOrCompute(ctx, "alice")
	suite.NoError(err)
	suite.Equal(first, second)
	suite.Equal(suite.result, first)
	suite.Equal(int32(1), suite.computed.Load())
	suite.Equal(hits+1, testutil.ToFloat64(HitsTotal))

	// cached list is returned verbatim even if the engine changed its mind
	suite.result = []Score{{ItemId: 3, Score: 1}}
	scores, err := suite.cache.GetOrCompute(ctx, "alice")
	suite.NoError(err)
	suite.Equal([]Score{{ItemId: 1, Score: 9.5}, {ItemId: 2, Score: 8.25}}, scores)
}

func (suite *RecommendationsTestSuite) TestEmptyListIsMiss() {
	ctx := context.Background()
	suite.NoError(suite.cache.Put(ctx, "bob", nil))
	scores, err := suite.cache.GetOrCompute(ctx, "bob")
	suite.NoError(err)
	suite.Equal(suite.result, scores)
	suite.Equal(int32(1), suite.computed.Load())
}

func (suite *RecommendationsTestSuite) TestEvict() {
	ctx := context.Background()
	_, err := suite.cache.GetOrCompute(ctx, "alice")
	suite.NoError(err)
	suite.NoError(suite.cache.Evict(ctx, "alice"))
	suite.NoError(suite.cache.Evict(ctx, "alice"))
	_, err = suite.cache.Get(ctx, "alice")
	suite.True(errors.Is(err, blob.ErrObjectNotExist), err)
	_, err = suite.cache.GetOrCompute(ctx, "alice")
	suite.NoError(err)
	suite.Equal(int32(2), suite.computed.Load())
}

func (suite *RecommendationsTestSuite) TestCorruptRegenerate() {
	ctx := context.Background()
	name, err := ObjectName("alice")
	suite.NoError(err)
	suite.NoError(blob.WriteAll(ctx, suite.store, name, []byte("1;9.5\ngarbage\n")))
	_, err = suite.cache.Get(ctx, "alice")
	suite.True(errors.Is(err, ErrCacheCorrupt), err)

	corrupt := testutil.ToFloat64(CorruptTotal)
	scores, err := suite.cache.GetOrCompute(ctx, "alice")
	suite.NoError(err)
	suite.Equal(suite.result, scores)
	suite.Equal(corrupt+1, testutil.ToFloat64(CorruptTotal))
	scores, err = suite.cache.Get(ctx, "alice")
	suite.NoError(err)
	suite.Equal(suite.result, scores)
}

func (suite *RecommendationsTestSuite) TestCorruptFail() {
	ctx := context.Background()
	suite.cache = NewRecommendations(suite.store, ComputerFunc(suite.compute), false)
	name, err := ObjectName("alice")
	suite.NoError(err)
	suite.NoError(blob.WriteAll(ctx, suite.store, name, []byte("1;9.5\ngarbage\n")))
	scores, err := suite.cache.GetOrCompute(ctx, "alice")
	suite.True(errors.Is(err, ErrCacheCorrupt), err)
	suite.Nil(scores)
	suite.Zero(suite.computed.Load())
}

func (suite *RecommendationsTestSuite) TestComputeError() {
	ctx := context.Background()
	suite.err = errors.New("engine failed")
	_, err := suite.cache.GetOrCompute(ctx, "alice")
	suite.ErrorContains(err, "engine failed")
	// nothing is cached after a failure
	_, err = suite.cache.Get(ctx, "alice")
	suite.True(errors.Is(err, blob.ErrObjectNotExist), err)
}

func (suite *RecommendationsTestSuite) TestIdentities() {
	ctx := context.Background()
	suite.NoError(suite.cache.Put(ctx, "alice", suite.result))
	suite.NoError(suite.cache.Put(ctx, "group_avg_alice/bob", suite.result))
	suite.NoError(blob.WriteAll(ctx, suite.store, "results/alice_result", []byte("9.5;Catan\n")))
	identities, err := suite.cache.Identities(ctx)
	suite.NoError(err)
	suite.ElementsMatch([]string{"alice", "group_avg_alice/bob"}, identities)
}

func (suite *RecommendationsTestSuite) TestConcurrent() {
	ctx := context.Background()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			scores, err := suite.cache.GetOrCompute(ctx, "carol")
			suite.NoError(err)
			suite.Equal(suite.result, scores)
		}()
	}
	wg.Wait()
	suite.Equal(int32(1), suite.computed.Load())
}

func (suite *RecommendationsTestSuite) TestFailedWriteIsNotCached() {
	ctx := context.Background()
	suite.result = []Score{{ItemId: 1, Score: 9.5}, {ItemId: 2, Score: 8}, {ItemId: 3, Score: 7.25}}
	for _, limit := range []int{10, 12} {
		failing := NewRecommendations(&fullDiskStore{Store: suite.store, limit: limit}, ComputerFunc(suite.compute), true)
		_, err := failing.GetOrCompute(ctx, "alice")
		suite.ErrorIs(err, syscall.ENOSPC)
		_, err = suite.cache.Get(ctx, "alice")
		suite.True(errors.Is(err, blob.ErrObjectNotExist), err)
	}

	scores, err := suite.cache.GetOrCompute(ctx, "alice")
	suite.NoError(err)
	suite.Equal(suite.result, scores)
	suite.Equal(int32(3), suite.computed.Load())
}

func TestRecommendations(t *testing.T) {
	suite.Run(t, new(RecommendationsTestSuite))
}

func TestObjectName(t *testing.T) {
	name, err := ObjectName("group_min_alice_bob")
	require.NoError(t, err)
	assert.Equal(t, "recommendations/group_min_alice_bob", name)
	name, err = ObjectName("../etc")
	require.NoError(t, err)
	assert.Equal(t, "recommendations/..%2Fetc", name)
	for _, identity := range []string{"", ".", ".."} {
		_, err = ObjectName(identity)
		assert.True(t, errors.Is(err, ErrInvalidIdentity), identity)
	}
}

// fullDiskStore fails writes once limit bytes have been written.
type fullDiskStore struct {
	blob.Store
	limit int
}

func (s *fullDiskStore) Create(ctx context.Context, name string) (blob.Writer, error) {
	w, err := s.Store.Create(ctx, name)
	if err != nil {
		return nil, err
	}
	return &fullDiskWriter{Writer: w, limit: s.limit}, nil
}

type fullDiskWriter struct {
	blob.Writer
	limit int
}

func (w *fullDiskWriter) Write(p []byte) (int, error) {
	if len(p) <= w.limit {
		w.limit -= len(p)
		return w.Writer.Write(p)
	}
	n, err := w.Writer.Write(p[:w.limit])
	w.limit = 0
	if err != nil {
		return n, err
	}
	return n, syscall.ENOSPC
}
