// Copyright 2022 gorse Project Authors
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

package storage

import (
	"testing"

	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
)

func TestAppendURLParams(t *testing.T) {
	// test windows path
	url, err := AppendURLParams(`c:\\sqlite.db`, []lo.Tuple2[string, string]{{A: "a", B: "b"}})
	assert.NoError(t, err)
	assert.Equal(t, `c:\\sqlite.db?a=b`, url)
	// test no scheme
	url, err = AppendURLParams(`sqlite.db`, []lo.Tuple2[string, string]{{A: "a", B: "b"}})
	assert.NoError(t, err)
	assert.Equal(t, `sqlite.db?a=b`, url)
}

func TestAppendMySQLParams(t *testing.T) {
	dsn, err := AppendMySQLParams("root:pass@tcp(127.0.0.1:3306)/meeple?parseTime=false", map[string]string{
		"parseTime": "true",
		"charset":   "utf8mb4",
	})
	assert.NoError(t, err)
	assert.Contains(t, dsn, "parseTime=false")
	assert.Contains(t, dsn, "charset=utf8mb4")
}

func TestHasPrefix(t *testing.T) {
	assert.True(t, HasPrefix("sqlite://meeple.db", DataStorePrefixes))
	assert.True(t, HasPrefix("mongodb+srv://cluster/meeple", DataStorePrefixes))
	assert.False(t, HasPrefix("clickhouse://localhost", DataStorePrefixes))
	assert.True(t, HasPrefix("azblob://container/recs", BlobStorePrefixes))
	assert.False(t, HasPrefix("ftp://host/recs", BlobStorePrefixes))
}

func TestSplitBucketURL(t *testing.T) {
	bucket, prefix := SplitBucketURL("s3://meeple/cache/recs/", S3Prefix)
	assert.Equal(t, "meeple", bucket)
	assert.Equal(t, "cache/recs", prefix)
	bucket, prefix = SplitBucketURL("gcs://meeple", GCSPrefix)
	assert.Equal(t, "meeple", bucket)
	assert.Equal(t, "", prefix)
}

func TestTablePrefix(t *testing.T) {
	tp := TablePrefix("bg_")
	assert.Equal(t, "bg_users", tp.UsersTable())
	assert.Equal(t, "bg_games", tp.GamesTable())
	assert.Equal(t, "bg_gameratings", tp.RatingsTable())
	assert.Equal(t, "bg_counters", tp.CountersTable())
}
