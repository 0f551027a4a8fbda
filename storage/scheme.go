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
	"net/url"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/gorse-io/meeple/base/log"
	"github.com/juju/errors"
	"github.com/samber/lo"
	"gorm.io/gorm"
	"gorm.io/gorm/schema"
	"moul.io/zapgorm2"
)

const (
	MySQLPrefix      = "mysql://"
	MongoPrefix      = "mongodb://"
	MongoSrvPrefix   = "mongodb+srv://"
	PostgresPrefix   = "postgres://"
	PostgreSQLPrefix = "postgresql://"
	SQLitePrefix     = "sqlite://"
	RedisPrefix      = "redis://"
	RedissPrefix     = "rediss://"
	FilePrefix       = "file://"
	S3Prefix         = "s3://"
	GCSPrefix        = "gcs://"
	AzureBlobPrefix  = "azblob://"
)

// DataStorePrefixes lists URL schemes accepted for the rating store.
var DataStorePrefixes = []string{MySQLPrefix, PostgresPrefix, PostgreSQLPrefix, SQLitePrefix, MongoPrefix, MongoSrvPrefix}

// BlobStorePrefixes lists URL schemes accepted for the cache store.
var BlobStorePrefixes = []string{FilePrefix, S3Prefix, GCSPrefix, AzureBlobPrefix, RedisPrefix, RedissPrefix}

// HasPrefix reports whether path starts with any of prefixes.
func HasPrefix(path string, prefixes []string) bool {
	return lo.SomeBy(prefixes, func(prefix string) bool {
		return strings.HasPrefix(path, prefix)
	})
}

func AppendURLParams(rawURL string, params []lo.Tuple2[string, string]) (string, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", errors.Trace(err)
	}
	q := parsed.Query()
	for _, tuple := range params {
		q.Add(tuple.A, tuple.B)
	}
	parsed.RawQuery = q.Encode()
	return parsed.String(), nil
}

// AppendMySQLParams adds params to a MySQL DSN without overriding the ones already set.
func AppendMySQLParams(dsn string, params map[string]string) (string, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return "", errors.Trace(err)
	}
	if cfg.Params == nil {
		cfg.Params = make(map[string]string)
	}
	for key, value := range params {
		if _, exist := cfg.Params[key]; !exist {
			cfg.Params[key] = value
		}
	}
	return cfg.FormatDSN(), nil
}

// SplitBucketURL splits "scheme://bucket/some/prefix" into bucket and prefix.
func SplitBucketURL(rawURL, scheme string) (bucket, prefix string) {
	rest := strings.TrimPrefix(rawURL, scheme)
	bucket, prefix, _ = strings.Cut(rest, "/")
	return bucket, strings.Trim(prefix, "/")
}

type TablePrefix string

func (tp TablePrefix) UsersTable() string {
	return string(tp) + "users"
}

func (tp TablePrefix) GamesTable() string {
	return string(tp) + "games"
}

func (tp TablePrefix) RatingsTable() string {
	return string(tp) + "gameratings"
}

// CountersTable stores id sequences for stores without auto increment.
func (tp TablePrefix) CountersTable() string {
	return string(tp) + "counters"
}

func (tp TablePrefix) Key(key string) string {
	return string(tp) + key
}

func NewGORMConfig(tablePrefix string) *gorm.Config {
	return &gorm.Config{
		Logger:                 zapgorm2.New(log.Logger()),
		CreateBatchSize:        1000,
		SkipDefaultTransaction: true,
		NamingStrategy: schema.NamingStrategy{
			TablePrefix:   tablePrefix,
			SingularTable: true,
			NameReplacer: strings.NewReplacer(
				"SQLUser", "Users",
				"SQLGame", "Games",
				"SQLRating", "Gameratings",
			),
		},
	}
}
