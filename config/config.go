// Copyright 2020 gorse Project Authors
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

package config

import (
	"strings"
	"time"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
	"github.com/go-viper/mapstructure/v2"
	"github.com/gorse-io/meeple/base/log"
	"github.com/gorse-io/meeple/storage"
	"github.com/juju/errors"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// Config is the configuration for meeple.
type Config struct {
	Database  DatabaseConfig  `mapstructure:"database"`
	Cache     CacheConfig     `mapstructure:"cache"`
	S3        S3Config        `mapstructure:"s3"`
	GCS       GCSConfig       `mapstructure:"gcs"`
	Azure     AzureConfig     `mapstructure:"azure"`
	Recommend RecommendConfig `mapstructure:"recommend"`
	Group     GroupConfig     `mapstructure:"group"`
	Evaluate  EvaluateConfig  `mapstructure:"evaluate"`
	Tracing   TracingConfig   `mapstructure:"tracing"`
}

// DatabaseConfig is the configuration for the rating store.
type DatabaseConfig struct {
	DataStore   string `mapstructure:"data_store" validate:"required,data_store"`
	TablePrefix string `mapstructure:"table_prefix"`
}

// CacheConfig is the configuration for the recommendation cache.
type CacheConfig struct {
	Store             string `mapstructure:"store" validate:"required,cache_store"`
	RegenerateCorrupt bool   `mapstructure:"regenerate_corrupt"`
}

type S3Config struct {
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	UseSSL          bool   `mapstructure:"use_ssl"`
}

type GCSConfig struct {
	CredentialsFile string `mapstructure:"credentials_file"`
}

type AzureConfig struct {
	AccountName      string `mapstructure:"account_name"`
	AccountKey       string `mapstructure:"account_key"`
	ConnectionString string `mapstructure:"connection_string"`
	Endpoint         string `mapstructure:"endpoint"`
}

// RecommendConfig configures the individual recommender.
type RecommendConfig struct {
	Similarity     string  `mapstructure:"similarity" validate:"oneof=pearson cosine"`
	NumNeighbors   int     `mapstructure:"num_neighbors" validate:"gt=0"`
	MinCommonItems int     `mapstructure:"min_common_items" validate:"gte=1"`
	MinGameRatings int     `mapstructure:"min_game_ratings" validate:"gte=0"`
	MinRating      float64 `mapstructure:"min_rating"`
	MaxRating      float64 `mapstructure:"max_rating" validate:"gtfield=MinRating"`
}

// GroupConfig configures group recommendation.
type GroupConfig struct {
	Strategy    string        `mapstructure:"strategy" validate:"oneof=min max avg"`
	MinCoverage int           `mapstructure:"min_coverage" validate:"gte=1"`
	GameFilter  string        `mapstructure:"game_filter"`
	MetadataTTL time.Duration `mapstructure:"metadata_ttl" validate:"gte=0"`
}

type EvaluateConfig struct {
	MaxGroupSize int    `mapstructure:"max_group_size" validate:"gte=2"`
	OutputDir    string `mapstructure:"output_dir" validate:"required"`
}

func GetDefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			DataStore: "sqlite://meeple.db",
		},
		Cache: CacheConfig{
			Store:             "recommendations",
			RegenerateCorrupt: true,
		},
		Recommend: RecommendConfig{
			Similarity:     "pearson",
			NumNeighbors:   20,
			MinCommonItems: 2,
			MinGameRatings: 20,
			MinRating:      1,
			MaxRating:      10,
		},
		Group: GroupConfig{
			Strategy:    "avg",
			MinCoverage: 1,
			MetadataTTL: 10 * time.Minute,
		},
		Evaluate: EvaluateConfig{
			MaxGroupSize: 4,
			OutputDir:    "eval",
		},
		Tracing: TracingConfig{
			Exporter:          "otlp",
			CollectorEndpoint: "localhost:4317",
			Sampler:           "always",
			Ratio:             1,
		},
	}
}

func setDefault() {
	defaultConfig := GetDefaultConfig()
	// [database]
	viper.SetDefault("database.data_store", defaultConfig.Database.DataStore)
	viper.SetDefault("database.table_prefix", defaultConfig.Database.TablePrefix)
	// [cache]
	viper.SetDefault("cache.store", defaultConfig.Cache.Store)
	viper.SetDefault("cache.regenerate_corrupt", defaultConfig.Cache.RegenerateCorrupt)
	// [recommend]
	viper.SetDefault("recommend.similarity", defaultConfig.Recommend.Similarity)
	viper.SetDefault("recommend.num_neighbors", defaultConfig.Recommend.NumNeighbors)
	viper.SetDefault("recommend.min_common_items", defaultConfig.Recommend.MinCommonItems)
	viper.SetDefault("recommend.min_game_ratings", defaultConfig.Recommend.MinGameRatings)
	viper.SetDefault("recommend.min_rating", defaultConfig.Recommend.MinRating)
	viper.SetDefault("recommend.max_rating", defaultConfig.Recommend.MaxRating)
	// [group]
	viper.SetDefault("group.strategy", defaultConfig.Group.Strategy)
	viper.SetDefault("group.min_coverage", defaultConfig.Group.MinCoverage)
	viper.SetDefault("group.game_filter", defaultConfig.Group.GameFilter)
	viper.SetDefault("group.metadata_ttl", defaultConfig.Group.MetadataTTL)
	// [evaluate]
	viper.SetDefault("evaluate.max_group_size", defaultConfig.Evaluate.MaxGroupSize)
	viper.SetDefault("evaluate.output_dir", defaultConfig.Evaluate.OutputDir)
	// [tracing]
	viper.SetDefault("tracing.enable_tracing", defaultConfig.Tracing.EnableTracing)
	viper.SetDefault("tracing.exporter", defaultConfig.Tracing.Exporter)
	viper.SetDefault("tracing.collector_endpoint", defaultConfig.Tracing.CollectorEndpoint)
	viper.SetDefault("tracing.sampler", defaultConfig.Tracing.Sampler)
	viper.SetDefault("tracing.ratio", defaultConfig.Tracing.Ratio)
}

type configBinding struct {
	key string
	env string
}

// LoadConfig loads configuration from a TOML file. An empty path loads defaults
// and environment variables only.
func LoadConfig(path string) (*Config, error) {
	setDefault()

	bindings := []configBinding{
		{"database.data_store", "MEEPLE_DATA_STORE"},
		{"database.table_prefix", "MEEPLE_TABLE_PREFIX"},
		{"cache.store", "MEEPLE_CACHE_STORE"},
		{"s3.endpoint", "MEEPLE_S3_ENDPOINT"},
		{"s3.access_key_id", "MEEPLE_S3_ACCESS_KEY_ID"},
		{"s3.secret_access_key", "MEEPLE_S3_SECRET_ACCESS_KEY"},
		{"gcs.credentials_file", "MEEPLE_GCS_CREDENTIALS_FILE"},
		{"azure.account_name", "MEEPLE_AZURE_ACCOUNT_NAME"},
		{"azure.account_key", "MEEPLE_AZURE_ACCOUNT_KEY"},
		{"azure.connection_string", "MEEPLE_AZURE_CONNECTION_STRING"},
	}
	for _, binding := range bindings {
		if err := viper.BindEnv(binding.key, binding.env); err != nil {
			log.Logger().Fatal("failed to bind a Viper key to a ENV variable", zap.Error(err))
		}
	}

	if path != "" {
		viper.SetConfigType("toml")
		viper.SetConfigFile(path)
		if err := viper.ReadInConfig(); err != nil {
			return nil, errors.Trace(err)
		}
	}

	var conf Config
	if err := viper.Unmarshal(&conf, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))); err != nil {
		return nil, errors.Trace(err)
	}
	if err := conf.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	return &conf, nil
}

// Validate checks the configuration and returns the first violation with an
// English description.
func (config *Config) Validate() error {
	validate := validator.New()
	if err := validate.RegisterValidation("data_store", func(fl validator.FieldLevel) bool {
		return IsDataStore(fl.Field().String())
	}); err != nil {
		return errors.Trace(err)
	}
	if err := validate.RegisterValidation("cache_store", func(fl validator.FieldLevel) bool {
		return IsCacheStore(fl.Field().String())
	}); err != nil {
		return errors.Trace(err)
	}

	english := en.New()
	uni := ut.New(english, english)
	trans, _ := uni.GetTranslator("en")
	if err := en_translations.RegisterDefaultTranslations(validate, trans); err != nil {
		return errors.Trace(err)
	}
	for _, tag := range []string{"data_store", "cache_store"} {
		if err := validate.RegisterTranslation(tag, trans, func(ut ut.Translator) error {
			return ut.Add(tag, "{0} is not a supported "+strings.ReplaceAll(tag, "_", " ")+" URL", true)
		}, func(ut ut.Translator, fe validator.FieldError) string {
			t, _ := ut.T(fe.Tag(), fe.Namespace())
			return t
		}); err != nil {
			return errors.Trace(err)
		}
	}

	err := validate.Struct(config)
	if err != nil {
		var validationErrors validator.ValidationErrors
		if errors.As(err, &validationErrors) {
			return errors.NotValidf("%s", validationErrors[0].Translate(trans))
		}
		return errors.Trace(err)
	}
	return nil
}

// IsDataStore reports whether the URL names a supported rating store.
func IsDataStore(path string) bool {
	return storage.HasPrefix(path, storage.DataStorePrefixes)
}

// IsCacheStore reports whether the URL names a supported cache store. A bare
// path without scheme is a local directory.
func IsCacheStore(path string) bool {
	if path == "" {
		return false
	}
	if !strings.Contains(path, "://") {
		return true
	}
	return storage.HasPrefix(path, storage.BlobStorePrefixes)
}
