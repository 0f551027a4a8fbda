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
package blob

import (
	"context"
	"io"
	"os"
	"path"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/gorse-io/meeple/config"
	"github.com/juju/errors"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// GCS keeps objects in a Google Cloud Storage bucket. GCS_EMULATOR_ENDPOINT
// points the client to an emulator.
type GCS struct {
	client *storage.Client
	bucket string
	prefix string
}

func NewGCS(cfg config.GCSConfig, bucket, prefix string) (*GCS, error) {
	var opts []option.ClientOption
	if endpoint := os.Getenv("GCS_EMULATOR_ENDPOINT"); endpoint != "" {
		opts = append(opts, option.WithEndpoint(endpoint))
		opts = append(opts, option.WithoutAuthentication())
	}
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	client, err := storage.NewClient(context.Background(), opts...)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return &GCS{
		client: client,
		bucket: bucket,
		prefix: prefix,
	}, nil
}

func (g *GCS) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	fullPath := path.Join(g.prefix, name)
	r, err := g.client.Bucket(g.bucket).Object(fullPath).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, errors.Annotate(ErrObjectNotExist, fullPath)
	} else if err != nil {
		return nil, errors.Trace(err)
	}
	return r, nil
}

// Create returns a storage writer. GCS commits the object on Close and drops
// the upload when its context is canceled.
func (g *GCS) Create(ctx context.Context, name string) (Writer, error) {
	ctx, cancel := context.WithCancel(ctx)
	w := g.client.Bucket(g.bucket).Object(path.Join(g.prefix, name)).NewWriter(ctx)
	return &gcsWriter{Writer: w, cancel: cancel}, nil
}

type gcsWriter struct {
	*storage.Writer
	cancel context.CancelFunc
}

func (w *gcsWriter) Close() error {
	defer w.cancel()
	return errors.Trace(w.Writer.Close())
}

func (w *gcsWriter) Abort(error) error {
	w.cancel()
	_ = w.Writer.Close()
	return nil
}

func (g *GCS) List(ctx context.Context) ([]string, error) {
	var names []string
	query := &storage.Query{}
	if g.prefix != "" {
		query.Prefix = g.prefix + "/"
	}
	it := g.client.Bucket(g.bucket).Objects(ctx, query)
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, errors.Trace(err)
		}
		names = append(names, strings.TrimPrefix(attrs.Name, query.Prefix))
	}
	return names, nil
}

func (g *GCS) Remove(ctx context.Context, name string) error {
	err := g.client.Bucket(g.bucket).Object(path.Join(g.prefix, name)).Delete(ctx)
	if err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return errors.Trace(err)
	}
	return nil
}

func (g *GCS) Close() error {
	return g.client.Close()
}
