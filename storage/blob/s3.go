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
	"path"
	"strings"

	"github.com/gorse-io/meeple/config"
	"github.com/juju/errors"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// S3 keeps objects in an S3 compatible bucket.
type S3 struct {
	*minio.Client
	bucket string
	prefix string
}

func NewS3(cfg config.S3Config, bucket, prefix string) (*S3, error) {
	minioClient, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, errors.Trace(err)
	}
	return &S3{
		Client: minioClient,
		bucket: bucket,
		prefix: prefix,
	}, nil
}

func isNoSuchKey(err error) bool {
	return minio.ToErrorResponse(err).Code == "NoSuchKey"
}

func (s *S3) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	fullPath := path.Join(s.prefix, name)
	object, err := s.Client.GetObject(ctx, s.bucket, fullPath, minio.GetObjectOptions{})
	if err != nil {
		return nil, errors.Trace(err)
	}
	// GetObject is lazy, so probe the object before handing it out.
	if _, err = object.Stat(); err != nil {
		_ = object.Close()
		if isNoSuchKey(err) {
			return nil, errors.Annotate(ErrObjectNotExist, fullPath)
		}
		return nil, errors.Trace(err)
	}
	return object, nil
}

func (s *S3) Create(ctx context.Context, name string) (Writer, error) {
	fullPath := path.Join(s.prefix, name)
	return newPipeUpload(func(r io.Reader) error {
		_, err := s.Client.PutObject(ctx, s.bucket, fullPath, r, -1, minio.PutObjectOptions{})
		return errors.Annotatef(err, "failed to upload %s to S3", fullPath)
	}), nil
}

func (s *S3) List(ctx context.Context) ([]string, error) {
	var names []string
	opts := minio.ListObjectsOptions{Recursive: true}
	if s.prefix != "" {
		opts.Prefix = s.prefix + "/"
	}
	for object := range s.Client.ListObjects(ctx, s.bucket, opts) {
		if object.Err != nil {
			return nil, errors.Trace(object.Err)
		}
		names = append(names, strings.TrimPrefix(object.Key, opts.Prefix))
	}
	return names, nil
}

func (s *S3) Remove(ctx context.Context, name string) error {
	err := s.Client.RemoveObject(ctx, s.bucket, path.Join(s.prefix, name), minio.RemoveObjectOptions{})
	if err != nil && !isNoSuchKey(err) {
		return errors.Trace(err)
	}
	return nil
}

func (s *S3) Close() error {
	return nil
}
