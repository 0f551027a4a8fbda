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
	"strings"

	"github.com/gorse-io/meeple/base/log"
	"github.com/gorse-io/meeple/config"
	"github.com/gorse-io/meeple/storage"
	"github.com/juju/errors"
)

var ErrObjectNotExist = errors.NotFoundf("object")

var errAborted = errors.New("upload aborted")

// Writer writes a new object. The object becomes visible once Close returns
// without error, replacing any previous content. Abort discards what has been
// written and leaves the previous content in place.
type Writer interface {
	io.WriteCloser
	Abort(cause error) error
}

// Store keeps named objects: cached recommendation lists and rendered results.
type Store interface {
	// Open an object for reading. It returns ErrObjectNotExist if the object is absent.
	Open(ctx context.Context, name string) (io.ReadCloser, error)
	// Create an object for writing.
	Create(ctx context.Context, name string) (Writer, error)
	// List names of all objects.
	List(ctx context.Context) ([]string, error)
	// Remove an object. Removing an absent object is not an error.
	Remove(ctx context.Context, name string) error
	Close() error
}

// Open a store from a URL. A path without scheme is a local directory.
func Open(path string, cfg *config.Config) (Store, error) {
	switch {
	case strings.HasPrefix(path, storage.FilePrefix):
		return NewPOSIX(path[len(storage.FilePrefix):]), nil
	case strings.HasPrefix(path, storage.S3Prefix):
		bucket, prefix := storage.SplitBucketURL(path, storage.S3Prefix)
		store, err := NewS3(cfg.S3, bucket, prefix)
		if err != nil {
			return nil, errors.Trace(err)
		}
		return store, nil
	case strings.HasPrefix(path, storage.GCSPrefix):
		bucket, prefix := storage.SplitBucketURL(path, storage.GCSPrefix)
		store, err := NewGCS(cfg.GCS, bucket, prefix)
		if err != nil {
			return nil, errors.Trace(err)
		}
		return store, nil
	case strings.HasPrefix(path, storage.AzureBlobPrefix):
		container, prefix := storage.SplitBucketURL(path, storage.AzureBlobPrefix)
		store, err := NewAzureBlob(cfg.Azure, container, prefix)
		if err != nil {
			return nil, errors.Trace(err)
		}
		return store, nil
	case strings.HasPrefix(path, storage.RedisPrefix) || strings.HasPrefix(path, storage.RedissPrefix):
		store, err := NewRedis(path, cfg.Database.TablePrefix+"cache/")
		if err != nil {
			return nil, errors.Trace(err)
		}
		return store, nil
	case !strings.Contains(path, "://"):
		return NewPOSIX(path), nil
	}
	return nil, errors.Errorf("unknown cache store: %s", log.RedactDBURL(path))
}

// ReadAll reads a whole object.
func ReadAll(ctx context.Context, store Store, name string) ([]byte, error) {
	r, err := store.Open(ctx, name)
	if err != nil {
		return nil, errors.Trace(err)
	}
	defer r.Close()
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return data, nil
}

// WriteAll replaces an object with data.
func WriteAll(ctx context.Context, store Store, name string, data []byte) error {
	w, err := store.Create(ctx, name)
	if err != nil {
		return errors.Trace(err)
	}
	if _, err = w.Write(data); err != nil {
		_ = w.Abort(err)
		return errors.Trace(err)
	}
	return errors.Trace(w.Close())
}

// pipeUpload streams writes into an upload running in its own goroutine.
// Close waits for the upload and returns its error. Abort fails the upload
// with the cause so that nothing is committed.
type pipeUpload struct {
	*io.PipeWriter
	done chan struct{}
	err  error
}

func newPipeUpload(upload func(r io.Reader) error) *pipeUpload {
	pr, pw := io.Pipe()
	u := &pipeUpload{PipeWriter: pw, done: make(chan struct{})}
	go func() {
		defer close(u.done)
		u.err = upload(pr)
		_ = pr.CloseWithError(u.err)
	}()
	return u
}

func (u *pipeUpload) Close() error {
	if err := u.PipeWriter.Close(); err != nil {
		return errors.Trace(err)
	}
	<-u.done
	return errors.Trace(u.err)
}

func (u *pipeUpload) Abort(cause error) error {
	if cause == nil {
		cause = errAborted
	}
	_ = u.PipeWriter.CloseWithError(cause)
	<-u.done
	return nil
}
