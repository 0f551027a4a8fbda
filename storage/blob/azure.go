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
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
	"github.com/gorse-io/meeple/config"
	"github.com/juju/errors"
)

// AzureBlob keeps objects in an Azure Blob Storage container.
type AzureBlob struct {
	client    *azblob.Client
	container string
	prefix    string
}

func NewAzureBlob(cfg config.AzureConfig, container string, prefix string) (*AzureBlob, error) {
	var (
		client *azblob.Client
		err    error
	)
	if cfg.ConnectionString != "" {
		client, err = azblob.NewClientFromConnectionString(cfg.ConnectionString, nil)
		if err != nil {
			return nil, errors.Trace(err)
		}
	} else {
		if cfg.AccountName == "" || cfg.AccountKey == "" {
			return nil, errors.NotValidf("azure blob requires account_name and account_key or connection_string")
		}
		endpoint := cfg.Endpoint
		if endpoint == "" {
			endpoint = fmt.Sprintf("https://%s.blob.core.windows.net/", cfg.AccountName)
		}
		cred, err := azblob.NewSharedKeyCredential(cfg.AccountName, cfg.AccountKey)
		if err != nil {
			return nil, errors.Trace(err)
		}
		client, err = azblob.NewClientWithSharedKeyCredential(endpoint, cred, nil)
		if err != nil {
			return nil, errors.Trace(err)
		}
	}
	return &AzureBlob{
		client:    client,
		container: container,
		prefix:    strings.Trim(prefix, "/"),
	}, nil
}

func (a *AzureBlob) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	fullPath := path.Join(a.prefix, name)
	resp, err := a.client.DownloadStream(ctx, a.container, fullPath, nil)
	if bloberror.HasCode(err, bloberror.BlobNotFound) {
		return nil, errors.Annotate(ErrObjectNotExist, fullPath)
	} else if err != nil {
		return nil, errors.Trace(err)
	}
	return resp.Body, nil
}

func (a *AzureBlob) Create(ctx context.Context, name string) (Writer, error) {
	fullPath := path.Join(a.prefix, name)
	return newPipeUpload(func(r io.Reader) error {
		_, err := a.client.UploadStream(ctx, a.container, fullPath, r, nil)
		return errors.Annotatef(err, "failed to upload %s to Azure Blob", fullPath)
	}), nil
}

func (a *AzureBlob) List(ctx context.Context) ([]string, error) {
	var (
		prefix *string
		names  []string
	)
	if a.prefix != "" {
		p := a.prefix + "/"
		prefix = &p
	}
	pager := a.client.NewListBlobsFlatPager(a.container, &azblob.ListBlobsFlatOptions{Prefix: prefix})
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, errors.Trace(err)
		}
		for _, item := range resp.Segment.BlobItems {
			if item.Name == nil {
				continue
			}
			name := *item.Name
			if prefix != nil {
				name = strings.TrimPrefix(name, *prefix)
			}
			if name != "" {
				names = append(names, name)
			}
		}
	}
	return names, nil
}

func (a *AzureBlob) Remove(ctx context.Context, name string) error {
	_, err := a.client.DeleteBlob(ctx, a.container, path.Join(a.prefix, name), nil)
	if err != nil && !bloberror.HasCode(err, bloberror.BlobNotFound) {
		return errors.Trace(err)
	}
	return nil
}

func (a *AzureBlob) Close() error {
	return nil
}
