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
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/juju/errors"
)

// POSIX stores objects as files in a directory.
type POSIX struct {
	dir string
}

func NewPOSIX(dir string) *POSIX {
	return &POSIX{dir: dir}
}

func (p *POSIX) Open(_ context.Context, name string) (io.ReadCloser, error) {
	fullPath := filepath.Join(p.dir, name)
	file, err := os.Open(fullPath)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, errors.Annotate(ErrObjectNotExist, fullPath)
	} else if err != nil {
		return nil, errors.Trace(err)
	}
	return file, nil
}

// Create writes into a temporary file which is renamed on Close, so readers
// never see a partially written object.
func (p *POSIX) Create(_ context.Context, name string) (Writer, error) {
	fullPath := filepath.Join(p.dir, name)
	if err := os.MkdirAll(filepath.Dir(fullPath), os.ModePerm); err != nil {
		return nil, errors.Trace(err)
	}
	file, err := os.CreateTemp(filepath.Dir(fullPath), ".upload-*")
	if err != nil {
		return nil, errors.Trace(err)
	}
	return &posixWriter{File: file, target: fullPath}, nil
}

type posixWriter struct {
	*os.File
	target string
}

func (w *posixWriter) Close() error {
	if err := w.File.Close(); err != nil {
		_ = os.Remove(w.File.Name())
		return errors.Trace(err)
	}
	if err := os.Rename(w.File.Name(), w.target); err != nil {
		_ = os.Remove(w.File.Name())
		return errors.Trace(err)
	}
	return nil
}

func (w *posixWriter) Abort(error) error {
	_ = w.File.Close()
	if err := os.Remove(w.File.Name()); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return errors.Trace(err)
	}
	return nil
}

func (p *POSIX) List(_ context.Context) ([]string, error) {
	var names []string
	err := filepath.WalkDir(p.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), ".upload-") {
			return nil
		}
		name, err := filepath.Rel(p.dir, path)
		if err != nil {
			return err
		}
		names = append(names, filepath.ToSlash(name))
		return nil
	})
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	} else if err != nil {
		return nil, errors.Trace(err)
	}
	return names, nil
}

func (p *POSIX) Remove(_ context.Context, name string) error {
	err := os.Remove(filepath.Join(p.dir, name))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return errors.Trace(err)
	}
	return nil
}

func (p *POSIX) Close() error {
	return nil
}
