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
	"bytes"
	"strconv"
	"strings"
	"testing"

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
)

func TestEncodeDecode(t *testing.T) {
	scores := []Score{
		{ItemId: 13, Score: 9.25},
		{ItemId: 822, Score: 1.0 / 3.0},
		{ItemId: 30549, Score: -2.5e-10},
		{ItemId: 7, Score: 0},
	}
	var buf bytes.Buffer
	assert.NoError(t, Encode(&buf, scores))
	lines := strings.SplitAfter(buf.String(), "\n")
	assert.Equal(t, "13;9.25\n", lines[0])
	assert.Equal(t, "822;"+strconv.FormatFloat(1.0/3.0, 'g', -1, 64)+"\n", lines[1])
	decoded, err := Decode(&buf)
	assert.NoError(t, err)
	// shortest formatting parses back to the same float64
	assert.Equal(t, scores, decoded)
}

func TestDecodeEmpty(t *testing.T) {
	scores, err := Decode(strings.NewReader(""))
	assert.NoError(t, err)
	assert.Empty(t, scores)
	scores, err = Decode(strings.NewReader("\n1;2.5\n\n"))
	assert.NoError(t, err)
	assert.Equal(t, []Score{{ItemId: 1, Score: 2.5}}, scores)
}

func TestDecodeCorrupt(t *testing.T) {
	for _, text := range []string{
		"1;2.5\n2\n",
		"1;2.5;3\n",
		"abc;2.5\n",
		"1;high\n",
		"1,2.5\n",
	} {
		scores, err := Decode(strings.NewReader(text))
		assert.True(t, errors.Is(err, ErrCacheCorrupt), text)
		assert.Nil(t, scores, text)
	}
}
