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
	"bufio"
	"io"
	"strconv"
	"strings"

	"github.com/juju/errors"
)

// Delimiter separates the item id from the score in a cached line.
const Delimiter = ";"

var ErrCacheCorrupt = errors.NotValidf("cache entry")

// Score is one entry of a recommendation list.
type Score struct {
	ItemId int64
	Score  float64
}

// Encode writes one "item_id;score" line per entry. Scores keep full precision.
func Encode(w io.Writer, scores []Score) error {
	bw := bufio.NewWriter(w)
	for _, s := range scores {
		if _, err := bw.WriteString(strconv.FormatInt(s.ItemId, 10) + Delimiter +
			strconv.FormatFloat(s.Score, 'g', -1, 64) + "\n"); err != nil {
			return errors.Trace(err)
		}
	}
	return errors.Trace(bw.Flush())
}

// Decode parses lines written by Encode. Blank lines are skipped. Any malformed
// line fails the whole list with ErrCacheCorrupt.
func Decode(r io.Reader) ([]Score, error) {
	var scores []Score
	scanner := bufio.NewScanner(r)
	lineNumber := 0
	for scanner.Scan() {
		lineNumber++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		fields := strings.Split(line, Delimiter)
		if len(fields) != 2 {
			return nil, errors.Annotatef(ErrCacheCorrupt, "line %d: %q", lineNumber, line)
		}
		itemId, err := strconv.ParseInt(strings.TrimSpace(fields[0]), 10, 64)
		if err != nil {
			return nil, errors.Annotatef(ErrCacheCorrupt, "line %d: invalid item id %q", lineNumber, fields[0])
		}
		score, err := strconv.ParseFloat(strings.TrimSpace(fields[1]), 64)
		if err != nil {
			return nil, errors.Annotatef(ErrCacheCorrupt, "line %d: invalid score %q", lineNumber, fields[1])
		}
		scores = append(scores, Score{ItemId: itemId, Score: score})
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Annotate(ErrCacheCorrupt, err.Error())
	}
	return scores, nil
}
