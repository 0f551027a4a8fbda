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
package knn

import (
	"cmp"
	"slices"

	"github.com/samber/lo"
)

// DataSet holds explicit ratings indexed by user.
type DataSet struct {
	users map[int64]map[int64]float64
	count int
}

func NewDataSet() *DataSet {
	return &DataSet{users: make(map[int64]map[int64]float64)}
}

// Add a rating. A later rating of the same (user, item) replaces the earlier one.
func (d *DataSet) Add(userId, itemId int64, score float64) {
	items, ok := d.users[userId]
	if !ok {
		items = make(map[int64]float64)
		d.users[userId] = items
	}
	if _, exist := items[itemId]; !exist {
		d.count++
	}
	items[itemId] = score
}

func (d *DataSet) CountUsers() int {
	return len(d.users)
}

func (d *DataSet) CountRatings() int {
	return d.count
}

// UserIds returns ids of all users in ascending order.
func (d *DataSet) UserIds() []int64 {
	ids := lo.Keys(d.users)
	slices.Sort(ids)
	return ids
}

// UserRatings returns the ratings of a user keyed by item id.
func (d *DataSet) UserRatings(userId int64) (map[int64]float64, bool) {
	items, ok := d.users[userId]
	return items, ok
}

// sortedItems returns rated item ids in ascending order.
func sortedItems(ratings map[int64]float64) []int64 {
	ids := lo.Keys(ratings)
	slices.SortFunc(ids, cmp.Compare[int64])
	return ids
}
