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
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

const (
	Pearson = "pearson"
	Cosine  = "cosine"
)

// SimilarityFunc scores two aligned rating vectors.
type SimilarityFunc func(a, b []float64) float64

// PearsonSimilarity is the correlation of co-rated scores. It is NaN when
// either vector is constant.
func PearsonSimilarity(a, b []float64) float64 {
	return stat.Correlation(a, b, nil)
}

func CosineSimilarity(a, b []float64) float64 {
	norm := floats.Norm(a, 2) * floats.Norm(b, 2)
	if norm == 0 {
		return math.NaN()
	}
	return floats.Dot(a, b) / norm
}

func similarityFunc(name string) SimilarityFunc {
	if name == Cosine {
		return CosineSimilarity
	}
	return PearsonSimilarity
}
