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
package main

import (
	"bytes"
	"context"
	"math/rand/v2"
	"strconv"
	"time"

	"github.com/gorse-io/meeple/base/log"
	"github.com/gorse-io/meeple/base/parallel"
	"github.com/gorse-io/meeple/logics"
	"github.com/gorse-io/meeple/storage/blob"
	"github.com/juju/errors"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var evaluateCommand = &cobra.Command{
	Use:   "evaluate <groups>",
	Short: "Compare group strategies on random groups and write one TSV per group",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		n, err := strconv.Atoi(args[0])
		if err != nil || n <= 0 {
			log.Logger().Fatal("invalid number of groups", zap.String("groups", args[0]))
		}
		e := openEngine(cmd)
		defer closeEngine(e)
		ctx := context.Background()

		seed, _ := cmd.Flags().GetUint64("seed")
		if !cmd.Flags().Changed("seed") {
			seed = uint64(time.Now().UnixNano())
		}
		users, err := e.DataClient.GetUsers(ctx)
		if err != nil {
			log.Logger().Fatal("failed to get users", zap.Error(err))
		}
		groups, err := logics.RandomGroups(users, n, e.Config.Evaluate.MaxGroupSize, rand.New(rand.NewPCG(seed, seed)))
		if err != nil {
			log.Logger().Fatal("failed to draw groups", zap.Error(err))
		}

		output := blob.NewPOSIX(e.Config.Evaluate.OutputDir)
		defer output.Close()
		jobs, _ := cmd.Flags().GetInt("jobs")
		bar := progressbar.Default(int64(len(groups)), "evaluating groups")
		err = parallel.Parallel(ctx, len(groups), jobs, func(_, jobId int) error {
			evaluation, err := e.Evaluator.Evaluate(ctx, groups[jobId])
			if err != nil {
				return errors.Annotatef(err, "evaluate group %v", groups[jobId])
			}
			var buf bytes.Buffer
			if err = evaluation.WriteTSV(&buf); err != nil {
				return errors.Trace(err)
			}
			if err = blob.WriteAll(ctx, output, evaluation.GroupName+".tsv", buf.Bytes()); err != nil {
				return errors.Annotatef(err, "write evaluation of %s", evaluation.GroupName)
			}
			return bar.Add(1)
		})
		if err != nil {
			log.Logger().Fatal("failed to evaluate groups", zap.Error(err))
		}
		log.Logger().Info("evaluate groups",
			zap.Int("groups", len(groups)),
			zap.String("output_dir", e.Config.Evaluate.OutputDir),
			zap.Uint64("seed", seed))
	},
}

func init() {
	evaluateCommand.Flags().IntP("jobs", "j", 1, "number of groups evaluated concurrently")
	evaluateCommand.Flags().Uint64("seed", 0, "seed of the random group generator, time based by default")
	rootCommand.AddCommand(evaluateCommand)
}
