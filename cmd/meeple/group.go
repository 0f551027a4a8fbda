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
	"context"

	"github.com/gorse-io/meeple/base/log"
	"github.com/gorse-io/meeple/engine"
	"github.com/gorse-io/meeple/logics"
	"github.com/juju/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const (
	flowUsers           = "users"
	flowRecommendations = "recommendations"
)

var groupCommand = &cobra.Command{
	Use:   "group <member>...",
	Short: "Recommend games to a group of users",
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		e := openEngine(cmd)
		defer closeEngine(e)
		req, flow, err := parseGroupRequest(cmd, e, args)
		if err != nil {
			log.Logger().Fatal("invalid group request", zap.Error(err))
		}
		refresh, _ := cmd.Flags().GetBool("refresh")
		ctx := context.Background()
		switch flow {
		case flowUsers:
			if refresh {
				identity, err := req.Identity()
				if err != nil {
					log.Logger().Fatal("invalid group request", zap.Error(err))
				}
				evict(ctx, e, identity)
			}
			result, err := e.Group.MergeUsers(ctx, req)
			if err != nil {
				log.Logger().Fatal("failed to merge users", zap.Error(err))
			}
			printRendered(result.Rendered)
		case flowRecommendations:
			if refresh {
				for _, member := range req.Members {
					evict(ctx, e, member)
				}
			}
			merged, err := e.Group.MergeRecommendations(ctx, req)
			if err != nil {
				log.Logger().Fatal("failed to merge recommendations", zap.Error(err))
			}
			if !cmd.Flags().Changed("players") {
				printScores(ctx, e, logics.Ranked(merged))
				return
			}
			identity := logics.MergedRecommendationsIdentity(req.Strategy, req.GroupName)
			entries, err := e.Group.FilterAndRender(ctx, identity, logics.Ranked(merged), req.PlayerCount)
			if err != nil {
				log.Logger().Fatal("failed to render recommendations", zap.Error(err))
			}
			printRendered(entries)
		}
	},
}

// parseGroupRequest builds a normalized request from flags. The strategy
// defaults to the configured one.
func parseGroupRequest(cmd *cobra.Command, e *engine.Engine, members []string) (logics.GroupRequest, string, error) {
	label := e.Config.Group.Strategy
	if cmd.Flags().Changed("strategy") {
		label, _ = cmd.Flags().GetString("strategy")
	}
	strategy, err := logics.ParseMergeStrategy(label)
	if err != nil {
		return logics.GroupRequest{}, "", errors.Trace(err)
	}
	flow, _ := cmd.Flags().GetString("flow")
	if flow != flowUsers && flow != flowRecommendations {
		return logics.GroupRequest{}, "", errors.NotValidf("flow %q", flow)
	}
	name, _ := cmd.Flags().GetString("name")
	players, _ := cmd.Flags().GetInt("players")
	req, err := logics.GroupRequest{
		Members:     members,
		GroupName:   name,
		Strategy:    strategy,
		PlayerCount: players,
	}.Normalize()
	if err != nil {
		return logics.GroupRequest{}, "", errors.Trace(err)
	}
	return req, flow, nil
}

func init() {
	groupCommand.Flags().StringP("strategy", "s", "", "merge strategy (min, max or avg)")
	groupCommand.Flags().String("flow", flowUsers, "merge ratings of users or recommendations of users (users or recommendations)")
	groupCommand.Flags().String("name", "", "group name, member names joined by underscores by default")
	groupCommand.Flags().IntP("players", "p", 0, "number of players, the number of members by default")
	groupCommand.Flags().Bool("refresh", false, "evict cached recommendations first")
	rootCommand.AddCommand(groupCommand)
}
