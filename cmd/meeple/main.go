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
	"fmt"
	"io"
	"strconv"

	"github.com/gorse-io/meeple/base/log"
	"github.com/gorse-io/meeple/cmd/version"
	"github.com/gorse-io/meeple/config"
	"github.com/gorse-io/meeple/engine"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var rootCommand = &cobra.Command{
	Use:   "meeple",
	Short: "Board game recommendations for players and groups.",
	Run: func(cmd *cobra.Command, args []string) {
		if showVersion, _ := cmd.Flags().GetBool("version"); showVersion {
			fmt.Print(version.BuildInfo())
			return
		}
		_ = cmd.Help()
	},
}

var versionCommand = &cobra.Command{
	Use:   "version",
	Short: "Print version of meeple",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Print(version.BuildInfo())
	},
}

func init() {
	log.AddFlags(rootCommand.PersistentFlags())
	rootCommand.PersistentFlags().Bool("debug", false, "use debug log mode")
	rootCommand.PersistentFlags().BoolP("quiet", "q", false, "only log fatal errors")
	rootCommand.PersistentFlags().StringP("config", "c", "", "configuration file path")
	rootCommand.Flags().BoolP("version", "v", false, "meeple version")
	rootCommand.AddCommand(versionCommand)
}

// openEngine sets up the logger, loads the configuration and connects to the
// stores. Failures are fatal.
func openEngine(cmd *cobra.Command) *engine.Engine {
	debug, _ := cmd.Flags().GetBool("debug")
	log.SetLogger(cmd.Flags(), debug)
	if quiet, _ := cmd.Flags().GetBool("quiet"); quiet {
		log.CloseLogger()
	}

	configPath, _ := cmd.Flags().GetString("config")
	log.Logger().Debug("load config", zap.String("config", configPath))
	conf, err := config.LoadConfig(configPath)
	if err != nil {
		log.Logger().Fatal("failed to load config", zap.Error(err))
	}
	e, err := engine.Open(conf)
	if err != nil {
		log.Logger().Fatal("failed to open engine", zap.Error(err))
	}
	return e
}

func closeEngine(e *engine.Engine) {
	if err := e.Close(); err != nil {
		log.Logger().Error("failed to close engine", zap.Error(err))
	}
}

// renderTable prints rows as a table to w.
func renderTable(w io.Writer, header []string, rows [][]string) {
	table := tablewriter.NewWriter(w)
	table.Header(header)
	if err := table.Bulk(rows); err != nil {
		log.Logger().Fatal("failed to render table", zap.Error(err))
	}
	if err := table.Render(); err != nil {
		log.Logger().Fatal("failed to render table", zap.Error(err))
	}
}

func formatScore(score float64) string {
	return strconv.FormatFloat(score, 'f', 3, 64)
}

func main() {
	if err := rootCommand.Execute(); err != nil {
		log.Logger().Fatal("failed to execute", zap.Error(err))
	}
}
