/*
Copyright © 2020 NAME HERE <EMAIL ADDRESS>

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package cmd

import (
	"errors"
	"fmt"
	"os"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/notargets/gomg/InputParameters"
)

// NewRootCmd builds the command tree, every tree carries its own configuration
func NewRootCmd() *cobra.Command {
	var (
		v        = viper.New()
		cfgFile  string
		logLevel = zap.NewAtomicLevelAt(zap.InfoLevel)
	)
	rootCmd := &cobra.Command{
		Use:   "gomg",
		Short: "Geometric multigrid on hierarchically refined grids",
		Long: `
Builds a multigrid hierarchy by refining a built-in coarse mesh, with hanging nodes where the refinement is adaptive,
and solves a reaction diffusion problem on it with a geometric multigrid preconditioner.

gomg refine -m square -n 2 -r 2
gomg solve -I input.yaml`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) (err error) {
			if err = readConfig(v, cfgFile); err != nil {
				return
			}
			if err = v.BindPFlags(cmd.Flags()); err != nil {
				return
			}
			if v.GetBool("verbose") {
				logLevel.SetLevel(zap.DebugLevel)
			}
			return installLogger(logLevel)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			_ = zap.L().Sync()
		},
	}
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.gomg.yaml)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "debug logging")
	rootCmd.PersistentFlags().StringP("inputConditionsFile", "I", "",
		"YAML file for input parameters like:\n\t- Mesh, Refinements\n\t- Cycle, Smoother")
	rootCmd.PersistentFlags().StringP("mesh", "m", "", "coarse mesh: tet, cube, square or quads")
	rootCmd.PersistentFlags().IntP("divisions", "n", 0, "subdivisions of the square meshes")
	rootCmd.PersistentFlags().IntP("refinements", "r", 0, "number of uniform refinements")
	rootCmd.PersistentFlags().IntP("adaptive", "a", 0, "number of adaptive refinements around the refinement center")
	rootCmd.AddCommand(newRefineCmd(v), newSolveCmd(v))
	return rootCmd
}

func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// readConfig reads an explicitly named config file or $HOME/.gomg.yaml if there is one
func readConfig(v *viper.Viper, cfgFile string) (err error) {
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		return v.ReadInConfig()
	}
	home, err := homedir.Dir()
	if err != nil {
		return
	}
	v.AddConfigPath(home)
	v.SetConfigName(".gomg")
	v.SetConfigType("yaml")
	v.SetEnvPrefix("gomg")
	v.AutomaticEnv()
	if err = v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
	}
	return
}

func installLogger(level zap.AtomicLevel) (err error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = level
	cfg.Encoding = "console"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, err := cfg.Build()
	if err != nil {
		return
	}
	zap.ReplaceGlobals(logger)
	return
}

// loadParameters starts from the defaults, reads the input file and applies the flags that were given
func loadParameters(v *viper.Viper) (ip *InputParameters.InputParametersMG, err error) {
	ip = InputParameters.NewInputParametersMG()
	if file := v.GetString("inputConditionsFile"); file != "" {
		var data []byte
		if data, err = os.ReadFile(file); err != nil {
			return
		}
		if err = ip.Parse(data); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", file, err)
		}
	}
	if v.IsSet("mesh") {
		ip.Mesh = v.GetString("mesh")
	}
	if v.IsSet("divisions") {
		ip.MeshDivisions = v.GetInt("divisions")
	}
	if v.IsSet("refinements") {
		ip.Refinements = v.GetInt("refinements")
	}
	if v.IsSet("adaptive") {
		ip.AdaptiveRefinements = v.GetInt("adaptive")
	}
	if v.IsSet("cycle") {
		ip.Cycle = v.GetString("cycle")
	}
	if v.IsSet("smoother") {
		ip.Smoother = v.GetString("smoother")
	}
	if v.IsSet("maxIterations") {
		ip.MaxIterations = v.GetInt("maxIterations")
	}
	err = ip.Validate()
	return
}
