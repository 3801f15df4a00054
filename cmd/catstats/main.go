package main

import (
	"fmt"
	"os"

	"github.com/franz/catstats/internal/config"
	"github.com/franz/catstats/internal/util"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

var (
	// Version is set at build time
	Version = "dev"

	cfgFile string

	rootCmd = &cobra.Command{
		Use:   "catstats",
		Short: "Cataloging statistics - load 962 fields from Alma Analytics and report on them",
		Long: `catstats pulls the cataloging statistics report from the Alma Analytics API,
decodes the local 962 statistics field of every bibliographic record, and
stores the result in SQLite for crosstab and summary reporting.

Loads are resumable: records already stored are skipped, and a period that
keeps failing is recorded and retried on the next run.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
)

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./configs/catstats.yaml)")
	rootCmd.PersistentFlags().String("db", "catstats.db", "statistics database file")
	rootCmd.PersistentFlags().String("policy", "multi", "repeatable subfield storage: multi or joined")
	rootCmd.PersistentFlags().String("log-file", "", "also append log output to this file")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().BoolP("quiet", "q", false, "quiet output (errors only)")

	// Bind flags to viper
	bindFlags(rootCmd.PersistentFlags(), map[string]string{
		"db":       config.KeyDB,
		"policy":   config.KeyPolicy,
		"log-file": config.KeyLogFile,
		"verbose":  config.KeyVerbose,
		"quiet":    config.KeyQuiet,
	})
}

// bindFlags binds flags to viper keys. Flags override config file and
// environment only when set.
func bindFlags(flags *pflag.FlagSet, keys map[string]string) {
	for name, key := range keys {
		flag := flags.Lookup(name)
		if flag == nil {
			panic(fmt.Sprintf("bindFlags: no flag %q", name))
		}
		if err := viper.BindPFlag(key, flag); err != nil {
			panic(err)
		}
	}
}

func initConfig() {
	config.LoadEnvFiles()
	config.SetDefaults(viper.GetViper())

	if cfgFile != "" {
		// Use config file from the flag
		viper.SetConfigFile(cfgFile)
	} else {
		// Search for config in common locations
		viper.AddConfigPath("./configs")
		viper.AddConfigPath(".")
		viper.SetConfigName("catstats")
		viper.SetConfigType("yaml")
	}

	util.SetVerbose(viper.GetBool(config.KeyVerbose))
	util.SetQuiet(viper.GetBool(config.KeyQuiet))

	// If a config file is found, read it in
	if err := viper.ReadInConfig(); err == nil {
		util.DebugLog("Using config file: %s", viper.ConfigFileUsed())
	} else if cfgFile != "" {
		util.ErrorLog("Failed to read config file %s: %v", cfgFile, err)
		os.Exit(1)
	}
}

func main() {
	err := rootCmd.Execute()
	util.CloseLogFile()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitCode(err))
	}
}
