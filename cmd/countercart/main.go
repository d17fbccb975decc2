// Copyright (C) 2024 CounterCart, Inc.
// See LICENSE for copying information.

package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/zeebo/errs"
	"go.uber.org/zap"

	"storj.io/common/cfgstruct"
	"storj.io/common/fpath"
	"storj.io/common/process"

	"countercart.io/countercart"
	"countercart.io/countercart/countercartdb"
)

var (
	rootCmd = &cobra.Command{
		Use:   "countercart",
		Short: "CounterCart round-up donation server",
	}
	setupCmd = &cobra.Command{
		Use:         "setup",
		Short:       "Create config files",
		RunE:        cmdSetup,
		Annotations: map[string]string{"type": "setup"},
	}
	runCmd = &cobra.Command{
		Use:   "run",
		Short: "Run the CounterCart server",
		RunE:  cmdRun,
	}
	migrateCmd = &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE:  cmdMigrate,
	}
	confDir string

	runCfg     Config
	setupCfg   Config
	migrateCfg Config
)

// Config wraps the peer configuration with the database connection string.
type Config struct {
	DatabaseURL string `help:"URL to connect to the database" default:"sqlite3://countercart.db"`

	countercart.Config
}

func cmdSetup(cmd *cobra.Command, args []string) (err error) {
	setupDir, err := filepath.Abs(confDir)
	if err != nil {
		return err
	}

	valid, _ := fpath.IsValidSetupDir(setupDir)
	if !valid {
		return fmt.Errorf("countercart configuration already exists (%v)", setupDir)
	}

	err = os.MkdirAll(setupDir, 0700)
	if err != nil {
		return err
	}

	return process.SaveConfig(cmd, filepath.Join(setupDir, "config.yaml"))
}

func cmdMigrate(cmd *cobra.Command, args []string) (err error) {
	ctx, _ := process.Ctx(cmd)
	log := zap.L()

	db, err := countercartdb.Open(ctx, log.Named("db"), migrateCfg.DatabaseURL)
	if err != nil {
		return errs.New("error connecting to the database: %+v", err)
	}
	defer func() {
		err = errs.Combine(err, db.Close())
	}()

	return db.CreateTables(ctx)
}

func cmdRun(cmd *cobra.Command, args []string) (err error) {
	ctx, _ := process.Ctx(cmd)
	log := zap.L()

	db, err := countercartdb.Open(ctx, log.Named("db"), runCfg.DatabaseURL)
	if err != nil {
		return errs.New("error connecting to the database: %+v", err)
	}
	defer func() {
		err = errs.Combine(err, db.Close())
	}()

	if err := db.Ping(ctx); err != nil {
		return errs.New("database ping failed: %+v", err)
	}

	peer, err := countercart.New(log, db, runCfg.Config)
	if err != nil {
		return errs.New("error creating countercart peer: %+v", err)
	}
	defer func() {
		err = errs.Combine(err, peer.Close())
	}()

	return peer.Run(ctx)
}

func init() {
	defaultConfDir := fpath.ApplicationDir("countercart")
	cfgstruct.SetupFlag(zap.L(), rootCmd, &confDir, "config-dir", defaultConfDir, "main directory for countercart configuration")
	defaults := cfgstruct.DefaultsFlag(rootCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(setupCmd)
	rootCmd.AddCommand(migrateCmd)
	process.Bind(runCmd, &runCfg, defaults, cfgstruct.ConfDir(confDir))
	process.Bind(setupCmd, &setupCfg, defaults, cfgstruct.ConfDir(confDir), cfgstruct.SetupMode())
	process.Bind(migrateCmd, &migrateCfg, defaults, cfgstruct.ConfDir(confDir))
}

func main() {
	logger, _, _ := process.NewLogger("countercart")
	zap.ReplaceGlobals(logger)

	process.Exec(rootCmd)
}
