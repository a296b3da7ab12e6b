/*
Copyright 2024 Blnk Finance Authors.

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

package main

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"go.elastic.co/apm/module/apmlogrus/v2"

	"github.com/blnkfinance/payrecon"
	"github.com/blnkfinance/payrecon/config"
	"github.com/blnkfinance/payrecon/database"
	"github.com/blnkfinance/payrecon/internal/gateway"
	"github.com/blnkfinance/payrecon/internal/notification"
	"github.com/blnkfinance/payrecon/internal/ocr"
)

// Payrecon is the CLI application, wrapping the root Cobra command.
type Payrecon struct {
	cmd *cobra.Command
}

// reconInstance holds what the commands share at runtime. The bot itself is
// built lazily since migrate and config never need the gateway.
type reconInstance struct {
	recon *payrecon.Recon
	db    database.IDataSource
	cnf   *config.Configuration
}

func init() {
	logrus.AddHook(&apmlogrus.Hook{})
}

func recoverPanic() {
	if rec := recover(); rec != nil {
		logrus.Error(rec)
		os.Exit(1)
	}
}

// preRun loads .env and the configuration file before any command runs.
func preRun(app *reconInstance, configFile *string) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
			logrus.WithError(err).Warn("could not read .env file")
		}

		if err := config.InitConfig(*configFile); err != nil {
			return fmt.Errorf("error loading config: %w", err)
		}

		cnf, err := config.Fetch()
		if err != nil {
			return err
		}
		app.cnf = cnf
		return nil
	}
}

// datasource opens the configured blob store once.
func (app *reconInstance) datasource() (database.IDataSource, error) {
	if app.db != nil {
		return app.db, nil
	}
	db, err := database.NewDataSource(app.cnf)
	if err != nil {
		return nil, fmt.Errorf("error getting datasource: %w", err)
	}
	app.db = db
	return db, nil
}

// setup wires the bot to the datasource, the gateway and the OCR provider
// and restores the persisted state.
func (app *reconInstance) setup(ctx context.Context) error {
	db, err := app.datasource()
	if err != nil {
		return err
	}

	extractor, err := ocr.New(ctx, app.cnf.OCR)
	if err != nil {
		return fmt.Errorf("error creating OCR client: %w", err)
	}

	var textExtractor payrecon.TextExtractor
	if extractor != nil {
		textExtractor = extractor
	}

	recon, err := payrecon.NewRecon(db, gateway.New(app.cnf.Gateway), textExtractor)
	if err != nil {
		notification.NotifyError(err)
		return fmt.Errorf("error creating bot: %w", err)
	}
	if err := recon.Load(ctx); err != nil {
		return err
	}
	app.recon = recon
	return nil
}

func NewCLI() *Payrecon {
	var configFile string
	app := &reconInstance{}

	var rootCmd = &cobra.Command{
		Use:   "payrecon",
		Short: "Payment receipt reconciliation bot",
		Run:   func(cmd *cobra.Command, args []string) {},
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "./"+config.DEFAULT_CONFIG_FILE, "Configuration file for payrecon")
	rootCmd.PersistentPreRunE = preRun(app, &configFile)

	rootCmd.AddCommand(serverCommands(app))
	rootCmd.AddCommand(sweepCommands(app))
	rootCmd.AddCommand(rankingCommands(app))
	rootCmd.AddCommand(migrateCommands(app))
	rootCmd.AddCommand(backupCommands(app))
	rootCmd.AddCommand(configCommands())

	return &Payrecon{cmd: rootCmd}
}

func (p Payrecon) executeCLI() {
	if err := p.cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func main() {
	defer recoverPanic()

	cli := NewCLI()
	cli.executeCLI()
}
