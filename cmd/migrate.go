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
	"fmt"

	migrate "github.com/rubenv/sql-migrate"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/blnkfinance/payrecon/database"
)

func migrateCommands(app *reconInstance) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "migrate commands",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "migrate up",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrations(app, migrate.Up)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "migrate down",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrations(app, migrate.Down)
		},
	})

	return cmd
}

// runMigrations applies the blob table migrations. Only SQL datasources
// have a schema.
func runMigrations(app *reconInstance, direction migrate.MigrationDirection) error {
	db, dialect, err := database.ConnectDB(app.cnf.DataSource.Dns)
	if err != nil {
		return err
	}
	defer db.Close()

	n, err := database.Migrate(db, dialect, direction)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	logrus.Infof("Applied %d migrations!", n)
	return nil
}
