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

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/blnkfinance/payrecon/internal/backups"
)

func backupCommands(app *reconInstance) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "backup the ledgers and pending receipts",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "drive",
		Short: "backup to the local backup directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := app.datasource()
			if err != nil {
				return err
			}
			dir, err := backups.NewBackupManager(app.cnf, db, nil).BackupToDisk(context.Background())
			if err != nil {
				return err
			}
			logrus.Infof("backup written to %s", dir)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "s3",
		Short: "backup to S3",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := app.datasource()
			if err != nil {
				return err
			}
			uploader, err := backups.NewS3Uploader(app.cnf)
			if err != nil {
				return err
			}
			if err := backups.NewBackupManager(app.cnf, db, uploader).BackupToS3(context.Background()); err != nil {
				return err
			}
			logrus.Info("backup uploaded to S3")
			return nil
		},
	})

	return cmd
}
