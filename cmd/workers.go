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
)

// sweepCommands runs one pending-receipt sweep and persists the result. It
// is meant for cron deployments where the server does not run sweepers.
func sweepCommands(app *reconInstance) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "drop expired pending receipts once",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			if err := app.setup(ctx); err != nil {
				return err
			}
			defer app.db.Close()

			removed := app.recon.SweepPending(ctx)
			app.recon.Flush(ctx)
			logrus.Infof("swept %d expired pending receipts", removed)
			return nil
		},
	}
}
