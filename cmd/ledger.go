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
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

func rankingCommands(app *reconInstance) *cobra.Command {
	var groupID string

	cmd := &cobra.Command{
		Use:   "ranking",
		Short: "print the purchase ranking of a group",
		RunE: func(cmd *cobra.Command, args []string) error {
			if groupID == "" {
				return errors.New("--group is required")
			}
			if err := app.setup(context.Background()); err != nil {
				return err
			}
			defer app.db.Close()

			fmt.Fprintln(cmd.OutOrStdout(), app.recon.RankingText(groupID))
			return nil
		},
	}
	cmd.Flags().StringVar(&groupID, "group", "", "group ID")

	return cmd
}
