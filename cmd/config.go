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
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/blnkfinance/payrecon/config"
)

const redacted = "********"

func redact(v string) string {
	if v == "" {
		return v
	}
	return redacted
}

// configCommands prints the effective configuration with secrets masked.
func configCommands() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "print the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cnf, err := config.Fetch()
			if err != nil {
				return err
			}

			masked := *cnf
			masked.Server.SecretKey = redact(masked.Server.SecretKey)
			masked.Gateway.Token = redact(masked.Gateway.Token)
			masked.OCR.ApiKey = redact(masked.OCR.ApiKey)
			masked.AwsSecretAccessKey = redact(masked.AwsSecretAccessKey)
			masked.Notification.Slack.WebhookUrl = redact(masked.Notification.Slack.WebhookUrl)

			out, err := json.MarshalIndent(masked, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return nil
		},
	}
}
