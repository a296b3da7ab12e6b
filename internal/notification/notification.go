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

package notification

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/blnkfinance/payrecon/config"
	"github.com/blnkfinance/payrecon/internal/request"
)

const slackTimeout = 10 * time.Second

// slackMessage builds the Block Kit payload posted for an error.
func slackMessage(project string, err error, at time.Time) map[string]interface{} {
	field := func(title, value string) map[string]interface{} {
		return map[string]interface{}{
			"type": "section",
			"fields": []map[string]interface{}{
				{"type": "mrkdwn", "text": fmt.Sprintf("*%s:*\n%s", title, value)},
			},
		}
	}
	return map[string]interface{}{
		"blocks": []map[string]interface{}{
			{
				"type": "header",
				"text": map[string]interface{}{
					"type":  "plain_text",
					"text":  fmt.Sprintf("Error From %s 🐞", project),
					"emoji": true,
				},
			},
			field("Error", err.Error()),
			field("Time", at.Format(time.RFC822)),
		},
	}
}

// SlackNotification posts an error to the configured Slack webhook.
func SlackNotification(ctx context.Context, err error) error {
	conf, cfgErr := config.Fetch()
	if cfgErr != nil {
		return cfgErr
	}
	if conf.Notification.Slack.WebhookUrl == "" {
		return nil
	}

	payload, encErr := request.ToJsonReq(slackMessage(conf.ProjectName, err, time.Now()))
	if encErr != nil {
		return encErr
	}

	ctx, cancel := context.WithTimeout(ctx, slackTimeout)
	defer cancel()

	req, reqErr := http.NewRequestWithContext(ctx, http.MethodPost, conf.Notification.Slack.WebhookUrl, payload)
	if reqErr != nil {
		return reqErr
	}

	// Slack answers "ok" as plain text, so the body is not decoded.
	_, callErr := request.Call(nil, req, nil)
	return callErr
}

// NotifyError logs systemError and forwards it to Slack when a webhook is
// configured. Delivery runs in the background.
func NotifyError(systemError error) {
	if systemError == nil {
		return
	}
	go func(systemError error) {
		logrus.Error(systemError)

		if err := SlackNotification(context.Background(), systemError); err != nil {
			log.Println(err)
		}
	}(systemError)
}

