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

package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/blnkfinance/payrecon"
	"github.com/blnkfinance/payrecon/api/middleware"
	"github.com/blnkfinance/payrecon/config"
)

// Backupper takes on-demand backups of the persisted state.
type Backupper interface {
	BackupToDisk(ctx context.Context) (string, error)
	BackupToS3(ctx context.Context) error
}

type Api struct {
	recon   *payrecon.Recon
	backups Backupper
	router  *gin.Engine
}

func (a Api) Router() *gin.Engine {
	router := a.router
	router.POST("/events/messages", a.ReceiveMessage)
	router.POST("/events/group-join", a.ReceiveGroupJoin)

	router.GET("/groups", a.GetGroups)
	router.GET("/groups/:id/ranking", a.GetRanking)
	router.GET("/groups/:id/inactive", a.GetInactive)

	router.GET("/pending", a.GetPending)

	router.GET("/backup", a.BackupDB)
	router.GET("/backup-s3", a.BackupDBS3)
	return a.router
}

// NewAPI builds the HTTP surface of the bot. backups may be nil, in which
// case the backup routes answer 503.
func NewAPI(r *payrecon.Recon, backups Backupper) *Api {
	gin.SetMode(gin.ReleaseMode)
	conf, err := config.Fetch()
	if err != nil {
		return nil
	}
	router := gin.Default()
	router.Use(otelgin.Middleware(conf.ProjectName))
	router.Use(middleware.RateLimitMiddleware(conf))
	if conf.Server.Secure {
		router.Use(middleware.SecretKeyAuthMiddleware())
	}

	router.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, "server running...")
	})

	return &Api{recon: r, backups: backups, router: router}
}
