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
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/blnkfinance/payrecon/internal/apierror"
)

func (a Api) BackupDB(c *gin.Context) {
	if a.backups == nil {
		apiErr := apierror.NewAPIError(apierror.ErrUnavailable, "backups are not configured", nil)
		c.JSON(apierror.MapErrorToHTTPStatus(apiErr), apiErr)
		return
	}
	dir, err := a.backups.BackupToDisk(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "backup successful", "path": dir})
}

func (a Api) BackupDBS3(c *gin.Context) {
	if a.backups == nil {
		apiErr := apierror.NewAPIError(apierror.ErrUnavailable, "backups are not configured", nil)
		c.JSON(apierror.MapErrorToHTTPStatus(apiErr), apiErr)
		return
	}
	if err := a.backups.BackupToS3(c.Request.Context()); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, "backup successful")
}
