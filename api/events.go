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

	model2 "github.com/blnkfinance/payrecon/api/model"
	"github.com/blnkfinance/payrecon/internal/apierror"
)

// ReceiveMessage feeds one chat event from the gateway to the bot and
// returns what was done with it.
func (a Api) ReceiveMessage(c *gin.Context) {
	var event model2.InboundMessage
	if err := c.ShouldBindJSON(&event); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
		return
	}

	if err := event.ValidateInboundMessage(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
		return
	}

	result, err := a.recon.HandleMessage(c.Request.Context(), event.ToMessage())
	if err != nil {
		apiErr := apierror.NewAPIError(apierror.ErrInternalServer, "failed to handle message", err.Error())
		c.JSON(apierror.MapErrorToHTTPStatus(apiErr), apiErr)
		return
	}

	c.JSON(http.StatusOK, result)
}

func (a Api) ReceiveGroupJoin(c *gin.Context) {
	var event model2.GroupJoinEvent
	if err := c.ShouldBindJSON(&event); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
		return
	}

	if err := event.ValidateGroupJoin(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
		return
	}

	if err := a.recon.HandleGroupJoin(c.Request.Context(), event.ToGroupJoin()); err != nil {
		apiErr := apierror.NewAPIError(apierror.ErrInternalServer, "failed to handle group join", err.Error())
		c.JSON(apierror.MapErrorToHTTPStatus(apiErr), apiErr)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"status": "processed"})
}
