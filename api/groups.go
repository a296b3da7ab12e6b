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
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/blnkfinance/payrecon/internal/apierror"
)

const defaultRankingLimit = 20

func (a Api) GetGroups(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"groups": a.recon.Ledgers().Groups()})
}

// GetRanking returns the leaderboard of a group. ?format=text returns the
// chat message the ranking command would post.
func (a Api) GetRanking(c *gin.Context) {
	id, passed := c.Params.Get("id")
	if !passed {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id is required. pass id in the route /:id"})
		return
	}

	if c.Query("format") == "text" {
		c.String(http.StatusOK, a.recon.RankingText(id))
		return
	}

	limit := defaultRankingLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			apiErr := apierror.NewAPIError(apierror.ErrInvalidInput, "limit must be a positive integer", nil)
			c.JSON(apierror.MapErrorToHTTPStatus(apiErr), apiErr)
			return
		}
		limit = n
	}

	count, amount := a.recon.Ledgers().Totals(id)
	c.JSON(http.StatusOK, gin.H{
		"group_id":        id,
		"ranking":         a.recon.Ledgers().Ranking(id, limit),
		"total_purchases": count,
		"total_amount":    amount,
	})
}

func (a Api) GetInactive(c *gin.Context) {
	id, passed := c.Params.Get("id")
	if !passed {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id is required. pass id in the route /:id"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"group_id": id,
		"inactive": a.recon.Ledgers().Inactive(id),
	})
}
