package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

func badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, map[string]any{
		"error": map[string]any{"code": "INVALID_PARAMETER", "message": message},
	})
}

func internalError(c *gin.Context, err error) {
	c.JSON(http.StatusInternalServerError, map[string]any{
		"error": map[string]any{"code": "INTERNAL_ERROR", "message": err.Error()},
	})
}

func (api *Api) ListPolicies(c *gin.Context) {
	policies, err := api.policies.ListEnabled(c.Request.Context())
	if err != nil {
		internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, map[string]any{"items": policies})
}

// TriggerScan runs one policy immediately, outside the scheduler cadence.
func (api *Api) TriggerScan(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		badRequest(c, "invalid policy id")
		return
	}
	release, ok := api.lock.TryAcquire(c.Request.Context(), id)
	if !ok {
		c.JSON(http.StatusConflict, map[string]any{
			"error": map[string]any{"code": "SCAN_IN_PROGRESS", "message": "a scan for this policy is already running"},
		})
		return
	}
	defer release()
	runTime := time.Now().UTC()
	if err := api.scanner.RunByID(c.Request.Context(), id, runTime); err != nil {
		log.Error().Err(err).Int64("policy", id).Msg("manual scan failed")
		internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, map[string]any{"status": "ok", "run_time": runTime})
}

func (api *Api) ListAlerts(c *gin.Context) {
	var policyID int64
	if raw := c.Query("policy_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			badRequest(c, "invalid policy_id")
			return
		}
		policyID = id
	}
	status := c.Query("status")
	limit := 100
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 1000 {
			badRequest(c, "limit must be 1-1000")
			return
		}
		limit = n
	}

	alerts, err := api.alerts.List(c.Request.Context(), policyID, status, limit)
	if err != nil {
		internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, map[string]any{"items": alerts})
}

func (api *Api) ListAlertEvents(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		badRequest(c, "invalid alert id")
		return
	}
	limit := 100
	if raw := c.Query("limit"); raw != "" {
		if limit, err = strconv.Atoi(raw); err != nil || limit < 1 || limit > 1000 {
			badRequest(c, "limit must be 1-1000")
			return
		}
	}
	events, err := api.events.ListByAlert(c.Request.Context(), id, limit)
	if err != nil {
		internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, map[string]any{"items": events})
}

func (api *Api) GetAlertSnapshot(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		badRequest(c, "invalid alert id")
		return
	}
	snap, err := api.snapshots.Get(c.Request.Context(), id)
	if err != nil {
		internalError(c, err)
		return
	}
	if snap == nil {
		c.JSON(http.StatusNotFound, map[string]any{
			"error": map[string]any{"code": "NOT_FOUND", "message": "snapshot not found"},
		})
		return
	}
	c.JSON(http.StatusOK, snap)
}
