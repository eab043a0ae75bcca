package api

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/opsless/policyscan/internal/monitor/database"
	"github.com/opsless/policyscan/internal/monitor/scan"
)

type Api struct {
	policies  *database.PolicyRepo
	alerts    *database.AlertRepo
	events    *database.EventRepo
	snapshots *database.SnapshotRepo
	scanner   *scan.Scanner
	lock      *scan.RunLock
	router    *gin.Engine
}

func NewApi(db *database.Database, scanner *scan.Scanner, lock *scan.RunLock, router *gin.Engine) *Api {
	api := &Api{
		policies:  database.NewPolicyRepo(db),
		alerts:    database.NewAlertRepo(db),
		events:    database.NewEventRepo(db),
		snapshots: database.NewSnapshotRepo(db),
		scanner:   scanner,
		lock:      lock,
		router:    router,
	}
	api.setupRouters(router)
	return api
}

func (api *Api) setupRouters(router *gin.Engine) {
	router.GET("/healthz", api.Healthz)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/v1")
	{
		v1.GET("/policies", api.ListPolicies)
		v1.POST("/policies/:id/scan", api.TriggerScan)
		v1.GET("/alerts", api.ListAlerts)
		v1.GET("/alerts/:id/events", api.ListAlertEvents)
		v1.GET("/alerts/:id/snapshot", api.GetAlertSnapshot)
	}
}

func (api *Api) Healthz(c *gin.Context) {
	c.JSON(200, map[string]string{"status": "ok"})
}
