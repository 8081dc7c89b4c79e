package httptransport

import (
	"log/slog"

	"github.com/ErlanBelekov/pipeline-scheduler/internal/transport/http/handler"
	"github.com/ErlanBelekov/pipeline-scheduler/internal/transport/http/middleware"
	"github.com/gin-gonic/gin"

	sloggin "github.com/samber/slog-gin"
)

// NewRouter builds the admin API. Routes require a bearer token when jwtKey
// is non-empty.
func NewRouter(logger *slog.Logger, scheduleHandler *handler.ScheduleHandler, runHandler *handler.RunHandler, jwtKey []byte) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Security())
	r.Use(sloggin.New(logger))
	r.Use(middleware.Metrics())

	var guards []gin.HandlerFunc
	if len(jwtKey) > 0 {
		guards = append(guards, middleware.Auth(jwtKey))
	}

	schedules := r.Group("/schedules", guards...)
	schedules.GET("", scheduleHandler.List)
	schedules.GET("/:id", scheduleHandler.GetByID)
	schedules.POST("/:id/trigger", scheduleHandler.Trigger)

	runs := r.Group("/runs", guards...)
	runs.GET("", runHandler.List)

	return r
}
