package http

import (
	"github.com/dkeye/VideoRoom/internal/config"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

func SetupRouter(cfg *config.Config, room Room) *gin.Engine {
	if cfg.HTTP.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.HTTP.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	h := &handlers{room: room}
	api := r.Group("/api")
	api.GET("/room", h.getRoom)
	api.GET("/publishers", h.getPublishers)
	api.POST("/publish", h.publish)
	api.POST("/unpublish", h.unpublish)
	api.POST("/leave", h.leave)

	log.Info().Str("module", "adapters.http").Str("room", cfg.Room).Msg("router setup")
	return r
}
