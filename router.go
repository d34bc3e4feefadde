package main

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/TienThuan29/FreelanceIT-App-sub003/global"
	"github.com/TienThuan29/FreelanceIT-App-sub003/middleware"
	"github.com/TienThuan29/FreelanceIT-App-sub003/service/chat"
)

func newRouter(gw *chat.Gateway, cfg *global.AppConfig) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), middleware.CORS(cfg.AllowedOrigins))

	ws := chat.NewWSServer(gw, cfg.AllowedOrigins)
	r.GET("/ws", ws.HandleWS)

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Online badge data for the marketplace frontend.
	r.GET("/api/presence/online", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"users": gw.Registry().OnlineUsers()})
	})

	return r
}
