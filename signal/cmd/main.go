package main

import (
	"log"

	"github.com/MJ5aif/skillconnect/internal/auth"
	"github.com/MJ5aif/skillconnect/signal/config"
	"github.com/MJ5aif/skillconnect/signal/handler"
	"github.com/MJ5aif/skillconnect/signal/router"
	"github.com/MJ5aif/skillconnect/signal/service"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {
	cfg := config.Load()

	//logger
	logger, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	defer logger.Sync() // flush buffer, 避免丢日志

	r := gin.Default()
	r.Use(cors.New(config.CorsConfig))

	registry := service.NewRoomRegistry()
	relay := service.NewRelay(registry, logger)
	signalHandler := handler.NewSignalHandler(relay, auth.NewVerifier(cfg.TokenSecret), logger)
	router.SetSignalRouter(r, signalHandler)

	// 启动 HTTP 服务
	log.Printf("Signal service started at http://localhost:%d", cfg.Port)
	if err := r.Run(cfg.Addr()); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
