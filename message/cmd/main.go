package main

import (
	"log"

	"github.com/MJ5aif/skillconnect/internal/auth"
	"github.com/MJ5aif/skillconnect/message/config"
	"github.com/MJ5aif/skillconnect/message/handler"
	"github.com/MJ5aif/skillconnect/message/repo"
	"github.com/MJ5aif/skillconnect/message/router"
	"github.com/MJ5aif/skillconnect/message/service"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {
	cfg := config.Load()
	db, err := repo.InitDB(cfg.DatabaseDSN)
	if err != nil {
		log.Fatalf("Fail to initialize Database:%v", err)
	}
	defer repo.CloseDB()

	rdb, err := repo.InitRedis(cfg.RedisAddr, cfg.RedisPass)
	if err != nil {
		log.Fatalf("Fail to initialize Redis:%v", err)
	}
	defer repo.CloseRedis()

	//logger
	logger, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	defer logger.Sync() // flush buffer, 避免丢日志

	r := gin.Default()
	r.Use(cors.New(config.CorsConfig))

	messageRepo := repo.NewMessageRepo(db)
	presenceRepo := repo.NewPresenceRedis(rdb)
	messageService := service.NewMessageService(messageRepo, presenceRepo, logger)
	hub := service.NewHub(messageService, logger)
	messageHandler := handler.NewMessageHandler(messageService)
	wsHandler := handler.NewWSHandler(hub, auth.NewVerifier(cfg.TokenSecret), logger)
	router.SetMessageRouter(r, messageHandler, wsHandler)

	// 启动 HTTP 服务
	log.Printf("Message service started at http://localhost:%d", cfg.Port)
	if err := r.Run(cfg.Addr()); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
