package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"chatparty/api"
	"chatparty/data/mongoutil"
	"chatparty/global/config"
	"chatparty/logger"
	midsec "chatparty/middleware/security"
	"chatparty/module/chat/seq"
	"chatparty/module/chat/store"
	"chatparty/service/chat"
	"chatparty/service/gateway"
	"chatparty/service/natsx"
	"chatparty/service/storage"
	redisx "chatparty/service/storage/redis"
	jwt "chatparty/tools/security"
)

func main() {
	cfg := config.Load()

	// redis first: the seq allocator cannot hand out order keys without it
	if err := redisx.InitRedis(redisx.Config{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPass,
		DB:       cfg.RedisDB,
	}); err != nil {
		logger.Errorf("[boot] redis: %v", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	mongoCli, err := mongoutil.NewMongoDB(ctx, &mongoutil.Config{
		Uri:      cfg.MongoURI,
		Database: cfg.MongoDB,
	})
	cancel()
	if err != nil {
		logger.Errorf("[boot] mongo: %v", err)
		os.Exit(1)
	}
	db := mongoCli.GetDB()

	convStore := store.NewMongoConversationStore(db)
	if err := convStore.EnsureIndexes(context.Background()); err != nil {
		logger.Errorf("[boot] indexes: %v", err)
		os.Exit(1)
	}
	alloc := &seq.Allocator{
		Rdb: redisx.GetRedis(),
		DAO: seq.NewMongoDAO(db),
	}
	msgStore := store.NewMongoMessageStore(db, convStore, alloc)

	fan := chat.NewFanout(4, 4096)
	router := chat.NewRouter(fan)

	var bridge gateway.EventBridge
	var natsCli *natsx.NatsxClient
	if len(cfg.NatsServers) > 0 {
		natsCli, err = natsx.NewNatsxClient(natsx.NatsxConfig{
			Servers: cfg.NatsServers,
			Name:    cfg.GatewayID,
		})
		if err != nil {
			logger.Errorf("[boot] nats: %v", err)
			os.Exit(1)
		}
		b := natsx.NewBridge(natsCli, cfg.GatewayID, router)
		if err := b.Start(); err != nil {
			logger.Errorf("[boot] nats bridge: %v", err)
			os.Exit(1)
		}
		bridge = b
		logger.Infof("[boot] cross-instance bridge on %v", cfg.NatsServers)
	}

	gw := gateway.New(convStore, msgStore, router, bridge)
	disp := gateway.NewDispatcher(gw)

	connMgr := chat.NewConnManager(chat.ManagerConf{}, cfg.GatewayID)
	connMgr.SetOnExpire(func(c *chat.Client) { router.OnDisconnect(c) })

	jwtOpts := jwt.DefaultOptions(cfg.JwtSecretBytes())
	wsSrv := chat.NewWSServer(connMgr, disp, jwtOpts).
		WithPresence(storage.NewRedisPresence(), cfg.PresenceTTL)

	engine := gin.Default()
	api.New(gw, wsSrv, midsec.DefaultOptions(jwtOpts)).Register(engine)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler: engine,
	}
	go func() {
		logger.Infof("[boot] %s listening on :%d", cfg.GatewayID, cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Errorf("[boot] http: %v", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Infof("[boot] shutting down")

	shutCtx, shutCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutCancel()
	_ = srv.Shutdown(shutCtx)

	// stop remote frames before tearing the router down
	if natsCli != nil {
		_ = natsCli.Close()
	}
	connMgr.Close()
	router.Shutdown()
	_ = mongoCli.Close(shutCtx)
	_ = redisx.CloseRedis()
}
