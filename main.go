package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/TienThuan29/FreelanceIT-App-sub003/data/mongoutil"
	"github.com/TienThuan29/FreelanceIT-App-sub003/global"
	"github.com/TienThuan29/FreelanceIT-App-sub003/logger"
	chatstore "github.com/TienThuan29/FreelanceIT-App-sub003/module/chat/store"
	"github.com/TienThuan29/FreelanceIT-App-sub003/module/project"
	"github.com/TienThuan29/FreelanceIT-App-sub003/module/user"
	"github.com/TienThuan29/FreelanceIT-App-sub003/service/chat"
	"github.com/TienThuan29/FreelanceIT-App-sub003/service/storage"
	"github.com/TienThuan29/FreelanceIT-App-sub003/tools/ids"
)

func main() {
	cfg := global.Load()
	ids.SetNodeID(1)
	defer logger.Sync()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	mongoCli, err := mongoutil.NewMongoDB(ctx, &mongoutil.Config{
		Uri:         cfg.MongoURI,
		Database:    cfg.MongoDatabase,
		Username:    cfg.MongoUser,
		Password:    cfg.MongoPassword,
		MaxPoolSize: cfg.MongoPoolSize,
		MaxRetry:    cfg.MongoMaxRetry,
	})
	cancel()
	if err != nil {
		logger.Errorf("mongo connect: %v", err)
		os.Exit(1)
	}
	defer func() { _ = mongoCli.Close(context.Background()) }()
	db := mongoCli.GetDB()

	deps := chat.Deps{
		Verifier: chat.NewJWTVerifier(cfg.JWTSecret),
		Store:    chatstore.New(db),
		Teams:    project.NewMemberStore(db),
		Users:    user.NewStore(db),
	}

	if cfg.RedisAddr != "" {
		mirror, merr := storage.NewPresenceMirror(storage.Config{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		}, cfg.PresenceTTL)
		if merr != nil {
			logger.Warnf("presence mirror disabled: %v", merr)
		} else {
			deps.Mirror = mirror
			defer func() { _ = mirror.Close() }()
		}
	}

	gw := chat.New(chat.Config{
		MaxConnsPerUser: cfg.MaxConnsPerUser,
		PresenceWindow:  cfg.PresenceWindow,
		TypingWindow:    cfg.TypingWindow,
		JoinLeaveWindow: cfg.JoinLeaveWindow,
		DedupeWindow:    cfg.DedupeWindow,
		CleanupInterval: cfg.CleanupInterval,
		StaleMaxAge:     cfg.StaleMaxAge,
		SendQueueSize:   cfg.SendQueueSize,
		FanoutWorkers:   cfg.FanoutWorkers,
		FanoutQueue:     cfg.FanoutQueue,
		PingInterval:    cfg.PingInterval,
		PongWait:        cfg.PongWait,
	}, deps)
	gw.Start()
	defer gw.Close()

	router := newRouter(gw, cfg)
	srv := &http.Server{Addr: cfg.Addr, Handler: router}
	go func() {
		if serr := srv.ListenAndServe(); serr != nil && !errors.Is(serr, http.ErrServerClosed) {
			logger.Errorf("http server: %v", serr)
		}
	}()
	logger.Infof("conversation gateway listening on %s", cfg.Addr)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down")

	shCtx, shCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shCancel()
	_ = srv.Shutdown(shCtx)
}
