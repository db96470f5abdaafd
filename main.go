package main

import (
	"context"
	"log"

	"go.uber.org/zap"

	"multitrack/internal/config"
	"multitrack/internal/library"
	"multitrack/internal/logging"
	"multitrack/internal/server"
)

func main() {
	// 設定を読み込む
	cfg, err := config.Load("")
	if err != nil {
		log.Fatalf("設定の読み込みに失敗しました: %v", err)
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		log.Fatalf("ロガーの作成に失敗しました: %v", err)
	}
	defer logger.Sync()

	// サーバーを作成
	srv := server.New(cfg, library.New(cfg.Library.Root), logger)

	// サーバーを起動
	if err := srv.Start(context.Background()); err != nil {
		logger.Fatal("サーバーの起動に失敗しました", zap.Error(err))
	}
}
