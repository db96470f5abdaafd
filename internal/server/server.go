package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"multitrack/internal/config"
	"multitrack/internal/library"
)

// shutdownTimeout はグレースフルシャットダウンの待機上限
const shutdownTimeout = 5 * time.Second

// Server はHTTPサーバーを管理する構造体
type Server struct {
	config     *config.Config
	httpServer *http.Server
	engine     *gin.Engine
	logger     *zap.Logger

	mu    sync.Mutex
	addr  net.Addr
	ready chan struct{}
}

// New は新しいServerインスタンスを作成する
func New(cfg *config.Config, lib *library.Library, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}

	gin.SetMode(cfg.Server.Mode)
	engine := gin.New()
	// /song/:id の id にエスケープされた "/" を含められるようにする。
	// gin の復号は "+" を空白にするため、復号は pathParam で行う
	engine.UseRawPath = true
	engine.UnescapePathValues = false
	engine.SetHTMLTemplate(loadTemplates())

	s := &Server{
		config: cfg,
		engine: engine,
		logger: logger,
		ready:  make(chan struct{}),
		httpServer: &http.Server{
			Addr:         cfg.ServerAddress(),
			Handler:      engine,
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
		},
	}
	s.setupRoutes(&handler{library: lib, title: "multitrack"})

	return s
}

// setupRoutes はHTTPルートを設定する
func (s *Server) setupRoutes(h *handler) {
	s.engine.Use(requestLogger(s.logger), gin.Recovery(), cors(s.config.Server.AllowOrigin))

	// ヘルスチェックエンドポイント
	s.engine.GET("/health", h.health)

	// 楽曲エンドポイント
	s.engine.GET("/list-audio/:dir", h.listAudio)
	s.engine.GET("/song/:id", h.streamSong)

	// プレースホルダーページ
	s.engine.GET("/", h.index)
	s.engine.GET("/songs", h.index)
	s.engine.POST("/song", h.index)
	s.engine.POST("/track", h.index)
}

// Handler はルーティング済みのhttp.Handlerを返す
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Ready はリッスン開始後にクローズされるチャンネルを返す
func (s *Server) Ready() <-chan struct{} {
	return s.ready
}

// Addr は実際にリッスンしているアドレスを返す。起動前は空文字
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.addr == nil {
		return ""
	}
	return s.addr.String()
}

// Start はサーバーを起動する
func (s *Server) Start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("サーバーの起動に失敗: %w", err)
	}

	s.mu.Lock()
	s.addr = listener.Addr()
	s.mu.Unlock()

	// シャットダウン用のチャンネル
	shutdownCh := make(chan error, 1)

	// サーバーを別ゴルーチンで起動
	go func() {
		s.logger.Info("HTTPサーバーを起動しています", zap.String("address", listener.Addr().String()))
		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			shutdownCh <- fmt.Errorf("サーバーの起動に失敗: %w", err)
		}
	}()
	close(s.ready)

	// シグナルハンドリング
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	// コンテキストかシグナルを待つ
	select {
	case <-ctx.Done():
		s.logger.Info("コンテキストがキャンセルされました")
	case sig := <-sigCh:
		s.logger.Info("シグナルを受信しました", zap.String("signal", sig.String()))
	case err := <-shutdownCh:
		return err
	}

	// グレースフルシャットダウン
	return s.Shutdown()
}

// Shutdown はサーバーをグレースフルにシャットダウンする
func (s *Server) Shutdown() error {
	s.logger.Info("サーバーをシャットダウンしています")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("サーバーのシャットダウンに失敗: %w", err)
	}

	s.logger.Info("サーバーが正常にシャットダウンされました")
	return nil
}
