package main

import (
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"tilesync/journal"
	"tilesync/server"
)

// tilesync 入口：启动 HTTP + WebSocket 服务，并初始化房间管理器
func main() {
	var (
		addr       string
		configPath string
	)
	flag.StringVar(&configPath, "config", "tilesync.yaml", "path to YAML config")
	flag.StringVar(&addr, "addr", "", "server listen address, e.g. :8080 (overrides config)")
	flag.Parse()

	cfg, err := server.LoadConfig(configPath)
	if err != nil {
		panic(err)
	}
	if addr != "" {
		cfg.Addr = addr
	}
	// 使用第三方 zap 日志库写入日志文件（带滚动）
	if err := server.InitLogger(cfg.Log); err != nil {
		panic(err)
	}
	defer server.SyncLogger()

	var j *journal.Writer
	if cfg.JournalDir != "" {
		j = journal.NewWriter(cfg.JournalDir, "ticks")
	}

	rm := server.InitRoomManager(cfg, j)
	// 先预创建一个默认房间，便于快速试跑
	_ = rm.GetOrCreateRoom("room-1")

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", server.HandleWS)
	// 管理与监控接口
	mux.HandleFunc("/admin/config", server.HandleAdminConfig)
	mux.HandleFunc("/metrics", server.HandleMetrics)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})

	srv := &http.Server{Addr: cfg.Addr, Handler: mux}

	go func() {
		server.Log.Infof("tilesync listening on %s (%d TPS)", cfg.Addr, cfg.TicksPerSecond)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			server.Log.Fatalf("listen: %v", err)
		}
	}()

	// 优雅退出（Ctrl+C）
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	server.Log.Info("Shutting down...")
	rm.Shutdown()
	_ = srv.Close()
	if j != nil {
		if err := j.Close(); err != nil {
			server.Log.Warnw("journal close failed", "err", err)
		}
	}
}
