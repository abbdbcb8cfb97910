package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tournethub/coordinator/internal/config"
	"tournethub/coordinator/internal/httpapi"
	"tournethub/coordinator/internal/logging"
)

func main() {
	configPath := flag.String("config", "", "path to the YAML configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logging.L().Fatal("configuration invalid", logging.Error(err))
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		logging.L().Fatal("logger initialisation failed", logging.Error(err))
	}
	logging.ReplaceGlobals(logger)
	defer logger.Sync()

	server, err := NewServer(cfg, logger)
	if err != nil {
		logger.Fatal("server initialisation failed", logging.Error(err))
	}

	handlers := httpapi.NewHandlerSet(httpapi.Options{
		Logger:       logger,
		Readiness:    server,
		Stats:        server,
		Disconnector: server,
		AdminToken:   cfg.AdminToken,
		RateLimiter:  httpapi.NewSlidingWindowLimiter(time.Minute, 10, nil),
	})

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", server.ServeWS)
	mux.Handle("/", handlers.Routes())

	httpServer := &http.Server{
		Addr:    cfg.Address,
		Handler: mux,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("coordinator listening",
			logging.String("address", cfg.Address),
			logging.String("websocket_url", cfg.WebsocketURL()))
		if cfg.TLSCertPath != "" && cfg.TLSKeyPath != "" {
			errCh <- httpServer.ListenAndServeTLS(cfg.TLSCertPath, cfg.TLSKeyPath)
			return
		}
		errCh <- httpServer.ListenAndServe()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server failed", logging.Error(err))
		}
	case sig := <-stop:
		logger.Info("shutting down", logging.String("signal", sig.String()))
	}

	//1.- Stop accepting new connections, then tear the subsystems down.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Warn("http shutdown incomplete", logging.Error(err))
	}
	if err := server.Close(); err != nil {
		logger.Error("server close failed", logging.Error(err))
	}
	logger.Info("coordinator stopped")
}
