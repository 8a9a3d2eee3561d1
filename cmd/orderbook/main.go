package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/exchange/orderbook/internal/config"
	"github.com/exchange/orderbook/internal/engine"
	"github.com/exchange/orderbook/internal/handler"
	"github.com/exchange/orderbook/internal/metrics"
	"github.com/exchange/orderbook/internal/stream"
	"github.com/exchange/orderbook/pkg/auth"
	"github.com/exchange/orderbook/pkg/logger"
	"github.com/exchange/orderbook/pkg/response"
)

func main() {
	cfg := config.Load()

	log.Printf("Starting %s...", cfg.ServiceName)
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	appLog := logger.New(cfg.ServiceName, os.Stdout)
	metrics.Init()

	tokens, err := auth.NewTokenManager(cfg.AuthTokenSecret, cfg.AuthTokenTTL)
	if err != nil {
		log.Fatalf("Failed to init token manager: %v", err)
	}

	eng := engine.New(cfg.Pair, appLog)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Redis 为可选依赖：未配置时不发布事件，引擎照常工作
	var redisClient *redis.Client
	var publisher *stream.Publisher
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:         cfg.RedisAddr,
			Password:     cfg.RedisPassword,
			DB:           cfg.RedisDB,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 5 * time.Second,
		})

		pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
		if err := redisClient.Ping(pingCtx).Err(); err != nil {
			pingCancel()
			log.Fatalf("Failed to connect to Redis: %v", err)
		}
		pingCancel()
		log.Printf("Connected to Redis at %s", cfg.RedisAddr)

		publisher = stream.NewPublisher(redisClient, cfg.EventStream, appLog)
		go publisher.Run(ctx, eng.Events())
		log.Printf("Event publisher started, stream %s", cfg.EventStream)
	}

	h := handler.New(eng, tokens, handler.Credentials{
		Username: cfg.AuthUsername,
		Password: cfg.AuthPassword,
	}, appLog)

	mux := http.NewServeMux()
	h.RegisterRoutes(mux)

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		writeHealth(w, checkDependencies(r.Context(), redisClient, publisher))
	})
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		writeHealth(w, checkDependencies(r.Context(), redisClient, publisher))
	})

	metricsHandler := metrics.Handler()
	if cfg.MetricsToken != "" {
		inner := metricsHandler
		metricsHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !metricsAuthorized(r, cfg.MetricsToken) {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			inner.ServeHTTP(w, r)
		})
	}
	mux.Handle("/metrics", metricsHandler)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           response.RequestIDMiddleware(mux),
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	go func() {
		log.Printf("HTTP server listening on :%d", cfg.HTTPPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP server error: %v", err)
		}
	}()

	// 等待退出信号
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Println("Shutting down...")
	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	server.Shutdown(shutdownCtx)
	if redisClient != nil {
		redisClient.Close()
	}
	log.Println("Shutdown complete")
}

type dependencyStatus struct {
	Name    string `json:"name"`
	Status  string `json:"status"`
	Latency int64  `json:"latency"`
}

type healthResponse struct {
	Status       string             `json:"status"`
	Dependencies []dependencyStatus `json:"dependencies"`
}

func checkDependencies(ctx context.Context, client *redis.Client, publisher *stream.Publisher) []dependencyStatus {
	var deps []dependencyStatus
	if client != nil {
		deps = append(deps, checkRedis(ctx, client))
	}
	if publisher != nil {
		deps = append(deps, checkPublishLoop(publisher))
	}
	return deps
}

func checkRedis(ctx context.Context, client *redis.Client) dependencyStatus {
	start := time.Now()
	timeoutCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	err := client.Ping(timeoutCtx).Err()
	status := "ok"
	if err != nil {
		status = "down"
	}
	return dependencyStatus{
		Name:    "redis",
		Status:  status,
		Latency: time.Since(start).Milliseconds(),
	}
}

func checkPublishLoop(publisher *stream.Publisher) dependencyStatus {
	ok, age, _ := publisher.Healthy(time.Now(), 45*time.Second)
	status := "ok"
	if !ok {
		status = "down"
	}
	return dependencyStatus{
		Name:    "eventPublisher",
		Status:  status,
		Latency: age.Milliseconds(),
	}
}

func writeHealth(w http.ResponseWriter, deps []dependencyStatus) {
	status := "ok"
	for _, dep := range deps {
		if dep.Status != "ok" {
			status = "degraded"
			break
		}
	}
	code := http.StatusOK
	if status != "ok" {
		code = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(healthResponse{
		Status:       status,
		Dependencies: deps,
	})
}

func metricsAuthorized(r *http.Request, token string) bool {
	if strings.TrimSpace(r.Header.Get("X-Metrics-Token")) == token {
		return true
	}
	authz := strings.TrimSpace(r.Header.Get("Authorization"))
	if strings.HasPrefix(authz, "Bearer ") && strings.TrimSpace(strings.TrimPrefix(authz, "Bearer ")) == token {
		return true
	}
	return false
}
