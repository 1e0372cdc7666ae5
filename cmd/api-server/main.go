// Package main API Server 入口
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"jobshield/internal/apiserver/auth"
	"jobshield/internal/apiserver/server"
	"jobshield/internal/apiserver/submission"
	"jobshield/internal/config"
	"jobshield/internal/shared/infra"
	"jobshield/internal/shared/mail"
	"jobshield/internal/shared/objstore"
)

func main() {
	// 加载配置（自动加载 .env，根据 APP_ENV 切换 yaml）
	cfg := config.Load()

	log.Printf("Starting API Server... [env=%s]", cfg.Env)
	log.Printf("Config: %s", cfg.String())

	if cfg.Auth.JWTSecret == "" {
		log.Fatal("JWT_SECRET is required")
	}

	// 初始化持久化存储（按连接串选择 MongoDB / PostgreSQL / SQLite）
	store, err := infra.NewPersistentStore(cfg.DatabaseURL, cfg.DatabaseName)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer store.Close()

	// 初始化限流计数（Redis 未配置时退化为进程内计数）
	rateCache, err := infra.NewCache(cfg.RedisURL)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer rateCache.Close()

	// 初始化对象存储（未配置时禁用文件上传）
	var files submission.FileStore
	if cfg.Minio.AccessKey != "" {
		client, err := objstore.NewClient(cfg.Minio)
		if err != nil {
			log.Fatalf("Failed to create MinIO client: %v", err)
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := client.EnsureBucket(ctx); err != nil {
			cancel()
			log.Fatalf("Failed to ensure MinIO bucket: %v", err)
		}
		cancel()
		files = client
	} else {
		log.Println("[main] MinIO not configured, file uploads disabled")
	}

	// 初始化邮件发送（SMTP 未配置时仅记录日志）
	var mailer mail.Sender
	if cfg.SMTP.Enabled() {
		mailer, err = mail.NewSMTPSender(cfg.SMTP)
		if err != nil {
			log.Fatalf("Failed to create SMTP sender: %v", err)
		}
	} else {
		mailer = mail.NewNoOpSender()
	}

	// 引导管理员账户（幂等）
	if cfg.Admin.Email != "" && cfg.Admin.Password != "" {
		if err := auth.EnsureAdminUser(store, cfg.Auth, cfg.Admin.Email, cfg.Admin.Password); err != nil {
			log.Fatalf("Failed to ensure admin user: %v", err)
		}
	}

	h := server.NewHandler(store, rateCache, files, mailer, cfg.Auth, cfg.RateLimit, cfg.Upload)

	srv := &http.Server{
		Addr:         ":" + cfg.APIPort,
		Handler:      h.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// 优雅关闭
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Println("Shutting down server...")
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			log.Printf("Server shutdown error: %v", err)
		}
	}()

	log.Printf("API Server listening on :%s", cfg.APIPort)
	if err := srv.ListenAndServe(); err != http.ErrServerClosed {
		log.Fatalf("Server error: %v", err)
	}

	fmt.Println("Server stopped")
}
