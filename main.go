package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"kintai-backend/internal/attendance"
	"kintai-backend/internal/civiltime"
	"kintai-backend/internal/platform/auth"
	"kintai-backend/internal/platform/db"
	"kintai-backend/internal/platform/httpx"
)

const devJWTSecret = "dev-only-secret"

func main() {
	path := db.ConfigFilePath
	if len(os.Args) > 1 {
		path = os.Args[1]
	}

	// 設定読み込み
	cfg, err := db.LoadConfig(path)
	if err != nil {
		log.Fatal(err)
	}
	log.Printf("[INFO] mode:%s store:%s tz:%s\n", cfg.Mode, cfg.Store.Driver, cfg.Attendance.TimezoneOffset)

	norm, err := civiltime.New(cfg.Attendance.TimezoneOffset, civiltime.SystemClock{})
	if err != nil {
		log.Fatal(err)
	}
	shift, err := attendance.NewShift(cfg.Attendance.ScheduledStart, *cfg.Attendance.GraceMinutes, *cfg.Attendance.ShiftMinutes)
	if err != nil {
		log.Fatal(err)
	}

	var (
		recordStore  attendance.RecordStore
		accountStore auth.AccountStore
		conn         *sql.DB
	)
	switch cfg.Store.Driver {
	case db.StoreMemory:
		recordStore = attendance.NewMemoryStore()
		accountStore = auth.NewMemoryStore()
		log.Println("[INFO] using in-memory store (data is lost on restart)")
	default:
		conn, err = db.Connect(cfg.DB)
		if err != nil {
			log.Fatal(err)
		}
		defer conn.Close()
		log.Printf("[INFO] connected to DB: %s", cfg.DB.DBName)
		recordStore = attendance.NewMySQLStore(conn, norm)
		accountStore = auth.NewStore(conn)
	}

	secret := []byte(cfg.Auth.JWTSecret)
	if len(secret) == 0 {
		log.Println("[WARN] auth.jwt_secret is empty, using dev secret")
		secret = []byte(devJWTSecret)
	}
	authSvc := auth.NewService(accountStore, secret, cfg.Auth.TokenTTL)
	if err := authSvc.EnsureAdmin(context.Background(), cfg.Auth.AdminID, cfg.Auth.AdminPassword); err != nil {
		log.Fatal(fmt.Errorf("admin account: %w", err))
	}
	attSvc, err := attendance.NewService(recordStore, norm, shift)
	if err != nil {
		log.Fatal(err)
	}

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(httpx.RequestID(), gin.Logger(), gin.Recovery())
	_ = r.SetTrustedProxies(nil)

	if cfg.Mode == "dev" {
		// CORS（開発中のみ必要）
		r.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.Server.CORSOrigins,
			AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", httpx.HeaderRequestID},
			ExposeHeaders:    []string{"Content-Length", "Content-Disposition", "Location", httpx.HeaderRequestID},
			AllowMethods:     []string{"GET", "POST", "OPTIONS"},
			AllowCredentials: true,
		}))
	}

	// ヘルス
	r.GET("/healthz", func(c *gin.Context) { c.String(http.StatusOK, "ok") })

	// /api/v1
	api := r.Group("/api/v1")
	protected := api.Group("", auth.RequireAuth(authSvc.Secret()))
	auth.RegisterRoutes(api, protected, authSvc)
	attendance.RegisterRoutes(protected, attSvc)

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		var err error
		if cfg.Mode == "release" {
			certFile := fmt.Sprintf("config/tls/release/%s", cfg.Certificate.Cert)
			keyFile := fmt.Sprintf("config/tls/release/%s", cfg.Certificate.Key)
			log.Printf("[INFO] listening on https://%s", cfg.Server.Addr)
			err = srv.ListenAndServeTLS(certFile, keyFile)
		} else {
			log.Printf("[INFO] listening on http://%s", cfg.Server.Addr)
			err = srv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal(err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit
	log.Println("[INFO] shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal(err)
	}
}
