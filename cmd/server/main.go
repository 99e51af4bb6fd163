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

	"autocare/backend/internal/cache"
	"autocare/backend/internal/config"
	"autocare/backend/internal/domain"
	"autocare/backend/internal/httpapi"
	"autocare/backend/internal/service"
	"autocare/backend/internal/store"
	"autocare/backend/internal/store/memory"
	pgstore "autocare/backend/internal/store/postgres"
)

func main() {
	cfg := config.Load()
	if err := validateSecurityConfig(cfg); err != nil {
		log.Fatalf("invalid security configuration: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var repo store.Repository
	closers := make([]func() error, 0, 2)

	if cfg.DatabaseURL != "" {
		pg, err := pgstore.New(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("postgres unavailable (%v) and DATABASE_URL is set; refusing to start with in-memory fallback", err)
		} else {
			repo = pg
			closers = append(closers, pg.Close)
			log.Println("repository: postgres")
		}
	} else {
		repo = memory.NewSeeded()
		log.Println("repository: in-memory")
	}

	var settingCache cache.SettingCache = cache.Noop{}
	var lotCache cache.LotCache = cache.Noop{}
	if cfg.RedisAddr != "" {
		redisCache := cache.NewRedisCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err := redisCache.Ping(ctx); err != nil {
			log.Printf("redis unavailable (%v), using noop cache", err)
		} else {
			settingCache = redisCache
			lotCache = redisCache
			closers = append(closers, redisCache.Close)
			log.Println("cache: redis")
		}
	} else {
		log.Println("cache: noop")
	}

	svc := service.New(repo, settingCache, lotCache, time.Duration(cfg.SettingsTTLSeconds)*time.Second)

	if cfg.SupervisorPassword != "" {
		bootstrapCtx := service.WithActor(ctx, domain.Actor{Username: "system", Role: "admin"})
		if _, err := svc.UpdateSetting(bootstrapCtx, domain.SettingSupervisorPassword, cfg.SupervisorPassword); err != nil {
			log.Fatalf("failed to set supervisor password from SUPERVISOR_PASSWORD: %v", err)
		}
		log.Println("supervisor password: bootstrapped from environment")
	}

	auth := httpapi.NewAuthManager(cfg.AuthSecret, time.Duration(cfg.AccessTokenTTLMinutes)*time.Minute, repo)
	api := httpapi.New(svc, auth, cfg.AllowedOrigin)

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("workshop backend listening on %s", cfg.Address())
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}

	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			log.Printf("close error: %v", err)
		}
	}

	log.Println("server stopped")
}

func validateSecurityConfig(cfg config.Config) error {
	if len(cfg.AuthSecret) < 32 {
		return fmt.Errorf("AUTH_SECRET must be set and at least 32 characters")
	}
	if cfg.SupervisorPassword != "" {
		if len(cfg.SupervisorPassword) < 6 {
			return fmt.Errorf("SUPERVISOR_PASSWORD must be at least 6 characters")
		}
		if err := validatePasswordStrength(cfg.SupervisorPassword); err != nil {
			return fmt.Errorf("SUPERVISOR_PASSWORD is too weak: %w", err)
		}
	}
	return nil
}

// validatePasswordStrength rejects passwords that are all the same character,
// sequential digits (ascending or descending), or from a known-weak list.
func validatePasswordStrength(password string) error {
	known := map[string]bool{
		"123456": true, "654321": true, "000000": true, "111111": true,
		"password": true, "senha123": true, "supervisor": true, "admin123": true,
		"121212": true, "112233": true, "123123": true, "qwerty": true,
	}
	if known[password] {
		return fmt.Errorf("common password not allowed")
	}

	allSame := true
	for i := 1; i < len(password); i++ {
		if password[i] != password[0] {
			allSame = false
			break
		}
	}
	if allSame {
		return fmt.Errorf("all-same-character password not allowed")
	}

	ascending, descending := true, true
	for i := 1; i < len(password); i++ {
		diff := int(password[i]) - int(password[i-1])
		if diff != 1 {
			ascending = false
		}
		if diff != -1 {
			descending = false
		}
	}
	if ascending || descending {
		return fmt.Errorf("sequential password not allowed")
	}

	return nil
}
