package main

import (
	"context"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"

	"hrops.org/internal/access"
	"hrops.org/internal/audit"
	"hrops.org/internal/auth"
	"hrops.org/internal/config"
	"hrops.org/internal/directory"
	"hrops.org/internal/grant"
	"hrops.org/internal/httpapi"
	"hrops.org/internal/obs"
	"hrops.org/internal/org"
	"hrops.org/internal/store/pg"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	obs.Init()
	obs.InitBuildInfo(cfg.Version, cfg.Commit)

	if err := auth.EnsureSecret(); err != nil {
		log.Fatalf("auth: %v (set HROPS_AUTH_SECRET)", err)
	}
	if cfg.DatabaseURL == "" {
		log.Fatal("missing database DSN: set HROPS_DATABASE_URL")
	}
	store, err := pg.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer store.Close()

	orgs, err := org.NewService(store.Org())
	if err != nil {
		log.Fatalf("org service: %v", err)
	}
	engine, err := access.NewEngine(store.RolePerms(), store.Grants(), orgs)
	if err != nil {
		log.Fatalf("access engine: %v", err)
	}
	recorder, err := audit.NewRecorder(store.Audit())
	if err != nil {
		log.Fatalf("audit recorder: %v", err)
	}
	users, err := directory.NewService(store.Users(), engine, recorder)
	if err != nil {
		log.Fatalf("directory service: %v", err)
	}
	grants, err := grant.NewService(store.Grants(), store.Users(), store.RolePerms(), engine, recorder)
	if err != nil {
		log.Fatalf("grant service: %v", err)
	}

	api := httpapi.New(httpapi.Deps{
		Engine:    engine,
		Directory: users,
		Orgs:      orgs,
		Grants:    grants,
		AuditLog:  store.Audit(),
		Recorder:  recorder,
		Ready:     httpapi.ReadyProbe{DB: store.DB()},
		Version:   cfg.Version,
		TokenTTL:  cfg.TokenTTL,
	})

	handler := httpapi.RequestID(
		httpapi.Logging(
			httpapi.SecurityHeaders(
				httpapi.CORS(
					httpapi.RateLimit(
						httpapi.MaxBodyBytes(api.Handler(), cfg.MaxBodyBytes),
						cfg.RateBurst, cfg.RateLimitRPS),
					cfg.CORSOrigin))))

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// gRPC carries only the standard health service, for probes from
	// infrastructure that does not speak HTTP.
	grpcSrv := grpc.NewServer()
	healthSrv := health.NewServer()
	healthSrv.SetServingStatus("hrops-api", grpc_health_v1.HealthCheckResponse_SERVING)
	grpc_health_v1.RegisterHealthServer(grpcSrv, healthSrv)

	go func() {
		lis, err := net.Listen("tcp", cfg.GRPCAddr)
		if err != nil {
			log.Fatalf("grpc listen: %v", err)
		}
		if err := grpcSrv.Serve(lis); err != nil {
			log.Fatalf("grpc serve: %v", err)
		}
	}()

	log.Printf("starting hrops-api %s on %s (grpc %s)", cfg.Version, cfg.Addr, cfg.GRPCAddr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("shutting down...")
	healthSrv.SetServingStatus("hrops-api", grpc_health_v1.HealthCheckResponse_NOT_SERVING)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	_ = srv.Shutdown(ctx)
	grpcSrv.GracefulStop()
	log.Println("stopped")
}
