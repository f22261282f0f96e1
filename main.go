package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	alarmrepo "alarmcast/internal/alarms/infrastructure/postgres"
	alarmnotify "alarmcast/internal/alarms/notify"
	apihttp "alarmcast/internal/api/http"
	"alarmcast/internal/audit"
	"alarmcast/internal/auth"
	"alarmcast/internal/broadcast"
	"alarmcast/internal/config"
	"alarmcast/internal/db"
	"alarmcast/internal/observability/metrics"
	"alarmcast/internal/permissions"
	"alarmcast/internal/registry"
	"alarmcast/internal/transport/ws"
)

func main() {
	root := &cobra.Command{
		Use:   "alarmcast",
		Short: "Permission-filtered alarm broadcast service",
	}
	root.AddCommand(serveCmd())
	root.AddCommand(migrateCmd())
	root.AddCommand(tokenCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the alarm broadcast service",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logger := log.New(os.Stdout, "", log.LstdFlags)

			ctx := context.Background()
			conn, err := db.Open(ctx, cfg.DatabaseURL)
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := db.ApplyMigrations(ctx, conn); err != nil {
				return err
			}

			metrics.Init(conn, logger)

			reg := registry.NewRegistry()
			metrics.RegisterConnectionGauges(reg.UserCount, reg.ConnectionCount)

			permRepo := permissions.NewRepository(conn)
			alarmSource := alarmrepo.NewActiveAlarmRepository(conn)

			caster, err := broadcast.NewBroadcaster(reg, permRepo, logger,
				broadcast.WithWorkers(cfg.FanoutWorkers),
				broadcast.WithSendTimeout(cfg.SendTimeout),
			)
			if err != nil {
				return err
			}

			var pollerOpts []broadcast.PollerOption
			if cfg.WebhookURL != "" {
				template, err := alarmnotify.NewTemplate(cfg.NotifyTemplate)
				if err != nil {
					return err
				}
				var observers []broadcast.ChangeObserver
				for _, raw := range strings.Split(cfg.WebhookURL, ",") {
					url := strings.TrimSpace(raw)
					if url == "" {
						continue
					}
					channel, err := alarmnotify.NewWebhookChannel(url)
					if err != nil {
						return err
					}
					notifier, err := alarmnotify.NewNotifier(channel, template,
						alarmnotify.WithCooldown(cfg.NotifyCooldown),
						alarmnotify.WithDedupeWindow(cfg.NotifyDedupeWindow),
					)
					if err != nil {
						return err
					}
					observers = append(observers, notifier)
				}
				switch len(observers) {
				case 0:
				case 1:
					pollerOpts = append(pollerOpts, broadcast.WithNotifier(observers[0]))
				default:
					pollerOpts = append(pollerOpts, broadcast.WithNotifier(alarmnotify.NewMultiNotifier(observers...)))
				}
			}
			poller, err := broadcast.NewPoller(alarmSource, caster, cfg.PollInterval, logger, pollerOpts...)
			if err != nil {
				return err
			}

			sessionRepo := audit.NewRepository(conn)
			socket, err := ws.NewHandler(reg, poller, caster, logger,
				ws.WithSendBuffer(cfg.SendBuffer),
				ws.WithJournal(audit.NewRecorder(sessionRepo, logger)),
			)
			if err != nil {
				return err
			}

			policy := auth.NewDefaultPolicy([]string{"/healthz", "/metrics"}, nil)
			authMiddleware := auth.NewMiddleware([]byte(cfg.JWTSecret), policy)

			bgCtx, bgCancel := context.WithCancel(context.Background())
			defer bgCancel()

			limitCfg := apihttp.DefaultRateLimitConfig()
			limitCfg.Rate = rate.Limit(cfg.RateLimitRate)
			limitCfg.Burst = cfg.RateLimitBurst

			router, err := apihttp.NewRouter(apihttp.Deps{
				Snapshots: poller,
				Resolver:  permRepo,
				Presence:  reg,
				Socket:    socket,
				Auth:      authMiddleware,
				Sessions:  sessionRepo,
				RateLimit: apihttp.RateLimit(bgCtx, limitCfg, logger),
			})
			if err != nil {
				return err
			}

			go poller.Run(bgCtx)

			srv := &http.Server{Addr: cfg.HTTPAddr, Handler: loggingMiddleware(router, logger)}
			go func() {
				logger.Printf("http listening on %s", cfg.HTTPAddr)
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					logger.Printf("listen error: %v", err)
				}
			}()

			stop := make(chan os.Signal, 2)
			signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
			<-stop
			logger.Printf("shutting down")

			shCtx, shCancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer shCancel()
			if err := srv.Shutdown(shCtx); err != nil {
				return fmt.Errorf("shutdown: %w", err)
			}
			return nil
		},
	}
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
			defer cancel()
			conn, err := db.Open(ctx, cfg.DatabaseURL)
			if err != nil {
				return err
			}
			defer conn.Close()
			return db.ApplyMigrations(ctx, conn)
		},
	}
}

func tokenCmd() *cobra.Command {
	var userID, role, secret string
	var ttl time.Duration

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a development JWT",
		RunE: func(cmd *cobra.Command, args []string) error {
			if secret == "" {
				secret = os.Getenv("AUTH_JWT_SECRET")
			}
			if secret == "" {
				secret = os.Getenv("JWT_SECRET")
			}
			if secret == "" {
				return errors.New("token: secret required (--secret or AUTH_JWT_SECRET)")
			}
			if _, ok := auth.NormalizeRole(role); !ok {
				return fmt.Errorf("token: unknown role %q", role)
			}

			now := time.Now()
			claims := auth.Claims{
				UserID: userID,
				Role:   role,
				RegisteredClaims: jwt.RegisteredClaims{
					Subject:   userID,
					IssuedAt:  jwt.NewNumericDate(now),
					ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
				},
			}
			signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
			if err != nil {
				return err
			}
			fmt.Println(signed)
			return nil
		},
	}

	cmd.Flags().StringVar(&userID, "user", "dev-user", "user id claim")
	cmd.Flags().StringVar(&role, "role", "viewer", "role claim (viewer, operator, admin)")
	cmd.Flags().StringVar(&secret, "secret", "", "signing secret (defaults to AUTH_JWT_SECRET)")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	return cmd
}

func loggingMiddleware(next http.Handler, logger *log.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/ws" {
			// The upgrade needs the raw http.Hijacker.
			next.ServeHTTP(w, r)
			return
		}
		start := time.Now()
		resp := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(resp, r)
		logger.Printf("http %s %s %d %s", r.Method, r.URL.Path, resp.status, time.Since(start))
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}
