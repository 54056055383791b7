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

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"progitek/server/internal/api"
	"progitek/server/internal/config"
	"progitek/server/internal/database"
	"progitek/server/internal/models"
	"progitek/server/internal/services"
	"progitek/server/internal/utils"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "server",
		Short: "ProgiTek back office API",
		Long: `ProgiTek is the back office of Parabellum Groups: clients, missions,
quotes (devis) with DG and client approval, and invoices (factures).

Without a subcommand the HTTP API is started.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			return serve(cfg)
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			return serve(cfg)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			db, err := database.ConnectPostgres(cfg.DatabaseURL, !cfg.IsProduction())
			if err != nil {
				return err
			}
			defer database.ClosePostgres(db)
			if err := models.AutoMigrate(db); err != nil {
				return err
			}
			log.Println("✅ Database schema up to date")
			return nil
		},
	})

	var demo bool
	seedCmd := &cobra.Command{
		Use:   "seed",
		Short: "Create the default administrator (and demo data with --demo)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			db, err := database.ConnectPostgres(cfg.DatabaseURL, !cfg.IsProduction())
			if err != nil {
				return err
			}
			defer database.ClosePostgres(db)
			return seed(db, cfg, demo)
		},
	}
	seedCmd.Flags().BoolVar(&demo, "demo", false, "also create one user per role and a demo client")
	cmd.AddCommand(seedCmd)

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("progitek server %s\n", version)
		},
	})

	return cmd
}

func loadConfig() (*config.Config, error) {
	// a missing .env is normal in production
	if err := godotenv.Load(); err != nil {
		log.Printf("ℹ️ No .env file, using the process environment")
	} else {
		log.Printf("✅ Environment loaded from .env")
	}
	cfg := config.Load()
	log.Printf("📋 DATABASE_URL: %s", maskURL(cfg.DatabaseURL))
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// maskURL hides the credentials of a connection URL for logging.
func maskURL(raw string) string {
	at := strings.Index(raw, "@")
	scheme := strings.Index(raw, "://")
	if at > 0 && scheme > 0 && scheme < at {
		return raw[:scheme+3] + "***@" + raw[at+1:]
	}
	return raw
}

func serve(cfg *config.Config) error {
	db, err := database.ConnectPostgres(cfg.DatabaseURL, !cfg.IsProduction())
	if err != nil {
		return err
	}
	defer database.ClosePostgres(db)

	if err := models.AutoMigrate(db); err != nil {
		return err
	}
	if err := models.SeedDefaultAdmin(db, cfg.AdminEmail, cfg.AdminPassword); err != nil {
		log.Printf("⚠️ Default admin not created: %v", err)
	}

	// Redis is optional: without it the dashboard is not cached and
	// notifications only reach sockets of this instance.
	var cache *utils.RedisClient
	if cfg.RedisURL != "" {
		redisClient, err := database.ConnectRedis(cfg.RedisURL)
		if err != nil {
			log.Printf("⚠️ Redis unavailable, running without cache and fan-out: %v", err)
		} else {
			defer database.CloseRedis(redisClient)
			cache = utils.NewRedisClient(redisClient)
		}
	} else {
		log.Printf("⚠️ REDIS_URL not set, running without cache and fan-out")
	}

	var events services.EventPublisher = services.NopPublisher{}
	if brokers := services.ParseKafkaBrokers(cfg.KafkaBrokers); len(brokers) > 0 {
		transport := services.NewKafkaTransport(cfg.KafkaUsername, cfg.KafkaPassword, cfg.KafkaCACert)
		publisher := services.NewKafkaPublisher(brokers, cfg.KafkaTopic, transport)
		defer func() {
			if err := publisher.Close(); err != nil {
				log.Printf("⚠️ Kafka writer close: %v", err)
			}
		}()
		events = publisher
		log.Printf("📡 Domain events published to Kafka topic %s (%s)", cfg.KafkaTopic, cfg.KafkaBrokers)
	} else {
		log.Printf("⚠️ KAFKA_BROKERS not set, domain events are not published")
	}

	mailer := services.NewSMTPMailer(services.MailConfig{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
		AppURL:   cfg.AppURL,
	})
	if !mailer.Enabled() {
		log.Printf("⚠️ SMTP_HOST not set, welcome and notification e-mails are not delivered")
	}

	hub := api.NewHub()
	audit := services.NewAuditService(db)
	notifications := services.NewNotificationService(db, hub, cache, mailer)
	numbering := services.NewNumberingService()
	invoices := services.NewInvoiceService(db, numbering, audit, notifications, events)
	users := services.NewUserService(db, audit, mailer)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// the hub outlives the signal context so the shutdown notice can go out
	hubCtx, stopHub := context.WithCancel(context.Background())
	defer stopHub()
	go hub.Run(hubCtx)
	go notifications.RunFanout(ctx)
	go invoices.RunOverdueSweep(ctx, cfg.OverdueSweepInterval)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := api.NewRouter(api.Deps{
		DB:            db,
		Auth:          services.NewAuthService(db, audit, cfg.JWTSecret, cfg.JWTTTL),
		Users:         users,
		Clients:       services.NewClientService(db, audit),
		Missions:      services.NewMissionService(db, audit, notifications),
		Quotes:        services.NewQuoteService(db, numbering, audit, notifications, events),
		Invoices:      invoices,
		Audit:         audit,
		Notifications: notifications,
		Reports:       services.NewReportService(db, cache, invoices),
		Messages:      services.NewMessageService(db, audit, notifications),
		Documents:     services.NewDocumentService(db, audit, notifications),
		Hub:           hub,
		CORSOrigin:    cfg.CORSOrigin,
		SecureCookie:  cfg.IsProduction(),
		Version:       version,
	})

	srv := &http.Server{
		Addr:              "0.0.0.0:" + cfg.ServerPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("🚀 Server starting on port %s", cfg.ServerPort)
		log.Printf("📡 API available at http://0.0.0.0:%s/api/v1", cfg.ServerPort)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	log.Println("🛑 Shutting down...")
	hub.AnnounceShutdown()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err = srv.Shutdown(shutdownCtx)
	stopHub()
	if err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	log.Println("✅ Server stopped")
	return nil
}

func seed(db *gorm.DB, cfg *config.Config, demo bool) error {
	if err := models.AutoMigrate(db); err != nil {
		return err
	}
	if err := models.SeedDefaultAdmin(db, cfg.AdminEmail, cfg.AdminPassword); err != nil {
		return err
	}
	if !demo {
		return nil
	}
	return seedDemo(db, cfg.AdminPassword)
}
