// Command medreserve runs the pharmacy reservation service: the gRPC and HTTP
// APIs plus the expiry sweeper.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/benjaminabbitt/medreserve/api"
	"github.com/benjaminabbitt/medreserve/config"
	"github.com/benjaminabbitt/medreserve/events"
	"github.com/benjaminabbitt/medreserve/filestore"
	"github.com/benjaminabbitt/medreserve/grpcapi"
	"github.com/benjaminabbitt/medreserve/httpapi"
	"github.com/benjaminabbitt/medreserve/inventory"
	"github.com/benjaminabbitt/medreserve/ledger"
	"github.com/benjaminabbitt/medreserve/medreserve"
	"github.com/benjaminabbitt/medreserve/prescription"
	"github.com/benjaminabbitt/medreserve/reservation"
	"github.com/benjaminabbitt/medreserve/storage/postgres"
	"github.com/benjaminabbitt/medreserve/sweeper"
)

const shutdownTimeout = 10 * time.Second

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("invalid configuration", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("medreserve stopped", zap.Error(err))
	}
	logger.Info("medreserve stopped")
}

// stores holds the persistence chosen by configuration.
type stores struct {
	ledger        ledger.Ledger
	reservations  reservation.Store
	prescriptions prescription.Store
	close         func()
}

func openStores(ctx context.Context, cfg config.Config, logger *zap.Logger) (stores, error) {
	if cfg.DatabaseURL == "" {
		logger.Warn("DATABASE_URL not set, state is kept in memory")
		return stores{
			ledger:        ledger.NewMemoryLedger(),
			reservations:  reservation.NewMemoryStore(),
			prescriptions: prescription.NewMemoryStore(),
			close:         func() {},
		}, nil
	}

	pool, err := postgres.Connect(ctx, postgres.PoolConfig{URL: cfg.DatabaseURL, MaxConns: cfg.DBMaxConns}, logger)
	if err != nil {
		return stores{}, err
	}
	if err := postgres.EnsureSchema(ctx, pool, logger); err != nil {
		pool.Close()
		return stores{}, err
	}
	return stores{
		ledger:        ledger.NewPostgresLedger(pool),
		reservations:  reservation.NewPostgresStore(pool),
		prescriptions: prescription.NewPostgresStore(pool),
		close:         pool.Close,
	}, nil
}

func openPublisher(cfg config.Config, logger *zap.Logger) (events.Publisher, func(), error) {
	fan := events.FanOut{events.NewLogPublisher(logger.Named("events"))}
	if cfg.ConsoleEvents {
		fan = append(fan, events.NewConsolePublisher(os.Stdout))
	}
	if cfg.RabbitURL == "" {
		return fan, func() {}, nil
	}

	amqp, err := events.DialAMQP(events.AMQPConfig{URL: cfg.RabbitURL, Exchange: cfg.RabbitExchange}, logger)
	if err != nil {
		return nil, nil, err
	}
	closeAMQP := func() {
		if err := amqp.Close(); err != nil {
			logger.Warn("closing amqp publisher", zap.Error(err))
		}
	}
	return append(fan, amqp), closeAMQP, nil
}

func run(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	st, err := openStores(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer st.close()

	publisher, closePublisher, err := openPublisher(cfg, logger)
	if err != nil {
		return err
	}
	defer closePublisher()

	files, err := filestore.NewLocal(cfg.UploadDir, cfg.UploadURL, logger.Named("uploads"))
	if err != nil {
		return err
	}

	reservations := reservation.NewManager(st.ledger, st.reservations,
		reservation.WithHoldDuration(cfg.HoldDuration),
		reservation.WithLogger(logger.Named("reservation")),
		reservation.WithPublisher(publisher),
	)
	svc := api.Services{
		Inventory: inventory.NewService(st.ledger,
			inventory.WithLogger(logger.Named("inventory")),
			inventory.WithPublisher(publisher),
		),
		Reservations: reservations,
		Prescriptions: prescription.NewManager(st.prescriptions, files, reservations,
			prescription.WithQuoteValidity(cfg.QuoteValidity),
			prescription.WithMaxFileSize(cfg.MaxFileSize),
			prescription.WithLogger(logger.Named("prescription")),
			prescription.WithPublisher(publisher),
		),
	}
	sweep := sweeper.New(reservations,
		sweeper.WithInterval(cfg.SweepInterval),
		sweeper.WithBatch(cfg.SweepBatch),
		sweeper.WithLogger(logger.Named("sweeper")),
	)
	app := httpapi.New(svc, httpapi.Config{
		UploadDir:   files.Dir(),
		UploadURL:   files.URLPrefix(),
		MaxFileSize: cfg.MaxFileSize,
		RateLimit:   cfg.RateLimit,
		RateWindow:  cfg.RateLimitSpan,
	}, logger)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return medreserve.RunServer(ctx, medreserve.ServerConfig{Name: "medreserve", Port: cfg.GRPCPort},
			logger.Named("grpc"), grpcapi.NewServer(svc, logger.Named("grpc")).RegisterFunc())
	})
	g.Go(func() error {
		logger.Info("http server started", zap.String("port", cfg.HTTPPort))
		return app.Listen(":" + cfg.HTTPPort)
	})
	g.Go(func() error {
		<-ctx.Done()
		return app.ShutdownWithTimeout(shutdownTimeout)
	})
	g.Go(func() error {
		if err := sweep.Run(ctx); !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})

	return g.Wait()
}
