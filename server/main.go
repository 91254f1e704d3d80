package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	gfshutdown "github.com/gelmium/graceful-shutdown"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/reflection"

	pb "github.com/ponyo877/huddle/grpc"
	"github.com/ponyo877/huddle/server/adaptor"
	"github.com/ponyo877/huddle/server/auth"
	"github.com/ponyo877/huddle/server/broadcast"
	"github.com/ponyo877/huddle/server/config"
	"github.com/ponyo877/huddle/server/domain"
	"github.com/ponyo877/huddle/server/logger"
	"github.com/ponyo877/huddle/server/notify"
	"github.com/ponyo877/huddle/server/repository"
	"github.com/ponyo877/huddle/server/storage"
	"github.com/ponyo877/huddle/server/usecase"
)

const shutdownTimeout = 30 * time.Second

var cfgFile string

var rootCmd = &cobra.Command{
	Use:           "huddle-server",
	Short:         "Real-time chat and call signaling server",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return err
		}
		return run(cfg)
	},
}

var tokenCmd = &cobra.Command{
	Use:   "token <email> [display name]",
	Short: "Issue a signed token for development",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return err
		}
		ttl, err := cmd.Flags().GetDuration("ttl")
		if err != nil {
			return err
		}
		name := ""
		if len(args) == 2 {
			name = args[1]
		}
		token, err := auth.NewJWTAuthenticator(cfg.JWT.Secret, cfg.JWT.Issuer).Issue(args[0], name, ttl)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (yaml, toml or json)")
	tokenCmd.Flags().Duration("ttl", 24*time.Hour, "token lifetime")
	rootCmd.AddCommand(tokenCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type closableNotifier interface {
	usecase.Notifier
	Close() error
}

func run(cfg *config.Config) error {
	log, err := logger.New(cfg.Log.Development, cfg.Log.Level)
	if err != nil {
		return err
	}
	defer log.Sync()

	ctx := context.Background()

	var uploader usecase.Uploader
	if cfg.S3.Bucket != "" {
		store, err := storage.NewS3Store(ctx, storage.S3Config{
			Bucket:        cfg.S3.Bucket,
			Region:        cfg.S3.Region,
			Endpoint:      cfg.S3.Endpoint,
			PublicBaseURL: cfg.S3.PublicBaseURL,
		})
		if err != nil {
			return err
		}
		uploader = store
	}

	db, err := repository.Open(cfg.DB.Path)
	if err != nil {
		return err
	}
	repo := repository.NewRepository(db)
	presence := domain.NewPresenceRegistry()

	var hub domain.Broadcaster
	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		hub, err = broadcast.NewRedisHub(ctx, client, cfg.Redis.Prefix, log)
		if err != nil {
			repo.Close()
			return err
		}
		log.Info("using redis broadcaster", zap.String("addr", cfg.Redis.Addr))
	} else {
		hub = broadcast.NewHub(log)
	}

	var notifier closableNotifier
	if len(cfg.Kafka.Brokers) > 0 {
		notifier = notify.NewKafkaNotifier(cfg.Kafka.Brokers, cfg.Kafka.InvitationTopic, notify.BreakerConfig{
			MaxFailures: cfg.Notify.BreakerFailures,
			Timeout:     cfg.Notify.BreakerTimeout,
		}, log)
	} else {
		notifier = notify.NewLogNotifier(log)
	}

	coord := usecase.NewCoordinator(repo, repo, repo, presence, hub, notifier, log)
	calls := usecase.NewCallLog(repo, log)
	relay := usecase.NewRelay(presence, hub, log, calls)
	manager := usecase.NewSessionManager(coord, relay, usecase.SessionConfig{
		OutboxSize:    cfg.Session.OutboxSize,
		RatePerSecond: cfg.Session.RatePerSecond,
		Burst:         cfg.Session.Burst,
		HistorySize:   cfg.Session.HistorySize,
		CloseTimeout:  cfg.Session.CloseTimeout,
		WriteTimeout:  cfg.Session.WriteTimeout,
	}, log)
	authn := auth.NewJWTAuthenticator(cfg.JWT.Secret, cfg.JWT.Issuer)

	grpcServer := grpc.NewServer(
		grpc.KeepaliveParams(keepalive.ServerParameters{Time: 30 * time.Second, Timeout: 10 * time.Second}),
		grpc.KeepaliveEnforcementPolicy(keepalive.EnforcementPolicy{MinTime: 10 * time.Second, PermitWithoutStream: true}),
	)
	pb.RegisterRoomServiceServer(grpcServer, adaptor.NewAdaptor(manager, authn, log))
	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus(pb.RoomService_ServiceDesc.ServiceName, healthpb.HealthCheckResponse_SERVING)
	reflection.Register(grpcServer)

	app := adaptor.NewServer(coord, manager, calls, authn, uploader, log).App(cfg.HTTP.BodyLimitBytes)

	lis, err := net.Listen("tcp", cfg.GRPC.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", cfg.GRPC.Addr, err)
	}

	var g errgroup.Group
	g.Go(func() error {
		log.Info("grpc server listening", zap.String("addr", cfg.GRPC.Addr))
		if err := grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			interruptSelf(log, err)
			return fmt.Errorf("grpc server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		log.Info("http server listening", zap.String("addr", cfg.HTTP.Addr))
		if err := app.Listen(cfg.HTTP.Addr); err != nil {
			interruptSelf(log, err)
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	wait := gfshutdown.GracefulShutdown(ctx, shutdownTimeout, map[string]gfshutdown.Operation{
		// one operation so that the steps run in order
		"huddle": func(ctx context.Context) error {
			log.Info("graceful shutdown initiated")
			healthServer.Shutdown()
			var errs []error
			errs = append(errs, manager.Shutdown(ctx))
			stopGRPC(ctx, grpcServer)
			errs = append(errs, app.ShutdownWithContext(ctx))
			stats := manager.Stats()
			log.Info("sessions closed",
				zap.Int64("total_sessions", stats.TotalSessions),
				zap.Int("live_rooms", coord.LiveRoomCount()),
				zap.String("uptime", stats.Uptime),
			)
			errs = append(errs, hub.Close(), notifier.Close(), repo.Close())
			return errors.Join(errs...)
		},
	})

	exitCode := <-wait
	if err := g.Wait(); err != nil {
		log.Error("listener failed", zap.Error(err))
		if exitCode == 0 {
			exitCode = 1
		}
	}
	log.Info("server exited", zap.Int("exit_code", exitCode))
	if exitCode != 0 {
		return fmt.Errorf("exit code %d", exitCode)
	}
	return nil
}

// stopGRPC drains streams until ctx expires, then cuts them.
func stopGRPC(ctx context.Context, s *grpc.Server) {
	done := make(chan struct{})
	go func() {
		s.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.Stop()
	}
}

// interruptSelf turns a listener failure into the same shutdown path as ^C.
func interruptSelf(log *zap.Logger, cause error) {
	log.Error("listener stopped", zap.Error(cause))
	p, err := os.FindProcess(os.Getpid())
	if err == nil {
		err = p.Signal(os.Interrupt)
	}
	if err != nil {
		log.Error("failed to signal shutdown", zap.Error(err))
	}
}
