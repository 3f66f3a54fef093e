package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/KOMKZ/go-fabric/breaker"
	"github.com/KOMKZ/go-fabric/config"
	"github.com/KOMKZ/go-fabric/event"
	"github.com/KOMKZ/go-fabric/gateway"
	"github.com/KOMKZ/go-fabric/logger"
	"github.com/KOMKZ/go-fabric/registry"
	"github.com/KOMKZ/go-fabric/router"
	"github.com/KOMKZ/go-fabric/server"
	"github.com/KOMKZ/go-fabric/telemetry"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "启动注册中心与网关",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}
}

func runServe(parent context.Context) error {
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	builder := config.NewLoaderBuilder()
	if cfgPath != "" {
		builder.WithConfigPath(cfgPath)
	}
	loader, err := builder.Build()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	cfg, err := config.LoadFabricConfig(loader)
	if err != nil {
		return err
	}

	logger.InitManager(cfg.Logger)
	defer logger.CloseAll()
	log := logger.GetLogger("fabric")

	// 链路追踪
	tel := telemetry.NewManager(cfg.Telemetry, nil)
	if err := tel.Start(ctx); err != nil {
		return fmt.Errorf("start telemetry: %w", err)
	}
	defer func() { _ = tel.Shutdown(context.Background()) }()

	// 事件分发（可选 Kafka 外发）
	dispatcherOpts := []event.DispatcherOption{}
	var publisher event.KafkaPublisher
	if cfg.Event.KafkaEnabled {
		publisher, err = event.NewSaramaPublisher(cfg.Event.Kafka, log.GetZapLogger())
		if err != nil {
			return fmt.Errorf("init kafka publisher: %w", err)
		}
		defer publisher.Close()
		dispatcherOpts = append(dispatcherOpts, event.WithKafkaPublisher(publisher))
	}
	dispatcher := event.NewDispatcher(dispatcherOpts...)
	defer dispatcher.Close()

	// Kafka 桥接：订阅到的生命周期事件直接经生产者外发，
	// 不再走 Dispatch(WithKafka)，避免监听回路
	if publisher != nil {
		forward := event.ListenerFunc(func(ctx context.Context, e event.Event) error {
			return publisher.PublishJSON(ctx, cfg.Event.Topic, e.Name(), e.Payload())
		})
		for _, name := range []string{
			registry.EventInstanceRegistered,
			registry.EventInstanceDeregistered,
			registry.EventInstanceSuspect,
			registry.EventInstanceDead,
			registry.EventInstanceEvicted,
			registry.EventInstanceRecovered,
			"breaker.state.changed",
		} {
			dispatcher.Subscribe(name, forward, event.WithAsync())
		}
	}

	// 注册表存储 + 心跳巡检
	store, err := cfg.Registry.NewStore()
	if err != nil {
		return fmt.Errorf("init registry store: %w", err)
	}
	defer store.Close()

	monitor, err := registry.NewMonitor(store, cfg.Heartbeat, registry.WithDispatcher(dispatcher))
	if err != nil {
		return fmt.Errorf("init monitor: %w", err)
	}
	if err := monitor.Start(); err != nil {
		return fmt.Errorf("start monitor: %w", err)
	}
	defer func() { _ = monitor.Stop() }()

	// 熔断 + 路由
	breakers, err := breaker.NewManager(cfg.Breaker)
	if err != nil {
		return fmt.Errorf("init breaker: %w", err)
	}
	defer breakers.Close()

	// 熔断状态变化桥接到事件分发器，与注册表生命周期事件同一出口
	breakers.GetEventBus().Subscribe(breaker.EventListenerFunc(func(e breaker.Event) {
		sc, ok := e.(*breaker.StateChangedEvent)
		if !ok {
			return
		}
		_ = dispatcher.Dispatch(e.Context(), event.NewEvent("breaker.state.changed", map[string]interface{}{
			"key":  e.Key(),
			"from": sc.FromState.String(),
			"to":   sc.ToState.String(),
		}), event.WithDispatchAsync())
	}), breaker.EventStateChanged)

	resolver := router.NewRouter(store)

	srv, err := server.NewServer(cfg.Server, store, monitor)
	if err != nil {
		return fmt.Errorf("init registry server: %w", err)
	}
	gw, err := gateway.NewGateway(cfg.Gateway, resolver, breakers)
	if err != nil {
		return fmt.Errorf("init gateway: %w", err)
	}

	log.Info("✅ fabric 启动",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("registry_backend", cfg.Registry.Backend),
		zap.Strings("config_files", loader.GetLoadedFiles()))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(srv.Start)
	g.Go(gw.Start)
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx := context.Background()
		if err := gw.Shutdown(shutdownCtx); err != nil {
			log.Error("网关关闭失败", zap.Error(err))
		}
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("注册中心关闭失败", zap.Error(err))
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	log.Info("fabric 已退出")
	return nil
}
