package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/KOMKZ/go-fabric/agent"
	"github.com/KOMKZ/go-fabric/config"
	"github.com/KOMKZ/go-fabric/logger"
)

func newAgentCmd() *cobra.Command {
	var (
		registryURL string
		serviceName string
		instanceID  string
		address     string
		port        int
	)

	cmd := &cobra.Command{
		Use:   "agent",
		Short: "以注册代理模式运行，托管一个实例的注册与心跳",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			acfg := agent.DefaultConfig()
			// 配置文件的 agent 段作为基础，命令行参数覆盖
			if cfgPath != "" {
				loader, err := config.NewLoaderBuilder().WithConfigPath(cfgPath).Build()
				if err != nil {
					return fmt.Errorf("load config: %w", err)
				}
				if err := loader.UnmarshalKey("agent", &acfg); err != nil {
					return fmt.Errorf("parse agent config: %w", err)
				}
				var logCfg logger.ManagerConfig
				if err := loader.UnmarshalKey("logger", &logCfg); err == nil {
					logCfg.ApplyDefaults()
					logger.InitManager(logCfg)
				}
			}
			defer logger.CloseAll()

			if registryURL != "" {
				acfg.RegistryURL = registryURL
			}
			if serviceName != "" {
				acfg.ServiceName = serviceName
			}
			if instanceID != "" {
				acfg.InstanceID = instanceID
			}
			if address != "" {
				acfg.Address = address
			}
			if port != 0 {
				acfg.Port = port
			}

			a, err := agent.NewAgent(acfg)
			if err != nil {
				return err
			}
			if err := a.Start(ctx); err != nil {
				return err
			}

			log := logger.GetLogger("fabric")
			log.Info("✅ 注册代理运行中",
				zap.String("service", acfg.ServiceName),
				zap.String("instance_id", a.InstanceID()),
				zap.String("registry", acfg.RegistryURL))

			<-ctx.Done()

			stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return a.Stop(stopCtx)
		},
	}

	cmd.Flags().StringVar(&registryURL, "registry", "", "注册中心地址（覆盖配置文件）")
	cmd.Flags().StringVar(&serviceName, "service", "", "逻辑服务名")
	cmd.Flags().StringVar(&instanceID, "instance-id", "", "实例标识（留空自动生成）")
	cmd.Flags().StringVar(&address, "address", "", "实例对外地址")
	cmd.Flags().IntVar(&port, "port", 0, "实例端口")
	return cmd
}
