package main

import (
	"github.com/spf13/cobra"
)

var cfgPath string

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "fabric",
		Short: "服务注册与健康感知路由",
		Long: `fabric 是服务注册中心与入口网关的组合：
实例通过 HTTP API 注册并心跳续约，巡检任务按心跳超时
驱动 HEALTHY/SUSPECT/DEAD 状态机；网关按静态路由表把
请求解析到健康实例，出站调用受熔断器保护。`,
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVarP(&cfgPath, "config", "c", "",
		"配置文件或配置目录路径（目录模式加载 config.yaml + {env}.yaml）")

	root.AddCommand(newServeCmd())
	root.AddCommand(newAgentCmd())
	return root
}
