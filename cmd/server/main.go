// Package main 是 rag-gateway 的入口，提供 serve、ask、worker 三个命令。
package main

import (
	"os"

	"github.com/spf13/cobra"

	"rag-gateway/configs"
)

var (
	// configPath 配置文件路径，优先于默认搜索路径
	configPath string
	// version 构建时注入
	version = "dev"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "rag-gateway",
	Short: "检索增强问答网关",
	Long: `rag-gateway 接收自然语言问题，经过内容审核、知识库检索、模型生成、
输出审核后返回带来源的答案，并缓存成功结果。

不带子命令运行时等同于 serve。`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: false,
	RunE:          runServe,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if configPath != "" {
			_ = os.Setenv(configs.ConfigPathEnv, configPath)
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "配置文件路径（默认按 $RAG_GATEWAY_CONFIG、configs/config.yaml 顺序查找）")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(workerCmd)
}
