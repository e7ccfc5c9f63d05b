package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"rag-gateway/internal/app/handlers"
)

var askCmd = &cobra.Command{
	Use:   "ask <query>",
	Short: "在进程内执行一次查询并输出 JSON 结果",
	Long: `在进程内装配网关并执行一次查询，结果以 JSON 输出到标准输出。
多个参数会以空格拼接为一个问题。

Examples:
  rag-gateway ask "What is Amazon Bedrock?"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAsk,
}

func runAsk(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	config, log, err := loadConfig(ctx)
	if err != nil {
		return err
	}

	app, err := initializeApplication(ctx, config, log, true)
	if err != nil {
		return err
	}
	defer func() { _ = app.close(context.Background()) }()

	query := strings.Join(args, " ")
	requestID := uuid.New().String()

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")

	result, err := app.gateway.Ask(ctx, &query, requestID)
	if err != nil {
		resp := handlers.NewErrorResponse(err, requestID)
		_ = enc.Encode(resp)
		return fmt.Errorf("query failed: %s", resp.Error)
	}

	return enc.Encode(result)
}
