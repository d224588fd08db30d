package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"coinvault.com/internal/deposit/app"
)

func main() {
	// SIGINT/SIGTERM 取消 ctx，各组件跟着退出
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.Run(ctx); err != nil {
		log.Fatalf("deposit-service: %v", err)
	}
}
