// Command coursectl はコース・ユーザー・カートを操作する管理コマンド。
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/hitoshi/courseman/internal/app"
	"github.com/hitoshi/courseman/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cmd := cli.NewRootCommand(app.NewCLIOpener(os.Stderr))
	err := cmd.ExecuteContext(ctx)
	if err == nil {
		return
	}

	// ExitErrorは出力済み
	var exitErr *cli.ExitError
	if !errors.As(err, &exitErr) {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	stop()
	os.Exit(cli.GetExitCode(err))
}
