// fleetctl — терминальный клиент backend автопарка: списки, экспорт,
// карточки, документы, печать и пошаговые формы без веб-консоли.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/bigkaa/fleetdesk/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := cli.Run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}
