package main

import (
	"context"
	"fmt"
	"os"

	"github.com/kpfister44/Kinnect-sub000/internal/cli"
)

func main() {
	cmd := cli.NewRootCommand()
	if err := cmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "kinnect: %v\n", err)
		os.Exit(cli.GetExitCode(err))
	}
}
