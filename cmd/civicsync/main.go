// Command civicsync is the offline cache and sync CLI.
package main

import (
	"context"
	"os"

	"github.com/roach88/civicsync/internal/cli"
)

func main() {
	os.Exit(cli.Execute(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}
