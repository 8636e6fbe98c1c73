package main

import (
	"context"
	"log"

	"stocktake/services/catalog/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().ExecuteContext(context.Background()); err != nil {
		log.Fatalf("catalog: %v", err)
	}
}
