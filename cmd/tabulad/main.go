package main

import (
	"log"

	"github.com/tabula-sync/tabula/internal/app"
)

func main() {
	if err := app.New().Run(); err != nil {
		log.Fatalf("❌ tabulad failed to start: %v", err)
	}
}
