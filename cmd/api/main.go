package main

import (
	"log"

	"github.com/ledgerbank/ledger-core/internal/pkg/components"
	"github.com/ledgerbank/ledger-core/internal/pkg/logging"
)

func main() {
	container, err := components.New()
	if err != nil {
		log.Fatalf("Failed to initialize application: %v", err)
	}

	logging.Info("Ledger core initialized successfully", map[string]interface{}{
		"port": container.GetConfig().Server.Port,
	})

	if err := container.Start(); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
