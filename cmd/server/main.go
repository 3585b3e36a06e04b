package main

import (
	"os"

	"github.com/ruralpay/ledger/internal/commands"
)

// @title Ledger API
// @version 1.0
// @description Multi-tenant double-entry ledger: tenants, account hierarchies, pending and posted transactions.
// @BasePath /api/v1
// @schemes http https
func main() {
	if err := commands.NewRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
