// fintrack-categorize reassigns a transaction's category through the
// running API, with the same optimistic-update and rollback semantics
// the web view uses.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"fintrack/internal/assign"
	"fintrack/internal/cli"
)

type headlessControl struct{}

func (headlessControl) SetValue(*int64)                     {}
func (headlessControl) SetEnabled(bool)                     {}
func (headlessControl) SetPresentation(assign.Presentation) {}

type stderrNotifier struct{}

func (stderrNotifier) Notify(message string) {
	fmt.Fprintln(os.Stderr, message)
}

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger()

	var (
		apiURL     = flag.String("api", "http://localhost:8080", "base URL of the fintrack API")
		txID       = flag.Int64("tx", 0, "transaction id")
		categoryID = flag.Int64("category", 0, "category id; 0 clears the category")
	)
	flag.Parse()

	if *txID < 1 {
		fmt.Fprintln(os.Stderr, "usage: fintrack-categorize -tx <id> [-category <id>] [-api <url>]")
		os.Exit(2)
	}

	cfg := cli.LoadAndValidateConfig(logger)

	var newCategory *int64
	if *categoryID > 0 {
		newCategory = categoryID
	}

	updater := assign.NewHTTPUpdater(*apiURL, nil)
	controller := assign.NewController(updater, stderrNotifier{}, nil, logger.Logger, assign.Config{
		RequestTimeout: cfg.CategoryRequestTimeout,
	})

	controller.Bind(*txID, nil, headlessControl{})
	if err := controller.RequestCategoryChange(context.Background(), *txID, newCategory); err != nil {
		logger.Error("Category change failed", "transaction_id", *txID, "error", err)
		os.Exit(1)
	}

	logger.Info("Category change committed", "transaction_id", *txID)
}
