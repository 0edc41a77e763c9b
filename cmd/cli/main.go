package main

import (
	"fmt"
	"os"

	"github.com/wadjakorntonsri/geo-shortener/pkg/config"
	"github.com/wadjakorntonsri/geo-shortener/pkg/logger"
)

func main() {
	cfg := config.Load()
	logger.Initialize(cfg.LogLevel, true)

	if err := newRootCmd(cfg).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
