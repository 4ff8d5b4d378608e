package main

import (
	"log"

	"github.com/m3rciful/finbot/app"
	"github.com/m3rciful/finbot/core/cmd"
)

func main() {
	err := cmd.Run(cmd.Options{
		ConfigEnvVar:      "CONFIG_PATH",
		DefaultConfigPath: "config/config.yaml",
		LoadConfig:        app.LoadConfig,
		Bootstrap:         app.Bootstrap,
	})
	if err != nil {
		log.Fatalf("finbot: %v", err)
	}
}
