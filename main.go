package main

import (
	"flag"
	stdlog "log"

	"github.com/mii443/ncb-tts-r2/app"
	"github.com/mii443/ncb-tts-r2/config"
)

func main() {
	configPath := flag.String("config", config.DefaultPath, "path to config.json")
	flag.Parse()

	a, err := app.New(*configPath)
	if err != nil {
		stdlog.Fatalf("startup failed: %v", err)
	}

	if err := a.Run(); err != nil {
		stdlog.Fatalf("run failed: %v", err)
	}
}
