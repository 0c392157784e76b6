package main

import (
	"fmt"
	"os"

	"github.com/yungbote/nftbridge-backend/internal/app"
)

func main() {
	application, err := app.New()
	if err != nil {
		fmt.Printf("Failed to init app: %v\n", err)
		os.Exit(1)
	}
	defer application.Close()

	application.Start()

	fmt.Printf("Server listening on %s\n", application.Cfg.HTTPAddr)
	if err := application.Run(application.Cfg.HTTPAddr); err != nil {
		application.Log.Warn("Server failed", "error", err)
	}
}
