package main

import (
	"github.com/edutime/edutime-server/config"
	"github.com/edutime/edutime-server/models"
	"github.com/edutime/edutime-server/routes"
	"github.com/edutime/edutime-server/utils"
)

func main() {
	cfg := config.Load()

	// Initialize logger early
	if err := utils.InitLogger(cfg); err != nil {
		panic(err)
	}

	db := config.InitDatabase(
		&models.User{},
		&models.Family{},
		&models.Wallet{},
		&models.Transaction{},
		&models.Session{},
		&models.RateLimitRecord{},
	)

	r := routes.SetupRouter(db)

	utils.Sugar.Infof("Starting server on port %s (graceful)", cfg.AppPort)
	if err := utils.GraceServer(":"+cfg.AppPort, r); err != nil {
		utils.Sugar.Fatalf("server stopped with error: %v", err)
	}
}
