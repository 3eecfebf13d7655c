package main

import (
	"log"

	"license-api/internal/api"
	"license-api/internal/config"
	"license-api/internal/crypto"
	"license-api/internal/database"
	"license-api/internal/services"
	"license-api/pkg/logging"

	"github.com/gin-gonic/gin"
)

func main() {
	// Initialize configuration
	if err := config.InitConfig(); err != nil {
		log.Fatal("Failed to initialize config:", err)
	}

	// Initialize logging
	logging.InitLogging()

	// The master secret protects private keys at rest; refuse to start
	// without a usable one
	engine, err := crypto.NewEngine(config.AppConfig.MasterEncryptionKey, config.AppConfig.MasterKeyMinLength)
	if err != nil {
		log.Fatal("Failed to initialize crypto engine:", err)
	}
	services.InitCryptoEngine(engine)

	// Initialize database
	if err := database.InitDatabase(); err != nil {
		log.Fatal("Failed to initialize database:", err)
	}

	// Bootstrap the first signing key when none exists
	if _, err := services.NewKeyService().EnsureActiveKey(); err != nil {
		log.Fatal("Failed to ensure active signing key:", err)
	}

	// Set Gin mode
	gin.SetMode(config.AppConfig.Mode)

	// Create Gin engine
	r := gin.Default()

	// Setup routes
	api.SetupRoutes(r)

	// Start server
	port := config.AppConfig.Port
	logging.Infof("Starting server on port %s", port)

	if err := r.Run(":" + port); err != nil {
		log.Fatal("Failed to start server:", err)
	}
}
