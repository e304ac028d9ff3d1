// Package params holds node configuration, loaded from .env files and
// environment variables.
package params

import (
	"os"

	"github.com/joho/godotenv"
)

type API struct {
	// Addr is the listen address of the REST/WebSocket server.
	Addr string
	// AllowedOrigins is passed to the CORS layer.
	AllowedOrigins []string
}

type Node struct {
	// DataDir holds the Pebble database with orders, markets and
	// ledger balances.
	DataDir string
	// LogFile receives the JSON log tee; stdout always gets a copy.
	LogFile string
}

type Config struct {
	API  API
	Node Node
}

func Default() Config {
	return Config{
		API: API{
			Addr:           ":8080",
			AllowedOrigins: []string{"http://localhost:3000", "http://localhost:3001"},
		},
		Node: Node{
			DataDir: "data/orderblock.db",
			LogFile: "data/node.log",
		},
	}
}

// LoadFromEnv loads configuration from .env file (if exists) and environment variables
// Priority: ENV > .env file > defaults
func LoadFromEnv(envPath string) Config {
	cfg := Default()

	// Try to load .env file (optional - won't fail if not exists)
	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load() // loads .env from current directory
	}

	if addr := os.Getenv("API_ADDR"); addr != "" {
		cfg.API.Addr = addr
	}
	if dir := os.Getenv("DATA_DIR"); dir != "" {
		cfg.Node.DataDir = dir
	}
	if lf := os.Getenv("LOG_FILE"); lf != "" {
		cfg.Node.LogFile = lf
	}

	return cfg
}
