package config

import (
	"fmt"
	"os"
	"strconv"
)

type GlobalConfig struct {
	LogLevel string

	Host string
	Port string

	DBHost     string
	DBPort     int
	DBUser     string
	DBPassword string
	DBName     string

	RedisAddr     string
	RedisPassword string

	RabbitURL string

	UsersServiceAddr string
	WABridgeAddr     string

	AuthDataDir string
}

func NewConfig() (GlobalConfig, error) {
	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		return GlobalConfig{}, fmt.Errorf("LOG_LEVEL environment variable is required")
	}

	host := os.Getenv("HOST")
	if host == "" {
		return GlobalConfig{}, fmt.Errorf("HOST environment variable is required")
	}

	port := os.Getenv("PORT")
	if port == "" {
		return GlobalConfig{}, fmt.Errorf("PORT environment variable is required")
	}

	dbHost := os.Getenv("DB_HOST")
	if dbHost == "" {
		return GlobalConfig{}, fmt.Errorf("DB_HOST environment variable is required")
	}

	dbPortStr := os.Getenv("DB_PORT")
	if dbPortStr == "" {
		return GlobalConfig{}, fmt.Errorf("DB_PORT environment variable is required")
	}
	dbPort, err := strconv.Atoi(dbPortStr)
	if err != nil {
		return GlobalConfig{}, fmt.Errorf("DB_PORT must be a valid integer: %w", err)
	}

	dbUser := os.Getenv("DB_USER")
	if dbUser == "" {
		return GlobalConfig{}, fmt.Errorf("DB_USER environment variable is required")
	}

	dbPassword := os.Getenv("DB_PASSWORD")
	if dbPassword == "" {
		return GlobalConfig{}, fmt.Errorf("DB_PASSWORD environment variable is required")
	}

	dbName := os.Getenv("DB_NAME")
	if dbName == "" {
		return GlobalConfig{}, fmt.Errorf("DB_NAME environment variable is required")
	}

	redisAddr := os.Getenv("REDIS_ADDR")
	if redisAddr == "" {
		return GlobalConfig{}, fmt.Errorf("REDIS_ADDR environment variable is required")
	}

	rabbitURL := os.Getenv("RABBITMQ_URL")
	if rabbitURL == "" {
		return GlobalConfig{}, fmt.Errorf("RABBITMQ_URL environment variable is required")
	}

	usersServiceAddr := os.Getenv("USERS_SERVICE_ADDR")
	if usersServiceAddr == "" {
		return GlobalConfig{}, fmt.Errorf("USERS_SERVICE_ADDR environment variable is required")
	}

	waBridgeAddr := os.Getenv("WA_BRIDGE_ADDR")
	if waBridgeAddr == "" {
		return GlobalConfig{}, fmt.Errorf("WA_BRIDGE_ADDR environment variable is required")
	}

	authDataDir := os.Getenv("AUTH_DATA_DIR")
	if authDataDir == "" {
		authDataDir = ".wwebjs_auth"
	}

	return GlobalConfig{
		LogLevel:         logLevel,
		Host:             host,
		Port:             port,
		DBHost:           dbHost,
		DBPort:           dbPort,
		DBUser:           dbUser,
		DBPassword:       dbPassword,
		DBName:           dbName,
		RedisAddr:        redisAddr,
		RedisPassword:    os.Getenv("REDIS_PASSWORD"),
		RabbitURL:        rabbitURL,
		UsersServiceAddr: usersServiceAddr,
		WABridgeAddr:     waBridgeAddr,
		AuthDataDir:      authDataDir,
	}, nil
}

// GetHost returns the bind host for the HTTP server.
func (c *GlobalConfig) GetHost() string { return c.Host }

// GetPort returns the bind port for the HTTP server.
func (c *GlobalConfig) GetPort() string { return c.Port }
