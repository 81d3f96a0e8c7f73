package config

import (
	"crypto/ecdsa"
	"fmt"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/joho/godotenv"
)

// Environment variables
const (
	EnvInfuraKey  = "INFURA_KEY"
	EnvPrivateKey = "PK"
	EnvNetwork    = "NETWORK" // mainnet, rinkeby
)

// LoadEnv loads environment variables from the given .env files, or ./.env.
// Variables already set in the environment win.
func LoadEnv(files ...string) error {
	err := godotenv.Load(files...)
	if err != nil && len(files) == 0 && os.IsNotExist(err) {
		return nil
	}
	return err
}

// GetEnvWithDefault gets an environment variable with a default value
func GetEnvWithDefault(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func GetRequiredEnv(key string) (string, error) {
	value := os.Getenv(key)
	if value == "" {
		return "", fmt.Errorf("required environment variable %s not set", key)
	}
	return value, nil
}

// LoadSigner reads the proposing owner's key from PK
func LoadSigner() (*ecdsa.PrivateKey, error) {
	raw, err := GetRequiredEnv(EnvPrivateKey)
	if err != nil {
		return nil, fmt.Errorf("private key not found: %w", err)
	}
	key, err := crypto.HexToECDSA(strings.TrimPrefix(raw, "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid private key in %s: %w", EnvPrivateKey, err)
	}
	return key, nil
}

// InfuraEndpoint builds the RPC endpoint of network from INFURA_KEY
func InfuraEndpoint(network string) (string, error) {
	infuraKey, err := GetRequiredEnv(EnvInfuraKey)
	if err != nil {
		return "", err
	}
	if !IsSupportedNetwork(network) {
		return "", fmt.Errorf("unsupported network: %s", network)
	}
	return fmt.Sprintf("https://%s.infura.io/v3/%s", network, infuraKey), nil
}
