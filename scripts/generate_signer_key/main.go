package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/michaelpento.lv/bracketbot/config"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/joho/godotenv"
)

// Generates a proposer key. Add the printed address as an owner of the
// master Safe before proposing with it.
func main() {
	envFile := flag.String("env", ".env", "env file to store the key in as PK")
	flag.Parse()

	privateKey, err := crypto.GenerateKey()
	if err != nil {
		log.Fatal("Failed to generate key:", err)
	}
	privateKeyHex := fmt.Sprintf("0x%x", crypto.FromECDSA(privateKey))
	address := crypto.PubkeyToAddress(privateKey.PublicKey)

	env := map[string]string{}
	if existing, err := godotenv.Read(*envFile); err == nil {
		env = existing
	} else if !os.IsNotExist(err) {
		log.Fatal("Failed to read env file:", err)
	}
	if env[config.EnvPrivateKey] != "" {
		log.Fatalf("%s already holds a %s, refusing to overwrite it", *envFile, config.EnvPrivateKey)
	}
	env[config.EnvPrivateKey] = privateKeyHex

	if err := godotenv.Write(env, *envFile); err != nil {
		log.Fatal("Failed to write env file:", err)
	}
	fmt.Printf("Stored key in %s\n", *envFile)
	fmt.Printf("Proposer address: %s\n", address.Hex())
}
