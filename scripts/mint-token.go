package main

import (
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/denisAlshanov/audioworker/internal/config"
	"github.com/denisAlshanov/audioworker/internal/services/auth"
)

func main() {
	client := flag.String("client", "cli", "client name embedded in the token")
	ttl := flag.Duration("ttl", 24*time.Hour, "token lifetime")
	flag.Parse()

	fmt.Println("Audio Worker Token Minter")
	fmt.Println("=========================")

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	jwtService := auth.NewJWTService(auth.JWTConfig{SecretKey: cfg.API.JWTSecret})
	if !jwtService.Enabled() {
		log.Fatal("JWT_SECRET is not set - the service only accepts the static API key")
	}

	token, err := jwtService.GenerateToken(*client, *ttl)
	if err != nil {
		log.Fatalf("Failed to generate token: %v", err)
	}

	// Sanity check against the same secret
	claims, err := jwtService.ValidateToken(token)
	if err != nil {
		log.Fatalf("Generated token does not validate: %v", err)
	}

	fmt.Printf("Client:  %s\n", claims.Client)
	fmt.Printf("Expires: %s\n", claims.ExpiresAt.Time.Format(time.RFC3339))
	fmt.Println()
	fmt.Printf("Authorization: Bearer %s\n", token)
}
