// Package main печатает административный токен, подписанный секретом из
// конфига.
package main

import (
	"flag"
	"fmt"
	"log"

	"github.com/magabrotheeeer/companion-gate/internal/config"
	"github.com/magabrotheeeer/companion-gate/internal/lib/jwt"
)

func main() {
	subject := flag.String("subject", "admin", "operator name stored in the token")
	ttl := flag.Duration("ttl", 0, "token lifetime, config admin.token_ttl when zero")
	flag.Parse()

	cfg := config.MustLoad()
	if cfg.JWTSecretKey == "" {
		log.Fatal("admin jwt secret is not set")
	}

	lifetime := cfg.TokenTTL
	if *ttl > 0 {
		lifetime = *ttl
	}

	token, err := jwt.NewJWTMaker(cfg.JWTSecretKey, lifetime).GenerateToken(*subject, jwt.RoleAdmin)
	if err != nil {
		log.Fatalf("failed to generate token: %v", err)
	}
	fmt.Println(token)
}
