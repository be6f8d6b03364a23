package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"lv-tradesim/internal/auth"
)

func main() {
	userID := flag.String("user", "", "user id to put in the token subject")
	ttl := flag.Duration("ttl", 24*time.Hour, "token lifetime")
	flag.Parse()
	issuer := os.Getenv("JWT_ISSUER")
	secret := os.Getenv("JWT_SECRET")
	if issuer == "" || secret == "" {
		log.Fatal("JWT_ISSUER and JWT_SECRET must be set")
	}
	token, err := auth.NewService(issuer, []byte(secret), *ttl).SignToken(*userID)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println(token)
}
