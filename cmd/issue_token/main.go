// Command issue_token mints a bearer token for local testing, signed with
// the configured JWT_SECRET.
//
//	go run ./cmd/issue_token -user <user-id>
//	go run ./cmd/issue_token -staff <admin-id>
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/vthuan-dev/bufforder-sub001/internal/auth"
	"github.com/vthuan-dev/bufforder-sub001/internal/config"
)

func main() {
	userID := flag.String("user", "", "end-user id to issue a token for")
	staffID := flag.String("staff", "", "staff id to issue a token for")
	flag.Parse()

	_ = godotenv.Load()
	jwtManager := auth.NewJWTManager(config.New())

	var (
		token string
		err   error
	)
	switch {
	case *userID != "" && *staffID != "":
		err = fmt.Errorf("pass either -user or -staff, not both")
	case *userID != "":
		token, err = jwtManager.GenerateUserToken(*userID)
	case *staffID != "":
		token, err = jwtManager.GenerateStaffToken(*staffID)
	default:
		flag.Usage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
	fmt.Println(token)
}
