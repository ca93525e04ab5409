package main

import (
	"flag"
	"fmt"
	"os"

	"golang.org/x/crypto/bcrypt"

	"planillas/models"
	"planillas/pkg/config"
	"planillas/pkg/logger"
	"planillas/pkg/store"
)

func main() {
	role := flag.String("role", models.RoleOperator, "role name (administrator or operador)")
	flag.Parse()
	if flag.NArg() < 2 {
		fmt.Println("usage: go run ./cmd/create_user [-role administrator] <username> <password>")
		os.Exit(2)
	}
	username, password := flag.Arg(0), flag.Arg(1)

	log := logger.New(false)
	_ = config.LoadDotEnv(".env")
	st, err := store.Open(os.Getenv("DB_DSN"), log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open db")
	}
	if err := st.Migrate(); err != nil {
		log.Warn().Err(err).Msg("migration")
	}
	db := st.DB()

	var r models.Role
	if err := db.Where("name = ?", *role).First(&r).Error; err != nil {
		log.Fatal().Err(err).Str("role", *role).Msg("unknown role")
	}

	var existing models.User
	if err := db.Where("username = ?", username).First(&existing).Error; err == nil {
		fmt.Printf("user %s already exists (id=%d)\n", username, existing.ID)
		os.Exit(0)
	}

	hpw, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		log.Fatal().Err(err).Msg("bcrypt failed")
	}
	rid := r.ID
	user := models.User{Username: username, HashedPassword: hpw, RoleID: &rid}
	if err := db.Create(&user).Error; err != nil {
		log.Fatal().Err(err).Msg("failed to create user")
	}
	fmt.Printf("created user %s id=%d role=%s\n", username, user.ID, r.Name)
}
