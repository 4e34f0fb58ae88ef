package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"marketchat/backend/internal/auth"
	"marketchat/backend/internal/config"
	"marketchat/backend/internal/logging"
	"marketchat/backend/internal/models"
	"marketchat/backend/internal/storage"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func usage() {
	fmt.Println("Usage: admin <command> [args]")
	fmt.Println("  migrate")
	fmt.Println("  issue-token <user_id>")
	fmt.Println("  link-telegram <user_id> <chat_id>")
}

func openStorage(cfg config.Config) (*storage.Service, error) {
	if cfg.DatabaseDSN == "" {
		return nil, errors.New("DATABASE_DSN is not set")
	}
	db, err := gorm.Open(postgres.Open(cfg.DatabaseDSN), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}
	return storage.NewStorageService(db), nil
}

func main() {
	cfg := config.Load()
	log := logging.New(cfg.LogLevel)

	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	var err error
	switch command := os.Args[1]; command {
	case "migrate":
		err = migrate(cfg)
	case "issue-token":
		if len(os.Args) != 3 {
			fmt.Println("Usage: admin issue-token <user_id>")
			os.Exit(1)
		}
		err = issueToken(cfg, os.Args[2])
	case "link-telegram":
		if len(os.Args) != 4 {
			fmt.Println("Usage: admin link-telegram <user_id> <chat_id>")
			os.Exit(1)
		}
		chatID, perr := strconv.ParseInt(os.Args[3], 10, 64)
		if perr != nil {
			fmt.Println("Invalid chat id. Please provide an integer.")
			os.Exit(1)
		}
		err = linkTelegram(cfg, os.Args[2], chatID)
	default:
		usage()
		os.Exit(1)
	}

	if err != nil {
		log.Error("admin.fail", "command", os.Args[1], "err", err)
		os.Exit(1)
	}
}

func migrate(cfg config.Config) error {
	s, err := openStorage(cfg)
	if err != nil {
		return err
	}
	if err := s.Migrate(); err != nil {
		return err
	}
	fmt.Println("Migrations complete.")
	return nil
}

func issueToken(cfg config.Config, userID string) error {
	token, err := auth.NewJWTVerifier(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTTTL).Issue(userID)
	if err != nil {
		return err
	}
	fmt.Println(token)
	return nil
}

func linkTelegram(cfg config.Config, userID string, chatID int64) error {
	s, err := openStorage(cfg)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	user, err := s.GetUser(ctx, userID)
	if errors.Is(err, storage.ErrNotFound) {
		user = &models.User{ID: userID}
	} else if err != nil {
		return err
	}
	user.TelegramChatID = &chatID
	if err := s.SaveUser(ctx, user); err != nil {
		return err
	}
	fmt.Printf("User %s will be notified in Telegram chat %d.\n", userID, chatID)
	return nil
}
