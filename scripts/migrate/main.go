package main

import (
	"context"
	"log"

	"github.com/rs/zerolog"

	"github.com/mahaj/dupahar-messaging/pkg/config"
	"github.com/mahaj/dupahar-messaging/pkg/snowflake"
	"github.com/mahaj/dupahar-messaging/pkg/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	node, err := snowflake.NewNode(cfg.NodeIDs.API)
	if err != nil {
		log.Fatalf("Invalid node id: %v", err)
	}

	log.Printf("Creating %s schema...", cfg.Store.Driver)
	st, err := storage.Open(context.Background(), cfg.Store, node, zerolog.Nop())
	if err != nil {
		log.Fatalf("Failed to migrate: %v", err)
	}
	defer st.Close()

	log.Println("Schema is up to date.")
}
