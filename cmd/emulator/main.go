package main

import (
	"github.com/sethvargo/go-signalcontext"

	"github.com/firelite/firelite-backend/internal/events"
	"github.com/firelite/firelite-backend/internal/handlers"
	"github.com/firelite/firelite-backend/internal/logging"
	"github.com/firelite/firelite-backend/internal/store"
	"github.com/firelite/firelite-backend/internal/utils"
	server "github.com/firelite/firelite-backend/pkg/httpserver"
)

func main() {

	ctx, done := signalcontext.OnInterrupt()
	defer done()

	logger := logging.FromContext(ctx)

	config, err := utils.LoadEmulatorConfig(ctx)
	if err != nil {
		logger.Fatalf("could not load config: %v", err)
	}

	handler := handlers.NewHandler(store.NewMemoryStore(), events.NewBus())
	router := handlers.NewRouter(handler)

	srv, err := server.NewServer(ctx, &server.Config{Port: config.Port})
	if err != nil {
		logger.Fatalf("server.New: %v", err)
	}
	logger.Infof("emulator for project %s listening on :%s", config.ProjectID, config.Port)

	if err := srv.ServeHTTPHandler(ctx, router); err != nil {
		logger.Fatal(err)
	}
}
