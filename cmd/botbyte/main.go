package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"

	"github.com/botbyte/botbyte-go/internal/ai"
	"github.com/botbyte/botbyte-go/internal/config"
	"github.com/botbyte/botbyte-go/internal/httpserver"
	"github.com/botbyte/botbyte-go/internal/logger"
	"github.com/botbyte/botbyte-go/internal/store"
	"github.com/botbyte/botbyte-go/internal/tools"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.L.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	logger.SetLevel(cfg.Log.Level)

	st, err := store.New(cfg.Database.Path)
	if err != nil {
		logger.L.Error("failed to open conversation store", "path", cfg.Database.Path, "error", err)
		os.Exit(1)
	}
	defer st.Close()

	registry := tools.NewRegistry(context.Background(), cfg.MCPServers)
	defer registry.Close()

	client, err := ai.NewClient(cfg.LLM)
	if err != nil {
		if errors.Is(err, ai.ErrMissingAPIKey) {
			logger.L.Error("no API key configured, set llm.api_key or BOTBYTE_API_KEY")
		} else {
			logger.L.Error("failed to initialize model client", "error", err)
		}
		os.Exit(1)
	}
	chat := ai.NewService(client, cfg.LLM)

	srv := httpserver.New(st, chat)
	srv.SetTools(registry.Tools())
	srv.SetSystemPrompt(cfg.LLM.SystemPrompt)

	addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
	logger.L.Info("starting server", "address", addr, "model", cfg.LLM.Model, "tools", registry.Names())
	if err := http.ListenAndServe(addr, srv.Router()); err != nil {
		logger.L.Error("server stopped", "error", err)
		os.Exit(1)
	}
}
