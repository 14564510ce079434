package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"

	"github.com/verdantlabs/plantdoc/internal/ai"
	claudeai "github.com/verdantlabs/plantdoc/internal/ai/claude"
	geminiai "github.com/verdantlabs/plantdoc/internal/ai/gemini"
	openaiai "github.com/verdantlabs/plantdoc/internal/ai/openai"
	"github.com/verdantlabs/plantdoc/internal/backend"
	"github.com/verdantlabs/plantdoc/internal/chat"
	"github.com/verdantlabs/plantdoc/internal/config"
	"github.com/verdantlabs/plantdoc/internal/detect"
	"github.com/verdantlabs/plantdoc/internal/imaging"
	"github.com/verdantlabs/plantdoc/internal/logging"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: plantdoc <image-file>")
		os.Exit(1)
	}
	imagePath := os.Args[1]

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger, cleanup, err := logging.New(cfg.LogLevel, "text", cfg.LogFile)
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer cleanup()

	client := newAIClient(cfg, logger)
	if client == nil {
		os.Exit(1)
	}

	if err := run(cfg, logger, client, imagePath); err != nil {
		logger.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func newAIClient(cfg *config.Config, logger *slog.Logger) ai.Client {
	switch cfg.AIBackend {
	case "gemini":
		if cfg.GeminiAPIKey == "" {
			logger.Error("GEMINI_API_KEY is required when AI_BACKEND=gemini")
			return nil
		}
		logger.Info("using Gemini backend", "vision_model", cfg.GeminiVisionModel, "chat_model", cfg.GeminiChatModel)
		return geminiai.NewClient(cfg.GeminiAPIKey, cfg.GeminiVisionModel, cfg.GeminiChatModel)
	case "claude":
		if cfg.ClaudeAPIKey == "" {
			logger.Error("CLAUDE_API_KEY is required when AI_BACKEND=claude")
			return nil
		}
		logger.Info("using Claude backend", "model", cfg.ClaudeModel)
		return claudeai.NewClient(cfg.ClaudeAPIKey, cfg.ClaudeModel)
	case "openai":
		if cfg.OpenAIAPIKey == "" {
			logger.Error("OPENAI_API_KEY is required when AI_BACKEND=openai")
			return nil
		}
		logger.Info("using OpenAI backend", "model", cfg.OpenAIModel)
		return openaiai.NewClient(cfg.OpenAIAPIKey, cfg.OpenAIModel)
	default:
		logger.Error("unknown AI_BACKEND", "backend", cfg.AIBackend)
		return nil
	}
}

func run(cfg *config.Config, logger *slog.Logger, client ai.Client, imagePath string) error {
	ctx := context.Background()

	img, err := imaging.Load(imagePath)
	if err != nil {
		return err
	}

	detector := detect.NewDetector(client, logger)
	rec, err := detector.Analyze(ctx, img)
	if err != nil {
		return err
	}

	fmt.Printf("Detection result for %s:\n\n%s\n\n", img.Filename, rec.Result)

	// Persistence is fire-and-forget: the diagnosis above stands even if the
	// backend is down.
	saver := backend.NewClient(cfg.BackendURL)
	if id, err := saver.Save(ctx, rec); err != nil {
		logger.Warn("failed to save detection result", "error", err)
	} else {
		logger.Info("detection result saved", "record_id", id)
	}

	controller := chat.NewController(client, logger)
	controller.OnAssistantDelta = func(delta string) { fmt.Print(delta) }

	if err := controller.OnNewDiagnosis(ctx, rec); err != nil {
		logger.Warn("chat unavailable", "error", err)
	}
	if err := controller.Open(ctx); err != nil {
		logger.Warn("chat unavailable", "error", err)
		return nil
	}

	turns := controller.Transcript()
	fmt.Println(turns[len(turns)-1].Text)
	fmt.Println(`Ask follow-up questions, or type "exit" to quit.`)

	scanner := bufio.NewScanner(os.Stdin)
	fmt.Print("> ")
	for scanner.Scan() {
		line := scanner.Text()
		if line == "exit" || line == "quit" {
			break
		}

		err := controller.Submit(ctx, line)
		switch {
		case errors.Is(err, chat.ErrBusy):
			fmt.Println("Still answering the previous question.")
		case errors.Is(err, chat.ErrNoSession):
			fmt.Println("No chat session is ready; analyze an image first.")
		case err != nil:
			// The apology turn has already been appended; show it.
			turns := controller.Transcript()
			fmt.Println(turns[len(turns)-1].Text)
		default:
			fmt.Println()
		}
		fmt.Print("> ")
	}
	return scanner.Err()
}
