// Package main provides the palaver CLI entry point.
package main

import (
	"bufio"
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/richinex/palaver/client"
	"github.com/richinex/palaver/config"
	"github.com/richinex/palaver/engine"
	"github.com/richinex/palaver/history"
	"github.com/richinex/palaver/llm"
	"github.com/richinex/palaver/server"
	"github.com/richinex/palaver/stream"
	"github.com/richinex/palaver/tools"
)

var (
	// Global flags
	provider string
	verbose  bool
)

func main() {
	// Load .env file if present (ignore "file not found" errors)
	if err := godotenv.Load(); err != nil {
		if !os.IsNotExist(err) {
			fmt.Fprintf(os.Stderr, "Warning: failed to load .env file: %v\n", err)
		}
	}

	rootCmd := &cobra.Command{
		Use:   "palaver",
		Short: "Streaming multi-turn chat with tool-calling",
		Long: `Palaver runs a streaming chat pipeline: a bounded-window history store,
a tool-calling response engine, and an SSE event protocol between them.

Commands:
- serve:   run the HTTP server (streaming submit, history read/delete)
- chat:    interactive terminal chat against a running server
- history: inspect or delete a conversation on a running server`,
	}

	rootCmd.PersistentFlags().StringVarP(&provider, "provider", "p", "openai", "LLM provider (openai, anthropic, deepseek, gemini)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Show verbose output")

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(chatCmd())
	rootCmd.AddCommand(historyCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newLogger() zerolog.Logger {
	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(level).With().Timestamp().Logger()
}

func serveCmd() *cobra.Command {
	var addr string
	var dbPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the chat server",
		RunE: func(cmd *cobra.Command, args []string) error {
			log := newLogger()

			settings, err := config.New(provider)
			if err != nil {
				return err
			}
			if addr != "" {
				settings.Server.ListenAddr = addr
			}
			if dbPath != "" {
				settings.Server.DBPath = dbPath
			}

			apiKey, err := config.APIKeyFor(settings.LLM.Provider)
			if err != nil {
				return err
			}
			providerType, err := llm.ParseProviderType(settings.LLM.Provider)
			if err != nil {
				return err
			}
			llmProvider, err := llm.NewProvider(providerType, apiKey, settings.LLM.Model,
				settings.LLM.MaxTokens, float32(settings.LLM.Temperature))
			if err != nil {
				return err
			}

			store, err := history.OpenSqlite(settings.Server.DBPath)
			if err != nil {
				return err
			}
			defer store.Close()

			registry := tools.NewRegistry()
			for _, t := range []tools.Tool{
				tools.NewSearchTool(settings.Tools.SearchEndpoint, settings.Tools.SearchAPIKey),
				tools.NewOpenTool(),
				tools.NewMemoryTool(),
			} {
				if err := registry.Register(t); err != nil {
					return err
				}
			}

			eng := engine.New(llmProvider, registry, store,
				engine.WithWindowSize(settings.Chat.WindowSize),
				engine.WithMaxToolRounds(settings.Chat.MaxToolRounds),
				engine.WithLogger(log),
			)
			srv := server.New(eng, store,
				server.WithWindowSize(settings.Chat.WindowSize),
				server.WithLogger(log),
			)

			log.Info().
				Str("addr", settings.Server.ListenAddr).
				Str("provider", settings.LLM.Provider).
				Str("model", settings.LLM.Model).
				Msg("server starting")
			return http.ListenAndServe(settings.Server.ListenAddr, srv.Handler())
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default from SERVER_ADDR or :8080)")
	cmd.Flags().StringVar(&dbPath, "db", "", "Database path (default from CHAT_DB_PATH)")

	return cmd
}

func chatCmd() *cobra.Command {
	var serverURL string
	var chatID string
	var userID string

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Interactive chat against a running server",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := []client.ControllerOption{}
			if userID != "" {
				opts = append(opts, client.WithUserID(userID))
			}
			ctrl := client.NewController(serverURL, chatID, opts...)
			ctrl.OnEvent = func(ev stream.Event) {
				switch ev.Name {
				case stream.EventToken:
					if text, err := ev.Token(); err == nil {
						fmt.Print(text)
					}
				case stream.EventReasoning:
					if !verbose {
						return
					}
					if p, err := ev.Reasoning(); err == nil {
						fmt.Fprintf(os.Stderr, "[%s] %s\n", p.Stage, p.Message)
					}
				}
			}

			if chatID != "" {
				if err := ctrl.LoadHistory(cmd.Context(), chatID); err != nil {
					return err
				}
				for _, entry := range ctrl.Conversation().Entries {
					fmt.Printf("%s: %s\n", entry.Role, entry.Text)
				}
			}

			fmt.Println("Type a message, or 'exit' to quit.")
			scanner := bufio.NewScanner(os.Stdin)
			for {
				fmt.Print("> ")
				if !scanner.Scan() {
					return scanner.Err()
				}
				question := strings.TrimSpace(scanner.Text())
				if question == "" {
					continue
				}
				if question == "exit" || question == "quit" {
					return nil
				}

				if err := ctrl.Submit(cmd.Context(), question); err != nil {
					fmt.Fprintf(os.Stderr, "\nerror: %v\n", err)
					continue
				}
				conv := ctrl.Conversation()
				// Rendered again with placeholders resolved from tool state.
				final := client.Transform(conv.Preview, conv.ToolState)
				if final != conv.Preview {
					fmt.Printf("\n\n%s\n", final)
				} else {
					fmt.Println()
				}
			}
		},
	}

	cmd.Flags().StringVar(&serverURL, "server", "http://localhost:8080", "Server base URL")
	cmd.Flags().StringVar(&chatID, "chat", "", "Resume an existing conversation id")
	cmd.Flags().StringVar(&userID, "user", "", "User id attached to submitted turns")

	return cmd
}

func historyCmd() *cobra.Command {
	var serverURL string
	var remove bool

	cmd := &cobra.Command{
		Use:   "history [chatId]",
		Short: "Show or delete a conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			chatID := args[0]
			ctrl := client.NewController(serverURL, chatID)

			if remove {
				if err := ctrl.Delete(context.Background(), chatID); err != nil {
					return err
				}
				fmt.Printf("deleted %s\n", chatID)
				return nil
			}

			if err := ctrl.LoadHistory(context.Background(), chatID); err != nil {
				return err
			}
			for _, entry := range ctrl.Conversation().Entries {
				fmt.Printf("%s: %s\n", entry.Role, entry.Text)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&serverURL, "server", "http://localhost:8080", "Server base URL")
	cmd.Flags().BoolVar(&remove, "delete", false, "Delete the conversation instead of showing it")

	return cmd
}
