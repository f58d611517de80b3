package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/stellarlinkco/quinn/internal/agent"
	"github.com/stellarlinkco/quinn/internal/config"
	"github.com/stellarlinkco/quinn/internal/memory"
)

var rootCmd = &cobra.Command{
	Use:   "quinn",
	Short: "quinn - conversational assistant with a graph-backed memory",
}

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Talk to the assistant in single message or REPL mode",
	RunE:  runChat,
}

var ingestCmd = &cobra.Command{
	Use:   "ingest <file>",
	Short: "Store a text file as a durable memory",
	Args:  cobra.ExactArgs(1),
	RunE:  runIngest,
}

var entityCmd = &cobra.Command{
	Use:   "entity <name>",
	Short: "Show what the memory graph knows about an entity",
	Args:  cobra.ExactArgs(1),
	RunE:  runEntity,
}

var forgetCmd = &cobra.Command{
	Use:   "forget",
	Short: "Erase all stored memories",
	RunE:  runForget,
}

var onboardCmd = &cobra.Command{
	Use:   "onboard",
	Short: "Initialize config and workspace",
	RunE:  runOnboard,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show quinn status",
	RunE:  runStatus,
}

var (
	messageFlag string
	sourceFlag  string
	yesFlag     bool
)

func init() {
	chatCmd.Flags().StringVarP(&messageFlag, "message", "m", "", "Single message to send")
	ingestCmd.Flags().StringVar(&sourceFlag, "source", "", "Source label for the document (defaults to the file name)")
	forgetCmd.Flags().BoolVar(&yesFlag, "yes", false, "Confirm erasing all memories")
	rootCmd.AddCommand(chatCmd, ingestCmd, entityCmd, forgetCmd, onboardCmd, statusCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger() zerolog.Logger {
	level := zerolog.InfoLevel
	if os.Getenv("QUINN_DEBUG") != "" {
		level = zerolog.DebugLevel
	}
	writer := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly}
	return zerolog.New(writer).Level(level).With().Timestamp().Logger()
}

// ChatOptions carries injectable dependencies for testing.
type ChatOptions struct {
	AgentOptions agent.Options
	Stdin        io.Reader
	Stdout       io.Writer
	Stderr       io.Writer
}

// runChat is the command handler that uses default options
func runChat(cmd *cobra.Command, args []string) error {
	return runChatWithOptions(ChatOptions{})
}

// runChatWithOptions runs the chat loop with injectable dependencies for testing
func runChatWithOptions(opts ChatOptions) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg.Provider.APIKey == "" {
		return fmt.Errorf("API key not set. Run 'quinn onboard' or set QUINN_API_KEY / OPENAI_API_KEY")
	}

	logger := newLogger()
	ctx := context.Background()

	mem := memory.NewManager(cfg, logger)
	defer mem.Close(ctx)

	ag, err := agent.NewWithOptions(cfg, mem, logger, opts.AgentOptions)
	if err != nil {
		return err
	}
	defer ag.Close()

	stdin := opts.Stdin
	if stdin == nil {
		stdin = os.Stdin
	}
	stdout := opts.Stdout
	if stdout == nil {
		stdout = os.Stdout
	}
	stderr := opts.Stderr
	if stderr == nil {
		stderr = os.Stderr
	}

	// Single message mode
	if messageFlag != "" {
		reply, err := ag.Process(ctx, messageFlag)
		if err != nil {
			return err
		}
		if reply != "" {
			fmt.Fprintln(stdout, reply)
		}
		return nil
	}

	// REPL mode
	fmt.Fprintf(stdout, "%s is listening (memory: %s, type 'exit' to quit)\n", cfg.Agent.Name, mem.Mode())
	scanner := bufio.NewScanner(stdin)
	for {
		fmt.Fprint(stdout, "\nYou> ")
		if !scanner.Scan() {
			break
		}
		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}
		if input == "exit" || input == "quit" || input == "bye" {
			break
		}

		reply, err := ag.Process(ctx, input)
		if err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			continue
		}
		if reply != "" {
			fmt.Fprintf(stdout, "\n%s: %s\n", cfg.Agent.Name, reply)
		}
	}
	return nil
}

func runIngest(cmd *cobra.Command, args []string) error {
	path := args[0]
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read document: %w", err)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	source := sourceFlag
	if source == "" {
		source = filepath.Base(path)
	}

	logger := newLogger()
	ctx := context.Background()
	mem := memory.NewManager(cfg, logger)
	defer mem.Close(ctx)

	mem.StoreDocument(ctx, string(data), source, map[string]any{
		"file_name": filepath.Base(path),
		"file_size": len(data),
	})

	fmt.Printf("Stored %q (%d bytes, memory: %s)\n", source, len(data), mem.Mode())
	if mem.Mode() != memory.ModeDual {
		fmt.Println("Note: the graph database is unavailable, so this document lives only until the process exits.")
	}
	return nil
}

func runEntity(cmd *cobra.Command, args []string) error {
	name := args[0]

	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := newLogger()
	ctx := context.Background()
	mem := memory.NewManager(cfg, logger)
	defer mem.Close(ctx)

	info := mem.EntityInformation(ctx, name)
	if !info.Enabled {
		fmt.Println("Entity lookups need the graph database, which is unavailable.")
		return nil
	}
	if !info.Found {
		fmt.Printf("Nothing known about %q yet.\n", name)
		return nil
	}

	fmt.Printf("%s (%s)\n", info.Name, info.EntityType)
	if len(info.Aliases) > 0 {
		fmt.Printf("  Aliases: %s\n", strings.Join(info.Aliases, ", "))
	}
	if info.Description != "" {
		fmt.Printf("  Description: %s\n", info.Description)
	}
	if len(info.Connected) > 0 {
		fmt.Println("  Connections:")
		for _, c := range info.Connected {
			fmt.Printf("    - %s (%s)\n", c.Name, c.RelationshipType)
		}
	}
	if len(info.Memories) > 0 {
		fmt.Println("  Mentioned in:")
		for _, m := range info.Memories {
			fmt.Printf("    - %s\n", m)
		}
	}
	return nil
}

func runForget(cmd *cobra.Command, args []string) error {
	if !yesFlag {
		return fmt.Errorf("this erases every stored memory; re-run with --yes to confirm")
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := newLogger()
	ctx := context.Background()
	mem := memory.NewManager(cfg, logger)
	defer mem.Close(ctx)

	mem.ClearMemory(ctx)
	fmt.Println("All memories cleared.")
	return nil
}

func runOnboard(cmd *cobra.Command, args []string) error {
	cfgDir := config.ConfigDir()
	cfgPath := config.ConfigPath()

	if err := os.MkdirAll(cfgDir, 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
		if err := config.SaveConfig(config.DefaultConfig()); err != nil {
			return fmt.Errorf("write config: %w", err)
		}
		fmt.Printf("Created config: %s\n", cfgPath)
	} else {
		fmt.Printf("Config already exists: %s\n", cfgPath)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := os.MkdirAll(cfg.Agent.Workspace, 0755); err != nil {
		return fmt.Errorf("create workspace: %w", err)
	}
	fmt.Printf("Workspace ready: %s\n", cfg.Agent.Workspace)

	fmt.Println("\nNext steps:")
	fmt.Printf("  1. Edit %s to set your API key, or set QUINN_API_KEY\n", cfgPath)
	fmt.Println("  2. Set graph.password (or NEO4J_PASSWORD) to enable durable memory")
	fmt.Println("  3. Run 'quinn chat -m \"Hello\"' to test")

	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Printf("Config: error (%v)\n", err)
		return nil
	}

	fmt.Printf("Config: %s\n", config.ConfigPath())
	fmt.Printf("Workspace: %s\n", cfg.Agent.Workspace)
	fmt.Printf("Model: %s\n", cfg.Agent.Model)
	fmt.Printf("Provider: %s\n", providerDisplay(cfg.Provider.Type))
	if cfg.Provider.APIKey != "" && len(cfg.Provider.APIKey) > 8 {
		masked := cfg.Provider.APIKey[:4] + "..." + cfg.Provider.APIKey[len(cfg.Provider.APIKey)-4:]
		fmt.Printf("API Key: %s\n", masked)
	} else if cfg.Provider.APIKey != "" {
		fmt.Println("API Key: set")
	} else {
		fmt.Println("API Key: not set")
	}

	fmt.Printf("Graph: %s (user %s)\n", cfg.Graph.URI, cfg.Graph.Username)
	if cfg.Graph.Password != "" {
		fmt.Println("Graph password: set")
	} else {
		fmt.Println("Graph password: not set (memory will be ephemeral only)")
	}

	if _, err := os.Stat(cfg.Agent.Workspace); err != nil {
		fmt.Println("Workspace: not found (run 'quinn onboard')")
	}
	return nil
}

func providerDisplay(t string) string {
	if t == "" {
		return "openai (default)"
	}
	return t
}
