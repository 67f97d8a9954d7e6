package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/carelyhq/carely/internal/agent"
	"github.com/carelyhq/carely/internal/alert"
	"github.com/carelyhq/carely/internal/config"
	"github.com/carelyhq/carely/internal/gateway"
	"github.com/carelyhq/carely/internal/llm"
	"github.com/carelyhq/carely/internal/memory"
	"github.com/carelyhq/carely/internal/store"
	"github.com/carelyhq/carely/internal/summary"
)

var rootCmd = &cobra.Command{
	Use:   "carely",
	Short: "carely - companion for elderly care",
}

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Talk to the companion in single message or REPL mode",
	RunE:  runChat,
}

var gatewayCmd = &cobra.Command{
	Use:   "gateway",
	Short: "Start the full gateway (channels + scheduler)",
	RunE:  runGateway,
}

var onboardCmd = &cobra.Command{
	Use:   "onboard",
	Short: "Initialize config and register a user",
	RunE:  runOnboard,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show carely status",
	RunE:  runStatus,
}

var summarizeCmd = &cobra.Command{
	Use:   "summarize",
	Short: "Write the episodic summary for a user and date",
	RunE:  runSummarize,
}

var (
	messageFlag       string
	userFlag          string
	nameFlag          string
	chatFlag          string
	notesFlag         string
	caregiverNameFlag string
	caregiverChatFlag string
	dateFlag          string
)

func init() {
	chatCmd.Flags().StringVarP(&messageFlag, "message", "m", "", "Single message to send")
	chatCmd.Flags().StringVarP(&userFlag, "user", "u", "local", "User ID to chat as")

	onboardCmd.Flags().StringVarP(&userFlag, "user", "u", "local", "User ID to register")
	onboardCmd.Flags().StringVar(&nameFlag, "name", "", "User's name")
	onboardCmd.Flags().StringVar(&chatFlag, "chat", "", "Telegram chat ID to bind")
	onboardCmd.Flags().StringVar(&notesFlag, "notes", "", "Free-form notes about the user")
	onboardCmd.Flags().StringVar(&caregiverNameFlag, "caregiver-name", "", "Caregiver's name")
	onboardCmd.Flags().StringVar(&caregiverChatFlag, "caregiver-chat", "", "Caregiver's Telegram chat ID")

	summarizeCmd.Flags().StringVarP(&userFlag, "user", "u", "local", "User ID to summarize")
	summarizeCmd.Flags().StringVar(&dateFlag, "date", "", "Date (YYYY-MM-DD, default today)")

	rootCmd.AddCommand(chatCmd, gatewayCmd, onboardCmd, statusCmd, summarizeCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// stdoutNotifier prints caregiver alerts locally; the CLI has no transport.
type stdoutNotifier struct {
	w io.Writer
}

func (n *stdoutNotifier) Notify(ctx context.Context, cg store.Caregiver, message string) error {
	fmt.Fprintf(n.w, "[alert -> %s] %s\n", cg.Name, message)
	return nil
}

func openLocalStack(cfg *config.Config) (*store.Store, *agent.Agent, *summary.Summarizer, error) {
	s, err := store.NewStore(cfg.Memory.DBPath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("open store: %w", err)
	}

	client, err := llm.NewClient(cfg)
	if err != nil {
		_ = s.Close()
		return nil, nil, nil, fmt.Errorf("create model client: %w (run 'carely onboard' or set CARELY_API_KEY)", err)
	}

	index := memory.NewIndex(s, client)
	assembler := memory.NewAssembler(
		&memory.StructuredLayer{Store: s},
		&memory.ShortTermLayer{Store: s},
		&memory.LongTermLayer{Index: index},
		&memory.EpisodicLayer{Store: s},
		cfg,
	)
	machine := alert.NewMachine(s, &stdoutNotifier{w: os.Stdout})
	a := agent.New(s, assembler, client, machine, index, cfg)
	sm := summary.NewSummarizer(s, client, index, cfg)
	return s, a, sm, nil
}

func ensureProfile(s *store.Store, userID string) error {
	profile, err := s.GetProfile(userID)
	if err != nil {
		return err
	}
	if profile != nil {
		return nil
	}
	return s.UpsertProfile(store.Profile{UserID: userID, Name: userID, Active: true})
}

func runChat(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	s, a, _, err := openLocalStack(cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	if err := ensureProfile(s, userFlag); err != nil {
		return fmt.Errorf("ensure profile: %w", err)
	}

	ctx := context.Background()
	const session = "cli"

	ask := func(text string) {
		if reply, handled := a.HandleEmergencyChoice(ctx, userFlag, session, text); handled {
			fmt.Println(reply)
			return
		}
		reply, err := a.Respond(ctx, userFlag, session, text)
		if err != nil {
			if errors.Is(err, agent.ErrInvalidInput) {
				fmt.Println("Please type a short message.")
				return
			}
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return
		}
		fmt.Println(reply)
	}

	if messageFlag != "" {
		ask(messageFlag)
		return nil
	}

	fmt.Println("carely chat (type 'exit' to quit)")
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("\n> ")
		if !scanner.Scan() {
			break
		}
		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}
		if input == "exit" || input == "quit" {
			break
		}
		ask(input)
	}
	return nil
}

func runGateway(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if cfg.Provider.APIKey == "" {
		return fmt.Errorf("API key not set. Run 'carely onboard' or set CARELY_API_KEY / GROQ_API_KEY")
	}

	gw, err := gateway.New(cfg)
	if err != nil {
		return fmt.Errorf("create gateway: %w", err)
	}
	return gw.Run(context.Background())
}

func runOnboard(cmd *cobra.Command, args []string) error {
	cfgPath := config.ConfigPath()
	if err := os.MkdirAll(config.ConfigDir(), 0755); err != nil {
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

	s, err := store.NewStore(cfg.Memory.DBPath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer s.Close()

	name := nameFlag
	if name == "" {
		name = userFlag
	}
	if err := s.UpsertProfile(store.Profile{
		UserID: userFlag,
		Name:   name,
		Notes:  notesFlag,
		ChatID: chatFlag,
		Active: true,
	}); err != nil {
		return fmt.Errorf("register user: %w", err)
	}
	fmt.Printf("Registered user %q (%s)\n", name, userFlag)

	if caregiverNameFlag != "" {
		if err := s.AddCaregiver(store.Caregiver{
			UserID: userFlag,
			Name:   caregiverNameFlag,
			ChatID: caregiverChatFlag,
		}); err != nil {
			return fmt.Errorf("register caregiver: %w", err)
		}
		fmt.Printf("Registered caregiver %q\n", caregiverNameFlag)
	}

	fmt.Println("\nNext steps:")
	fmt.Printf("  1. Edit %s to set your API key and Telegram token\n", cfgPath)
	fmt.Println("  2. Or set CARELY_API_KEY / CARELY_TELEGRAM_TOKEN environment variables")
	fmt.Println("  3. Run 'carely chat -m \"Hello\"' to test")
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Printf("Config: error (%v)\n", err)
		return nil
	}

	fmt.Printf("Config: %s\n", config.ConfigPath())
	fmt.Printf("Model: %s\n", cfg.Agent.Model)
	fmt.Printf("API Key: %s\n", maskKey(cfg.Provider.APIKey))
	fmt.Printf("Telegram: enabled=%v\n", cfg.Channels.Telegram.Enabled)
	fmt.Printf("Database: %s\n", cfg.Memory.DBPath)

	s, err := store.NewStore(cfg.Memory.DBPath)
	if err != nil {
		fmt.Printf("Store: error (%v)\n", err)
		return nil
	}
	defer s.Close()

	users, err := s.ActiveUsers()
	if err != nil {
		fmt.Printf("Users: error (%v)\n", err)
		return nil
	}
	fmt.Printf("Active users: %d\n", len(users))
	for _, u := range users {
		bound := "no chat bound"
		if u.ChatID != "" {
			bound = "chat " + u.ChatID
		}
		fmt.Printf("  %s (%s, %s)\n", u.Name, u.UserID, bound)

		if trend, err := s.Trend(u.UserID, config.DefaultSentimentDays); err == nil && trend.TurnCount > 0 {
			fmt.Printf("    last %d days: %d messages, avg sentiment %.2f, %d distressed\n",
				config.DefaultSentimentDays, trend.TurnCount, trend.AvgScore, trend.Distressed)
		}

		alerts, err := s.UnresolvedAlerts(u.UserID)
		if err != nil {
			fmt.Printf("    alerts: error (%v)\n", err)
			continue
		}
		for _, a := range alerts {
			fmt.Printf("    unresolved alert #%d [%s] %s (%s)\n", a.ID, a.Severity, a.Title, a.CreatedAt)
		}
	}
	return nil
}

func runSummarize(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	s, _, sm, err := openLocalStack(cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	date := dateFlag
	if date == "" {
		date = time.Now().UTC().Format("2006-01-02")
	}

	out, err := sm.Summarize(context.Background(), userFlag, date)
	if err != nil {
		return fmt.Errorf("summarize: %w", err)
	}
	if out == nil {
		fmt.Printf("No turns for %s on %s, nothing to summarize\n", userFlag, date)
		return nil
	}
	fmt.Printf("Summary for %s on %s:\n%s\n", userFlag, date, out.Text)
	return nil
}

func maskKey(key string) string {
	if key == "" {
		return "not set"
	}
	if len(key) <= 8 {
		return "set"
	}
	return key[:4] + "..." + key[len(key)-4:]
}
