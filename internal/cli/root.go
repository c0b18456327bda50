package cli

import (
	"fmt"
	"os"
	"sort"
	"strings"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/execsim/personachat/internal/gateway"
	"github.com/execsim/personachat/internal/observability"
	"github.com/execsim/personachat/internal/persona"
	"github.com/execsim/personachat/internal/session"
	"github.com/execsim/personachat/internal/store"
)

var Version = "dev"

var rootCmd = &cobra.Command{
	Use:   "personachat",
	Short: "Chat with AI executive personas anchored to a real company",
	RunE:  runChat,
}

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive persona chat session",
	RunE:  runChat,
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored conversations",
	RunE:  runList,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("personachat %s\n", Version)
	},
}

var (
	flagModel           string
	flagPersona         string
	flagCompany         string
	flagConversation    string
	flagEnrich          bool
	flagVerbose         bool
	flagOpenAIAPIKey    string
	flagAnthropicAPIKey string
)

func init() {
	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(versionCmd)
	for _, c := range []*cobra.Command{rootCmd, chatCmd} {
		c.Flags().StringVarP(&flagModel, "model", "m", "gpt-4o", "Completion model: "+strings.Join(gateway.ModelNames(), ", "))
		c.Flags().StringVarP(&flagPersona, "persona", "p", string(persona.Default), "Starting persona: CEO, CTO, CIO, CFO")
		c.Flags().StringVarP(&flagCompany, "company", "c", "", "LinkedIn company URL to anchor the conversation")
		c.Flags().StringVarP(&flagConversation, "conversation", "C", "", "Resume a stored conversation by id")
		c.Flags().BoolVarP(&flagEnrich, "enrich", "e", false, "Fetch the company page for extra prompt background")
		c.Flags().BoolVarP(&flagVerbose, "verbose", "v", false, "Enable detailed logging")
		c.Flags().StringVar(&flagOpenAIAPIKey, "openai-api-key", "", "OpenAI API key (overrides OPENAI_API_KEY env var)")
		c.Flags().StringVar(&flagAnthropicAPIKey, "anthropic-api-key", "", "Anthropic API key (overrides ANTHROPIC_API_KEY env var)")
	}
	listCmd.Flags().BoolVarP(&flagVerbose, "verbose", "v", false, "Enable detailed logging")
}

func Execute() error {
	return rootCmd.Execute()
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// checkAPIKeys validates that the secrets the chosen model needs are
// present before any session starts. Missing startup config is the one
// fatal error class in this program.
func checkAPIKeys(model string) error {
	hasKey := func(envVar, flagVal string) bool {
		return flagVal != "" || os.Getenv(envVar) != ""
	}

	var missing []string
	switch model {
	case "gpt-4o", "gpt-4o-mini":
		if !hasKey("OPENAI_API_KEY", flagOpenAIAPIKey) {
			missing = append(missing, "OPENAI_API_KEY")
		}
	case "haiku", "sonnet":
		if !hasKey("ANTHROPIC_API_KEY", flagAnthropicAPIKey) {
			missing = append(missing, "ANTHROPIC_API_KEY")
		}
	case "nova-lite":
		// Uses the default AWS credential chain, validated when the
		// Bedrock client is built.
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required environment variable(s): %s\nYou can also pass --openai-api-key or --anthropic-api-key", strings.Join(missing, ", "))
	}
	return nil
}

// applyKeyOverrides promotes flag-supplied keys into the environment so
// the provider clients pick them up.
func applyKeyOverrides() {
	if flagOpenAIAPIKey != "" {
		os.Setenv("OPENAI_API_KEY", flagOpenAIAPIKey)
	}
	if flagAnthropicAPIKey != "" {
		os.Setenv("ANTHROPIC_API_KEY", flagAnthropicAPIKey)
	}
}

func newStore(cmd *cobra.Command) (*store.Store, error) {
	ctx := cmd.Context()
	region := envOr("AWS_REGION", "us-east-1")
	table := envOr("DYNAMODB_TABLE", "personachat-conversations")

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return store.New(dynamodb.NewFromConfig(awsCfg), table), nil
}

func runChat(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	if !isatty.IsTerminal(os.Stdout.Fd()) && !isatty.IsCygwinTerminal(os.Stdout.Fd()) {
		return fmt.Errorf("chat needs an interactive terminal; use 'personachat list' for scripted access")
	}

	startPersona, err := persona.Parse(flagPersona)
	if err != nil {
		return err
	}
	if err := checkAPIKeys(flagModel); err != nil {
		return err
	}
	applyKeyOverrides()

	logger := observability.NewLogger(os.Stderr, flagVerbose)

	tp, err := observability.InitTracer(ctx, "personachat", Version)
	if err != nil {
		return err
	}
	if tp != nil {
		defer tp.Shutdown(ctx)
	}

	st, err := newStore(cmd)
	if err != nil {
		return err
	}

	gw, err := gateway.New(ctx, flagModel)
	if err != nil {
		return err
	}

	rec := session.New(st, gw, logger)

	// Seed the session from flags: a fresh new conversation, then the
	// company reference (its derivation gates everything else), then
	// the persona.
	state := rec.StartNew()
	if flagCompany != "" {
		state, err = rec.SetCompanyReference(state, flagCompany)
		if err != nil {
			return err
		}
	}
	state = rec.SetPersona(state, startPersona)
	if flagConversation != "" {
		state, err = rec.Load(ctx, state, flagConversation)
		if err != nil {
			return err
		}
	}

	return runChatTUI(ctx, rec, st, state, flagEnrich)
}

func runList(cmd *cobra.Command, args []string) error {
	st, err := newStore(cmd)
	if err != nil {
		return err
	}

	summaries, err := st.ListAll(cmd.Context())
	if err != nil {
		return err
	}
	sort.Slice(summaries, func(i, j int) bool {
		if summaries[i].CompanyName == summaries[j].CompanyName {
			return summaries[i].ID < summaries[j].ID
		}
		return summaries[i].CompanyName < summaries[j].CompanyName
	})

	if len(summaries) == 0 {
		fmt.Println("No stored conversations.")
		return nil
	}

	fmt.Printf("%-28s %-8s %s\n", "ID", "PERSONA", "COMPANY")
	for _, s := range summaries {
		fmt.Printf("%-28s %-8s %s\n", s.ID, s.Persona, s.CompanyName)
	}
	return nil
}
