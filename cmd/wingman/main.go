package main

import (
	"bufio"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/casualjim/wingman"
	"github.com/casualjim/wingman/auth"
	"github.com/casualjim/wingman/pkg/slogx"
	"github.com/casualjim/wingman/stream"
	"github.com/fatih/color"
	_ "github.com/joho/godotenv/autoload"
	"github.com/phsym/zeroslog"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var log zerolog.Logger

func init() {
	output := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Stamp}
	log = zerolog.New(output).With().Timestamp().Logger()

	level := slog.LevelWarn
	if strings.EqualFold(os.Getenv("WINGMAN_DEBUG"), "true") {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(
		zeroslog.NewHandler(log, &zeroslog.HandlerOptions{Level: level}),
	))
}

var rootCmd = &cobra.Command{
	Use:          "wingman",
	Short:        "Chat with a Copilot-style completion API from the terminal",
	SilenceUsage: true,
}

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Authorize this machine through the device flow",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := wingman.New()
		if err != nil {
			return err
		}

		spin := spinner.New(spinner.CharSets[14], 120*time.Millisecond, spinner.WithWriter(os.Stderr))
		rec, err := client.Login(cmd.Context(), func(userCode, verificationURI string) {
			fmt.Fprintf(os.Stderr, "Open %s and enter the code %s\n",
				color.CyanString(verificationURI), color.New(color.Bold, color.FgGreen).Sprint(userCode))
			spin.Suffix = " waiting for approval"
			spin.Start()
		})
		spin.Stop()
		if err != nil {
			return err
		}

		who := rec.Principal
		if who == "" {
			who = "you"
		}
		fmt.Fprintf(os.Stderr, "Logged in as %s\n", color.GreenString(who))
		return nil
	},
}

var chatModel string

var chatCmd = &cobra.Command{
	Use:   "chat [prompt]",
	Short: "Send a prompt and stream the reply",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		prompt, err := readPrompt(args)
		if err != nil {
			return err
		}

		client, err := wingman.New()
		if err != nil {
			return err
		}

		dec, err := client.StreamChatCompletion(cmd.Context(), wingman.ChatRequest{
			Model:    chatModel,
			Messages: []wingman.Message{wingman.Text("user", prompt)},
		}, stream.WithDiagnostic(func(err error, payload []byte) {
			slog.Debug("dropped malformed frame", slogx.Error(err), slog.Int("payload_bytes", len(payload)))
		}))
		if err != nil {
			return err
		}
		defer dec.Close()

		for chunk := range dec.All() {
			switch c := chunk.(type) {
			case stream.ContentDelta:
				fmt.Print(c.Content)
			case stream.Done:
				fmt.Println()
			}
		}
		return dec.Err()
	},
}

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List the models available to your account",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := wingman.New()
		if err != nil {
			return err
		}

		models, err := client.Models(cmd.Context())
		if err != nil {
			return err
		}
		for _, m := range models {
			line := m.ID
			if m.Capabilities.Supports.Vision {
				line += color.YellowString(" (vision)")
			}
			fmt.Println(line)
		}
		return nil
	},
}

var usageCmd = &cobra.Command{
	Use:   "usage",
	Short: "Show plan and remaining quota",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := wingman.New()
		if err != nil {
			return err
		}

		report, err := client.Usage(cmd.Context())
		if err != nil {
			return err
		}

		fmt.Printf("plan: %s\n", report.Plan)
		if report.QuotaResetDate != "" {
			fmt.Printf("resets: %s\n", report.QuotaResetDate)
		}
		for name, snap := range report.Snapshots {
			if snap.Unlimited {
				fmt.Printf("%s: unlimited\n", name)
				continue
			}
			fmt.Printf("%s: %.0f of %.0f remaining (%.1f%%)\n", name, snap.Remaining, snap.Entitlement, snap.PercentRemaining)
		}
		return nil
	},
}

func readPrompt(args []string) (string, error) {
	if len(args) > 0 && strings.TrimSpace(args[0]) != "" {
		return args[0], nil
	}

	fmt.Fprint(os.Stderr, "> ")
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("failed to read prompt: %w", err)
	}
	line = strings.TrimSpace(line)
	if line == "" {
		return "", fmt.Errorf("prompt is empty")
	}
	return line, nil
}

func main() {
	rootCmd.AddCommand(loginCmd, chatCmd, modelsCmd, usageCmd)
	chatCmd.Flags().StringVarP(&chatModel, "model", "m", "gpt-4o", "model to use")

	if err := rootCmd.Execute(); err != nil {
		var authErr *auth.Error
		if errors.As(err, &authErr) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}
