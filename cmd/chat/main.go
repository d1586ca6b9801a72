package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/MegaGrindStone/chat-relay/internal/client"
	"github.com/MegaGrindStone/chat-relay/internal/models"
	"github.com/MegaGrindStone/chat-relay/internal/tui"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const defaultRelayURL = "http://localhost:8080/chat"

type options struct {
	URL     string
	Headers http.Header
	System  string
	LogFile string
}

func main() {
	if err := newRootCmd(viper.New()).Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat with a language model through a relay",
		Long: `chat opens a terminal conversation with the relay at --url. Replies stream in as they
are generated; Esc stops the current reply and /export <file> saves the transcript as HTML.

Flags can also be set in <config dir>/chatrelay/client.yaml or as CHATRELAY_* environment
variables, e.g. CHATRELAY_URL.`,
		SilenceUsage: true,
		Args:         cobra.NoArgs,
		PreRunE: func(*cobra.Command, []string) error {
			return readClientConfig(v)
		},
		RunE: func(*cobra.Command, []string) error {
			opts, err := loadOptions(v)
			if err != nil {
				return err
			}
			return run(opts)
		},
	}

	flags := cmd.Flags()
	flags.String("url", defaultRelayURL, "relay chat endpoint")
	flags.StringSlice("header", nil, "extra request header as key=value (repeatable)")
	flags.String("system", "", "system message that opens the conversation")
	flags.String("log-file", "", "write logs to this file instead of discarding them")

	_ = v.BindPFlags(flags)
	v.SetEnvPrefix("CHATRELAY")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	return cmd
}

func readClientConfig(v *viper.Viper) error {
	cfgDir, err := os.UserConfigDir()
	if err != nil {
		return nil
	}
	v.SetConfigName("client")
	v.SetConfigType("yaml")
	v.AddConfigPath(filepath.Join(cfgDir, "chatrelay"))

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("error reading client config: %w", err)
	}
	return nil
}

func loadOptions(v *viper.Viper) (options, error) {
	headers, err := parseHeaders(v.GetStringSlice("header"))
	if err != nil {
		return options{}, err
	}
	url := v.GetString("url")
	if url == "" {
		return options{}, errors.New("relay url is required")
	}
	return options{
		URL:     url,
		Headers: headers,
		System:  v.GetString("system"),
		LogFile: v.GetString("log-file"),
	}, nil
}

// parseHeaders turns key=value pairs into a header set. Repeated keys accumulate.
func parseHeaders(pairs []string) (http.Header, error) {
	headers := http.Header{}
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid header %q, expected key=value", pair)
		}
		headers.Add(key, strings.TrimSpace(value))
	}
	return headers, nil
}

func run(opts options) error {
	var logOut io.Writer = io.Discard
	if opts.LogFile != "" {
		f, err := os.OpenFile(opts.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return fmt.Errorf("error opening log file: %w", err)
		}
		defer f.Close()
		logOut = f
	}
	logger := slog.New(slog.NewTextHandler(logOut, &slog.HandlerOptions{Level: slog.LevelDebug}))

	var initial []models.Message
	if opts.System != "" {
		initial = []models.Message{{Role: models.RoleSystem, Content: opts.System}}
	}

	notifier := &tui.Notifier{}
	chat := client.New(opts.URL,
		client.WithHeaders(opts.Headers),
		client.WithInitialMessages(initial),
		client.WithLogger(logger),
		client.WithOnChange(notifier.Notify),
	)
	defer chat.Close()

	logger.Info("Starting chat", slog.String("url", opts.URL))
	return tui.Run(chat, notifier)
}
