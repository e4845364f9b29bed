// Package main is the entry point for the notification mailer.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/shineum/notify-mailer/internal/config"
	"github.com/shineum/notify-mailer/internal/descriptor"
	"github.com/shineum/notify-mailer/internal/email"
	"github.com/shineum/notify-mailer/internal/message"
	"github.com/shineum/notify-mailer/internal/sender"
	mailtls "github.com/shineum/notify-mailer/internal/tls"
	"github.com/shineum/notify-mailer/internal/transport"
	"github.com/shineum/notify-mailer/internal/transport/ses"
	"github.com/shineum/notify-mailer/internal/transport/smtp"
	"github.com/shineum/notify-mailer/internal/transport/stdout"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		if !errors.Is(err, flag.ErrHelp) {
			slog.Error("notify-mailer failed", "error", err)
		}
		stop()
		os.Exit(1)
	}
}

// options holds the parsed command line.
type options struct {
	configPath  string
	dryRun      bool
	skipInvalid bool
	paths       []string
}

func parseFlags(args []string, output io.Writer) (*options, error) {
	fs := flag.NewFlagSet("notify-mailer", flag.ContinueOnError)
	fs.SetOutput(output)
	fs.Usage = func() {
		fmt.Fprintln(output, "usage: notify-mailer [-config FILE] [-dry-run] [-skip-invalid] PATH...")
		fs.PrintDefaults()
	}

	opts := &options{}
	fs.StringVar(&opts.configPath, "config", "", "path to YAML configuration file (optional)")
	fs.BoolVar(&opts.dryRun, "dry-run", false, "print messages to stdout instead of delivering them")
	fs.BoolVar(&opts.skipInvalid, "skip-invalid", false, "skip descriptors that fail to build instead of aborting")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	opts.paths = fs.Args()
	if len(opts.paths) == 0 {
		fs.Usage()
		return nil, errors.New("at least one descriptor file or directory is required")
	}
	return opts, nil
}

func run(ctx context.Context, args []string, out io.Writer) error {
	opts, err := parseFlags(args, out)
	if err != nil {
		return err
	}

	cfg, err := loadConfig(opts.configPath)
	if err != nil {
		return err
	}
	if opts.dryRun {
		cfg.Transport = config.TransportStdout
	}

	setupLogger(cfg.Logging.Level, os.Stderr)
	logger := slog.Default()

	if err := cfg.Validate(); err != nil {
		return err
	}

	files, err := descriptor.Discover(opts.paths...)
	if err != nil {
		return err
	}

	batch, err := buildBatch(message.New(cfg, message.WithLogger(logger)), files, opts.skipInvalid, logger)
	if err != nil {
		return err
	}
	if len(batch) == 0 {
		logger.Warn("no messages to send", "files", len(files))
		return nil
	}

	dialer, err := selectTransport(cfg, out)
	if err != nil {
		return err
	}

	logger.Info("sending batch",
		"transport", dialer.Name(),
		"messages", len(batch),
	)

	return sender.New(dialer, cfg.Msg.From, logger).SendBatch(ctx, batch)
}

// buildBatch composes one message per descriptor file in order. With
// skipInvalid, descriptor problems are logged and the file is left out;
// configuration problems always abort.
func buildBatch(b *message.Builder, files []string, skipInvalid bool, logger *slog.Logger) (email.Batch, error) {
	batch := make(email.Batch, 0, len(files))
	for _, f := range files {
		msg, err := b.BuildFile(f)
		if err != nil {
			var dataErr *email.DataError
			if skipInvalid && errors.As(err, &dataErr) {
				logger.Warn("skipping descriptor", "file", f)
				continue
			}
			return nil, err
		}
		batch = append(batch, msg)
	}
	return batch, nil
}

// loadConfig loads configuration from the specified path (YAML + env override)
// or from environment variables only if no path is given.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFromFile(path)
	}
	return config.Load()
}

// setupLogger configures the global slog logger with JSON output and the
// specified log level. Logs go to w so that stdout stays free for dry runs.
func setupLogger(level string, w io.Writer) {
	var logLevel slog.Level

	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: logLevel,
	})
	slog.SetDefault(slog.New(handler))
}

// selectTransport chooses the delivery backend based on configuration.
func selectTransport(cfg *config.Config, out io.Writer) (transport.Dialer, error) {
	switch cfg.Transport {
	case config.TransportSMTP:
		smtpCfg := smtp.Config{
			Addr:      cfg.Addr(),
			LocalName: cfg.SMTP.LocalName,
		}
		if cfg.AuthEnabled() {
			smtpCfg.Username = cfg.SMTP.Username
			smtpCfg.Password = cfg.SMTP.Password
		}
		if cfg.SMTP.StartTLS {
			tlsConfig, err := mailtls.ClientConfig(cfg.SMTP.Host, cfg.TLS.CAFile, cfg.TLS.InsecureSkipVerify)
			if err != nil {
				return nil, &email.ConfigError{Key: "tls.ca_file", Err: err}
			}
			smtpCfg.TLSConfig = tlsConfig
		}
		slog.Info("using SMTP transport",
			"addr", smtpCfg.Addr,
			"auth_enabled", cfg.AuthEnabled(),
			"starttls", cfg.SMTP.StartTLS,
		)
		return smtp.New(smtpCfg), nil

	case config.TransportSES:
		slog.Info("using AWS SES transport", "region", cfg.SES.Region)
		return ses.New(ses.Config{
			Region:          cfg.SES.Region,
			AccessKeyID:     cfg.SES.AccessKeyID,
			SecretAccessKey: cfg.SES.SecretAccessKey,
		}), nil

	case config.TransportStdout:
		slog.Info("using stdout transport")
		return stdout.NewWithWriter(out), nil

	default:
		return nil, &email.ConfigError{Key: "transport", Err: fmt.Errorf("unknown transport %q", cfg.Transport)}
	}
}
