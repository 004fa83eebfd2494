// Command lora submits LoRA training jobs and follows them in the terminal.
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
	"strings"
	"syscall"
	"time"

	"github.com/kiranshivaraju/lorastudio/internal/client"
	"github.com/kiranshivaraju/lorastudio/internal/config"
	"github.com/kiranshivaraju/lorastudio/internal/imagecache"
	"github.com/kiranshivaraju/lorastudio/internal/services"
	"github.com/kiranshivaraju/lorastudio/pkg/models"
)

const usage = `Usage:
  lora train -dir <images> -title <title> [-description d] [-trigger w]
             [-epochs n] [-lr f] [-rank 16|32|64] [-base-model m] [-public]
  lora watch
  lora history [-page n] [-limit n] [-status STATUS] [-failures]
  lora whoami`

// Command is the subcommand to run.
type Command string

const (
	CmdTrain   Command = "train"
	CmdWatch   Command = "watch"
	CmdHistory Command = "history"
	CmdWhoami  Command = "whoami"
)

// Options holds parsed command-line options.
type Options struct {
	Command Command

	// train
	Dir          string
	Title        string
	Description  string
	TriggerWord  string
	Epochs       int
	LearningRate float64
	LoraRank     int
	BaseModel    string
	Public       bool

	// history
	Page     int
	Limit    int
	Status   models.JobStatus
	Failures bool
}

func main() {
	opts, err := ParseArgs(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}

	cfg, err := config.LoadClient()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	// The TUI owns the terminal, so logs go to a file.
	logFile, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening log file: %v\n", err)
		os.Exit(1)
	}
	defer logFile.Close()
	slog.SetDefault(slog.New(slog.NewTextHandler(logFile, &slog.HandlerOptions{Level: slog.LevelDebug})))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := newApp(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer app.Close()

	if err := app.Run(ctx, opts); err != nil {
		slog.Error("command failed", "command", opts.Command, "error", err)
		fmt.Fprintf(os.Stderr, "Error: %s\n", describe(err))
		os.Exit(1)
	}
}

// ParseArgs parses the subcommand and its flags.
func ParseArgs(args []string) (*Options, error) {
	if len(args) == 0 {
		return nil, errors.New("missing command")
	}

	opts := &Options{Command: Command(args[0])}
	fs := flag.NewFlagSet("lora "+args[0], flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var status string

	switch opts.Command {
	case CmdTrain:
		fs.StringVar(&opts.Dir, "dir", "", "Directory of training images")
		fs.StringVar(&opts.Title, "title", "", "Model title")
		fs.StringVar(&opts.Description, "description", "", "Model description")
		fs.StringVar(&opts.TriggerWord, "trigger", "", "Trigger word")
		fs.IntVar(&opts.Epochs, "epochs", 10, "Training epochs")
		fs.Float64Var(&opts.LearningRate, "lr", 1e-4, "Learning rate")
		fs.IntVar(&opts.LoraRank, "rank", 32, "LoRA rank")
		fs.StringVar(&opts.BaseModel, "base-model", "sdxl-base-1.0", "Base model")
		fs.BoolVar(&opts.Public, "public", false, "Publish the trained model")
	case CmdHistory:
		fs.IntVar(&opts.Page, "page", 1, "Page number")
		fs.IntVar(&opts.Limit, "limit", 20, "Jobs per page")
		fs.StringVar(&status, "status", "", "Only jobs with this status")
		fs.BoolVar(&opts.Failures, "failures", false, "Group failed jobs by reason")
	case CmdWatch, CmdWhoami:
	default:
		return nil, fmt.Errorf("unknown command %q", args[0])
	}

	if err := fs.Parse(args[1:]); err != nil {
		return nil, err
	}
	if fs.NArg() > 0 {
		return nil, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}
	opts.Status = models.JobStatus(strings.ToUpper(status))

	switch opts.Command {
	case CmdTrain:
		if opts.Dir == "" {
			return nil, errors.New("-dir is required")
		}
		if strings.TrimSpace(opts.Title) == "" {
			return nil, errors.New("-title is required")
		}
	case CmdHistory:
		if opts.Page < 1 {
			return nil, fmt.Errorf("-page must be at least 1, got %d", opts.Page)
		}
		if opts.Limit < 1 || opts.Limit > 100 {
			return nil, fmt.Errorf("-limit must be between 1 and 100, got %d", opts.Limit)
		}
		if opts.Status != "" && !opts.Status.Valid() {
			return nil, fmt.Errorf("unknown status %q", status)
		}
	}
	return opts, nil
}

// app holds the services shared by every command.
type app struct {
	cfg      *config.ClientConfig
	api      *client.HTTPClient
	toasts   *services.Toasts
	auth     *services.Auth
	network  *services.Network
	previews *imagecache.DiskStore
}

func newApp(cfg *config.ClientConfig) (*app, error) {
	api := client.NewHTTPClient(cfg.APIURL, cfg.APIKey, cfg.Timeout)

	previews, err := imagecache.NewDiskStore(cfg.ImageCacheDir, nil, cfg.ImageCacheSize, imagecache.NewLRU())
	if err != nil {
		return nil, fmt.Errorf("open preview cache: %w", err)
	}

	return &app{
		cfg:      cfg,
		api:      api,
		toasts:   services.NewToasts(10),
		auth:     services.NewAuth(api),
		network:  services.NewNetwork(api),
		previews: previews,
	}, nil
}

func (a *app) Close() {
	a.toasts.Close()
	a.auth.Close()
	a.network.Close()
}

func (a *app) Run(ctx context.Context, opts *Options) error {
	switch opts.Command {
	case CmdTrain:
		return a.train(ctx, opts)
	case CmdWatch:
		return a.watch(ctx)
	case CmdHistory:
		return a.history(ctx, opts)
	case CmdWhoami:
		return a.whoami(ctx)
	}
	return fmt.Errorf("unknown command %q", opts.Command)
}

// describe turns client errors into a line for the terminal.
func describe(err error) string {
	var apiErr *client.APIError
	switch {
	case errors.As(err, &apiErr):
		return apiErr.Message
	case errors.Is(err, client.ErrAPITimeout):
		return "the server took too long to respond"
	case errors.Is(err, client.ErrAPIUnreachable):
		return "could not reach the server, check LORA_API_URL"
	}
	return err.Error()
}

const networkWatchInterval = 15 * time.Second
