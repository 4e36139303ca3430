package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"golang.org/x/sync/errgroup"

	"github.com/alexjbarnes/vault-share/internal/api"
	"github.com/alexjbarnes/vault-share/internal/auth"
	"github.com/alexjbarnes/vault-share/internal/clipboard"
	"github.com/alexjbarnes/vault-share/internal/config"
	sherr "github.com/alexjbarnes/vault-share/internal/errors"
	"github.com/alexjbarnes/vault-share/internal/logging"
	"github.com/alexjbarnes/vault-share/internal/mcpserver"
	"github.com/alexjbarnes/vault-share/internal/share"
	"github.com/alexjbarnes/vault-share/internal/state"
	"github.com/alexjbarnes/vault-share/internal/vault"
)

var Version = "dev"

const usage = `vault-share publishes vault notes to the share backend.

Usage:
  vault-share share [--force] [--copy] <path>   publish a note, print its link
  vault-share link <path>                       copy the share link, sharing first if needed
  vault-share list                              list remote shares and flag orphans
  vault-share watch                             re-share changed notes as you edit
  vault-share serve                             run the MCP server (and the watcher)
  vault-share uid                               print this installation's client id
  vault-share auth <key>                        store the backend API key
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	cmd, args := os.Args[1], os.Args[2:]

	var err error

	switch cmd {
	case "uid":
		err = runUID()
	case "auth":
		err = runAuth(args)
	case "share", "link", "list", "watch", "serve":
		err = run(cmd, args)
	case "help", "-h", "--help":
		fmt.Print(usage)
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", cmd, usage)
		os.Exit(2)
	}

	if err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// runUID prints the per-installation client identifier, minting one on
// first use. It needs no config, so users can run it before setting up
// the environment.
func runUID() error {
	appState, err := state.Load()
	if err != nil {
		return fmt.Errorf("loading state: %w", err)
	}
	defer appState.Close()

	id, err := appState.EnsureClientID(share.MintClientID)
	if err != nil {
		return fmt.Errorf("ensuring client id: %w", err)
	}

	fmt.Println(id)

	return nil
}

// runAuth stores the backend API key in local state.
func runAuth(args []string) error {
	if len(args) != 1 || args[0] == "" {
		return fmt.Errorf("usage: vault-share auth <key>")
	}

	appState, err := state.Load()
	if err != nil {
		return fmt.Errorf("loading state: %w", err)
	}
	defer appState.Close()

	if err := appState.SetAPIKey(args[0]); err != nil {
		return fmt.Errorf("saving API key: %w", err)
	}

	fmt.Fprintln(os.Stderr, "API key saved")

	return nil
}

func run(cmd string, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := logging.NewLogger(cfg.Environment)
	logger.Info("vault-share starting",
		slog.String("version", Version),
		slog.String("command", cmd),
		slog.String("vault", cfg.VaultDir),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	appState, err := state.Load()
	if err != nil {
		return fmt.Errorf("loading state: %w", err)
	}
	defer appState.Close()

	clientID, err := appState.EnsureClientID(share.MintClientID)
	if err != nil {
		return fmt.Errorf("ensuring client id: %w", err)
	}

	client := api.NewClient(nil, cfg.APIURL, appState.APIKey(), clientID)

	v, err := vault.New(cfg.VaultDir)
	if err != nil {
		return fmt.Errorf("opening vault: %w", err)
	}

	store := share.NewStore(v, cfg.YAMLField, cfg.BaseURL)
	notifier := share.NewConsoleNotifier(os.Stderr, logger)
	coord := share.NewCoordinator(v, store, client, clipboard.New(), notifier, logger, cfg.CopyOnShare)

	switch cmd {
	case "share":
		return runShare(ctx, coord, args)
	case "link":
		return runLink(ctx, coord, args)
	case "list":
		return runList(ctx, appState, share.NewReconciler(v, store, client, cfg.BaseURL, logger))
	case "watch":
		return share.NewWatcher(v, store, coord, logger).Watch(ctx)
	case "serve":
		return runServe(ctx, cfg, logger, v, store, coord, client)
	}

	return fmt.Errorf("unknown command %q", cmd)
}

func runShare(ctx context.Context, coord *share.Coordinator, args []string) error {
	fs := flag.NewFlagSet("share", flag.ExitOnError)
	force := fs.Bool("force", false, "upload even when the content is unchanged")
	copyLink := fs.Bool("copy", false, "copy the link to the clipboard")

	if err := fs.Parse(args); err != nil {
		return err
	}

	if fs.NArg() != 1 {
		return fmt.Errorf("usage: vault-share share [--force] [--copy] <path>")
	}

	res, err := coord.Share(ctx, fs.Arg(0), share.Options{
		ForceUpload:    *force,
		ForceClipboard: *copyLink,
	})
	if err != nil {
		return err
	}

	fmt.Println(res.Link)

	return nil
}

// runLink copies the note's share link to the clipboard. An unchanged,
// already-shared note costs no upload; a never-shared note is shared
// first.
func runLink(ctx context.Context, coord *share.Coordinator, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: vault-share link <path>")
	}

	res, err := coord.Share(ctx, args[0], share.Options{ForceClipboard: true})
	if err != nil {
		return err
	}

	fmt.Println(res.Link)

	return nil
}

func runList(ctx context.Context, appState *state.State, rec *share.Reconciler) error {
	if appState.APIKey() == "" {
		return fmt.Errorf("%w: run `vault-share auth <key>` first", sherr.ErrMissingAPIKey)
	}

	notes := rec.Reconcile(ctx)
	if len(notes) == 0 {
		fmt.Fprintln(os.Stderr, "no shared notes")
		return nil
	}

	for _, n := range notes {
		path := n.Path
		if path == "" {
			path = "(orphaned)"
		}

		fmt.Printf("%s\t%s\t%s\n", n.ID, time.Unix(n.Updated, 0).UTC().Format(time.RFC3339), path)
	}

	return nil
}

// runServe starts the MCP HTTP server and keeps the watcher running
// alongside it so shares stay fresh while the server is up.
func runServe(ctx context.Context, cfg *config.Config, logger *slog.Logger, v *vault.Vault, store *share.Store, coord *share.Coordinator, client *api.Client) error {
	entries, err := cfg.ParseMCPAPIKeys()
	if err != nil {
		return fmt.Errorf("parsing MCP API keys: %w", err)
	}

	mcpLogger := logger.With(slog.String("service", "mcp"))

	rec := share.NewReconciler(v, store, client, cfg.BaseURL, logger)

	mcpServer := mcp.NewServer(
		&mcp.Implementation{Name: "vault-share-mcp", Version: Version},
		nil,
	)
	mcpserver.RegisterTools(mcpServer, coord, rec)

	mcpHandler := mcp.NewStreamableHTTPHandler(func(r *http.Request) *mcp.Server {
		return mcpServer
	}, nil)

	authMiddleware := auth.Middleware(auth.NewKeyStore(entries), mcpLogger)

	mux := http.NewServeMux()
	mux.Handle("/mcp", authMiddleware(mcpHandler))

	server := &http.Server{
		Addr:         cfg.MCPListenAddr,
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	mcpLogger.Info("starting MCP server",
		slog.String("listen", cfg.MCPListenAddr),
		slog.Int("keys", len(entries)),
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return share.NewWatcher(v, store, coord, logger).Watch(gctx)
	})

	g.Go(func() error {
		// Shutdown when context is cancelled.
		go func() {
			<-gctx.Done()
			mcpLogger.Info("shutting down MCP server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			server.Shutdown(shutdownCtx)
		}()

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("MCP server error: %w", err)
		}

		return nil
	})

	return g.Wait()
}
