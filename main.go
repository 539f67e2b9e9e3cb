package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/alecthomas/kong"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"evermoment/internal/catalog"
	"evermoment/internal/compositor"
	"evermoment/internal/editor"
	"evermoment/internal/raster"
	"evermoment/internal/removebg"
)

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Send()
	}
}

func run() error {
	var args cliArgs
	cliCtx := kong.Parse(
		&args,
		kong.Name("evermoment"),
		kong.Description("Compose souvenir photos: cut out the subject, drop it on a background, add captions."),
		kong.UsageOnError(),
	)
	if err := cliCtx.Run(); err != nil {
		return err
	}

	return nil
}

type cliArgs struct {
	Serve       serveCmd       `cmd:"" default:"withargs" help:"Run the web editor"`
	Render      renderCmd      `cmd:"" help:"Execute compose/cutout operations from a JSON lines file"`
	Backgrounds backgroundsCmd `cmd:"" help:"List the numbered backgrounds found in a directory"`
}

// commonFlags are shared by every command that renders.
type commonFlags struct {
	Verbose      bool   `help:"Enable verbose logging" default:"false"`
	EditorConfig string `help:"JSON file overriding the default editor configuration" type:"existingfile" env:"EVERMOMENT_EDITOR_CONFIG"`
	APIKey       string `help:"Photoroom API key used for background removal" env:"PHOTOROOM_API_KEY"`
}

func (f commonFlags) setup() context.Context {
	level := zerolog.InfoLevel
	if f.Verbose {
		level = zerolog.DebugLevel
	}
	log.Logger = log.Output(zerolog.NewConsoleWriter()).Level(level)
	zerolog.DefaultContextLogger = &log.Logger
	return log.Logger.WithContext(context.Background())
}

func (f commonFlags) editorConfig() (editor.Config, error) {
	if f.EditorConfig == "" {
		return editor.DefaultConfig(), nil
	}
	return editor.LoadConfig(f.EditorConfig)
}

type serveCmd struct {
	commonFlags

	Addr           string        `help:"Address to listen on; a random local port when empty" env:"EVERMOMENT_ADDR"`
	Open           bool          `help:"Open the browser automatically when the server starts" default:"true" negatable:""`
	BackgroundsDir string        `help:"Directory with numbered background images (1.jpg, 2.png, ...)" default:"backgrounds" env:"EVERMOMENT_BACKGROUNDS"`
	DBDriver       string        `help:"Catalog database driver" enum:"sqlite,postgres" default:"sqlite" env:"EVERMOMENT_DB_DRIVER"`
	DBDSN          string        `help:"Catalog database DSN; admin-managed backgrounds are disabled when empty" env:"EVERMOMENT_DB_DSN"`
	MediaDir       string        `help:"Directory uploaded admin backgrounds are stored in" default:"media" env:"EVERMOMENT_MEDIA_DIR"`
	AdminToken     string        `help:"Bearer token required by the admin API" env:"EVERMOMENT_ADMIN_TOKEN"`
	SessionTTL     time.Duration `help:"Idle time after which an editing session is dropped" default:"2h"`
	JanitorSpec    string        `help:"Cron schedule of the idle session sweep" default:"@every 10m"`
}

func (cmd *serveCmd) Run() error {
	ctx := cmd.setup()
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt)
	defer cancel()

	cfg, err := cmd.editorConfig()
	if err != nil {
		return err
	}
	comp, err := newCompositor(cfg)
	if err != nil {
		return err
	}

	var store *catalog.Store
	var lister catalog.Lister
	if cmd.DBDSN != "" {
		store, err = catalog.Open(cmd.DBDriver, cmd.DBDSN)
		if err != nil {
			return fmt.Errorf("failed to open catalog: %w", err)
		}
		defer store.Close()
		lister = store
		if err := os.MkdirAll(cmd.MediaDir, 0755); err != nil {
			return fmt.Errorf("failed to create media directory %s: %w", cmd.MediaDir, err)
		}
	} else {
		scanner := catalog.NewScanner(cmd.BackgroundsDir, backgroundsPrefix)
		if err := scanner.Watch(ctx); err != nil {
			log.Ctx(ctx).Warn().Err(err).Msg("Background folder is not watched, restart to pick up changes")
		}
		lister = scanner
	}

	sessions := editor.NewRegistry(cfg, cmd.SessionTTL)
	if err := sessions.StartJanitor(ctx, cmd.JanitorSpec); err != nil {
		return err
	}

	remover := removebg.NewClient(cmd.APIKey)
	remover.MaxBytes = int(cfg.MaxUploadBytes)
	if cmd.APIKey == "" {
		log.Ctx(ctx).Warn().Msg("PHOTOROOM_API_KEY is not set, photo uploads will fail")
	}

	app := NewWebApp(Config{
		Addr:           cmd.Addr,
		Editor:         cfg,
		Sessions:       sessions,
		Compositor:     comp,
		Remover:        remover,
		Catalog:        lister,
		Store:          store,
		BackgroundsDir: cmd.BackgroundsDir,
		MediaDir:       cmd.MediaDir,
		AdminToken:     cmd.AdminToken,
		OnBeforeShutdown: func() {
			log.Ctx(ctx).Info().Msg("Shutting down web application...")
		},
		OnReady: func(addr string) {
			log.Ctx(ctx).Info().Msgf("Server started at %s", addr)
			if cmd.Open {
				if err := openBrowser(addr); err != nil {
					log.Error().Err(err).Msg("Failed to open browser")
				}
			}
		},
	})

	if err := app.Run(ctx); err != nil {
		return err
	}

	return nil
}

type renderCmd struct {
	commonFlags

	Jobs      string `arg:"" help:"JSON lines file, one operation per line" type:"existingfile"`
	BaseDir   string `help:"Directory relative paths in operations are read from; defaults to the jobs file directory"`
	OutputDir string `help:"Directory results are written to; defaults to <base-dir>/output"`
	JSON      bool   `help:"Output operations in JSON format without executing"`
}

func (cmd *renderCmd) Run() error {
	ctx := cmd.setup()
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt)
	defer cancel()

	ops, err := readOperations(cmd.Jobs)
	if err != nil {
		return err
	}
	if cmd.JSON {
		printJSONL(ops)
		return nil
	}

	cfg, err := cmd.editorConfig()
	if err != nil {
		return err
	}
	comp, err := newCompositor(cfg)
	if err != nil {
		return err
	}

	baseDir := cmd.BaseDir
	if baseDir == "" {
		baseDir = filepath.Dir(cmd.Jobs)
	}
	outputDir := cmd.OutputDir
	if outputDir == "" {
		outputDir = filepath.Join(baseDir, "output")
	}
	remover := removebg.NewClient(cmd.APIKey)
	remover.MaxBytes = int(cfg.MaxUploadBytes)

	executor := &OperationExecutor{
		BaseDir:    baseDir,
		OutputDir:  outputDir,
		Editor:     cfg,
		Compositor: comp,
		Loader:     raster.Loader{Root: baseDir, Timeout: 30 * time.Second},
		Remover:    remover,
	}
	return executor.Exec(ctx, ops)
}

type backgroundsCmd struct {
	Dir       string `arg:"" help:"Directory to scan" type:"existingdir"`
	URLPrefix string `help:"Prefix prepended to each image reference" default:"/backgrounds"`
	MaxScan   int    `help:"Highest index probed" default:"50"`
}

func (cmd *backgroundsCmd) Run() error {
	scanner := catalog.NewScanner(cmd.Dir, cmd.URLPrefix)
	scanner.MaxScan = cmd.MaxScan
	entries, err := scanner.Scan()
	if err != nil {
		return err
	}
	printJSONL(entries)
	return nil
}

func newCompositor(cfg editor.Config) (*compositor.Compositor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid editor configuration: %w", err)
	}
	fonts, err := compositor.NewFontBook(cfg.Fonts)
	if err != nil {
		return nil, fmt.Errorf("failed to load fonts: %w", err)
	}
	for generic, path := range cfg.GenericFonts {
		if err := fonts.LoadGeneric(generic, path); err != nil {
			return nil, fmt.Errorf("failed to load fonts: %w", err)
		}
	}
	return compositor.New(cfg, fonts)
}

func printJSONL[T any](data []T) {
	enc := json.NewEncoder(os.Stdout)
	for _, item := range data {
		if err := enc.Encode(item); err != nil {
			log.Error().Err(err).Msg("Failed to encode item to JSON")
			continue
		}
	}
}
