package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/m-lab/go/flagx"
	"github.com/m-lab/go/prometheusx"
	"github.com/m-lab/go/rtx"
	"github.com/rivo/tview"
	"github.com/robertodauria/speedmatrix/client"
	"github.com/robertodauria/speedmatrix/client/config"
	"github.com/robertodauria/speedmatrix/client/emitter"
	"github.com/robertodauria/speedmatrix/internal/exporter"
	"github.com/robertodauria/speedmatrix/internal/render"
	"github.com/robertodauria/speedmatrix/pkg/probe/spec"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"
	"golang.org/x/term"
)

var errNotTerminal = errors.New("stdout is not a terminal")

var (
	flagConfig      = flag.String("config", "", "YAML configuration file")
	flagWarmup      = flag.Duration("warmup", spec.DefaultWarmup, "Initial part of each cycle whose bytes are discarded")
	flagMeasure     = flag.Duration("measure", spec.DefaultMeasure, "Length of the measurement window")
	flagTick        = flag.Duration("tick", spec.DefaultTick, "Aggregation and render interval")
	flagCooldown    = flag.Duration("cooldown", spec.DefaultCooldown, "Pause after each cycle")
	flagPolicy      = flag.String("policy", string(config.DefaultPolicy), "Scheduling policy (round-robin, parallel)")
	flagUI          = flag.String("ui", string(config.DefaultUI), "Output mode (ansi, table, log)")
	flagListen      = flag.String("listen", "", "Address of the status API, e.g. :9990")
	flagSaturation  = flag.Float64("saturation", spec.DefaultSaturation, "Rate drawn as a full cell, in bytes/s")
	flagColumnWidth = flag.Int("column-width", spec.DefaultColumnWidth, "Width of an endpoint column")
	flagBlockRows   = flag.Int("block-rows", spec.DefaultBlockRows, "Rows drawn before the grid is cleared")
	flagLogFile     = flag.String("log.file", "", "Log file (required to see logs with a terminal UI)")
	flagLogLevel    = flag.String("log.level", config.DefaultLogLevel, "Log level")
	flagUserAgent   = flag.String("user-agent", config.DefaultUserAgent, "User-Agent of download requests")
)

// applyFlags overrides cfg with the flags set on the command line or in
// the environment.
func applyFlags(cfg *config.ClientConfig) {
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "warmup":
			cfg.Warmup = *flagWarmup
		case "measure":
			cfg.Measure = *flagMeasure
		case "tick":
			cfg.Tick = *flagTick
		case "cooldown":
			cfg.Cooldown = *flagCooldown
		case "policy":
			cfg.Policy = spec.Policy(*flagPolicy)
		case "ui":
			cfg.UI = config.UIMode(*flagUI)
		case "listen":
			cfg.Listen = *flagListen
		case "saturation":
			cfg.Saturation = *flagSaturation
		case "column-width":
			cfg.ColumnWidth = *flagColumnWidth
		case "block-rows":
			cfg.BlockRows = *flagBlockRows
		case "log.file":
			cfg.LogFile = *flagLogFile
		case "log.level":
			cfg.LogLevel = *flagLogLevel
		case "user-agent":
			cfg.UserAgent = *flagUserAgent
		}
	})
}

// newLogger keeps stdout for the grid: with a terminal UI, logs go to the
// log file or nowhere.
func newLogger(cfg *config.ClientConfig) (*zap.Logger, error) {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		return nil, err
	}
	zc := zap.NewProductionConfig()
	zc.Level = zap.NewAtomicLevelAt(level)
	switch {
	case cfg.LogFile != "":
		zc.OutputPaths = []string{cfg.LogFile}
		zc.ErrorOutputPaths = []string{cfg.LogFile}
	case cfg.UI != config.UILog:
		return zap.NewNop(), nil
	default:
		zc.Encoding = "console"
		zc.EncoderConfig = zap.NewDevelopmentEncoderConfig()
	}
	return zc.Build()
}

func main() {
	flag.Parse()
	rtx.Must(flagx.ArgsFromEnv(flag.CommandLine), "Could not read args from env")

	cfg, err := config.Load(*flagConfig)
	rtx.Must(err, "Could not load configuration")
	applyFlags(cfg)
	rtx.Must(cfg.Validate(), "Invalid configuration")

	logger, err := newLogger(cfg)
	rtx.Must(err, "Could not create logger")
	defer logger.Sync()
	zap.ReplaceGlobals(logger)

	zap.L().Sugar().Infow("Starting speedmatrix",
		"commit", prometheusx.GitShortCommit,
		"endpoints", len(cfg.Endpoints),
		"policy", cfg.Policy,
		"ui", cfg.UI,
		"warmup", cfg.Warmup,
		"measure", cfg.Measure)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	g, ctx := errgroup.WithContext(ctx)

	emitters := emitter.Multi{&emitter.LogEmitter{Names: cfg.Names()}}
	if cfg.Listen != "" {
		srv := exporter.New(cfg.Endpoints)
		emitters = append(emitters, srv)
		g.Go(func() error {
			return srv.ListenAndServe(ctx, cfg.Listen)
		})
	}

	display, closeDisplay, err := newDisplay(ctx, g, stop, cfg)
	if flush(logger, err, "Cannot create the display") {
		stop()
		rtx.Must(err, "Cannot use ui %q; use -ui=log", cfg.UI)
	}
	c := client.New(cfg, display, emitters)
	g.Go(func() error {
		return c.Run(ctx)
	})

	err = g.Wait()
	closeDisplay()
	if flush(logger, err, "speedmatrix failed") {
		stop()
		rtx.Must(err, "speedmatrix failed")
	}
}

// flush logs err and syncs logger before a fatal exit, which skips deferred
// calls. It reports whether err is not nil.
func flush(logger *zap.Logger, err error, msg string) bool {
	if err == nil {
		return false
	}
	logger.Sugar().Errorw(msg, "err", err)
	logger.Sync()
	return true
}

// newDisplay builds the display selected by cfg.UI. It returns nil in log
// mode. The returned func restores the terminal.
func newDisplay(ctx context.Context, g *errgroup.Group, stop context.CancelFunc,
	cfg *config.ClientConfig) (client.Display, func(), error) {
	if cfg.UI == config.UILog {
		return nil, func() {}, nil
	}
	fd := int(os.Stdout.Fd())
	if !term.IsTerminal(fd) {
		return nil, nil, errNotTerminal
	}
	scale := render.NewScale(cfg.Saturation, cfg.ColumnWidth)
	names := cfg.Names()

	if cfg.UI == config.UITable {
		app := tview.NewApplication()
		grid := render.NewTableGrid(app)
		g.Go(func() error {
			err := app.Run()
			grid.Stop()
			// Quitting the table ends the run.
			stop()
			return err
		})
		g.Go(func() error {
			<-ctx.Done()
			app.Stop()
			return nil
		})
		return render.NewMatrix(grid, scale, names, cfg.BlockRows, cfg.LabelEvery), func() {}, nil
	}

	rows := cfg.BlockRows
	if _, height, err := term.GetSize(fd); err == nil && height-2 < rows {
		rows = height - 2
	}
	grid := render.NewANSIGrid(os.Stdout, cfg.HeaderWidth, cfg.ColumnWidth)
	return render.NewMatrix(grid, scale, names, rows, cfg.LabelEvery), func() {
		if err := grid.Close(); err != nil {
			fmt.Fprintln(os.Stderr, err)
		}
	}, nil
}
