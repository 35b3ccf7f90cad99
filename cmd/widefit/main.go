package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"go.uber.org/zap"

	"github.com/menta2k/widefit"
	"github.com/menta2k/widefit/internal/config"
	"github.com/menta2k/widefit/internal/logging"
)

// exit codes
const (
	exitOK = iota
	exitSetup
	exitPartial
)

func main() {
	os.Exit(run())
}

func run() int {
	var configPath, logLevel, in, outDir string
	var width, height, workers, quality int
	var noUpscale, debug, copyOnly, showVersion bool
	var preset, strategy, segmenters, format string
	var backend, url, model string

	flag.StringVar(&configPath, "config", "", "YAML or JSON config file (WIDEFIT_* env vars override it)")
	flag.StringVar(&logLevel, "log", "info", "log level: debug|info|warning|error")
	flag.BoolVar(&showVersion, "version", false, "print version and exit")

	flag.IntVar(&width, "width", 3440, "output width")
	flag.IntVar(&height, "height", 1440, "output height")
	flag.StringVar(&preset, "preset", "", "named output size: uwqhd|uwfhd|dqhd|4k|qhd|fhd (overrides -width/-height)")
	flag.StringVar(&strategy, "strategy", "gradient", "letterbox background: blur|gradient|inpaint")

	flag.BoolVar(&noUpscale, "no-upscale", false, "do not run Real-ESRGAN")
	flag.StringVar(&segmenters, "segmenters", "", "comma separated providers in preference order: model,matte,faces,smartcrop,saliency,full")
	flag.StringVar(&backend, "backend", "", "vision model backend: ollama|llamacpp")
	flag.StringVar(&url, "url", "", "vision model server URL (defaults: ollama=http://localhost:11434, llamacpp=http://localhost:8080)")
	flag.StringVar(&model, "model", "", "vision model name")

	flag.StringVar(&format, "format", "", "output format: jpg|png|webp (default: keep the source format)")
	flag.IntVar(&quality, "quality", 92, "JPEG/WebP output quality (1-100)")
	flag.BoolVar(&debug, "debug", false, "write a <name>_debug.png overlay per image")
	flag.IntVar(&workers, "workers", 2, "images processed in parallel")
	flag.BoolVar(&copyOnly, "copy-only", false, "copy eligible images to the destination unchanged")

	flag.StringVar(&in, "in", "", "process a single image path or URL instead of a directory")
	flag.StringVar(&outDir, "out", "out", "output directory for -in")

	flag.Usage = func() {
		name := filepath.Base(os.Args[0])
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [flags] SRC_DIR DST_DIR\n       %s [flags] -in image.jpg|URL [-out dir]\n\n", name, name)
		flag.PrintDefaults()
	}
	flag.Parse()

	if showVersion {
		fmt.Println("widefit", widefit.Version)
		return exitOK
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitSetup
	}

	// flags given on the command line win over the file and the environment
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "log":
			cfg.Logging.Level = logLevel
		case "width":
			cfg.Target.Width = width
		case "height":
			cfg.Target.Height = height
		case "preset":
			cfg.Target.Preset = preset
		case "strategy":
			cfg.Strategy = strategy
		case "no-upscale":
			cfg.Upscale.Enabled = !noUpscale
		case "segmenters":
			cfg.Segmentation.Providers = splitList(segmenters)
		case "backend":
			cfg.Segmentation.Model.Backend = backend
		case "url":
			cfg.Segmentation.Model.URL = url
		case "model":
			cfg.Segmentation.Model.Model = model
		case "format":
			cfg.Output.Format = format
		case "quality":
			cfg.Output.Quality = quality
		case "debug":
			cfg.Output.Debug = debug
		case "workers":
			cfg.Batch.Workers = workers
		case "copy-only":
			cfg.Batch.CopyOnly = copyOnly
		}
	})
	if copyOnly {
		cfg.Upscale.Enabled = false
	}

	logger := logging.Init(cfg.Logging)
	defer logger.Sync()

	if in == "" && flag.NArg() != 2 {
		flag.Usage()
		return exitSetup
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	wf, err := widefit.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("setup failed", zap.Error(err))
		return exitSetup
	}

	if in != "" {
		res, err := wf.ProcessFile(ctx, in, outDir)
		if err != nil {
			logger.Error("processing failed", zap.String("file", in), zap.Error(err))
			return exitPartial
		}
		logger.Info("wrote", zap.String("output", res.Output),
			zap.Stringer("decision", res.Decision), zap.String("strategy", res.Strategy))
		return exitOK
	}

	report, err := wf.ProcessDir(ctx, flag.Arg(0), flag.Arg(1))
	if report == nil {
		logger.Error("batch failed", zap.Error(err))
		return exitSetup
	}
	if err != nil {
		logger.Warn("batch interrupted", zap.Error(err))
		return exitPartial
	}
	if len(report.Failed()) > 0 {
		return exitPartial
	}
	return exitOK
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
