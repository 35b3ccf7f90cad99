// Package widefit fits photos to a fixed-aspect canvas such as a 21:9
// wallpaper.
//
// Each image is optionally upscaled with an external super-resolution tool,
// its subject is located by the first available segmentation provider, and
// the composer either center-crops it (when the subject survives the crop)
// or letterboxes it over a synthesized background.
//
// Basic usage:
//
//	cfg := config.Default()
//	cfg.Upscale.Enabled = false
//
//	wf, err := widefit.New(ctx, cfg, logging.Global())
//	if err != nil {
//		log.Fatal(err)
//	}
//	report, err := wf.ProcessDir(ctx, "photos", "wallpapers")
//
// The package consists of these main components:
//
//  1. Analyzer (pkg/analyzer): decides crop or letterbox from a subject mask
//  2. Cropper (pkg/cropper): cuts the centered window and resizes it
//  3. Background (pkg/background): blur, gradient and inpaint letterbox fills
//  4. Composer (pkg/composer): runs the decision and the chosen strategy
//  5. Vision (pkg/vision): ranked subject segmentation providers
//  6. Upscale (pkg/upscale): Real-ESRGAN wrapper
package widefit

import (
	"context"
	"fmt"
	"image"
	"net/url"
	"path"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/menta2k/widefit/internal/batch"
	"github.com/menta2k/widefit/internal/config"
	"github.com/menta2k/widefit/internal/logging"
	"github.com/menta2k/widefit/internal/utils"
	"github.com/menta2k/widefit/pkg/analyzer"
	"github.com/menta2k/widefit/pkg/background"
	"github.com/menta2k/widefit/pkg/client"
	"github.com/menta2k/widefit/pkg/composer"
	"github.com/menta2k/widefit/pkg/cropper"
	"github.com/menta2k/widefit/pkg/detection"
	"github.com/menta2k/widefit/pkg/llamacpp"
	"github.com/menta2k/widefit/pkg/ollama"
	"github.com/menta2k/widefit/pkg/processing"
	"github.com/menta2k/widefit/pkg/types"
	"github.com/menta2k/widefit/pkg/upscale"
	"github.com/menta2k/widefit/pkg/vision"
)

// Version of widefit
const Version = "1.0.0"

// resolveTimeout bounds the availability checks of all providers together
const resolveTimeout = 10 * time.Second

// Widefit is the configured pipeline
type Widefit struct {
	config    *config.Config
	composer  *composer.Composer
	segmenter vision.Segmenter
	upscaler  upscale.Upscaler
	runner    *batch.Runner
	processor *processing.Processor
	logger    logging.Logger
}

// New builds the pipeline described by cfg. Segmentation providers are
// resolved once here; an unavailable provider is logged and skipped.
func New(ctx context.Context, cfg *config.Config, logger logging.Logger) (*Widefit, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logging.Global()
	}

	strategy, err := background.ByName(cfg.Strategy, background.Config{
		BlurSigma:      cfg.Background.BlurSigma,
		BlurDownsample: cfg.Background.BlurDownsample,
		InpaintRadius:  cfg.Background.InpaintRadius,
		Filter:         cfg.Filter(),
	})
	if err != nil {
		return nil, err
	}

	comp := composer.New(strategy,
		composer.WithAnalyzer(analyzer.NewWithConfig(analyzer.Config{FullFrameCrop: cfg.Target.FullFrameCrop})),
		composer.WithCropper(cropper.NewWithConfig(cropper.CropConfig{Filter: cfg.Filter()})),
		composer.WithObserver(batch.LogObserver(logger.Named("composer"))),
	)

	providers, err := Segmenters(cfg.Segmentation)
	if err != nil {
		return nil, err
	}
	rctx, cancel := context.WithTimeout(ctx, resolveTimeout)
	segmenter, err := vision.Resolve(rctx, providers...)
	cancel()
	if err != nil {
		logger.Warn("segmentation providers skipped", zap.Error(err))
	}
	logger.Info("segmentation provider", zap.String("name", segmenter.Name()))

	upscaler, err := Upscaler(cfg.Upscale)
	if err != nil {
		return nil, err
	}

	runner := batch.NewRunner(comp, segmenter, upscaler, batch.Options{
		Target:   cfg.TargetSize(),
		Format:   cfg.Output.Format,
		Quality:  cfg.Output.Quality,
		Lossless: cfg.Output.Lossless,
		Debug:    cfg.Output.Debug,
		CopyOnly: cfg.Batch.CopyOnly,
		Workers:  cfg.Batch.Workers,
		TempDir:  cfg.Upscale.TempDir,
	}, logger)

	return &Widefit{
		config:    cfg,
		composer:  comp,
		segmenter: segmenter,
		upscaler:  upscaler,
		runner:    runner,
		processor: processing.NewProcessor(),
		logger:    logger,
	}, nil
}

// Segmenters builds the configured providers in preference order
func Segmenters(cfg config.SegmentationConfig) ([]vision.Segmenter, error) {
	var providers []vision.Segmenter
	for _, name := range cfg.Providers {
		switch name {
		case "model":
			vc, err := VisionClient(cfg.Model.Backend, cfg.Model.URL)
			if err != nil {
				return nil, err
			}
			det := detection.NewDetector(vc).WithMinConfidence(cfg.Model.MinConfidence)
			providers = append(providers, vision.NewModel(det, vision.ModelConfig{
				Model:        cfg.Model.Model,
				MaxDimension: cfg.Model.MaxDimension,
				Quality:      cfg.Model.Quality,
			}))
		case "matte":
			providers = append(providers, vision.NewMatte(vision.MatteConfig{
				Binary:  cfg.Matte.Binary,
				Args:    cfg.Matte.Args,
				Timeout: cfg.Matte.Timeout,
			}))
		case "faces":
			fc := vision.DefaultFaceConfig()
			fc.CascadePath = cfg.Faces.CascadePath
			fc.MinQuality = cfg.Faces.MinQuality
			fc.Padding = cfg.Faces.Padding
			fc.BodyFactor = cfg.Faces.BodyFactor
			providers = append(providers, vision.NewFaces(fc))
		case "smartcrop":
			providers = append(providers, vision.NewSmartcrop(vision.SmartcropConfig{
				Aspect:       cfg.Smartcrop.Aspect,
				MaxDimension: cfg.Smartcrop.MaxDimension,
			}))
		case "saliency":
			sc := vision.DefaultSaliencyConfig()
			sc.EdgeWeight = cfg.Saliency.EdgeWeight
			sc.ContrastWeight = cfg.Saliency.ContrastWeight
			sc.MaxDimension = cfg.Saliency.MaxDimension
			providers = append(providers, vision.NewSaliencyWithConfig(sc))
		case "full":
			providers = append(providers, vision.Full{})
		default:
			return nil, fmt.Errorf("unknown segmentation provider %q", name)
		}
	}
	return providers, nil
}

// VisionClient creates the model backend client. An empty URL means the
// backend's default address.
func VisionClient(backend, serverURL string) (client.VisionClient, error) {
	switch backend {
	case "ollama":
		if serverURL == "" {
			serverURL = ollama.DefaultURL
		}
		c, err := ollama.NewClient(serverURL)
		if err != nil {
			return nil, fmt.Errorf("failed to create Ollama client: %w", err)
		}
		return c, nil
	case "llamacpp":
		if serverURL == "" {
			serverURL = llamacpp.DefaultURL
		}
		c, err := llamacpp.NewClient(serverURL)
		if err != nil {
			return nil, fmt.Errorf("failed to create llama.cpp client: %w", err)
		}
		return c, nil
	default:
		return nil, fmt.Errorf("unknown backend %q (use 'ollama' or 'llamacpp')", backend)
	}
}

// Upscaler returns the configured upscaler. A missing binary is an error
// so that a batch does not fail file by file.
func Upscaler(cfg config.UpscaleConfig) (upscale.Upscaler, error) {
	if !cfg.Enabled {
		return upscale.Noop{}, nil
	}
	u := &upscale.RealESRGAN{
		Binary:    cfg.Binary,
		Scale:     cfg.Scale,
		Model:     cfg.Model,
		ExtraArgs: cfg.ExtraArgs,
		Timeout:   cfg.Timeout,
	}
	if _, err := u.LookPath(); err != nil {
		return nil, fmt.Errorf("upscaler not found (disable upscaling to run without it): %w", err)
	}
	return u, nil
}

// SegmenterName returns the provider chosen at construction
func (w *Widefit) SegmenterName() string {
	return w.segmenter.Name()
}

// Compose fits img to target using mask m
func (w *Widefit) Compose(img image.Image, m *image.Gray, target types.TargetSize) (image.Image, composer.Result, error) {
	return w.composer.Compose(img, m, target)
}

// ProcessDir processes every image in srcDir into dstDir
func (w *Widefit) ProcessDir(ctx context.Context, srcDir, dstDir string) (*batch.Report, error) {
	return w.runner.Run(ctx, srcDir, dstDir)
}

// ProcessFile processes one image, given as a path or an http(s) URL, into
// outDir. URLs are not upscaled.
func (w *Widefit) ProcessFile(ctx context.Context, source, outDir string) (batch.FileResult, error) {
	if err := utils.EnsureDir(outDir); err != nil {
		return batch.FileResult{}, fmt.Errorf("creating %s: %w", outDir, err)
	}

	if !isURL(source) {
		if !utils.FileExists(source) {
			err := fmt.Errorf("input %s does not exist", source)
			return batch.FileResult{Input: source, Err: err}, err
		}
		out := utils.GenerateOutputFilename(source, outDir, w.config.Output.Format)
		res := w.runner.ProcessFile(ctx, source, out)
		return res, res.Err
	}

	img, err := w.processor.LoadImageFromURL(ctx, source)
	if err != nil {
		return batch.FileResult{Input: source, Err: err}, err
	}
	out := utils.GenerateOutputFilename(urlFilename(source), outDir, w.config.Output.Format)
	res := w.runner.ProcessImage(ctx, source, img, out)
	return res, res.Err
}

func isURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

// urlFilename derives an output name from a URL path, defaulting to image.jpg
func urlFilename(source string) string {
	u, err := url.Parse(source)
	if err != nil {
		return "image.jpg"
	}
	name := path.Base(u.Path)
	if name == "/" || name == "." || !utils.IsImageFile(name) {
		return "image.jpg"
	}
	return name
}

// GetVersion returns the library version
func GetVersion() string {
	return Version
}
