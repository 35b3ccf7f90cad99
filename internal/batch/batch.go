// Package batch runs the upscale, segment, compose and save pipeline over a
// directory of images.
package batch

import (
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/menta2k/widefit/internal/logging"
	"github.com/menta2k/widefit/internal/utils"
	"github.com/menta2k/widefit/pkg/analyzer"
	"github.com/menta2k/widefit/pkg/composer"
	"github.com/menta2k/widefit/pkg/processing"
	"github.com/menta2k/widefit/pkg/types"
	"github.com/menta2k/widefit/pkg/upscale"
	"github.com/menta2k/widefit/pkg/vision"
)

// ErrOutputCollision is recorded for an input whose output path is already
// taken by an earlier input of the same run, such as a.jpg and a.png
// converted to one format
var ErrOutputCollision = errors.New("output path collision")

// Options controls one batch run
type Options struct {
	Target types.TargetSize
	// Format replaces the output extension; empty keeps the source format
	Format   string
	Quality  int
	Lossless bool
	// Debug writes a <name>_debug.png overlay next to every output
	Debug bool
	// CopyOnly copies eligible files unchanged
	CopyOnly bool
	Workers  int
	// TempDir receives upscaled intermediates; empty means os.TempDir()
	TempDir string
}

// FileResult is the outcome for one input file
type FileResult struct {
	Input    string         `json:"input"`
	Output   string         `json:"output,omitempty"`
	Decision types.Decision `json:"decision"`
	Strategy string         `json:"strategy,omitempty"`
	Err      error          `json:"-"`
}

// Report collects every FileResult of a run in input order
type Report struct {
	Results []FileResult
}

// Succeeded returns the number of files written
func (r *Report) Succeeded() int {
	n := 0
	for _, res := range r.Results {
		if res.Err == nil {
			n++
		}
	}
	return n
}

// Failed returns the results that carry an error
func (r *Report) Failed() []FileResult {
	var failed []FileResult
	for _, res := range r.Results {
		if res.Err != nil {
			failed = append(failed, res)
		}
	}
	return failed
}

// Runner processes directories and single files
type Runner struct {
	opts      Options
	composer  *composer.Composer
	segmenter vision.Segmenter
	upscaler  upscale.Upscaler
	processor *processing.Processor
	logger    logging.Logger
}

// NewRunner creates a Runner. A nil upscaler disables upscaling, a nil
// segmenter gives every image the full-frame mask and a nil logger uses the
// global one.
func NewRunner(c *composer.Composer, seg vision.Segmenter, up upscale.Upscaler, opts Options, logger logging.Logger) *Runner {
	if up == nil {
		up = upscale.Noop{}
	}
	if logger == nil {
		logger = logging.Global()
	}
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.TempDir == "" {
		opts.TempDir = os.TempDir()
	}
	return &Runner{
		opts:      opts,
		composer:  c,
		segmenter: seg,
		upscaler:  up,
		processor: processing.NewProcessor(),
		logger:    logger.Named("batch"),
	}
}

// Run processes every eligible file in srcDir into dstDir. A failing file is
// logged and recorded, and the batch continues. After ctx is cancelled no new
// file is started; the remaining files are recorded with ctx's error, which
// Run also returns.
func (r *Runner) Run(ctx context.Context, srcDir, dstDir string) (*Report, error) {
	if !utils.DirExists(srcDir) {
		return nil, fmt.Errorf("source directory %s does not exist", srcDir)
	}
	files, err := utils.ListImageFiles(srcDir)
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", srcDir, err)
	}
	if err := utils.EnsureDir(dstDir); err != nil {
		return nil, fmt.Errorf("creating %s: %w", dstDir, err)
	}

	total := len(files)
	r.logger.Info("starting batch",
		zap.Int("files", total),
		zap.String("src", srcDir),
		zap.String("dst", dstDir),
		zap.Stringer("target", r.opts.Target),
		zap.Bool("copy_only", r.opts.CopyOnly))

	report := &Report{Results: make([]FileResult, total)}
	var (
		mu   sync.Mutex
		done int
	)
	record := func(i int, res FileResult) int {
		mu.Lock()
		defer mu.Unlock()
		report.Results[i] = res
		done++
		return done
	}

	owners := make(map[string]string, total)
	g := new(errgroup.Group)
	g.SetLimit(r.opts.Workers)
	for i, in := range files {
		out := utils.GenerateOutputFilename(in, dstDir, r.opts.Format)
		if prev, taken := owners[out]; taken {
			res := FileResult{Input: in, Err: fmt.Errorf("%w: %s is the output of %s", ErrOutputCollision, out, prev)}
			r.logResult(record(i, res), total, res)
			continue
		}
		owners[out] = in

		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				record(i, FileResult{Input: in, Err: err})
				return nil
			}

			res := r.ProcessFile(ctx, in, out)
			n := record(i, res)
			r.logResult(n, total, res)
			return nil
		})
	}
	g.Wait()

	r.logger.Info("batch finished",
		zap.Int("succeeded", report.Succeeded()),
		zap.Int("failed", len(report.Failed())))
	return report, ctx.Err()
}

func (r *Runner) logResult(n, total int, res FileResult) {
	progress := fmt.Sprintf("[%d/%d]", n, total)
	if res.Err == nil {
		r.logger.Info(progress+" done",
			zap.String("file", res.Input),
			zap.String("output", res.Output),
			zap.Stringer("decision", res.Decision),
			zap.String("strategy", res.Strategy))
		return
	}

	l := r.logger.With(zap.String("file", res.Input)).WithError(res.Err)
	switch {
	case errors.Is(res.Err, upscale.ErrUpscaleFailed):
		l.Error(progress + " upscale failed, file skipped")
	case errors.Is(res.Err, types.ErrInvalidTarget):
		l.Error(progress + " invalid target size")
	default:
		l.Error(progress + " failed")
	}
}

// ProcessFile runs the pipeline for one file. Nothing is written to out when
// upscaling, loading or composing fails.
func (r *Runner) ProcessFile(ctx context.Context, in, out string) FileResult {
	res := FileResult{Input: in}

	if r.opts.CopyOnly {
		if err := utils.CopyFile(in, out); err != nil {
			res.Err = err
			return res
		}
		res.Output = out
		res.Strategy = "copy"
		if fi, err := os.Stat(out); err == nil {
			r.logger.Debug("copied", zap.String("file", in), zap.String("size", utils.FormatFileSize(fi.Size())))
		}
		return res
	}

	src := in
	tmp := upscale.TempPath(r.opts.TempDir, in)
	defer os.Remove(tmp)

	up := r.upscaler.Upscale(ctx, in, tmp)
	if err := up.Err(); err != nil {
		res.Err = err
		return res
	}
	if up.OutputPath != "" {
		src = up.OutputPath
	}
	if src != in {
		r.logger.Debug("upscaled", zap.String("file", in), zap.String("diagnostic", up.Diagnostic))
	}

	img, err := r.processor.LoadImage(src)
	if err != nil {
		res.Err = fmt.Errorf("loading %s: %w", src, err)
		return res
	}
	return r.ProcessImage(ctx, in, img, out)
}

// ProcessImage segments, composes and saves an already loaded image. name
// identifies the image in logs and in the result.
func (r *Runner) ProcessImage(ctx context.Context, name string, img image.Image, out string) FileResult {
	res := FileResult{Input: name}

	composed, cr, err := r.compose(ctx, name, img)
	if err != nil {
		res.Err = err
		return res
	}
	res.Decision = cr.Analysis.Decision
	res.Strategy = cr.Strategy

	if err := r.processor.SaveImage(composed, out, r.opts.Format, r.opts.Quality, r.opts.Lossless); err != nil {
		res.Err = fmt.Errorf("saving %s: %w", out, err)
		return res
	}
	res.Output = out

	if r.opts.Debug {
		overlay := r.processor.CreateDebugOverlay(img, cr.Analysis.Subject, cr.Analysis.HasSubject, cr.Analysis.Window)
		if err := r.processor.SaveImage(overlay, utils.DebugFilename(out), "png", 0, false); err != nil {
			r.logger.Warn("debug overlay not written", zap.String("file", name), zap.Error(err))
		}
	}
	return res
}

// compose segments img and composes it to the target. A segmentation
// failure is logged and the full-frame mask is used.
func (r *Runner) compose(ctx context.Context, name string, img image.Image) (image.Image, composer.Result, error) {
	m, err := vision.SegmentOrFull(ctx, r.segmenter, img)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, composer.Result{}, ctxErr
		}
		r.logger.Warn("segmentation unavailable, using full frame", zap.String("file", name), zap.Error(err))
	}
	return r.composer.Compose(img, m, r.opts.Target)
}

// LogObserver logs every analysis at debug level
func LogObserver(logger logging.Logger) composer.Observer {
	return composer.ObserverFunc(func(a analyzer.Analysis) {
		logger.Debug("analysis",
			zap.Stringer("decision", a.Decision),
			zap.String("reason", string(a.Reason)),
			zap.Bool("has_subject", a.HasSubject),
			zap.Float64("coverage", a.Coverage),
			zap.Stringer("subject", a.Subject),
			zap.Stringer("window", a.Window),
			zap.Int("width", a.Source.Width),
			zap.Int("height", a.Source.Height))
	})
}
