// Package config loads widefit settings from defaults, an optional YAML or
// JSON file and WIDEFIT_* environment variables.
package config

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/disintegration/imaging"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/menta2k/widefit/internal/logging"
	"github.com/menta2k/widefit/pkg/cropper"
	"github.com/menta2k/widefit/pkg/types"
)

// EnvPrefix prefixes every environment override, e.g. WIDEFIT_TARGET_WIDTH
const EnvPrefix = "WIDEFIT"

// Config holds the application configuration
type Config struct {
	Target       TargetConfig       `mapstructure:"target" yaml:"target"`
	Strategy     string             `mapstructure:"strategy" yaml:"strategy" default:"gradient" validate:"oneof=blur gradient inpaint"`
	Resample     string             `mapstructure:"resample" yaml:"resample" default:"lanczos" validate:"oneof=nearest linear catmullrom lanczos"`
	Background   BackgroundConfig   `mapstructure:"background" yaml:"background"`
	Upscale      UpscaleConfig      `mapstructure:"upscale" yaml:"upscale"`
	Segmentation SegmentationConfig `mapstructure:"segmentation" yaml:"segmentation"`
	Output       OutputConfig       `mapstructure:"output" yaml:"output"`
	Batch        BatchConfig        `mapstructure:"batch" yaml:"batch"`
	Logging      logging.Config     `mapstructure:"logging" yaml:"logging"`
}

// TargetConfig is the output canvas. A preset name wins over Width and Height.
type TargetConfig struct {
	Width  int    `mapstructure:"width" yaml:"width" default:"3440" validate:"gt=0"`
	Height int    `mapstructure:"height" yaml:"height" default:"1440" validate:"gt=0"`
	Preset string `mapstructure:"preset" yaml:"preset"`
	// FullFrameCrop makes a mask covering the whole image choose the crop
	FullFrameCrop bool `mapstructure:"full_frame_crop" yaml:"full_frame_crop" default:"true"`
}

// BackgroundConfig tunes the letterbox fill strategies
type BackgroundConfig struct {
	BlurSigma      float64 `mapstructure:"blur_sigma" yaml:"blur_sigma" default:"32" validate:"gt=0"`
	BlurDownsample int     `mapstructure:"blur_downsample" yaml:"blur_downsample" default:"4" validate:"gte=1"`
	InpaintRadius  int     `mapstructure:"inpaint_radius" yaml:"inpaint_radius" default:"3" validate:"gte=1"`
}

// UpscaleConfig controls the external super-resolution step
type UpscaleConfig struct {
	Enabled   bool          `mapstructure:"enabled" yaml:"enabled" default:"true"`
	Binary    string        `mapstructure:"binary" yaml:"binary" default:"realesrgan-ncnn-vulkan" validate:"required_if=Enabled true"`
	Scale     int           `mapstructure:"scale" yaml:"scale" validate:"gte=0"`
	Model     string        `mapstructure:"model" yaml:"model"`
	ExtraArgs []string      `mapstructure:"extra_args" yaml:"extra_args"`
	Timeout   time.Duration `mapstructure:"timeout" yaml:"timeout" default:"10m" validate:"gte=0"`
	// TempDir holds upscaled intermediates; empty means the system temp dir
	TempDir string `mapstructure:"temp_dir" yaml:"temp_dir"`
}

// SegmentationConfig lists the subject providers in preference order
type SegmentationConfig struct {
	Providers []string        `mapstructure:"providers" yaml:"providers" default:"[\"model\",\"faces\",\"saliency\"]" validate:"dive,oneof=model matte faces smartcrop saliency full"`
	Model     ModelConfig     `mapstructure:"model" yaml:"model"`
	Matte     MatteConfig     `mapstructure:"matte" yaml:"matte"`
	Faces     FacesConfig     `mapstructure:"faces" yaml:"faces"`
	Saliency  SaliencyConfig  `mapstructure:"saliency" yaml:"saliency"`
	Smartcrop SmartcropConfig `mapstructure:"smartcrop" yaml:"smartcrop"`
}

// ModelConfig selects the vision-model backend
type ModelConfig struct {
	Backend string `mapstructure:"backend" yaml:"backend" default:"llamacpp" validate:"oneof=ollama llamacpp"`
	// URL of the server; empty means the backend default
	URL           string  `mapstructure:"url" yaml:"url" validate:"omitempty,url"`
	Model         string  `mapstructure:"model" yaml:"model" default:"openbmb/minicpm-v4.5"`
	MaxDimension  int     `mapstructure:"max_dimension" yaml:"max_dimension" default:"1024" validate:"gte=64"`
	Quality       int     `mapstructure:"quality" yaml:"quality" default:"85" validate:"min=1,max=100"`
	MinConfidence float64 `mapstructure:"min_confidence" yaml:"min_confidence" default:"0.3" validate:"gte=0,lte=1"`
}

// MatteConfig configures the background-removal provider. The tool is run
// as <binary> <args...> <in.png> <out.png> and must write a cut-out whose
// alpha channel marks the subject.
type MatteConfig struct {
	Binary  string        `mapstructure:"binary" yaml:"binary" default:"rembg"`
	Args    []string      `mapstructure:"args" yaml:"args" default:"[\"i\"]"`
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout" default:"2m" validate:"gte=0"`
}

// FacesConfig configures the pigo face provider
type FacesConfig struct {
	CascadePath string  `mapstructure:"cascade_path" yaml:"cascade_path"`
	MinQuality  float32 `mapstructure:"min_quality" yaml:"min_quality" default:"10"`
	Padding     float64 `mapstructure:"padding" yaml:"padding" default:"0.5" validate:"gte=0"`
	BodyFactor  float64 `mapstructure:"body_factor" yaml:"body_factor" default:"2.5" validate:"gte=0"`
}

// SaliencyConfig configures the edge and contrast provider
type SaliencyConfig struct {
	EdgeWeight     float64 `mapstructure:"edge_weight" yaml:"edge_weight" default:"0.3" validate:"gte=0"`
	ContrastWeight float64 `mapstructure:"contrast_weight" yaml:"contrast_weight" default:"0.7" validate:"gte=0"`
	MaxDimension   int     `mapstructure:"max_dimension" yaml:"max_dimension" default:"256" validate:"gte=16"`
}

// SmartcropConfig configures the smartcrop provider
type SmartcropConfig struct {
	Aspect       float64 `mapstructure:"aspect" yaml:"aspect" default:"1" validate:"gt=0"`
	MaxDimension int     `mapstructure:"max_dimension" yaml:"max_dimension" default:"512" validate:"gte=16"`
}

// OutputConfig holds configuration for output generation
type OutputConfig struct {
	// Format replaces the output extension; empty keeps the source format
	Format   string `mapstructure:"format" yaml:"format" validate:"omitempty,oneof=jpg jpeg png webp"`
	Quality  int    `mapstructure:"quality" yaml:"quality" default:"92" validate:"min=1,max=100"`
	Lossless bool   `mapstructure:"lossless" yaml:"lossless"`
	// Debug writes a <name>_debug.png overlay next to every output
	Debug bool `mapstructure:"debug" yaml:"debug"`
}

// BatchConfig controls directory processing
type BatchConfig struct {
	Workers  int  `mapstructure:"workers" yaml:"workers" default:"2" validate:"min=1"`
	CopyOnly bool `mapstructure:"copy_only" yaml:"copy_only"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Default returns a configuration with default values
func Default() *Config {
	cfg := &Config{}
	if err := defaults.Set(cfg); err != nil {
		panic(fmt.Sprintf("config: bad default tag: %v", err))
	}
	return cfg
}

// Load reads path (YAML or JSON, optional when empty) on top of the defaults
// and applies WIDEFIT_* environment overrides. The result is validated.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// every key needs a default so that AutomaticEnv sees it without a file
	setDefaults(v, "", reflect.ValueOf(*Default()))

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// setDefaults registers every leaf of val under its mapstructure key
func setDefaults(v *viper.Viper, prefix string, val reflect.Value) {
	t := val.Type()
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		key := f.Tag.Get("mapstructure")
		if key == "" || key == "-" {
			continue
		}
		if prefix != "" {
			key = prefix + "." + key
		}
		fv := val.Field(i)
		if fv.Kind() == reflect.Struct && f.Type != reflect.TypeOf(time.Duration(0)) {
			setDefaults(v, key, fv)
			continue
		}
		v.SetDefault(key, fv.Interface())
	}
}

// Validate checks every field constraint and the preset name
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if c.Target.Preset != "" {
		if _, ok := cropper.LookupPreset(c.Target.Preset); !ok {
			return fmt.Errorf("invalid configuration: unknown preset %q", c.Target.Preset)
		}
	}
	return nil
}

// TargetSize resolves the output canvas
func (c *Config) TargetSize() types.TargetSize {
	if p, ok := cropper.LookupPreset(c.Target.Preset); ok {
		return p.Target
	}
	return types.TargetSize{Width: c.Target.Width, Height: c.Target.Height}
}

// Filter maps the resample name to an imaging filter
func (c *Config) Filter() imaging.ResampleFilter {
	return FilterByName(c.Resample)
}

// FilterByName maps a resample name to an imaging filter; unknown names give Lanczos
func FilterByName(name string) imaging.ResampleFilter {
	switch strings.ToLower(name) {
	case "nearest":
		return imaging.NearestNeighbor
	case "linear":
		return imaging.Linear
	case "catmullrom":
		return imaging.CatmullRom
	default:
		return imaging.Lanczos
	}
}
