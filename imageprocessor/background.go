package imageprocessor

import (
	"fmt"
	"image"
	"strings"
	"sync"

	"github.com/w00dy1981/DigitalAssetsDownloader/logging"
	"github.com/w00dy1981/DigitalAssetsDownloader/types"
	"github.com/w00dy1981/DigitalAssetsDownloader/utils"
)

// Method names a background replacement strategy
type Method string

const (
	MethodSmartDetect   Method = "smart_detect"
	MethodAIRemoval     Method = "ai_removal"
	MethodColorReplace  Method = "color_replace"
	MethodEdgeDetection Method = "edge_detection"
)

// Methods lists every supported strategy
var Methods = []Method{MethodSmartDetect, MethodAIRemoval, MethodColorReplace, MethodEdgeDetection}

const (
	DefaultQuality       = 95
	MinQuality           = 60
	MaxQuality           = 100
	DefaultEdgeThreshold = 30
	MinEdgeThreshold     = 10
	MaxEdgeThreshold     = 100
)

// BackgroundProcessingConfig selects and tunes the background strategy
type BackgroundProcessingConfig struct {
	Method        Method `yaml:"method"`
	Quality       int    `yaml:"quality"`
	EdgeThreshold int    `yaml:"edge_threshold"`
}

// DefaultBackgroundConfig returns smart_detect at quality 95
func DefaultBackgroundConfig() BackgroundProcessingConfig {
	return BackgroundProcessingConfig{
		Method:        MethodSmartDetect,
		Quality:       DefaultQuality,
		EdgeThreshold: DefaultEdgeThreshold,
	}
}

// Normalize fills defaults and clamps out-of-range values
func (c BackgroundProcessingConfig) Normalize() BackgroundProcessingConfig {
	if c.Method == "" {
		c.Method = MethodSmartDetect
	}
	c.Method = Method(strings.ToLower(strings.TrimSpace(string(c.Method))))
	if c.Quality == 0 {
		c.Quality = DefaultQuality
	}
	c.Quality = utils.ClampInt(c.Quality, MinQuality, MaxQuality)
	if c.EdgeThreshold == 0 {
		c.EdgeThreshold = DefaultEdgeThreshold
	}
	c.EdgeThreshold = utils.ClampInt(c.EdgeThreshold, MinEdgeThreshold, MaxEdgeThreshold)
	return c
}

// Validate rejects unknown methods
func (c BackgroundProcessingConfig) Validate() error {
	if _, err := ParseMethod(string(c.Method)); err != nil {
		return err
	}
	return nil
}

// ParseMethod maps a method name onto a Method
func ParseMethod(name string) (Method, error) {
	m := Method(strings.ToLower(strings.TrimSpace(name)))
	for _, known := range Methods {
		if m == known {
			return m, nil
		}
	}
	return "", fmt.Errorf("unknown background method %q (valid: smart_detect, ai_removal, color_replace, edge_detection)", name)
}

// Strategy rewrites the background of a flattened image.
// Apply must not modify img; it reports whether any pixel changed.
type Strategy interface {
	Name() Method
	Apply(img *image.RGBA) (*image.RGBA, bool, error)
}

// StrategyRegistry maintains the strategies keyed by method
type StrategyRegistry struct {
	strategies map[Method]Strategy
	mutex      sync.RWMutex
}

// NewStrategyRegistry registers the four built-in strategies
func NewStrategyRegistry(cfg BackgroundProcessingConfig, segmenter Segmenter) *StrategyRegistry {
	r := &StrategyRegistry{strategies: make(map[Method]Strategy)}

	smart := NewSmartDetectStrategy()
	r.Register(smart)
	r.Register(NewColorReplaceStrategy())
	r.Register(withFallback(NewEdgeDetectionStrategy(cfg.EdgeThreshold), smart))
	r.Register(withFallback(NewAIRemovalStrategy(segmenter), smart))

	return r
}

// Register adds or replaces the strategy for its method
func (r *StrategyRegistry) Register(s Strategy) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.strategies[s.Name()] = s
}

// Get returns the strategy for a method, or nil
func (r *StrategyRegistry) Get(m Method) Strategy {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	return r.strategies[m]
}

// Outcome is the result of the fail-open background boundary
type Outcome struct {
	// Data is the processed JPEG, or the untouched input when Err is set
	Data []byte
	// Applied is true when the pipeline completed and Data was re-encoded
	Applied bool
	// Changed is true when the strategy replaced any pixels
	Changed bool
	Method  Method
	Err     error
}

// Bytes returns the bytes to write
func (o Outcome) Bytes() []byte {
	return o.Data
}

// BackgroundProcessor applies the configured strategy and never fails the caller.
// It is safe for concurrent use.
type BackgroundProcessor struct {
	config   BackgroundProcessingConfig
	registry *StrategyRegistry
}

// ProcessorOption configures a BackgroundProcessor
type ProcessorOption func(*processorOptions)

type processorOptions struct {
	segmenter Segmenter
}

// WithSegmenter replaces the external segmentation model used by ai_removal
func WithSegmenter(s Segmenter) ProcessorOption {
	return func(o *processorOptions) { o.segmenter = s }
}

// NewBackgroundProcessor validates cfg and builds the strategy registry
func NewBackgroundProcessor(cfg BackgroundProcessingConfig, opts ...ProcessorOption) (*BackgroundProcessor, error) {
	cfg = cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := processorOptions{segmenter: NewRembgSegmenter()}
	for _, opt := range opts {
		opt(&o)
	}

	return &BackgroundProcessor{
		config:   cfg,
		registry: NewStrategyRegistry(cfg, o.segmenter),
	}, nil
}

// Config returns a copy of the effective configuration
func (p *BackgroundProcessor) Config() BackgroundProcessingConfig {
	return p.config
}

// Process decodes data, applies the strategy and re-encodes as JPEG.
// Any failure returns the original bytes with Applied false.
func (p *BackgroundProcessor) Process(data []byte) (out Outcome) {
	defer func() {
		if r := recover(); r != nil {
			out = p.failOpen(data, types.Errorf(types.ErrUnexpected, "background processing panicked: %v", r))
		}
	}()

	img, _, err := decodeImage(data)
	if err != nil {
		return p.failOpen(data, types.NewError(types.ErrImageDecode, "decoding image", err))
	}

	strategy := p.registry.Get(p.config.Method)
	if strategy == nil {
		return p.failOpen(data, types.Errorf(types.ErrProcessing, "no strategy registered for %s", p.config.Method))
	}

	result, changed, err := strategy.Apply(flattenOnWhite(img))
	if err != nil {
		return p.failOpen(data, types.NewError(types.ErrProcessing, string(p.config.Method), err))
	}

	encoded, err := encodeJPEG(result, p.config.Quality)
	if err != nil {
		return p.failOpen(data, types.NewError(types.ErrProcessing, "encoding result", err))
	}

	return Outcome{Data: encoded, Applied: true, Changed: changed, Method: p.config.Method}
}

func (p *BackgroundProcessor) failOpen(data []byte, err error) Outcome {
	logging.LogWarning("Background processing failed, keeping original image: %v", err)
	return Outcome{Data: data, Method: p.config.Method, Err: err}
}

// fallbackStrategy runs primary and switches to fallback on any error or panic
type fallbackStrategy struct {
	primary  Strategy
	fallback Strategy
}

func withFallback(primary, fallback Strategy) Strategy {
	return fallbackStrategy{primary: primary, fallback: fallback}
}

func (f fallbackStrategy) Name() Method {
	return f.primary.Name()
}

func (f fallbackStrategy) Apply(img *image.RGBA) (*image.RGBA, bool, error) {
	out, changed, err := safeApply(f.primary, img)
	if err == nil {
		return out, changed, nil
	}
	logging.LogWarning("%s failed, falling back to %s: %v", f.primary.Name(), f.fallback.Name(), err)
	return f.fallback.Apply(img)
}

func safeApply(s Strategy, img *image.RGBA) (out *image.RGBA, changed bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			out, changed, err = nil, false, fmt.Errorf("%s panicked: %v", s.Name(), r)
		}
	}()
	return s.Apply(img)
}
