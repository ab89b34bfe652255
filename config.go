package terrastream

import (
	"fmt"
	"time"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsimple"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/function"
)

type Config struct {
	RetryMalformed bool                     `hcl:"retry_malformed,optional"`
	Cache          *CacheConfigBlock        `hcl:"cache,block"`
	Retry          *RetryConfigBlock        `hcl:"retry,block"`
	Loader         *LoaderConfigBlock       `hcl:"loader,block"`
	Frame          *FrameConfigBlock        `hcl:"frame,block"`
	Surfaces       []*SurfaceConfigBlock    `hcl:"surface,block"`
	BoundLayers    []*BoundLayerConfigBlock `hcl:"bound_layer,block"`
	Views          []*ViewConfigBlock       `hcl:"view,block"`
}

// Integer settings where zero is meaningful are pointers: nil keeps the
// default, an explicit 0 is honoured.
type CacheConfigBlock struct {
	CPUSize    *int `hcl:"cpu_size,optional"`
	GPUSize    *int `hcl:"gpu_size,optional"`
	MaxGPUUsed *int `hcl:"max_gpu_used,optional"`
}

type RetryConfigBlock struct {
	MaxCount *int   `hcl:"max_count,optional"`
	Backoff  string `hcl:"backoff,optional"`
}

type LoaderConfigBlock struct {
	Concurrency int     `hcl:"concurrency,optional"`
	Rate        float64 `hcl:"rate,optional"`
	Burst       int     `hcl:"burst,optional"`
	Timeout     string  `hcl:"timeout,optional"`
	QueueSize   int     `hcl:"queue_size,optional"`
}

type FrameConfigBlock struct {
	ProcessBudget string `hcl:"process_budget,optional"`
	NodeTTL       *int   `hcl:"node_ttl,optional"`
}

type SurfaceConfigBlock struct {
	Name         string   `hcl:"name,label"`
	MeshURL      string   `hcl:"mesh_url"`
	TextureURL   string   `hcl:"texture_url,optional"`
	MetaURL      string   `hcl:"meta_url"`
	HeightmapURL string   `hcl:"heightmap_url,optional"`
	GeodataURL   string   `hcl:"geodata_url,optional"`
	LODRange     []int    `hcl:"lod_range,optional"`
	MetaOrder    int      `hcl:"meta_order,optional"`
	BoundLayers  []string `hcl:"bound_layers,optional"`
}

type BoundLayerConfigBlock struct {
	Name     string  `hcl:"name,label"`
	URL      string  `hcl:"url"`
	MaskURL  string  `hcl:"mask_url,optional"`
	MetaURL  string  `hcl:"meta_url,optional"`
	LODRange []int   `hcl:"lod_range,optional"`
	Opacity  float64 `hcl:"opacity,optional"`
}

type ViewConfigBlock struct {
	Name          string   `hcl:"name,label"`
	Surface       string   `hcl:"surface"`
	Tiles         []string `hcl:"tiles"`
	TargetLevel   int      `hcl:"target_level"`
	Frames        int      `hcl:"frames,optional"`
	FrameInterval string   `hcl:"frame_interval,optional"`
}

// Settings are the resolved engine tunables derived from a Config.
type Settings struct {
	CPUCacheSize   int
	GPUCacheSize   int
	MaxGPUUsed     int
	MaxRetryCount  int
	RetryBackoff   time.Duration
	RetryMalformed bool

	LoaderConcurrency int
	LoaderRate        float64
	LoaderBurst       int
	LoaderTimeout     time.Duration
	QueueSize         int

	ProcessBudget time.Duration
	NodeTTL       int
}

const megabyte = 1 << 20

func DefaultSettings() Settings {
	return Settings{
		CPUCacheSize:      256 * megabyte,
		GPUCacheSize:      360 * megabyte,
		MaxGPUUsed:        360 * megabyte,
		MaxRetryCount:     3,
		RetryBackoff:      3 * time.Second,
		LoaderConcurrency: 8,
		LoaderBurst:       8,
		LoaderTimeout:     10 * time.Second,
		QueueSize:         256,
		ProcessBudget:     10 * time.Millisecond,
		NodeTTL:           60,
	}
}

func (c *Config) Settings() (Settings, error) {
	s := DefaultSettings()
	s.RetryMalformed = c.RetryMalformed

	if c.Cache != nil {
		if err := setInt("cache.cpu_size", c.Cache.CPUSize, &s.CPUCacheSize); err != nil {
			return s, err
		}
		if err := setInt("cache.gpu_size", c.Cache.GPUSize, &s.GPUCacheSize, &s.MaxGPUUsed); err != nil {
			return s, err
		}
		if err := setInt("cache.max_gpu_used", c.Cache.MaxGPUUsed, &s.MaxGPUUsed); err != nil {
			return s, err
		}
	}

	if c.Retry != nil {
		if err := setInt("retry.max_count", c.Retry.MaxCount, &s.MaxRetryCount); err != nil {
			return s, err
		}
		if err := parseDuration(c.Retry.Backoff, &s.RetryBackoff); err != nil {
			return s, fmt.Errorf("retry.backoff: %w", err)
		}
	}

	if c.Loader != nil {
		if c.Loader.Concurrency > 0 {
			s.LoaderConcurrency = c.Loader.Concurrency
		}
		if c.Loader.Rate > 0 {
			s.LoaderRate = c.Loader.Rate
		}
		if c.Loader.Burst > 0 {
			s.LoaderBurst = c.Loader.Burst
		}
		if c.Loader.QueueSize > 0 {
			s.QueueSize = c.Loader.QueueSize
		}
		if err := parseDuration(c.Loader.Timeout, &s.LoaderTimeout); err != nil {
			return s, fmt.Errorf("loader.timeout: %w", err)
		}
	}

	if c.Frame != nil {
		if err := setInt("frame.node_ttl", c.Frame.NodeTTL, &s.NodeTTL); err != nil {
			return s, err
		}
		if err := parseDuration(c.Frame.ProcessBudget, &s.ProcessBudget); err != nil {
			return s, fmt.Errorf("frame.process_budget: %w", err)
		}
	}

	return s, nil
}

func setInt(name string, v *int, dst ...*int) error {
	if v == nil {
		return nil
	}
	if *v < 0 {
		return fmt.Errorf("%s: must not be negative, got %d", name, *v)
	}
	for _, d := range dst {
		*d = *v
	}
	return nil
}

func (c *Config) View(name string) (*ViewConfigBlock, error) {
	for _, v := range c.Views {
		if v.Name == name {
			return v, nil
		}
	}
	return nil, fmt.Errorf("view %q is not defined", name)
}

func parseDuration(v string, dst *time.Duration) error {
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return err
	}
	*dst = d
	return nil
}

// sizeFunction returns a cty function multiplying its argument by unit,
// so configs can say `cpu_size = mb(256)`.
func sizeFunction(unit int64) function.Function {
	return function.New(&function.Spec{
		Params: []function.Parameter{
			{Name: "n", Type: cty.Number},
		},
		Type: function.StaticReturnType(cty.Number),
		Impl: func(args []cty.Value, retType cty.Type) (cty.Value, error) {
			return args[0].Multiply(cty.NumberIntVal(unit)), nil
		},
	})
}

func newHCLEvalContext() *hcl.EvalContext {
	return &hcl.EvalContext{
		Variables: map[string]cty.Value{},
		Functions: map[string]function.Function{
			"kb": sizeFunction(1 << 10),
			"mb": sizeFunction(megabyte),
			"gb": sizeFunction(1 << 30),
		},
	}
}

func LoadConfig(path string) (*Config, error) {
	var cfg Config
	evalCtx := newHCLEvalContext()
	err := hclsimple.DecodeFile(path, evalCtx, &cfg)
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ParseConfig decodes config source held in memory; filename only picks
// the syntax (.hcl or .json) and labels diagnostics.
func ParseConfig(filename string, src []byte) (*Config, error) {
	var cfg Config
	err := hclsimple.Decode(filename, src, newHCLEvalContext(), &cfg)
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}
