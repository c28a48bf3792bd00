// Package config loads the pipeline configuration file.
package config

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"github.com/banshee-data/fundus.report/internal/fsutil"
	"github.com/banshee-data/fundus.report/internal/fundus"
	"github.com/banshee-data/fundus.report/internal/fundus/morphology"
	"github.com/banshee-data/fundus.report/internal/security"
)

// DefaultConfigPath is the path to the canonical defaults file.
const DefaultConfigPath = "config/fusion.defaults.json"

const maxFileSize = 1 * 1024 * 1024 // 1MB

// FusionConfig is the root configuration. Every field is optional; the Get*
// methods supply defaults for anything the file omits.
type FusionConfig struct {
	// Models
	ModelDir           *string `json:"model_dir,omitempty"`
	HTNModel           *string `json:"htn_model,omitempty"`
	CIMTModel          *string `json:"cimt_model,omitempty"`
	VesselModel        *string `json:"vessel_model,omitempty"`
	FusionModel        *string `json:"fusion_model,omitempty"`
	ONNXRuntimeLibrary *string `json:"onnxruntime_library,omitempty"`

	// Normalization
	NormalizationStats *string `json:"normalization_stats,omitempty"` // JSON file, overrides stats_db
	StatsDB            *string `json:"stats_db,omitempty"`

	// Vessel morphology
	VesselThreshold        *float64 `json:"vessel_threshold,omitempty"`
	DegenerateMaskFraction *float64 `json:"degenerate_mask_fraction,omitempty"`
	TextureWindow          *int     `json:"texture_window,omitempty"`
	MinBranchLength        *int     `json:"min_branch_length,omitempty"`

	// Runtime
	RequestTimeout *string `json:"request_timeout,omitempty"` // duration string like "30s"
	DebugDir       *string `json:"debug_dir,omitempty"`
	LogLevel       *string `json:"log_level,omitempty"`
}

func ptrFloat64(v float64) *float64 { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// EmptyFusionConfig returns a config with every field unset.
func EmptyFusionConfig() *FusionConfig {
	return &FusionConfig{}
}

// LoadFusionConfig reads a config file from the OS filesystem.
func LoadFusionConfig(path string) (*FusionConfig, error) {
	return Load(fsutil.OSFileSystem{}, path)
}

// Load reads and validates a config file. The file must have a .json
// extension and be under 1MB.
func Load(fsys fsutil.FileSystem, path string) (*FusionConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	info, err := fsys.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if info.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxFileSize)
	}

	data, err := fsys.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyFusionConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// MustLoadDefaultConfig loads DefaultConfigPath, searching parent
// directories. Panics on failure; intended for tests.
func MustLoadDefaultConfig() *FusionConfig {
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath,       // from internal/config/
		"../../../" + DefaultConfigPath,    // from internal/fundus/*
		"../../../../" + DefaultConfigPath, // deeper packages
	}
	for _, path := range candidates {
		if cfg, err := LoadFusionConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks the values that are set.
func (c *FusionConfig) Validate() error {
	if c.VesselThreshold != nil {
		if v := *c.VesselThreshold; !(v > 0 && v < 1) {
			return fmt.Errorf("vessel_threshold must be in (0,1), got %v", v)
		}
	}
	if c.DegenerateMaskFraction != nil {
		if v := *c.DegenerateMaskFraction; v < 0 || v >= 1 {
			return fmt.Errorf("degenerate_mask_fraction must be in [0,1), got %v", v)
		}
	}
	if c.TextureWindow != nil {
		if v := *c.TextureWindow; v < 1 || v%2 == 0 {
			return fmt.Errorf("texture_window must be a positive odd number, got %d", v)
		}
	}
	if c.MinBranchLength != nil && *c.MinBranchLength < 2 {
		return fmt.Errorf("min_branch_length must be at least 2, got %d", *c.MinBranchLength)
	}
	if c.RequestTimeout != nil && *c.RequestTimeout != "" {
		d, err := time.ParseDuration(*c.RequestTimeout)
		if err != nil {
			return fmt.Errorf("invalid request_timeout '%s': %w", *c.RequestTimeout, err)
		}
		if d < 0 {
			return fmt.Errorf("request_timeout must be non-negative, got %s", d)
		}
	}
	if c.LogLevel != nil {
		switch *c.LogLevel {
		case "", "debug", "info", "warn", "error":
		default:
			return fmt.Errorf("log_level must be one of debug, info, warn, error; got %q", *c.LogLevel)
		}
	}
	return nil
}

// GetModelDir returns model_dir or "models".
func (c *FusionConfig) GetModelDir() string {
	if c.ModelDir == nil || *c.ModelDir == "" {
		return "models"
	}
	return *c.ModelDir
}

// ModelFile returns the configured file name for a model, relative to the
// model directory.
func (c *FusionConfig) ModelFile(id fundus.ModelID) string {
	var v *string
	def := string(id) + ".onnx"
	switch id {
	case fundus.ModelHypertension:
		v = c.HTNModel
	case fundus.ModelCIMT:
		v = c.CIMTModel
	case fundus.ModelVessel:
		v = c.VesselModel
	case fundus.ModelFusion:
		v = c.FusionModel
	}
	if v == nil || *v == "" {
		return def
	}
	return *v
}

// ModelPaths resolves every model file against the model directory and
// rejects any that escape it. The directory must exist.
func (c *FusionConfig) ModelPaths() (map[fundus.ModelID]string, error) {
	dir := c.GetModelDir()
	paths := make(map[fundus.ModelID]string, 4)
	for _, id := range []fundus.ModelID{fundus.ModelHypertension, fundus.ModelCIMT, fundus.ModelVessel, fundus.ModelFusion} {
		p := filepath.Join(dir, c.ModelFile(id))
		if err := security.ValidatePathWithinDirectory(p, dir); err != nil {
			return nil, fmt.Errorf("%s model: %w", id, err)
		}
		paths[id] = p
	}
	return paths, nil
}

// GetONNXRuntimeLibrary returns onnxruntime_library or "" to use the
// runtime's default search path.
func (c *FusionConfig) GetONNXRuntimeLibrary() string {
	if c.ONNXRuntimeLibrary == nil {
		return ""
	}
	return *c.ONNXRuntimeLibrary
}

// GetNormalizationStats returns the stats JSON path or "".
func (c *FusionConfig) GetNormalizationStats() string {
	if c.NormalizationStats == nil {
		return ""
	}
	return *c.NormalizationStats
}

// GetStatsDB returns stats_db or "fundus.db".
func (c *FusionConfig) GetStatsDB() string {
	if c.StatsDB == nil || *c.StatsDB == "" {
		return "fundus.db"
	}
	return *c.StatsDB
}

// GetVesselThreshold returns vessel_threshold or the default.
func (c *FusionConfig) GetVesselThreshold() float64 {
	if c.VesselThreshold == nil {
		return morphology.DefaultThreshold
	}
	return *c.VesselThreshold
}

// GetDegenerateMaskFraction returns degenerate_mask_fraction or the default.
func (c *FusionConfig) GetDegenerateMaskFraction() float64 {
	if c.DegenerateMaskFraction == nil {
		return morphology.DefaultDegenerateFraction
	}
	return *c.DegenerateMaskFraction
}

// GetTextureWindow returns texture_window or the default.
func (c *FusionConfig) GetTextureWindow() int {
	if c.TextureWindow == nil {
		return morphology.DefaultTextureWindow
	}
	return *c.TextureWindow
}

// GetMinBranchLength returns min_branch_length or the default.
func (c *FusionConfig) GetMinBranchLength() int {
	if c.MinBranchLength == nil {
		return morphology.DefaultMinBranchLength
	}
	return *c.MinBranchLength
}

// Analyzer builds the morphology analyzer from the vessel settings.
func (c *FusionConfig) Analyzer() *morphology.Analyzer {
	a := morphology.NewAnalyzer()
	a.Threshold = c.GetVesselThreshold()
	a.DegenerateFraction = c.GetDegenerateMaskFraction()
	a.TextureWindow = c.GetTextureWindow()
	a.MinBranchLength = c.GetMinBranchLength()
	return a
}

// GetRequestTimeout parses request_timeout. Zero means no deadline.
func (c *FusionConfig) GetRequestTimeout() time.Duration {
	if c.RequestTimeout == nil || *c.RequestTimeout == "" {
		return 30 * time.Second // default
	}
	d, err := time.ParseDuration(*c.RequestTimeout)
	if err != nil {
		return 30 * time.Second // default on parse error
	}
	return d
}

// GetDebugDir returns debug_dir or "debug".
func (c *FusionConfig) GetDebugDir() string {
	if c.DebugDir == nil || *c.DebugDir == "" {
		return "debug"
	}
	return *c.DebugDir
}

// GetLogLevel returns log_level or "info".
func (c *FusionConfig) GetLogLevel() string {
	if c.LogLevel == nil || *c.LogLevel == "" {
		return "info"
	}
	return *c.LogLevel
}
