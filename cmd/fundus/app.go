package main

import (
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"path/filepath"

	"go.uber.org/zap"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/banshee-data/fundus.report/internal/config"
	"github.com/banshee-data/fundus.report/internal/db"
	"github.com/banshee-data/fundus.report/internal/fsutil"
	"github.com/banshee-data/fundus.report/internal/fundus"
	"github.com/banshee-data/fundus.report/internal/fundus/normalize"
	"github.com/banshee-data/fundus.report/internal/fundus/pipeline"
	"github.com/banshee-data/fundus.report/internal/fundus/registry"
	"github.com/banshee-data/fundus.report/internal/monitoring"
)

// app holds state shared by subcommands. Resources are opened lazily and
// released by close.
type app struct {
	configPath string
	logLevel   string

	fsys   fsutil.FileSystem
	out    io.Writer
	loader registry.Loader // nil selects ONNX Runtime

	cfg    *config.FusionConfig
	logger *zap.Logger
	db     *db.DB
	reg    *registry.Registry
}

func newApp(fsys fsutil.FileSystem, out io.Writer) *app {
	return &app{fsys: fsys, out: out}
}

// setup loads the config and installs the logger.
func (a *app) setup() error {
	cfg := config.EmptyFusionConfig()
	if a.configPath != "" {
		var err error
		if cfg, err = config.Load(a.fsys, a.configPath); err != nil {
			return err
		}
	}
	if a.logLevel != "" {
		cfg.LogLevel = &a.logLevel
		if err := cfg.Validate(); err != nil {
			return err
		}
	}
	a.cfg = cfg

	logger, err := monitoring.NewZapLogger(cfg.GetLogLevel())
	if err != nil {
		return err
	}
	a.logger = logger
	monitoring.UseZap(logger)
	return nil
}

func (a *app) close() {
	if a.reg != nil {
		if err := a.reg.Close(); err != nil {
			monitoring.Logf("[cli] closing models: %v", err)
		}
	}
	if a.db != nil {
		a.db.Close()
	}
	if a.logger != nil {
		_ = a.logger.Sync()
	}
}

func (a *app) database() (*db.DB, error) {
	if a.db != nil {
		return a.db, nil
	}
	d, err := db.NewDB(a.cfg.GetStatsDB())
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", a.cfg.GetStatsDB(), err)
	}
	a.db = d
	return d, nil
}

func (a *app) registry(ctx context.Context) (*registry.Registry, error) {
	if a.reg != nil {
		return a.reg, nil
	}
	paths, err := a.cfg.ModelPaths()
	if err != nil {
		return nil, err
	}
	loader := a.loader
	if loader == nil {
		loader = registry.NewONNXLoader(a.cfg.GetONNXRuntimeLibrary())
	}
	reg, err := registry.New(loader, registry.DefaultSpecs(paths)...)
	if err != nil {
		return nil, err
	}
	// A model that fails to load aborts the command before any request runs.
	if err := reg.Preload(ctx); err != nil {
		if cerr := reg.Close(); cerr != nil {
			monitoring.Logf("[cli] closing models: %v", cerr)
		}
		return nil, fmt.Errorf("preload models: %w", err)
	}
	a.reg = reg
	a.logger.Info("model registry ready", zap.String("model_dir", a.cfg.GetModelDir()), zap.Any("models", reg.Loaded()))
	return reg, nil
}

// normalizer returns the stats from normalization_stats when configured,
// otherwise the newest version in the database. The second result names the
// stats version for the run log.
func (a *app) normalizer(ctx context.Context) (*normalize.Normalizer, string, error) {
	if path := a.cfg.GetNormalizationStats(); path != "" {
		stats, err := normalize.LoadStatsFile(a.fsys, path)
		if err != nil {
			return nil, "", err
		}
		n, err := normalize.New(stats)
		return n, "file:" + filepath.Base(path), err
	}
	d, err := a.database()
	if err != nil {
		return nil, "", err
	}
	row, err := db.NewStatsStore(d).Latest(ctx)
	if errors.Is(err, db.ErrStatsNotFound) {
		return nil, "", fmt.Errorf("%w: import stats with `fundus stats import` or set normalization_stats", pipeline.ErrNoStats)
	}
	if err != nil {
		return nil, "", err
	}
	n, err := normalize.New(row.Stats)
	return n, row.ID, err
}

// pipeline builds a Pipeline. Stats are loaded only when withStats is set.
func (a *app) pipeline(ctx context.Context, withStats bool) (*pipeline.Pipeline, error) {
	reg, err := a.registry(ctx)
	if err != nil {
		return nil, err
	}
	opts := pipeline.Options{
		Timeout:  a.cfg.GetRequestTimeout(),
		Analyzer: a.cfg.Analyzer(),
	}
	var norm *normalize.Normalizer
	if withStats {
		if norm, opts.StatsVersion, err = a.normalizer(ctx); err != nil {
			return nil, err
		}
	}
	d, err := a.database()
	if err != nil {
		return nil, err
	}
	opts.Runs = db.NewRunStore(d)
	return pipeline.New(reg, norm, opts)
}

// loadImage decodes PNG, JPEG, BMP, TIFF or WebP.
func (a *app) loadImage(path string) (*fundus.Image, error) {
	f, err := a.fsys.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	src, format, err := image.Decode(f)
	if err != nil {
		return nil, &fundus.InvalidInputError{Field: path, Reason: fmt.Sprintf("cannot decode image: %v", err)}
	}
	img, err := fundus.FromImage(src)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	monitoring.Logf("[cli] loaded %s (%s %dx%d)", path, format, img.Width, img.Height)
	return img, nil
}

// loadRequest reads one patient's images and covariates.
func (a *app) loadRequest(left, right string, age int, sex string) (pipeline.Request, error) {
	var req pipeline.Request
	if left == "" {
		return req, &fundus.InvalidInputError{Field: "left image", Reason: "required"}
	}
	s, err := fundus.ParseSex(sex)
	if err != nil {
		return req, err
	}
	req.Covariates = fundus.ClinicalCovariates{Age: age, Sex: s}
	if req.Left, err = a.loadImage(left); err != nil {
		return req, err
	}
	if right != "" {
		if req.Right, err = a.loadImage(right); err != nil {
			return req, err
		}
	}
	return req, nil
}
