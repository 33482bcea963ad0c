package cmd

import (
	"fmt"

	"go.uber.org/zap"

	"fraudguard/config"
	"fraudguard/inference"
	"fraudguard/logging"
	"fraudguard/ml"
)

// deps is what every command needs after startup.
type deps struct {
	cfg     *config.Config
	logger  *zap.Logger
	handle  *ml.ModelHandle
	loadErr error
	facade  *inference.Facade
}

// bootstrap loads config, builds the logger and loads the model once. A model
// load failure is not returned: the facade is built unavailable and every
// inference reports it.
func bootstrap(path string) (*deps, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	logger := logging.New(cfg.Log)

	opts := inference.Options{
		PreserveInputsAcrossRequests: cfg.Inference.PreserveInputs,
		ClampAmountNonNegative:       cfg.Inference.ClampAmount,
		CacheSize:                    cfg.Inference.CacheSize,
	}

	d := &deps{cfg: cfg, logger: logger}
	d.handle, d.loadErr = ml.LoadModel(cfg.Model.Kind, cfg.Model.Path, ml.LoadOptions{
		ONNXLibraryPath: cfg.Model.ONNXLibrary,
	})
	if d.loadErr != nil {
		logger.Error("error loading model", zap.String("path", cfg.Model.Path), zap.Error(d.loadErr))
		d.facade = inference.NewUnavailable(d.loadErr, opts, logger)
		return d, nil
	}

	info := d.handle.Info()
	logger.Info("model loaded",
		zap.String("kind", info.Kind),
		zap.String("path", info.Path),
		zap.String("sha256", info.SHA256),
		zap.Int64("size", info.Size),
	)
	d.facade, err = inference.New(d.handle, opts, logger)
	if err != nil {
		d.handle.Close()
		return nil, err
	}
	return d, nil
}

func (d *deps) close() {
	if err := d.handle.Close(); err != nil {
		d.logger.Warn("failed to release model", zap.Error(err))
	}
	_ = d.logger.Sync()
}
