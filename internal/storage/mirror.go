package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"

	"go.uber.org/zap"
)

// Mirror copies canonical dataset files to a Provider after a successful run.
// Each file lands twice: under the run's session and under "latest".
type Mirror struct {
	provider Provider
	prefix   string
	logger   *zap.Logger
}

// NewMirror builds a Mirror. A nil provider mirrors nothing.
func NewMirror(provider Provider, prefix string, logger *zap.Logger) *Mirror {
	if provider == nil {
		provider = &NoOpProvider{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Mirror{provider: provider, prefix: prefix, logger: logger.Named("mirror")}
}

// ObjectName is where file is stored for session.
func (m *Mirror) ObjectName(session, file string) string {
	return path.Join(m.prefix, session, filepath.Base(file))
}

// Upload mirrors every file and keeps going past failures; the returned error
// joins them all.
func (m *Mirror) Upload(ctx context.Context, session string, files []string) error {
	var errs []error
	for _, file := range files {
		if err := ctx.Err(); err != nil {
			return errors.Join(append(errs, err)...)
		}
		data, err := os.ReadFile(file)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("read %s: %w", file, err))
			continue
		}
		for _, name := range []string{m.ObjectName(session, file), m.ObjectName("latest", file)} {
			if err := m.provider.Save(ctx, name, data); err != nil {
				m.logger.Error("mirror upload failed", zap.String("object", name), zap.Error(err))
				errs = append(errs, err)
				continue
			}
			m.logger.Info("mirrored dataset", zap.String("object", name), zap.Int("bytes", len(data)))
		}
	}
	return errors.Join(errs...)
}
