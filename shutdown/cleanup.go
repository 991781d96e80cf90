package shutdown

import (
	"context"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"batchgen/logging"
)

// PartialPattern matches files left by an interrupted image save.
const PartialPattern = ".partial-*"

// CleanupPartials returns a step removing interrupted saves from outputDir.
// Failures are logged, never returned, so they cannot block exit.
func CleanupPartials(logger *logging.Logger, outputDir string) Func {
	return func(ctx context.Context) error {
		removed, failed := removeMatching(ctx, logger, filepath.Join(outputDir, PartialPattern))
		if removed+failed > 0 {
			logger.Info("removed partial image files",
				zap.String("directory", outputDir),
				zap.Int("removed", removed),
				zap.Int("failed", failed))
		}
		return nil
	}
}

func removeMatching(ctx context.Context, logger *logging.Logger, pattern string) (removed, failed int) {
	matches, err := filepath.Glob(pattern)
	if err != nil {
		logger.Error("bad cleanup pattern", zap.String("pattern", pattern), zap.Error(err))
		return 0, 0
	}

	for _, match := range matches {
		if ctx.Err() != nil {
			logger.Warn("cleanup cut short by shutdown deadline",
				zap.Int("remaining", len(matches)-removed-failed))
			return removed, failed
		}
		if err := os.Remove(match); err != nil {
			failed++
			logger.Warn("failed to remove file",
				zap.String("file", filepath.Base(match)),
				zap.Error(err))
			continue
		}
		removed++
	}
	return removed, failed
}
