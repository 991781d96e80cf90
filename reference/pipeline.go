package reference

import (
	"context"
	"errors"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"batchgen/logging"
)

// Pipeline resolves a catalog's local images into remote asset ids.
type Pipeline struct {
	upload      UploadCapability
	logger      *logging.Logger
	concurrency int
}

// PipelineOption configures a Pipeline.
type PipelineOption func(*Pipeline)

// WithConcurrency bounds how many uploads run at once. Values below 1 are
// treated as 1, which makes resolution strictly sequential.
func WithConcurrency(n int) PipelineOption {
	return func(p *Pipeline) {
		if n < 1 {
			n = 1
		}
		p.concurrency = n
	}
}

// NewPipeline creates a Pipeline that uploads through up.
func NewPipeline(up UploadCapability, logger *logging.Logger, opts ...PipelineOption) *Pipeline {
	if logger == nil {
		logger = logging.NewNop()
	}
	p := &Pipeline{
		upload:      up,
		logger:      logger.Named("reference"),
		concurrency: 1,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Resolve uploads every attached entry that is not yet Uploaded and returns
// the resolved form of all attached entries in catalog order. Entries
// without an image are skipped; already Uploaded entries pass through.
//
// Resolution is fail-fast. The first failure cancels the rest: uploads not
// yet started are never attempted and keep their state, and the returned
// error is an *UploadError naming the entry that failed. The catalog should
// not be restructured (Add/Remove) while Resolve runs.
func (p *Pipeline) Resolve(ctx context.Context, c *Catalog) ([]ResolvedReference, error) {
	entries := c.Snapshot()
	if len(entries) == 0 {
		return nil, nil
	}

	// resolved[i] is filled by the unit owning catalog index i
	resolved := make([]*ResolvedReference, len(entries))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)

	for i, entry := range entries {
		if !entry.HasImage() {
			continue
		}
		if entry.State.IsUploaded() {
			resolved[i] = &ResolvedReference{
				Category: entry.Category,
				AssetID:  entry.State.AssetID(),
				Caption:  entry.Caption,
			}
			continue
		}
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			ref, err := p.resolveOne(gctx, c, i, entry)
			if err != nil {
				return err
			}
			resolved[i] = ref
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := make([]ResolvedReference, 0, len(entries))
	for _, ref := range resolved {
		if ref != nil {
			out = append(out, *ref)
		}
	}
	p.logger.Debug("references resolved", zap.Int("count", len(out)))
	return out, nil
}

func (p *Pipeline) resolveOne(ctx context.Context, c *Catalog, i int, entry Entry) (*ResolvedReference, error) {
	// an earlier unit may have failed while this one waited for a slot
	if ctx.Err() != nil {
		return nil, nil
	}

	c.SetState(i, Uploading())
	p.logger.Info("uploading reference",
		zap.String("category", entry.Category.String()),
		zap.String("path", entry.LocalPath))

	assetID, caption, err := p.upload.Upload(ctx, entry.LocalPath, entry.Category)
	if err == nil && assetID == "" {
		err = ErrEmptyAssetID
	}
	if err != nil {
		if ctx.Err() != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
			c.SetState(i, Local())
		} else {
			c.SetState(i, Failed(err.Error()))
			p.logger.Warn("reference upload failed",
				zap.String("path", entry.LocalPath),
				zap.Error(err))
		}
		return nil, &UploadError{LocalPath: entry.LocalPath, Category: entry.Category, Err: err}
	}

	c.SetState(i, Uploaded(assetID))
	if entry.Caption == "" && caption != "" {
		c.SetCaption(i, caption)
		entry.Caption = caption
	}

	return &ResolvedReference{
		Category: entry.Category,
		AssetID:  assetID,
		Caption:  entry.Caption,
	}, nil
}
