package source

import (
	"context"

	"github.com/jamesainslie/packman/pkg/packman/operation"
	"github.com/jamesainslie/packman/pkg/packman/progress"
)

// downloadAndExtract downloads rawURL, unpacks it and discards the
// archive, leaving op's last path at the unpacked directory.
func downloadAndExtract(ctx context.Context, op *operation.Operation, rawURL string, onProgress progress.Func) error {
	steps := progress.NewSteps(3, onProgress)

	archive, err := op.DownloadFile(ctx, rawURL, steps.Func())
	if err != nil {
		return err
	}
	steps.Advance()

	if _, err := op.ExtractArchive(archive); err != nil {
		return err
	}
	steps.Advance()

	if err := op.RemoveFile(archive); err != nil {
		return err
	}
	steps.Advance()
	return nil
}
