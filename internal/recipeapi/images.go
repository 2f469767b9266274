package recipeapi

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sync/errgroup"
)

// maxImageBytes rejects files that are clearly not phone photos.
const maxImageBytes = 32 << 20

// LoadImages reads the photo files concurrently, preserving path order.
func LoadImages(ctx context.Context, paths []string) ([]Image, error) {
	images := make([]Image, len(paths))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, p := range paths {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			info, err := os.Stat(p)
			if err != nil {
				return fmt.Errorf("recipeapi: stat image: %w", err)
			}
			if info.IsDir() {
				return fmt.Errorf("recipeapi: image %s is a directory", p)
			}
			if info.Size() > maxImageBytes {
				return fmt.Errorf("recipeapi: image %s is %d bytes, limit %d", p, info.Size(), maxImageBytes)
			}
			data, err := os.ReadFile(p)
			if err != nil {
				return fmt.Errorf("recipeapi: read image: %w", err)
			}
			images[i] = Image{Name: filepath.Base(p), Data: data}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return images, nil
}
