package inventory

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/erazemk/stojala/internal/imaging"
	"github.com/erazemk/stojala/internal/model"
)

// CreateMaterial adds a material and returns its id.
func (c *Catalog) CreateMaterial(ctx context.Context, name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", invalid("name is required")
	}
	return c.Materials.Add(ctx, model.Material{Name: name})
}

// RenameMaterial changes a material's name.
func (c *Catalog) RenameMaterial(ctx context.Context, id, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return invalid("name is required")
	}
	return c.Materials.Update(ctx, id, map[string]any{"name": name})
}

// DeleteMaterial removes a material. Shelves still referencing it show it
// as unknown, and its image stays in object storage.
func (c *Catalog) DeleteMaterial(ctx context.Context, id string) error {
	return c.Materials.Delete(ctx, id)
}

// SetMaterialImage processes and uploads a picture, then points the
// material's imageUrl at it.
func (c *Catalog) SetMaterialImage(ctx context.Context, id, filename string, r io.Reader) (string, error) {
	if c.blobs == nil || c.images == nil {
		return "", fmt.Errorf("image uploads are not available")
	}
	if _, err := c.client(); err != nil {
		return "", err
	}

	data, err := c.images(r)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	url, err := c.blobs.Upload(ctx, CollMaterials, imaging.Filename(filename), data)
	if err != nil {
		return "", fmt.Errorf("uploading image: %w", err)
	}

	if err := c.Materials.Update(ctx, id, map[string]any{"imageUrl": url}); err != nil {
		return "", err
	}
	slog.Info("material image updated", "material", id)
	return url, nil
}

// ProcessImage is the ImageProcessor used for material pictures.
func ProcessImage(r io.Reader) ([]byte, error) {
	img, err := imaging.Process(r, imaging.DefaultOptions)
	if err != nil {
		return nil, err
	}
	return img.Data, nil
}
