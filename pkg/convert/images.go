package convert

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"io"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
	"golang.org/x/sync/errgroup"

	"langgrade/internal/util"
)

// Image is one raster upload.
type Image struct {
	Name string
	Data []byte
}

const decodeWorkers = 4

// PackImages embeds each image as one page sized to its pixel dimensions,
// in input order. Images that cannot be decoded are logged and skipped;
// ErrNoImages is returned when none remain.
func PackImages(ctx context.Context, images []Image) ([]byte, int, error) {
	logger := util.LoggerFromContext(ctx)
	encoded := make([][]byte, len(images))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(decodeWorkers)
	for i, img := range images {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			data, err := reencodePNG(img.Data)
			if err != nil {
				logger.Warn("skip image", "name", img.Name, "index", i, "err", err)
				return nil
			}
			encoded[i] = data
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, 0, err
	}

	var readers []io.Reader
	for _, data := range encoded {
		if data != nil {
			readers = append(readers, bytes.NewReader(data))
		}
	}
	if len(readers) == 0 {
		return nil, 0, ErrNoImages
	}

	imp := pdfcpu.DefaultImportConfig()
	imp.Pos = types.Full
	var buf bytes.Buffer
	if err := api.ImportImages(nil, &buf, readers, imp, pdfConfig()); err != nil {
		return nil, 0, fmt.Errorf("import images: %w", err)
	}
	return buf.Bytes(), len(readers), nil
}

func reencodePNG(data []byte) ([]byte, error) {
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode %s as png: %w", format, err)
	}
	return buf.Bytes(), nil
}
