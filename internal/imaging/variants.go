package imaging

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"

	// Регистрация декодеров для image.Decode
	_ "image/gif"
	_ "image/png"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// VariantWidths - ширины уменьшенных копий. Больше оригинала не растягиваем.
var VariantWidths = []int{1024, 640, 320}

const jpegQuality = 85

// Rendition - одна версия картинки, готовая к загрузке.
type Rendition struct {
	Name   string
	Data   []byte
	Width  int
	Height int
	Format string // png, jpeg, webp, gif
}

// Ext - расширение файла для формата.
func (r Rendition) Ext() string {
	if r.Format == "jpeg" {
		return "jpg"
	}
	return r.Format
}

// Decoded - сгенерированная картинка после декодирования.
type Decoded struct {
	Image  image.Image
	Format string
	Width  int
	Height int
}

// Decode читает картинку и её реальные размеры.
func Decode(data []byte) (*Decoded, error) {
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	b := img.Bounds()
	return &Decoded{Image: img, Format: format, Width: b.Dx(), Height: b.Dy()}, nil
}

// BuildVariants возвращает оригинал и JPEG-копии по VariantWidths.
func BuildVariants(original []byte, dec *Decoded) ([]Rendition, error) {
	out := []Rendition{{
		Name:   "original",
		Data:   original,
		Width:  dec.Width,
		Height: dec.Height,
		Format: dec.Format,
	}}
	for _, w := range VariantWidths {
		if w >= dec.Width {
			continue
		}
		h := dec.Height * w / dec.Width
		if h < 1 {
			h = 1
		}
		dst := image.NewRGBA(image.Rect(0, 0, w, h))
		draw.CatmullRom.Scale(dst, dst.Bounds(), dec.Image, dec.Image.Bounds(), draw.Over, nil)

		var buf bytes.Buffer
		if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: jpegQuality}); err != nil {
			return nil, fmt.Errorf("failed to encode %dpx variant: %w", w, err)
		}
		out = append(out, Rendition{
			Name:   fmt.Sprintf("w%d", w),
			Data:   buf.Bytes(),
			Width:  w,
			Height: h,
			Format: "jpeg",
		})
	}
	return out, nil
}
