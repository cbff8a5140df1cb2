package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// ImageKind - вид иллюстрации, от него зависит требуемое соотношение сторон.
type ImageKind string

const (
	ImageKindStory      ImageKind = "story"
	ImageKindCharacter  ImageKind = "character"
	ImageKindSetting    ImageKind = "setting"
	ImageKindScene      ImageKind = "scene"
	ImageKindComicPanel ImageKind = "comic-panel"
)

// AllImageKinds - порядок обхода при регенерации.
var AllImageKinds = []ImageKind{
	ImageKindStory,
	ImageKindCharacter,
	ImageKindSetting,
	ImageKindScene,
	ImageKindComicPanel,
}

// ParseImageKind принимает и "comic-panel", и "comic_panel".
func ParseImageKind(s string) (ImageKind, error) {
	switch s {
	case "story", "cover":
		return ImageKindStory, nil
	case "character":
		return ImageKindCharacter, nil
	case "setting":
		return ImageKindSetting, nil
	case "scene":
		return ImageKindScene, nil
	case "comic-panel", "comic_panel", "panel":
		return ImageKindComicPanel, nil
	}
	return "", fmt.Errorf("%w: unknown image kind %q", ErrInvalidInput, s)
}

// Dimensions - размеры в пикселях с номинальной подписью соотношения.
type Dimensions struct {
	Ratio  string `json:"ratio"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// ImageSpec - требования к картинке конкретного вида.
type ImageSpec struct {
	Kind       ImageKind    `json:"kind"`
	Primary    Dimensions   `json:"primary"`
	Alternates []Dimensions `json:"alternates,omitempty"`
}

// DefaultImageSpecs - таблица размеров по умолчанию.
func DefaultImageSpecs() map[ImageKind]ImageSpec {
	return map[ImageKind]ImageSpec{
		ImageKindStory:      {Kind: ImageKindStory, Primary: Dimensions{Ratio: "16:9", Width: 1792, Height: 1024}},
		ImageKindScene:      {Kind: ImageKindScene, Primary: Dimensions{Ratio: "16:9", Width: 1792, Height: 1024}},
		ImageKindCharacter:  {Kind: ImageKindCharacter, Primary: Dimensions{Ratio: "1:1", Width: 1024, Height: 1024}},
		ImageKindSetting:    {Kind: ImageKindSetting, Primary: Dimensions{Ratio: "1:1", Width: 1024, Height: 1024}},
		ImageKindComicPanel: {
			Kind:       ImageKindComicPanel,
			Primary:    Dimensions{Ratio: "9:16", Width: 1024, Height: 1792},
			Alternates: []Dimensions{{Ratio: "2:3", Width: 1024, Height: 1536}},
		},
	}
}

// ImageVariant - одна оптимизированная версия картинки.
type ImageVariant struct {
	Name   string `json:"name"`
	URL    string `json:"url"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Format string `json:"format"`
	Bytes  int    `json:"bytes"`
}

// ImageVariantSet хранится в jsonb-колонке image_variants.
type ImageVariantSet []ImageVariant

func (s ImageVariantSet) Value() (driver.Value, error) {
	if s == nil {
		return nil, nil
	}
	return json.Marshal(s)
}

func (s *ImageVariantSet) Scan(src any) error {
	if src == nil {
		*s = nil
		return nil
	}
	var raw []byte
	switch v := src.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("unsupported image variant set type %T", src)
	}
	return json.Unmarshal(raw, s)
}

// ImageRef - ссылка на картинку сущности. Пустой URL значит "картинки нет".
type ImageRef struct {
	URL      string          `json:"url,omitempty"`
	Variants ImageVariantSet `json:"variants,omitempty"`
}

func (r ImageRef) Present() bool { return r.URL != "" }
