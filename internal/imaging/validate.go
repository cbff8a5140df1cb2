package imaging

import (
	"fmt"
	"strings"

	"fictures-server/internal/models"
)

// Validator сверяет размеры картинок с таблицей требований.
type Validator struct {
	specs map[models.ImageKind]models.ImageSpec
}

func NewValidator(specs map[models.ImageKind]models.ImageSpec) *Validator {
	if specs == nil {
		specs = models.DefaultImageSpecs()
	}
	return &Validator{specs: specs}
}

// Validate по таблице по умолчанию.
func Validate(width, height int, kind models.ImageKind) models.ValidationResult {
	return NewValidator(nil).Validate(width, height, kind)
}

// Spec возвращает требования для вида картинки.
func (v *Validator) Spec(kind models.ImageKind) (models.ImageSpec, bool) {
	spec, ok := v.specs[kind]
	return spec, ok
}

// Validate: размеры проходят, если совпадают с основными или альтернативными
// пикселями либо их сокращённое соотношение совпадает с ожидаемым.
func (v *Validator) Validate(width, height int, kind models.ImageKind) models.ValidationResult {
	res := models.ValidationResult{
		Kind:        kind,
		Width:       width,
		Height:      height,
		ActualRatio: Ratio(width, height),
	}
	spec, ok := v.specs[kind]
	if !ok {
		res.Message = fmt.Sprintf("no image spec for kind %q", kind)
		return res
	}
	res.ExpectedRatio = spec.Primary.Ratio
	if width <= 0 || height <= 0 {
		res.Message = fmt.Sprintf("invalid dimensions %dx%d", width, height)
		return res
	}

	if matches(width, height, spec.Primary) {
		res.Passed = true
		res.Matched = "primary"
		return res
	}
	for _, alt := range spec.Alternates {
		if matches(width, height, alt) {
			res.Passed = true
			res.Matched = alt.Ratio
			return res
		}
	}

	expected := []string{describe(spec.Primary)}
	for _, alt := range spec.Alternates {
		expected = append(expected, describe(alt))
	}
	res.Message = fmt.Sprintf("dimensions mismatch: got %dx%d (%s), expected %s",
		width, height, res.ActualRatio, strings.Join(expected, " or "))
	return res
}

func matches(width, height int, d models.Dimensions) bool {
	if width == d.Width && height == d.Height {
		return true
	}
	actual := Ratio(width, height)
	if d.Width > 0 && d.Height > 0 && actual == Ratio(d.Width, d.Height) {
		return true
	}
	return d.Ratio != "" && actual == d.Ratio
}

func describe(d models.Dimensions) string {
	return fmt.Sprintf("%dx%d (%s)", d.Width, d.Height, d.Ratio)
}

// Ratio сокращает размеры через НОД: 1920x1080 -> "16:9".
func Ratio(width, height int) string {
	if width <= 0 || height <= 0 {
		return "0:0"
	}
	g := gcd(width, height)
	return fmt.Sprintf("%d:%d", width/g, height/g)
}

func gcd(a, b int) int {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}
