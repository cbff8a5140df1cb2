package prompts

import (
	"bytes"
	"embed"
	"fmt"
	"strings"
	"text/template"

	"fictures-server/internal/models"

	"gopkg.in/yaml.v3"
)

//go:embed templates/*.yaml
var templatesFS embed.FS

// Rendered - готовый промт фазы.
type Rendered struct {
	System string
	User   string
	Schema map[string]any
}

type phaseFile struct {
	System string         `yaml:"system"`
	User   string         `yaml:"user"`
	Schema map[string]any `yaml:"schema"`
}

type phaseTemplate struct {
	system *template.Template
	user   *template.Template
	schema map[string]any
}

// Library - все промты фаз и картинок, разобранные один раз при старте.
type Library struct {
	phases   map[models.Phase]phaseTemplate
	images   map[models.ImageKind]*template.Template
	negative string
}

var funcs = template.FuncMap{
	"join":  strings.Join,
	"lower": strings.ToLower,
}

// Load читает встроенные шаблоны.
func Load() (*Library, error) {
	lib := &Library{
		phases: make(map[models.Phase]phaseTemplate),
		images: make(map[models.ImageKind]*template.Template),
	}

	raw, err := templatesFS.ReadFile("templates/phases.yaml")
	if err != nil {
		return nil, fmt.Errorf("failed to read phase prompts: %w", err)
	}
	var phases map[string]phaseFile
	if err := yaml.Unmarshal(raw, &phases); err != nil {
		return nil, fmt.Errorf("failed to parse phase prompts: %w", err)
	}
	for name, pf := range phases {
		sys, err := template.New(name + ".system").Funcs(funcs).Option("missingkey=zero").Parse(pf.System)
		if err != nil {
			return nil, fmt.Errorf("phase %s: system template: %w", name, err)
		}
		usr, err := template.New(name + ".user").Funcs(funcs).Option("missingkey=zero").Parse(pf.User)
		if err != nil {
			return nil, fmt.Errorf("phase %s: user template: %w", name, err)
		}
		lib.phases[models.Phase(name)] = phaseTemplate{system: sys, user: usr, schema: pf.Schema}
	}

	raw, err = templatesFS.ReadFile("templates/images.yaml")
	if err != nil {
		return nil, fmt.Errorf("failed to read image prompts: %w", err)
	}
	var images map[string]string
	if err := yaml.Unmarshal(raw, &images); err != nil {
		return nil, fmt.Errorf("failed to parse image prompts: %w", err)
	}
	for name, text := range images {
		if name == "negative" {
			lib.negative = strings.TrimSpace(text)
			continue
		}
		kind, err := models.ParseImageKind(name)
		if err != nil {
			return nil, fmt.Errorf("image prompts: %w", err)
		}
		tmpl, err := template.New(name).Funcs(funcs).Option("missingkey=zero").Parse(text)
		if err != nil {
			return nil, fmt.Errorf("image prompt %s: %w", name, err)
		}
		lib.images[kind] = tmpl
	}

	for _, p := range models.TextPhases {
		if _, ok := lib.phases[p]; !ok {
			return nil, fmt.Errorf("missing prompt for phase %s", p)
		}
	}
	if _, ok := lib.phases[models.PhaseComics]; !ok {
		return nil, fmt.Errorf("missing prompt for phase %s", models.PhaseComics)
	}
	for _, k := range models.AllImageKinds {
		if _, ok := lib.images[k]; !ok {
			return nil, fmt.Errorf("missing image prompt for %s", k)
		}
	}
	return lib, nil
}

// MustLoad - для main и тестов.
func MustLoad() *Library {
	lib, err := Load()
	if err != nil {
		panic(err)
	}
	return lib
}

// Phase рендерит промт фазы.
func (l *Library) Phase(phase models.Phase, data any) (Rendered, error) {
	pt, ok := l.phases[phase]
	if !ok {
		return Rendered{}, fmt.Errorf("no prompt for phase %s", phase)
	}
	system, err := execute(pt.system, data)
	if err != nil {
		return Rendered{}, fmt.Errorf("phase %s system prompt: %w", phase, err)
	}
	user, err := execute(pt.user, data)
	if err != nil {
		return Rendered{}, fmt.Errorf("phase %s user prompt: %w", phase, err)
	}
	return Rendered{System: system, User: user, Schema: pt.schema}, nil
}

// Image рендерит промт картинки.
func (l *Library) Image(kind models.ImageKind, data any) (string, error) {
	tmpl, ok := l.images[kind]
	if !ok {
		return "", fmt.Errorf("no image prompt for %s", kind)
	}
	return execute(tmpl, data)
}

// Negative - общий негативный промт для картинок.
func (l *Library) Negative() string { return l.negative }

func execute(t *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", err
	}
	return strings.TrimSpace(buf.String()), nil
}
