package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"fictures-server/internal/clients"
	"fictures-server/internal/imaging"
	"fictures-server/internal/metrics"
	"fictures-server/internal/models"
	"fictures-server/internal/storage"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// Стадии обработки одной картинки, попадают в ImageGenerationError.Stage.
const (
	stageGenerate = "generate"
	stageDecode   = "decode"
	stageOptimize = "optimize"
	stageUpload   = "upload"
	stageAttach   = "attach"
)

// ImageAttacher - то, что фан-ауту нужно от репозитория.
type ImageAttacher interface {
	AttachImage(ctx context.Context, kind models.ImageKind, entityID uuid.UUID, ref models.ImageRef) error
}

// ImageTarget - одна картинка для генерации.
type ImageTarget struct {
	Kind     models.ImageKind
	StoryID  uuid.UUID
	EntityID uuid.UUID
	Label    string
	Prompt   string
}

// FanoutConfig - ограничение параллелизма и темпа запросов.
type FanoutConfig struct {
	Concurrency  int
	RateInterval time.Duration
	RateBurst    int
}

// ItemOutcome - итог одной картинки, передаётся в коллбэк прогресса.
type ItemOutcome struct {
	Kind       models.ImageKind         `json:"kind"`
	EntityID   uuid.UUID                `json:"entityId"`
	Label      string                   `json:"label,omitempty"`
	URL        string                   `json:"url,omitempty"`
	Skipped    bool                     `json:"skipped,omitempty"`
	Error      string                   `json:"error,omitempty"`
	Validation *models.ValidationResult `json:"validation,omitempty"`
}

// ItemCallback вызывается по мере завершения картинок, в порядке завершения.
type ItemCallback func(done, total int, outcome ItemOutcome)

// ImageFanout генерирует картинки с ограниченным параллелизмом.
// Ошибка одной картинки не прерывает остальные.
type ImageFanout struct {
	gen       clients.ImageGenerator
	store     storage.BlobStore
	attacher  ImageAttacher
	validator *imaging.Validator
	negative  string
	cfg       FanoutConfig
	logger    *zap.Logger
}

func NewImageFanout(gen clients.ImageGenerator, store storage.BlobStore, attacher ImageAttacher, validator *imaging.Validator, negative string, cfg FanoutConfig, logger *zap.Logger) *ImageFanout {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.RateBurst <= 0 {
		cfg.RateBurst = 1
	}
	return &ImageFanout{
		gen:       gen,
		store:     store,
		attacher:  attacher,
		validator: validator,
		negative:  negative,
		cfg:       cfg,
		logger:    logger.Named("ImageFanout"),
	}
}

type itemResult struct {
	launched   bool
	err        *models.ImageGenerationError
	validation *models.ValidationResult
	outcome    ItemOutcome
}

// Run обрабатывает все цели. После закрытия stop новые картинки не запускаются,
// начатые доводятся до конца. Отчёт учитывает все цели независимо от порядка завершения.
func (f *ImageFanout) Run(ctx context.Context, stop <-chan struct{}, targets []ImageTarget, onItem ItemCallback) *models.ImageReport {
	total := len(targets)
	results := make([]itemResult, total)

	limit := rate.Inf
	if f.cfg.RateInterval > 0 {
		limit = rate.Every(f.cfg.RateInterval)
	}
	limiter := rate.NewLimiter(limit, f.cfg.RateBurst)

	var (
		mu   sync.Mutex
		done int
	)
	finish := func(i int, res itemResult) {
		mu.Lock()
		defer mu.Unlock()
		results[i] = res
		done++
		if onItem != nil {
			onItem(done, total, res.outcome)
		}
	}

	var g errgroup.Group
	g.SetLimit(f.cfg.Concurrency)
	for i, target := range targets {
		if isStopped(stop) || ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if isStopped(stop) {
				return nil
			}
			finish(i, f.process(ctx, limiter, target))
			return nil
		})
	}
	_ = g.Wait()

	return f.report(targets, results)
}

func (f *ImageFanout) process(ctx context.Context, limiter *rate.Limiter, t ImageTarget) itemResult {
	res := itemResult{
		launched: true,
		outcome:  ItemOutcome{Kind: t.Kind, EntityID: t.EntityID, Label: t.Label},
	}
	fail := func(stage string, err error) itemResult {
		res.err = &models.ImageGenerationError{Kind: t.Kind, EntityID: t.EntityID, Stage: stage, Err: err}
		res.outcome.Error = res.err.Error()
		metrics.ImagesTotal.WithLabelValues(string(t.Kind), "failed").Inc()
		f.logger.Warn("Image failed",
			zap.String("kind", string(t.Kind)),
			zap.String("entity_id", t.EntityID.String()),
			zap.String("stage", stage),
			zap.Error(err),
		)
		return res
	}

	spec, ok := f.validator.Spec(t.Kind)
	if !ok {
		return fail(stageGenerate, fmt.Errorf("no image spec for kind %s", t.Kind))
	}
	if err := limiter.Wait(ctx); err != nil {
		return fail(stageGenerate, err)
	}

	generated, err := f.gen.GenerateImage(ctx, clients.ImageRequest{
		Prompt:         t.Prompt,
		NegativePrompt: f.negative,
		Width:          spec.Primary.Width,
		Height:         spec.Primary.Height,
	})
	if err != nil {
		return fail(stageGenerate, err)
	}

	decoded, err := imaging.Decode(generated.Data)
	if err != nil {
		return fail(stageDecode, err)
	}

	validation := f.validator.Validate(decoded.Width, decoded.Height, t.Kind)
	validation.EntityID = t.EntityID
	res.validation = &validation
	res.outcome.Validation = &validation
	result := "pass"
	if !validation.Passed {
		result = "fail"
		f.logger.Warn("Image dimensions do not match spec",
			zap.String("kind", string(t.Kind)),
			zap.String("entity_id", t.EntityID.String()),
			zap.String("detail", validation.Message),
		)
	}
	metrics.ImageValidationTotal.WithLabelValues(string(t.Kind), result).Inc()

	renditions, err := imaging.BuildVariants(generated.Data, decoded)
	if err != nil {
		return fail(stageOptimize, err)
	}

	var ref models.ImageRef
	for _, r := range renditions {
		key := storage.ImageKey(t.StoryID, t.Kind, t.EntityID, r.Name, r.Ext())
		url, err := f.store.Put(ctx, key, r.Data, storage.ContentTypeForKey(key))
		if err != nil {
			return fail(stageUpload, err)
		}
		if r.Name == "original" {
			ref.URL = url
		}
		ref.Variants = append(ref.Variants, models.ImageVariant{
			Name:   r.Name,
			URL:    url,
			Width:  r.Width,
			Height: r.Height,
			Format: r.Format,
			Bytes:  len(r.Data),
		})
	}

	if err := f.attacher.AttachImage(ctx, t.Kind, t.EntityID, ref); err != nil {
		return fail(stageAttach, err)
	}
	res.outcome.URL = ref.URL
	metrics.ImagesTotal.WithLabelValues(string(t.Kind), "succeeded").Inc()
	return res
}

func (f *ImageFanout) report(targets []ImageTarget, results []itemResult) *models.ImageReport {
	rep := &models.ImageReport{Total: len(targets)}
	for i, res := range results {
		if !res.launched {
			rep.Skipped++
			metrics.ImagesTotal.WithLabelValues(string(targets[i].Kind), "skipped").Inc()
			continue
		}
		rep.Processed++
		if res.validation != nil {
			rep.Validations = append(rep.Validations, *res.validation)
			if res.validation.Passed {
				rep.Validated++
			} else {
				rep.Invalid++
			}
		}
		if res.err != nil {
			rep.Failed++
			rep.Failures = append(rep.Failures, models.ImageFailure{
				Kind:     res.err.Kind,
				EntityID: res.err.EntityID,
				Stage:    res.err.Stage,
				Error:    res.err.Err.Error(),
			})
			continue
		}
		rep.Succeeded++
	}
	return rep
}

func isStopped(stop <-chan struct{}) bool {
	if stop == nil {
		return false
	}
	select {
	case <-stop:
		return true
	default:
		return false
	}
}
