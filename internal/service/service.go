// Atelier - Generative Image Job Orchestration and Caching
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/atelier

// Package service is the application layer: it validates commands, binds
// the resource store, model registry, job orchestrator, and cache store
// together, and tracks running jobs so they can be streamed, cancelled,
// and remixed.
package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/tomtom215/atelier/internal/cache"
	"github.com/tomtom215/atelier/internal/config"
	"github.com/tomtom215/atelier/internal/job"
	"github.com/tomtom215/atelier/internal/logging"
	"github.com/tomtom215/atelier/internal/registry"
	"github.com/tomtom215/atelier/internal/resource"
)

// Runner executes a generation job end to end. Satisfied by
// *job.Orchestrator.
type Runner interface {
	Run(ctx context.Context, author string, input resource.Input, opts job.Options) (*job.Result, error)
}

// Service exposes the command surface of the application.
type Service struct {
	resources *resource.Store
	bundles   *cache.Store
	resolver  registry.Resolver
	runner    Runner
	cfg       *config.Config
	jobs      *jobTable
}

// New wires a service from its collaborators.
func New(resources *resource.Store, bundles *cache.Store, resolver registry.Resolver, runner Runner, cfg *config.Config) *Service {
	return &Service{
		resources: resources,
		bundles:   bundles,
		resolver:  resolver,
		runner:    runner,
		cfg:       cfg,
		jobs:      newJobTable(),
	}
}

// listDelim is the separator used for list-valued fields in prompts and
// detail strings; the configured prompt delimiter with surrounding space
// stripped.
func (s *Service) listDelim() string {
	return strings.TrimSpace(s.cfg.Generation.PromptDelimiter)
}

// version resolves a urn, degrading to Unknown when the registry is
// unreachable.
func (s *Service) version(ctx context.Context, urn string) *registry.VersionInfo {
	info, err := s.resolver.Resolve(ctx, urn)
	if err != nil {
		logging.Warn().Err(err).Str("urn", urn).Msg("Version lookup failed")
		return registry.Unknown()
	}
	return info
}

// Generate validates a prompt against a template and starts a generation
// job. The returned view carries the job id used for streaming, polling,
// and cancellation.
func (s *Service) Generate(ctx context.Context, author, templateQuery, prompts string) (JobView, error) {
	if word, reserved := reservedWord(prompts, s.listDelim()); reserved {
		return JobView{}, fmt.Errorf("%w: %q", ErrReservedWord, word)
	}
	if len(s.resources.Models(0)) == 0 {
		return JobView{}, ErrNoModels
	}

	template, err := s.resources.ResolveTemplate(templateQuery)
	if err != nil {
		return JobView{}, err
	}

	input := job.BuildInput(template, prompts, &s.cfg.Generation)
	return s.start(ctx, author, template.Name, prompts, input, nil), nil
}

// Remix resolves a finished artifact and resubmits its input snapshot
// with the seed pinned to the mean of the collected seeds. On success the
// superseded artifact record is dropped; its orphaned bundle falls to the
// next retention sweep.
func (s *Service) Remix(ctx context.Context, author, cacheID string) (JobView, error) {
	artifact, err := s.resources.ResolveArtifact(cacheID)
	if err != nil {
		return JobView{}, err
	}

	input := job.RemixInput(artifact)
	after := func(*job.Result) {
		if err := s.resources.RemoveArtifact(artifact.CacheID); err != nil {
			logging.Warn().Err(err).Str("cache_id", artifact.CacheID).Msg("Failed to drop remixed artifact")
		}
	}
	return s.start(ctx, author, "remix", artifact.CacheID, input, after), nil
}

// start launches a run on its own goroutine, detached from the request
// context, and registers it for streaming and cancellation.
func (s *Service) start(ctx context.Context, author, template, prompts string, input resource.Input, after func(*job.Result)) JobView {
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	tracked := newTrackedJob(author, template, prompts, cancel)
	s.jobs.add(tracked)

	opts := job.Options{
		Display: func(index int, data []byte, seed int64) {
			tracked.publish(DisplayedImage{Index: index, Seed: seed, Data: data})
		},
	}

	go func() {
		defer cancel()
		result, err := s.runner.Run(runCtx, author, input, opts)
		switch {
		case err == nil:
			if after != nil {
				after(result)
			}
			tracked.finish(StatusCompleted, result, nil)
		case runCtx.Err() != nil:
			tracked.finish(StatusCancelled, nil, err)
		default:
			tracked.finish(StatusFailed, nil, err)
		}
	}()

	return tracked.view()
}

// Job returns a snapshot of a tracked job.
func (s *Service) Job(id string) (JobView, error) {
	tracked, ok := s.jobs.get(id)
	if !ok {
		return JobView{}, fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	return tracked.view(), nil
}

// Jobs returns a snapshot of every tracked job.
func (s *Service) Jobs() []JobView {
	tracked := s.jobs.all()
	views := make([]JobView, 0, len(tracked))
	for _, t := range tracked {
		views = append(views, t.view())
	}
	return views
}

// Subscribe streams a job's collected images. Already-collected images
// are replayed on attach. The done channel closes when the job reaches a
// terminal state.
func (s *Service) Subscribe(id string) (<-chan DisplayedImage, <-chan struct{}, func(), error) {
	tracked, ok := s.jobs.get(id)
	if !ok {
		return nil, nil, nil, fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	images, stop := tracked.subscribe()
	return images, tracked.done, stop, nil
}

// Cancel aborts a running job. Cancelling a finished job is a no-op.
func (s *Service) Cancel(id string) error {
	tracked, ok := s.jobs.get(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	tracked.cancel()
	return nil
}

// ModelDetail pairs a stored model with its resolved registry version.
type ModelDetail struct {
	Model   resource.Model        `json:"model"`
	Version *registry.VersionInfo `json:"version"`
}

// AddModel registers a model after verifying its urn resolves to a known
// registry version. Unresolvable models are rejected.
func (s *Service) AddModel(ctx context.Context, kindQuery, name, urn string) (*ModelDetail, error) {
	kind, err := resource.ParseModelKind(kindQuery)
	if err != nil {
		return nil, err
	}

	model := resource.Model{
		Kind: kind,
		Name: strings.TrimSpace(name),
		URN:  strings.TrimSpace(urn),
	}
	if err := s.resources.AddModel(model); err != nil {
		return nil, err
	}

	version := s.version(ctx, model.URN)
	if version.Unknown {
		if _, err := s.resources.RemoveModel(model.URN); err != nil {
			logging.Error().Err(err).Str("urn", model.URN).Msg("Failed to roll back unverified model")
		}
		return nil, fmt.Errorf("%w: %s", ErrModelOutdated, model.Name)
	}

	logging.Info().Str("kind", kind.String()).Str("name", model.Name).Str("version", version.Name).Msg("Model added")
	return &ModelDetail{Model: model, Version: version}, nil
}

// GetModel resolves a model by index, name, or urn and pairs it with its
// registry version.
func (s *Service) GetModel(ctx context.Context, kindQuery, query string) (*ModelDetail, error) {
	kind, err := resource.ParseModelKind(kindQuery)
	if err != nil {
		return nil, err
	}
	if len(s.resources.Models(kind)) == 0 {
		return nil, ErrNoModels
	}

	model, err := s.resources.ResolveModel(kind, query)
	if err != nil {
		return nil, err
	}
	return &ModelDetail{Model: model, Version: s.version(ctx, model.URN)}, nil
}

// DeleteModel removes a model by index, name, or urn. Templates that
// reference it are left alone; they fail at their next resolution.
func (s *Service) DeleteModel(kindQuery, query string) (resource.Model, error) {
	kind, err := resource.ParseModelKind(kindQuery)
	if err != nil {
		return resource.Model{}, err
	}
	if len(s.resources.Models(kind)) == 0 {
		return resource.Model{}, ErrNoModels
	}

	model, err := s.resources.ResolveModel(kind, query)
	if err != nil {
		return resource.Model{}, err
	}
	return s.resources.RemoveModel(model.URN)
}

// TemplateDetail is a template with its references resolved for display,
// plus a recipe string that reproduces it through AddTemplate.
type TemplateDetail struct {
	Template      resource.Template  `json:"template"`
	BaseModelName string             `json:"base_model_name"`
	Additional    map[string]float64 `json:"additional_names,omitempty"`
	PreviewURL    string             `json:"preview_url,omitempty"`
	Recipe        string             `json:"recipe"`
}

// AddTemplate parses a detail string of the form
//
//	<name>|ckpt:<ref>|lora:<ref>[::<weight>],...|prompt:<text>|negative:<text>|guidance:<f>|steps:<n>
//
// and registers the template under author. ckpt and prompt are required.
// Model references resolve by index, name, or urn against the checkpoint
// and lora collections; lora entries that do not resolve are skipped.
// Guidance and steps are clamped to their configured maxima.
func (s *Service) AddTemplate(ctx context.Context, author, detail string) (*TemplateDetail, error) {
	gen := &s.cfg.Generation
	details := parseDetailString("name:"+detail, gen.PackDelimiter, s.listDelim())

	name := strings.TrimSpace(details["name"])
	if name == "" {
		return nil, fmt.Errorf("%w: missing template name", ErrInvalidDetail)
	}
	if _, ok := details["ckpt"]; !ok {
		return nil, fmt.Errorf("%w: missing ckpt pack", ErrInvalidDetail)
	}
	if _, ok := details["prompt"]; !ok {
		return nil, fmt.Errorf("%w: missing prompt pack", ErrInvalidDetail)
	}

	if len(s.resources.Models(resource.KindCheckpoint)) == 0 {
		return nil, ErrNoModels
	}
	ckpt, err := s.resources.ResolveModel(resource.KindCheckpoint, strings.TrimSpace(details["ckpt"]))
	if err != nil {
		return nil, err
	}
	version := s.version(ctx, ckpt.URN)
	if version.Unknown {
		return nil, fmt.Errorf("%w: %s", ErrModelOutdated, ckpt.Name)
	}

	additional := make(map[string]float64)
	additionalNames := make(map[string]float64)
	if loras, ok := details["lora"]; ok {
		for _, entry := range strings.Split(loras, s.listDelim()) {
			ref, weightStr, weighted := strings.Cut(entry, gen.ModifierDelimiter)
			weight := 1.0
			if weighted {
				weight, err = strconv.ParseFloat(strings.TrimSpace(weightStr), 64)
				if err != nil {
					return nil, fmt.Errorf("%w: bad lora weight %q", ErrInvalidDetail, weightStr)
				}
			}
			lora, err := s.resources.ResolveModel(resource.KindLoRA, strings.TrimSpace(ref))
			if err != nil {
				logging.Warn().Str("ref", ref).Msg("Skipping unresolvable lora reference")
				continue
			}
			additional[lora.URN] = weight
			additionalNames[lora.Name] = weight
		}
	}

	prompt := normalizePrompt(details["prompt"], s.listDelim(), gen.PromptDelimiter)
	negative := ""
	if v, ok := details["negative"]; ok {
		negative = normalizePrompt(v, s.listDelim(), gen.PromptDelimiter)
	}

	guidance := gen.GuidanceDefault
	if v, ok := details["guidance"]; ok {
		parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return nil, fmt.Errorf("%w: bad guidance %q", ErrInvalidDetail, v)
		}
		guidance = clampFloat(parsed, gen.GuidanceMax)
	}

	steps := gen.StepsDefault
	if v, ok := details["steps"]; ok {
		parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return nil, fmt.Errorf("%w: bad steps %q", ErrInvalidDetail, v)
		}
		steps = clampInt(int(parsed), gen.StepsMax)
	}

	template := resource.Template{
		Name:           name,
		Author:         author,
		BaseModelURN:   ckpt.URN,
		AdditionalURNs: additional,
		BasePrompt:     prompt,
		NegativePrompt: negative,
		Guidance:       guidance,
		Steps:          steps,
	}
	if err := s.resources.AddTemplate(template); err != nil {
		return nil, err
	}

	logging.Info().Str("author", author).Str("name", name).Msg("Template added")
	return &TemplateDetail{
		Template:      template,
		BaseModelName: ckpt.Name,
		Additional:    additionalNames,
		PreviewURL:    version.PreviewURL,
		Recipe:        s.recipe(template, ckpt.Name, additionalNames),
	}, nil
}

// GetTemplate resolves a template by index or name and expands its model
// references to display names.
func (s *Service) GetTemplate(ctx context.Context, query string) (*TemplateDetail, error) {
	template, err := s.resources.ResolveTemplate(query)
	if err != nil {
		return nil, err
	}

	detail := &TemplateDetail{Template: template, Additional: make(map[string]float64)}

	if ckpt, err := s.resources.ResolveModel(resource.KindCheckpoint, template.BaseModelURN); err == nil {
		detail.BaseModelName = ckpt.Name
		detail.PreviewURL = s.version(ctx, ckpt.URN).PreviewURL
	} else {
		detail.BaseModelName = template.BaseModelURN
	}

	for urn, weight := range template.AdditionalURNs {
		if lora, err := s.resources.ResolveModel(resource.KindLoRA, urn); err == nil {
			detail.Additional[lora.Name] = weight
		} else {
			detail.Additional[urn] = weight
		}
	}

	detail.Recipe = s.recipe(template, detail.BaseModelName, detail.Additional)
	return detail, nil
}

// recipe reconstructs the AddTemplate detail string for a template.
func (s *Service) recipe(t resource.Template, ckptName string, additional map[string]float64) string {
	gen := &s.cfg.Generation
	var b strings.Builder
	b.WriteString(t.Name)
	b.WriteString(gen.PackDelimiter + "ckpt:" + ckptName)
	if len(additional) > 0 {
		entries := make([]string, 0, len(additional))
		for name, weight := range additional {
			entries = append(entries, fmt.Sprintf("%s%s%g", name, gen.ModifierDelimiter, weight))
		}
		b.WriteString(gen.PackDelimiter + "lora:" + strings.Join(entries, s.listDelim()))
	}
	b.WriteString(gen.PackDelimiter + "prompt:" + t.BasePrompt)
	b.WriteString(gen.PackDelimiter + "negative:" + t.NegativePrompt)
	b.WriteString(fmt.Sprintf("%sguidance:%g", gen.PackDelimiter, t.Guidance))
	b.WriteString(fmt.Sprintf("%ssteps:%d", gen.PackDelimiter, t.Steps))
	return b.String()
}

// DeleteTemplate removes the named template owned by author.
func (s *Service) DeleteTemplate(author, name string) (resource.Template, error) {
	return s.resources.RemoveTemplate(author, name)
}

// Download returns a cached bundle with its download filename.
func (s *Service) Download(cacheID string) (string, []byte, error) {
	artifact, err := s.resources.ResolveArtifact(cacheID)
	if err != nil {
		return "", nil, err
	}
	data, err := s.bundles.Read(artifact.CacheID)
	if err != nil {
		return "", nil, err
	}
	filename := fmt.Sprintf("artifact_%s.%s", artifact.CacheID, s.cfg.Cache.Extension)
	return filename, data, nil
}

// Sweep reconciles the bundle directory against the artifact registry and
// re-persists the surviving artifacts in ascending timestamp order. The
// registry lock is held for the whole reconciliation, so a job finishing
// mid-sweep cannot have its fresh bundle classified as unclaimed. Tracked
// jobs that have been terminal longer than the configured retention are
// dropped from the job table on the same pass.
func (s *Service) Sweep() error {
	s.jobs.prune(s.cfg.Server.JobRetention)
	return s.resources.ReconcileArtifacts(func(artifacts []resource.Artifact) ([]resource.Artifact, error) {
		return s.bundles.Sweep(artifacts, s.cfg.Cache.Retention)
	})
}

// ModelListing is one model row in an overview, with its resolved version.
type ModelListing struct {
	Model   resource.Model `json:"model"`
	Version string         `json:"version"`
}

// Overview is the full resource listing: models per kind with versions,
// templates, and cache occupancy.
type Overview struct {
	Checkpoints []ModelListing      `json:"checkpoints"`
	LoRAs       []ModelListing      `json:"loras"`
	VAEs        []ModelListing      `json:"vaes"`
	Templates   []resource.Template `json:"templates"`
	CacheCount  int                 `json:"cache_count"`
	CacheOldest string              `json:"cache_oldest,omitempty"`
}

// Overview sweeps the cache, then lists every resource. Version lookups go
// through the resolver, which is rate limited in production wiring; a
// failed lookup degrades that row to unknown.
func (s *Service) Overview(ctx context.Context) (*Overview, error) {
	if err := s.Sweep(); err != nil {
		return nil, err
	}

	listings := func(kind resource.ModelKind) []ModelListing {
		models := s.resources.Models(kind)
		out := make([]ModelListing, 0, len(models))
		for _, m := range models {
			out = append(out, ModelListing{Model: m, Version: s.version(ctx, m.URN).Name})
		}
		return out
	}

	overview := &Overview{
		Checkpoints: listings(resource.KindCheckpoint),
		LoRAs:       listings(resource.KindLoRA),
		VAEs:        listings(resource.KindVAE),
		Templates:   s.resources.Templates(),
	}

	artifacts := s.resources.Artifacts()
	overview.CacheCount = len(artifacts)
	if len(artifacts) > 0 {
		overview.CacheOldest = artifacts[0].Timestamp
	}
	return overview, nil
}
