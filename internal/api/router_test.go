// Atelier - Generative Image Job Orchestration and Caching
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/atelier

package api

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/tomtom215/atelier/internal/cache"
	"github.com/tomtom215/atelier/internal/config"
	"github.com/tomtom215/atelier/internal/job"
	"github.com/tomtom215/atelier/internal/registry"
	"github.com/tomtom215/atelier/internal/resource"
	"github.com/tomtom215/atelier/internal/service"
)

func checkNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
}

func checkStatus(t *testing.T, resp *http.Response, want int) {
	t.Helper()
	if resp.StatusCode != want {
		t.Fatalf("StatusCode = %d, want %d", resp.StatusCode, want)
	}
}

type fakeResolver struct {
	versions map[string]*registry.VersionInfo
}

func (f *fakeResolver) Resolve(ctx context.Context, urn string) (*registry.VersionInfo, error) {
	if info, ok := f.versions[urn]; ok {
		return info, nil
	}
	return registry.Unknown(), nil
}

type fakeRunner struct {
	result *job.Result
}

func (f *fakeRunner) Run(ctx context.Context, author string, input resource.Input, opts job.Options) (*job.Result, error) {
	if opts.Display != nil {
		opts.Display(1, []byte("img-bytes"), 42)
	}
	return f.result, nil
}

type testServer struct {
	server    *httptest.Server
	resources *resource.Store
	bundles   *cache.Store
	resolver  *fakeResolver
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Cache.Dir = filepath.Join(dir, "bundles")
	cfg.Server.CORSOrigins = []string{"*"}

	resources, err := resource.Open(resource.Paths{
		Models:    filepath.Join(dir, "models.json"),
		Templates: filepath.Join(dir, "templates.json"),
		Artifacts: filepath.Join(dir, "artifacts.json"),
	})
	checkNoError(t, err)
	bundles, err := cache.New(cfg.Cache.Dir, cfg.Cache.Extension, cfg.Generation.OutputType)
	checkNoError(t, err)

	resolver := &fakeResolver{versions: map[string]*registry.VersionInfo{}}
	runner := &fakeRunner{result: &job.Result{CacheID: "20260901_120000", Seeds: []int64{42}, Collected: 1, Expected: 1}}
	svc := service.New(resources, bundles, resolver, runner, cfg)

	server := httptest.NewServer(NewRouter(svc, cfg).Setup())
	t.Cleanup(server.Close)

	return &testServer{server: server, resources: resources, bundles: bundles, resolver: resolver}
}

func (ts *testServer) postJSON(t *testing.T, path string, body interface{}) *http.Response {
	t.Helper()
	payload, err := json.Marshal(body)
	checkNoError(t, err)
	resp, err := http.Post(ts.server.URL+path, "application/json", bytes.NewReader(payload))
	checkNoError(t, err)
	return resp
}

func (ts *testServer) get(t *testing.T, path string) *http.Response {
	t.Helper()
	resp, err := http.Get(ts.server.URL + path)
	checkNoError(t, err)
	return resp
}

func decodeData(t *testing.T, resp *http.Response, dst interface{}) {
	t.Helper()
	defer resp.Body.Close()
	var envelope struct {
		Success bool            `json:"success"`
		Data    json.RawMessage `json:"data"`
	}
	checkNoError(t, json.NewDecoder(resp.Body).Decode(&envelope))
	if !envelope.Success {
		t.Fatalf("Expected success envelope, got %s", envelope.Data)
	}
	if dst != nil {
		checkNoError(t, json.Unmarshal(envelope.Data, dst))
	}
}

func (ts *testServer) seedModel(t *testing.T, kind resource.ModelKind, name, urn string) {
	t.Helper()
	checkNoError(t, ts.resources.AddModel(resource.Model{Kind: kind, Name: name, URN: urn}))
	ts.resolver.versions[urn] = &registry.VersionInfo{Name: "v1"}
}

func (ts *testServer) seedTemplate(t *testing.T, name string) {
	t.Helper()
	checkNoError(t, ts.resources.AddTemplate(resource.Template{
		Name:         name,
		Author:       "ana",
		BaseModelURN: "urn:air:sdxl:checkpoint:civitai:1@2",
		BasePrompt:   "masterpiece",
		Guidance:     7,
		Steps:        25,
	}))
}

func TestHealthz(t *testing.T) {
	ts := newTestServer(t)
	resp := ts.get(t, "/healthz")
	defer resp.Body.Close()
	checkStatus(t, resp, http.StatusOK)
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t)
	resp := ts.get(t, "/metrics")
	defer resp.Body.Close()
	checkStatus(t, resp, http.StatusOK)
}

func TestAddModelEndpoint(t *testing.T) {
	ts := newTestServer(t)
	urn := "urn:air:sdxl:checkpoint:civitai:1@2"
	ts.resolver.versions[urn] = &registry.VersionInfo{Name: "v2"}

	resp := ts.postJSON(t, "/api/v1/models", map[string]string{"kind": "ckpt", "name": "base", "urn": urn})
	checkStatus(t, resp, http.StatusCreated)

	var detail service.ModelDetail
	decodeData(t, resp, &detail)
	if detail.Model.Name != "base" || detail.Version.Name != "v2" {
		t.Errorf("Detail = %+v, want base at v2", detail)
	}
}

func TestAddModelUnverifiable(t *testing.T) {
	ts := newTestServer(t)
	resp := ts.postJSON(t, "/api/v1/models", map[string]string{"kind": "ckpt", "name": "base", "urn": "urn:air:x:local:y"})
	defer resp.Body.Close()
	checkStatus(t, resp, http.StatusBadGateway)
}

func TestAddModelNumericName(t *testing.T) {
	ts := newTestServer(t)
	resp := ts.postJSON(t, "/api/v1/models", map[string]string{"kind": "ckpt", "name": "123", "urn": "urn:air:sdxl:checkpoint:civitai:1@2"})
	defer resp.Body.Close()
	checkStatus(t, resp, http.StatusBadRequest)
}

func TestAddModelDuplicateURN(t *testing.T) {
	ts := newTestServer(t)
	ts.seedModel(t, resource.KindCheckpoint, "base", "urn:air:sdxl:checkpoint:civitai:1@2")

	resp := ts.postJSON(t, "/api/v1/models", map[string]string{"kind": "lora", "name": "other", "urn": "urn:air:sdxl:checkpoint:civitai:1@2"})
	defer resp.Body.Close()
	checkStatus(t, resp, http.StatusConflict)
}

func TestGetModelByIndex(t *testing.T) {
	ts := newTestServer(t)
	ts.seedModel(t, resource.KindCheckpoint, "base", "urn:air:sdxl:checkpoint:civitai:1@2")

	resp := ts.get(t, "/api/v1/models/ckpt/1")
	checkStatus(t, resp, http.StatusOK)

	var detail service.ModelDetail
	decodeData(t, resp, &detail)
	if detail.Model.Name != "base" {
		t.Errorf("Model = %+v, want base", detail.Model)
	}
}

func TestGetModelOutOfRange(t *testing.T) {
	ts := newTestServer(t)
	ts.seedModel(t, resource.KindCheckpoint, "base", "urn:air:sdxl:checkpoint:civitai:1@2")

	resp := ts.get(t, "/api/v1/models/ckpt/5")
	defer resp.Body.Close()
	checkStatus(t, resp, http.StatusNotFound)
}

func TestAddTemplateEndpoint(t *testing.T) {
	ts := newTestServer(t)
	ts.seedModel(t, resource.KindCheckpoint, "base", "urn:air:sdxl:checkpoint:civitai:1@2")

	resp := ts.postJSON(t, "/api/v1/templates", map[string]string{
		"author": "ana",
		"detail": "portrait|ckpt:base|prompt:masterpiece",
	})
	checkStatus(t, resp, http.StatusCreated)

	var detail service.TemplateDetail
	decodeData(t, resp, &detail)
	if detail.Template.Name != "portrait" {
		t.Errorf("Template = %+v, want portrait", detail.Template)
	}
}

func TestAddTemplateInvalidDetail(t *testing.T) {
	ts := newTestServer(t)
	ts.seedModel(t, resource.KindCheckpoint, "base", "urn:air:sdxl:checkpoint:civitai:1@2")

	resp := ts.postJSON(t, "/api/v1/templates", map[string]string{"author": "ana", "detail": "broken|prompt:x"})
	defer resp.Body.Close()
	checkStatus(t, resp, http.StatusBadRequest)
}

func TestGenerateAndPollJob(t *testing.T) {
	ts := newTestServer(t)
	ts.seedModel(t, resource.KindCheckpoint, "base", "urn:air:sdxl:checkpoint:civitai:1@2")
	ts.seedTemplate(t, "portrait")

	resp := ts.postJSON(t, "/api/v1/jobs", map[string]string{
		"author": "ana", "template": "portrait", "prompts": "a red fox",
	})
	checkStatus(t, resp, http.StatusAccepted)

	var view service.JobView
	decodeData(t, resp, &view)
	if view.ID == "" {
		t.Fatal("Expected a job id")
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		resp := ts.get(t, "/api/v1/jobs/"+view.ID)
		checkStatus(t, resp, http.StatusOK)
		var polled service.JobView
		decodeData(t, resp, &polled)
		if polled.Status != service.StatusRunning {
			if polled.Status != service.StatusCompleted {
				t.Fatalf("Status = %q, want completed", polled.Status)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("Job never finished")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestGenerateReservedWord(t *testing.T) {
	ts := newTestServer(t)
	ts.seedModel(t, resource.KindCheckpoint, "base", "urn:air:sdxl:checkpoint:civitai:1@2")
	ts.seedTemplate(t, "portrait")

	resp := ts.postJSON(t, "/api/v1/jobs", map[string]string{
		"author": "ana", "template": "portrait", "prompts": "del everything",
	})
	defer resp.Body.Close()
	checkStatus(t, resp, http.StatusBadRequest)
}

func TestCancelUnknownJob(t *testing.T) {
	ts := newTestServer(t)
	req, err := http.NewRequest(http.MethodDelete, ts.server.URL+"/api/v1/jobs/no-such-id", http.NoBody)
	checkNoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	checkNoError(t, err)
	defer resp.Body.Close()
	checkStatus(t, resp, http.StatusNotFound)
}

func TestDownloadEndpoint(t *testing.T) {
	ts := newTestServer(t)

	img := image.NewNRGBA(image.Rect(0, 0, 2, 2))
	img.SetNRGBA(0, 0, color.NRGBA{R: 5, A: 255})
	var buf bytes.Buffer
	checkNoError(t, png.Encode(&buf, img))
	checkNoError(t, ts.bundles.Write("20260901_120000", []*cache.Image{{Data: buf.Bytes(), Seed: 7}}))
	checkNoError(t, ts.resources.AppendArtifact(resource.Artifact{
		Author: "ana", Timestamp: "20260901_120000", CacheID: "20260901_120000", Seeds: []int64{7},
	}))

	resp := ts.get(t, "/api/v1/artifacts/20260901_120000/download")
	defer resp.Body.Close()
	checkStatus(t, resp, http.StatusOK)

	disposition := resp.Header.Get("Content-Disposition")
	if !strings.Contains(disposition, "artifact_20260901_120000.zip") {
		t.Errorf("Content-Disposition = %q, want bundle filename", disposition)
	}
}

func TestDownloadMissing(t *testing.T) {
	ts := newTestServer(t)
	resp := ts.get(t, "/api/v1/artifacts/nope/download")
	defer resp.Body.Close()
	checkStatus(t, resp, http.StatusNotFound)
}

func TestOverviewEndpoint(t *testing.T) {
	ts := newTestServer(t)
	ts.seedModel(t, resource.KindCheckpoint, "base", "urn:air:sdxl:checkpoint:civitai:1@2")
	ts.seedTemplate(t, "portrait")

	resp := ts.get(t, "/api/v1/overview")
	checkStatus(t, resp, http.StatusOK)

	var overview service.Overview
	decodeData(t, resp, &overview)
	if len(overview.Checkpoints) != 1 || overview.Checkpoints[0].Version != "v1" {
		t.Errorf("Checkpoints = %+v, want base at v1", overview.Checkpoints)
	}
	if len(overview.Templates) != 1 {
		t.Errorf("Templates = %d, want 1", len(overview.Templates))
	}
}

func TestJobStreamWebSocket(t *testing.T) {
	ts := newTestServer(t)
	ts.seedModel(t, resource.KindCheckpoint, "base", "urn:air:sdxl:checkpoint:civitai:1@2")
	ts.seedTemplate(t, "portrait")

	resp := ts.postJSON(t, "/api/v1/jobs", map[string]string{
		"author": "ana", "template": "portrait", "prompts": "a red fox",
	})
	var view service.JobView
	decodeData(t, resp, &view)

	wsURL := "ws" + strings.TrimPrefix(ts.server.URL, "http") + "/api/v1/jobs/" + view.ID + "/stream"
	conn, wsResp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	checkNoError(t, err)
	if wsResp != nil {
		defer wsResp.Body.Close()
	}
	defer conn.Close()

	sawImage := false
	sawStatus := false
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for !sawStatus {
		var frame struct {
			Type string          `json:"type"`
			Seed int64           `json:"seed"`
			Data []byte          `json:"data"`
			Job  json.RawMessage `json:"job"`
		}
		if err := conn.ReadJSON(&frame); err != nil {
			t.Fatalf("Read frame: %v (sawImage=%v)", err, sawImage)
		}
		switch frame.Type {
		case "image":
			sawImage = true
			if frame.Seed != 42 || string(frame.Data) != "img-bytes" {
				t.Errorf("Image frame = %+v", frame)
			}
		case "status":
			sawStatus = true
			var final service.JobView
			checkNoError(t, json.Unmarshal(frame.Job, &final))
			if final.Status != service.StatusCompleted {
				t.Errorf("Final status = %q, want completed", final.Status)
			}
		}
	}
	if !sawImage {
		t.Error("Expected at least one image frame")
	}
}

func TestStreamUnknownJob(t *testing.T) {
	ts := newTestServer(t)
	resp := ts.get(t, "/api/v1/jobs/no-such-id/stream")
	defer resp.Body.Close()
	checkStatus(t, resp, http.StatusNotFound)
}
