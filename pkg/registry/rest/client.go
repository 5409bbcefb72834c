// Package rest implements the registry client for a remote tracking server
// speaking the MLflow 2.0 REST API.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/diamondlab/pricer/pkg/contract"
	"github.com/diamondlab/pricer/pkg/registry"
)

type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

var _ registry.Registry = (*Client)(nil)

func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: 60 * time.Second},
	}
}

type modelVersionPayload struct {
	Name         string `json:"name"`
	Version      string `json:"version"`
	CurrentStage string `json:"current_stage"`
	RunID        string `json:"run_id"`
	Source       string `json:"source"`
	Status       string `json:"status"`
	CreationTime int64  `json:"creation_timestamp"`
}

func (p *modelVersionPayload) toModelVersion() (*registry.ModelVersion, error) {
	version, err := strconv.Atoi(p.Version)
	if err != nil {
		return nil, fmt.Errorf("registry returned non-numeric version %q: %w", p.Version, err)
	}
	return &registry.ModelVersion{
		Name:         p.Name,
		Version:      version,
		CurrentStage: p.CurrentStage,
		RunID:        p.RunID,
		Source:       p.Source,
		Status:       p.Status,
		CreationTime: p.CreationTime,
	}, nil
}

func (c *Client) GetLatestVersion(ctx context.Context, name string, stages []string) (*registry.ModelVersion, error) {
	query := url.Values{"name": {name}}
	for _, stage := range stages {
		query.Add("stages", stage)
	}

	var response struct {
		ModelVersions []modelVersionPayload `json:"model_versions"`
	}
	err := c.call(ctx, http.MethodGet,
		"/api/2.0/mlflow/registered-models/get-latest-versions?"+query.Encode(), nil, &response)
	if err != nil {
		return nil, err
	}
	if len(response.ModelVersions) == 0 {
		return nil, registry.ErrNotFound
	}

	latest := response.ModelVersions[0]
	for _, mv := range response.ModelVersions[1:] {
		if mv.CreationTime > latest.CreationTime {
			latest = mv
		}
	}
	return latest.toModelVersion()
}

func (c *Client) CreateRun(ctx context.Context, experimentName string) (*registry.Run, error) {
	experimentID, err := c.resolveExperiment(ctx, experimentName)
	if err != nil {
		return nil, err
	}

	now := time.Now().UnixMilli()
	var response struct {
		Run struct {
			Info struct {
				RunID        string `json:"run_id"`
				ExperimentID string `json:"experiment_id"`
				Status       string `json:"status"`
				StartTime    int64  `json:"start_time"`
			} `json:"info"`
		} `json:"run"`
	}
	err = c.call(ctx, http.MethodPost, "/api/2.0/mlflow/runs/create", map[string]any{
		"experiment_id": experimentID,
		"start_time":    now,
	}, &response)
	if err != nil {
		return nil, err
	}

	return &registry.Run{
		ID:           response.Run.Info.RunID,
		ExperimentID: response.Run.Info.ExperimentID,
		Status:       registry.RunStatusRunning,
		StartTime:    response.Run.Info.StartTime,
	}, nil
}

func (c *Client) resolveExperiment(ctx context.Context, name string) (string, error) {
	var response struct {
		Experiment struct {
			ExperimentID string `json:"experiment_id"`
		} `json:"experiment"`
	}
	err := c.call(ctx, http.MethodGet,
		"/api/2.0/mlflow/experiments/get-by-name?experiment_name="+url.QueryEscape(name), nil, &response)
	if err == nil {
		return response.Experiment.ExperimentID, nil
	}
	if !isCode(err, contract.ErrorCodeResourceDoesNotExist) {
		return "", err
	}

	var created struct {
		ExperimentID string `json:"experiment_id"`
	}
	err = c.call(ctx, http.MethodPost, "/api/2.0/mlflow/experiments/create",
		map[string]any{"name": name}, &created)
	if err != nil {
		return "", err
	}
	return created.ExperimentID, nil
}

func (c *Client) LogParam(ctx context.Context, runID, key, value string) error {
	return c.call(ctx, http.MethodPost, "/api/2.0/mlflow/runs/log-parameter", map[string]any{
		"run_id": runID,
		"key":    key,
		"value":  value,
	}, nil)
}

func (c *Client) LogMetric(ctx context.Context, runID, key string, value float64, timestamp int64) error {
	return c.call(ctx, http.MethodPost, "/api/2.0/mlflow/runs/log-metric", map[string]any{
		"run_id":    runID,
		"key":       key,
		"value":     value,
		"timestamp": timestamp,
		"step":      0,
	}, nil)
}

func (c *Client) FinishRun(ctx context.Context, runID, status string) error {
	return c.call(ctx, http.MethodPost, "/api/2.0/mlflow/runs/update", map[string]any{
		"run_id":   runID,
		"status":   status,
		"end_time": time.Now().UnixMilli(),
	}, nil)
}

func (c *Client) EnsureRegisteredModel(ctx context.Context, name string) error {
	err := c.call(ctx, http.MethodPost, "/api/2.0/mlflow/registered-models/create",
		map[string]any{"name": name}, nil)
	if err != nil && isCode(err, contract.ErrorCodeResourceAlreadyExists) {
		return nil
	}
	return err
}

func (c *Client) CreateModelVersion(ctx context.Context, name, runID, source string) (*registry.ModelVersion, error) {
	var response struct {
		ModelVersion modelVersionPayload `json:"model_version"`
	}
	err := c.call(ctx, http.MethodPost, "/api/2.0/mlflow/model-versions/create", map[string]any{
		"name":   name,
		"run_id": runID,
		"source": source,
	}, &response)
	if err != nil {
		return nil, err
	}
	return response.ModelVersion.toModelVersion()
}

func (c *Client) TransitionStage(ctx context.Context, name string, version int, stage string, archiveExisting bool) (*registry.ModelVersion, error) {
	var response struct {
		ModelVersion modelVersionPayload `json:"model_version"`
	}
	err := c.call(ctx, http.MethodPost, "/api/2.0/mlflow/model-versions/transition-stage", map[string]any{
		"name":                      name,
		"version":                   strconv.Itoa(version),
		"stage":                     stage,
		"archive_existing_versions": archiveExisting,
	}, &response)
	if err != nil {
		return nil, err
	}
	return response.ModelVersion.toModelVersion()
}

func (c *Client) UploadArtifact(ctx context.Context, runID, path string, data []byte) error {
	endpoint := fmt.Sprintf("%s/api/2.0/mlflow-artifacts/artifacts/%s/artifacts/%s",
		c.baseURL, runID, path)
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, endpoint, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	return c.do(req, nil)
}

func (c *Client) DownloadArtifact(ctx context.Context, runID, path string) ([]byte, error) {
	query := url.Values{"run_uuid": {runID}, "path": {path}}
	endpoint := c.baseURL + "/get-artifact?" + query.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	var body []byte
	err = c.do(req, func(r io.Reader) error {
		var readErr error
		body, readErr = io.ReadAll(r)
		return readErr
	})
	if err != nil {
		return nil, err
	}
	return body, nil
}

// call issues a JSON request against the tracking API and decodes the
// response into out when out is non-nil.
func (c *Client) call(ctx context.Context, method, path string, payload any, out any) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.do(req, func(r io.Reader) error {
		if out == nil {
			return nil
		}
		return json.NewDecoder(r).Decode(out)
	})
}

func (c *Client) do(req *http.Request, read func(io.Reader) error) error {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	logrus.Debugf("registry %s %s", req.Method, req.URL.Path)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("registry request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return decodeError(resp)
	}

	if read != nil {
		if err := read(resp.Body); err != nil {
			return fmt.Errorf("failed to read registry response: %w", err)
		}
	}
	return nil
}

// decodeError maps the registry's {error_code, message} body onto a
// contract.Error, falling back to the raw body text.
func decodeError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))

	var payload struct {
		ErrorCode string `json:"error_code"`
		Message   string `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.ErrorCode != "" {
		return contract.NewError(contract.ErrorCode(payload.ErrorCode), payload.Message)
	}

	if resp.StatusCode == http.StatusNotFound {
		return contract.NewErrorf(contract.ErrorCodeResourceDoesNotExist,
			"registry returned 404: %s", strings.TrimSpace(string(body)))
	}
	return contract.NewErrorf(contract.ErrorCodeInternalError,
		"registry returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
}

func isCode(err error, code contract.ErrorCode) bool {
	var cerr *contract.Error
	return errors.As(err, &cerr) && cerr.Code == code
}
