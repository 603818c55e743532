package jenkins

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kloudmate/jenkins-exporter/internal/models"
)

// maxFolderDepth bounds how many folder levels the tree query asks for.
const maxFolderDepth = 3

// DefaultMaxBodyBytes caps the job API response read into memory.
const DefaultMaxBodyBytes int64 = 32 << 20

type Config struct {
	URL      string
	User     string
	Password string
	Insecure bool
	Timeout  time.Duration

	// MaxBodyBytes defaults to DefaultMaxBodyBytes when not positive.
	MaxBodyBytes int64
}

// SizeObserver receives the byte size of every successful API response.
type SizeObserver interface {
	Observe(float64)
}

type Client struct {
	logger     *zap.Logger
	httpClient *http.Client
	observer   SizeObserver

	baseURL  string
	user     string
	password string
	timeout  time.Duration
	maxBody  int64
}

func NewClient(cfg *Config, observer SizeObserver, logger *zap.Logger) *Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if cfg.Insecure {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // opt-in via --insecure
	}

	maxBody := cfg.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = DefaultMaxBodyBytes
	}

	return &Client{
		logger:     logger,
		httpClient: &http.Client{Transport: transport},
		observer:   observer,
		baseURL:    strings.TrimRight(cfg.URL, "/"),
		user:       cfg.User,
		password:   cfg.Password,
		timeout:    cfg.Timeout,
		maxBody:    maxBody,
	}
}

// FetchJobs reads the status of every job, walking into folders.
func (c *Client) FetchJobs(ctx context.Context) ([]models.Job, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	endpoint := c.baseURL + "/api/json?" + url.Values{"tree": {TreeQuery()}}.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.user != "" {
		req.SetBasicAuth(c.user, c.password)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: request to %s failed: %w", models.ErrUpstreamUnavailable, c.baseURL, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBody+1))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read response: %w", models.ErrUpstreamUnavailable, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: unexpected status %d from %s", models.ErrUpstreamUnavailable, resp.StatusCode, c.baseURL)
	}

	if int64(len(body)) > c.maxBody {
		return nil, fmt.Errorf("%w: response exceeds %d bytes", models.ErrMalformedPayload, c.maxBody)
	}

	if c.observer != nil {
		c.observer.Observe(float64(len(body)))
	}

	jobs, issues, err := ParseJobs(body)
	if err != nil {
		return nil, err
	}
	for _, issue := range issues {
		c.logger.Warn("Skipping job entry", zap.Error(issue))
	}

	c.logger.Debug("Fetched job status",
		zap.Int("jobs", len(jobs)),
		zap.Int("bytes", len(body)),
		zap.Duration("elapsed", time.Since(start)))

	return jobs, nil
}

// TreeQuery is the value of the tree parameter restricting the API response
// to the fields the exporter maps.
func TreeQuery() string {
	return "jobs[" + jobFields(maxFolderDepth) + "]"
}

func jobFields(depth int) string {
	parts := []string{"name", "url"}
	for _, s := range models.Statuses {
		parts = append(parts, s.String()+"[number,timestamp,duration,actions[queuingDurationMillis,totalDurationMillis,skipCount,failCount,totalCount,passCount]]")
	}
	if depth > 0 {
		parts = append(parts, "jobs["+jobFields(depth-1)+"]")
	}
	return strings.Join(parts, ",")
}
