package tracker

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const defaultAPIBase = "https://api.github.com"

// GitHub talks to the GitHub REST API for one owner.
type GitHub struct {
	http    *http.Client
	baseURL string
	token   string
	owner   string
}

func NewGitHub(httpClient *http.Client, baseURL, token, owner string) *GitHub {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	baseURL = strings.TrimSpace(strings.TrimRight(baseURL, "/"))
	if baseURL == "" {
		baseURL = defaultAPIBase
	}
	return &GitHub{
		http:    httpClient,
		baseURL: baseURL,
		token:   strings.TrimSpace(token),
		owner:   strings.TrimSpace(owner),
	}
}

// Owner returns the configured repository owner.
func (g *GitHub) Owner() string {
	if g == nil {
		return ""
	}
	return g.owner
}

func (g *GitHub) CreateIssue(ctx context.Context, repo, title, body string, labels []string) (Issue, error) {
	if g == nil || g.http == nil {
		return Issue{}, fmt.Errorf("github client is not initialized")
	}
	repo = strings.TrimSpace(repo)
	title = strings.TrimSpace(title)
	if repo == "" {
		return Issue{}, fmt.Errorf("repo is required")
	}
	if title == "" {
		return Issue{}, fmt.Errorf("title is required")
	}

	type requestBody struct {
		Title  string   `json:"title"`
		Body   string   `json:"body,omitempty"`
		Labels []string `json:"labels,omitempty"`
	}
	type responseBody struct {
		Number  int    `json:"number"`
		Title   string `json:"title"`
		HTMLURL string `json:"html_url"`
	}

	raw, err := json.Marshal(requestBody{Title: title, Body: body, Labels: labels})
	if err != nil {
		return Issue{}, fmt.Errorf("marshal issue payload: %w", err)
	}
	endpoint := fmt.Sprintf("%s/repos/%s/%s/issues", g.baseURL, g.owner, repo)
	respRaw, status, err := g.do(ctx, http.MethodPost, endpoint, raw)
	if err != nil {
		return Issue{}, err
	}
	if status < 200 || status >= 300 {
		return Issue{}, fmt.Errorf("github create issue http %d: %s", status, truncateForError(respRaw))
	}
	var out responseBody
	if err := json.Unmarshal(respRaw, &out); err != nil {
		return Issue{}, fmt.Errorf("decode issue response: %w", err)
	}
	return Issue{Number: out.Number, Title: out.Title, URL: out.HTMLURL}, nil
}

func (g *GitHub) FetchReadme(ctx context.Context, repo string) (string, error) {
	if g == nil || g.http == nil {
		return "", fmt.Errorf("github client is not initialized")
	}
	repo = strings.TrimSpace(repo)
	if repo == "" {
		return "", fmt.Errorf("repo is required")
	}

	type responseBody struct {
		Content  string `json:"content"`
		Encoding string `json:"encoding"`
	}

	endpoint := fmt.Sprintf("%s/repos/%s/%s/readme", g.baseURL, g.owner, repo)
	respRaw, status, err := g.do(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", err
	}
	if status == http.StatusNotFound {
		return "", fmt.Errorf("readme for %s/%s not found", g.owner, repo)
	}
	if status < 200 || status >= 300 {
		return "", fmt.Errorf("github readme http %d: %s", status, truncateForError(respRaw))
	}
	var out responseBody
	if err := json.Unmarshal(respRaw, &out); err != nil {
		return "", fmt.Errorf("decode readme response: %w", err)
	}
	if out.Encoding != "" && out.Encoding != "base64" {
		return "", fmt.Errorf("unexpected readme encoding %q", out.Encoding)
	}
	decoded, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(out.Content, "\n", ""))
	if err != nil {
		return "", fmt.Errorf("decode readme content: %w", err)
	}
	return string(decoded), nil
}

func (g *GitHub) do(ctx context.Context, method, endpoint string, body []byte) ([]byte, int, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	if g.token != "" {
		req.Header.Set("Authorization", "Bearer "+g.token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := g.http.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer func() { _ = resp.Body.Close() }()
	respRaw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, err
	}
	return respRaw, resp.StatusCode, nil
}

func truncateForError(raw []byte) string {
	s := strings.TrimSpace(string(raw))
	if len(s) > 200 {
		return s[:200] + "..."
	}
	return s
}
