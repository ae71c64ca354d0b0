// Package gitlab is a narrow client for the issue tracker: create an issue,
// close an issue, and fetch the state of a batch of issues. Failures are
// reported to the caller and logged; nothing here is ever fatal.
package gitlab

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const requestTimeout = 10 * time.Second

// Issue state values reported by the tracker.
const (
	StateOpened = "opened"
	StateClosed = "closed"
)

type Issue struct {
	IID    int64  `json:"iid"`
	State  string `json:"state"`
	WebURL string `json:"web_url"`
}

type Client struct {
	baseURL   string // https://gitlab.example.com, no trailing slash
	token     string
	projectID string // numeric id or URL-escaped path
	http      *http.Client
	logger    *zap.SugaredLogger

	mappingFile string
	mapping     map[string]string // telegram username -> gitlab username or id
}

// New builds a client. An empty token or project id yields a disabled client:
// every call reports failure without touching the network.
func New(baseURL, token, projectID, mappingFile string, logger *zap.SugaredLogger) *Client {
	if strings.Contains(projectID, "/") {
		projectID = url.PathEscape(projectID)
	}

	return &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		token:       token,
		projectID:   projectID,
		http:        &http.Client{Timeout: requestTimeout},
		logger:      logger,
		mappingFile: mappingFile,
	}
}

// Enabled reports whether the tracker integration is configured.
func (c *Client) Enabled() bool {
	return c.token != "" && c.projectID != ""
}

func (c *Client) apiURL(path string) string {
	return c.baseURL + "/api/v4" + path
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reqBody *bytes.Buffer
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reqBody = bytes.NewBuffer(buf)
	} else {
		reqBody = &bytes.Buffer{}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.apiURL(path), reqBody)
	if err != nil {
		return err
	}
	req.Header.Set("Private-Token", c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return errors.Errorf("gitlab returned %s for %s %s", resp.Status, method, path)
	}

	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

// CreateIssue opens an issue and returns its reference, or nil on failure.
func (c *Client) CreateIssue(ctx context.Context, title, description string, assigneeID int64, labels []string, due *time.Time) (*Issue, error) {
	if !c.Enabled() {
		return nil, errors.New("gitlab integration is not configured")
	}

	payload := map[string]any{
		"title":       title,
		"description": description,
	}
	if assigneeID > 0 {
		payload["assignee_ids"] = []int64{assigneeID}
	}
	if len(labels) > 0 {
		payload["labels"] = strings.Join(labels, ",")
	}
	if due != nil {
		payload["due_date"] = due.Format("2006-01-02")
	}

	var issue Issue
	err := c.do(ctx, http.MethodPost, "/projects/"+c.projectID+"/issues", payload, &issue)
	if err != nil {
		c.logger.Errorw("failed creating issue", "title", title, "err", err)
		return nil, err
	}
	return &issue, nil
}

// CloseIssue closes the issue with the given iid.
func (c *Client) CloseIssue(ctx context.Context, iid int64) error {
	if !c.Enabled() {
		return errors.New("gitlab integration is not configured")
	}

	payload := map[string]any{"state_event": "close"}
	err := c.do(ctx, http.MethodPut, fmt.Sprintf("/projects/%s/issues/%d", c.projectID, iid), payload, nil)
	if err != nil {
		c.logger.Errorw("failed closing issue", "iid", iid, "err", err)
	}
	return err
}

// IssuesByIIDs fetches the current state of the given issues in one call.
func (c *Client) IssuesByIIDs(ctx context.Context, iids []int64) ([]Issue, error) {
	if !c.Enabled() {
		return nil, errors.New("gitlab integration is not configured")
	}
	if len(iids) == 0 {
		return nil, nil
	}

	q := make(url.Values)
	for _, iid := range iids {
		q.Add("iids[]", fmt.Sprint(iid))
	}

	var issues []Issue
	err := c.do(ctx, http.MethodGet, "/projects/"+c.projectID+"/issues?"+q.Encode(), nil, &issues)
	if err != nil {
		return nil, err
	}
	return issues, nil
}

// UserID maps a Telegram username to a GitLab user id via the mapping file,
// resolving usernames through the /users endpoint when needed. Returns 0 when
// no mapping exists.
func (c *Client) UserID(ctx context.Context, tgUsername string) int64 {
	mapped, ok := c.Username(tgUsername)
	if !ok {
		return 0
	}

	// mapping may hold the numeric id directly
	var id int64
	if _, err := fmt.Sscanf(mapped, "%d", &id); err == nil && fmt.Sprint(id) == mapped {
		return id
	}

	var users []struct {
		ID int64 `json:"id"`
	}
	err := c.do(ctx, http.MethodGet, "/users?username="+url.QueryEscape(mapped), nil, &users)
	if err != nil || len(users) == 0 {
		c.logger.Warnw("failed resolving gitlab user", "username", mapped, "err", err)
		return 0
	}
	return users[0].ID
}

// Username maps a Telegram username to its GitLab counterpart.
func (c *Client) Username(tgUsername string) (string, bool) {
	if c.mapping == nil {
		c.mapping = loadMapping(c.mappingFile, c.logger)
	}

	name, ok := c.mapping[strings.TrimPrefix(tgUsername, "@")]
	return name, ok && name != ""
}

func loadMapping(file string, logger *zap.SugaredLogger) map[string]string {
	mapping := map[string]string{}
	if file == "" {
		return mapping
	}

	raw, err := os.ReadFile(file)
	if err != nil {
		logger.Warnw("user mapping file not readable, issue assignment disabled", "file", file, "err", err)
		return mapping
	}

	if err := json.Unmarshal(raw, &mapping); err != nil {
		logger.Errorw("malformed user mapping file", "file", file, "err", err)
	}
	return mapping
}
