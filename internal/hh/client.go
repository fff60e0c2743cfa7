// Package hh is the job-board gateway: a client for the hh.ru API.
package hh

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	"golang.org/x/time/rate"

	"autoapply/internal/auth"
)

var (
	// ErrTransient covers network failures, rate limiting and 5xx responses. Retry with backoff.
	ErrTransient = errors.New("transient job board error")
	// ErrPermanent covers 4xx rejections. Do not retry.
	ErrPermanent = errors.New("permanent job board error")
	// ErrAlreadyApplied means the board already holds an application for the pair.
	ErrAlreadyApplied = errors.New("already applied")
)

const maxBody = 5 * 1024 * 1024

// HTTPClient is the interface for performing HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Credentials returns a bearer token for a user.
type Credentials interface {
	Token(ctx context.Context, userID int64) (string, error)
}

// Client talks to the hh.ru API on behalf of users.
type Client struct {
	http      HTTPClient
	creds     Credentials
	baseURL   string
	userAgent string
	limiter   *rate.Limiter
}

// New creates a Client. limiter is shared by all requests.
func New(client HTTPClient, creds Credentials, baseURL, userAgent string, limiter *rate.Limiter) *Client {
	return &Client{
		http:      client,
		creds:     creds,
		baseURL:   strings.TrimRight(baseURL, "/"),
		userAgent: userAgent,
		limiter:   limiter,
	}
}

// SearchPostings returns up to pageSize postings similar to the résumé and
// matching query, in the board's relevance order.
func (c *Client) SearchPostings(ctx context.Context, userID int64, query, resumeID string, pageSize int) ([]Posting, error) {
	q := url.Values{}
	q.Set("text", query)
	q.Set("per_page", strconv.Itoa(pageSize))
	q.Set("page", "0")
	q.Set("order_by", "relevance")

	var page struct {
		Items []Posting `json:"items"`
	}
	path := "/resumes/" + url.PathEscape(resumeID) + "/similar_vacancies?" + q.Encode()
	if err := c.getJSON(ctx, userID, path, &page); err != nil {
		return nil, errors.Wrap(err, "search postings")
	}
	return page.Items, nil
}

// GetPosting returns posting detail.
func (c *Client) GetPosting(ctx context.Context, userID int64, id string) (*PostingDetail, error) {
	var p PostingDetail
	if err := c.getJSON(ctx, userID, "/vacancies/"+url.PathEscape(id), &p); err != nil {
		return nil, errors.Wrap(err, "get posting")
	}
	return &p, nil
}

// GetResume returns résumé detail.
func (c *Client) GetResume(ctx context.Context, userID int64, id string) (*ResumeDetail, error) {
	var r ResumeDetail
	if err := c.getJSON(ctx, userID, "/resumes/"+url.PathEscape(id), &r); err != nil {
		return nil, errors.Wrap(err, "get resume")
	}
	return &r, nil
}

// SubmitApplication sends an application with a cover letter.
func (c *Client) SubmitApplication(ctx context.Context, userID int64, resumeID, postingID, message string) error {
	form := url.Values{}
	form.Set("vacancy_id", postingID)
	form.Set("resume_id", resumeID)
	form.Set("message", message)

	resp, err := c.do(ctx, userID, http.MethodPost, "/negotiations", strings.NewReader(form.Encode()),
		"application/x-www-form-urlencoded")
	if err != nil {
		return errors.Wrap(err, "submit application")
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBody))
	return nil
}

// HasApplied reports whether the user's application history contains the pair.
func (c *Client) HasApplied(ctx context.Context, userID int64, resumeID, postingID string) (bool, error) {
	q := url.Values{}
	q.Set("vacancy_id", postingID)
	q.Set("per_page", "100")

	var page struct {
		Items []struct {
			Vacancy struct {
				ID string `json:"id"`
			} `json:"vacancy"`
			Resume struct {
				ID string `json:"id"`
			} `json:"resume"`
		} `json:"items"`
	}
	if err := c.getJSON(ctx, userID, "/negotiations?"+q.Encode(), &page); err != nil {
		return false, errors.Wrap(err, "list negotiations")
	}
	for _, it := range page.Items {
		if it.Vacancy.ID == postingID && it.Resume.ID == resumeID {
			return true, nil
		}
	}
	return false, nil
}

func (c *Client) getJSON(ctx context.Context, userID int64, path string, dst any) error {
	resp, err := c.do(ctx, userID, http.MethodGet, path, nil, "")
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBody)).Decode(dst); err != nil {
		return errors.Mark(errors.Wrap(err, "decode response"), ErrPermanent)
	}
	return nil
}

func (c *Client) do(ctx context.Context, userID int64, method, path string, body io.Reader, contentType string) (*http.Response, error) {
	token, err := c.creds.Token(ctx, userID)
	if err != nil {
		return nil, err
	}
	if err := c.limiter.Wait(ctx); err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			return nil, errors.Wrap(err, "rate limit wait")
		}
		// Wait refuses early when the deadline falls before the next token.
		return nil, errors.Mark(errors.Wrap(err, "rate limit wait"), ErrTransient)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("HH-User-Agent", c.userAgent)
	req.Header.Set("Authorization", "Bearer "+token)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, errors.Wrapf(ctx.Err(), "%s %s", method, path)
		}
		return nil, errors.Mark(errors.Wrapf(err, "%s %s", method, path), ErrTransient)
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}

	defer func() { _ = resp.Body.Close() }()
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	return nil, classify(method, path, resp.StatusCode, raw)
}

// classify maps an error response onto the error taxonomy.
func classify(method, path string, status int, body []byte) error {
	var apiErr struct {
		Errors []struct {
			Type  string `json:"type"`
			Value string `json:"value"`
		} `json:"errors"`
	}
	_ = json.Unmarshal(body, &apiErr)

	var values []string
	for _, e := range apiErr.Errors {
		values = append(values, e.Value)
	}
	err := errors.Newf("%s %s: status %d: %s", method, path, status, strings.Join(values, ","))

	switch {
	case status == http.StatusUnauthorized:
		return errors.Mark(err, auth.ErrAuthorizationRequired)
	case status == http.StatusForbidden && contains(values, "already_applied"):
		return errors.Mark(err, ErrAlreadyApplied)
	case status == http.StatusTooManyRequests, status >= 500:
		return errors.Mark(err, ErrTransient)
	default:
		return errors.Mark(err, ErrPermanent)
	}
}

func contains(values []string, v string) bool {
	for _, s := range values {
		if s == v {
			return true
		}
	}
	return false
}
