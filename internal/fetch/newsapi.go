package fetch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"

	"github.com/abelbrown/newsfeed/internal/model"
)

// Default NewsAPI settings.
const (
	DefaultBaseURL  = "https://newsapi.org"
	DefaultPageSize = 20
	DefaultLanguage = "en"
	DefaultTimeout  = 30 * time.Second
)

// NewsAPIConfig configures the NewsAPI loader.
type NewsAPIConfig struct {
	APIKey            string
	BaseURL           string
	PageSize          int
	Language          string
	RequestsPerSecond float64 // <= 0 disables limiting
	Timeout           time.Duration
}

// NewsAPI loads pages from the newsapi.org v2 endpoints.
type NewsAPI struct {
	client   *resty.Client
	limiter  *rate.Limiter
	pageSize int
	language string
	hasKey   bool
}

// newsResponse is the body of both endpoints, success or failure.
type newsResponse struct {
	Status       string          `json:"status"`
	TotalResults int             `json:"totalResults"`
	Articles     []model.Article `json:"articles"`
	Code         string          `json:"code,omitempty"`
	Message      string          `json:"message,omitempty"`
}

// NewNewsAPI creates a NewsAPI loader. Zero fields fall back to defaults.
func NewNewsAPI(cfg NewsAPIConfig) *NewsAPI {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = DefaultPageSize
	}
	if cfg.Language == "" {
		cfg.Language = DefaultLanguage
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}

	client := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", "newsfeed/0.1 (https://github.com/abelbrown/newsfeed)")
	if cfg.APIKey != "" {
		client.SetHeader("X-Api-Key", cfg.APIKey)
	}

	return &NewsAPI{
		client:   client,
		limiter:  rate.NewLimiter(limit, 1),
		pageSize: cfg.PageSize,
		language: cfg.Language,
		hasKey:   cfg.APIKey != "",
	}
}

// Available returns true if an API key is configured.
func (n *NewsAPI) Available() bool {
	return n.hasKey
}

// Fetch retrieves one page of q.
func (n *NewsAPI) Fetch(ctx context.Context, q model.Query, key model.PageKey) (model.Page, error) {
	if !key.Valid() {
		return model.Page{}, &LoadError{Kind: Upstream, Query: q, Key: key, Err: fmt.Errorf("invalid page key %d", int(key))}
	}
	if err := q.Validate(); err != nil {
		return model.Page{}, &LoadError{Kind: Upstream, Query: q, Key: key, Err: err}
	}

	if err := n.limiter.Wait(ctx); err != nil {
		return model.Page{}, Wrap(q, key, fmt.Errorf("rate limiter wait failed: %w", err))
	}

	path, params := n.request(q, key)

	var body newsResponse
	var apiErr newsResponse
	resp, err := n.client.R().
		SetContext(ctx).
		SetQueryParams(params).
		ForceContentType("application/json").
		SetResult(&body).
		SetError(&apiErr).
		Get(path)
	if err != nil {
		if ctx.Err() != nil {
			return model.Page{}, &LoadError{Kind: KindOf(ctx.Err()), Query: q, Key: key, Err: err}
		}
		return model.Page{}, Wrap(q, key, fmt.Errorf("request failed: %w", err))
	}

	if !resp.IsSuccess() {
		return model.Page{}, &LoadError{
			Kind:   statusKind(resp.StatusCode()),
			Query:  q,
			Key:    key,
			Status: resp.StatusCode(),
			Err:    apiError(apiErr, resp),
		}
	}
	if body.Status == "error" {
		return model.Page{}, &LoadError{Kind: Upstream, Query: q, Key: key, Status: resp.StatusCode(), Err: apiError(body, resp)}
	}

	return n.page(key, body), nil
}

// request builds the endpoint path and query parameters for q.
func (n *NewsAPI) request(q model.Query, key model.PageKey) (string, map[string]string) {
	params := map[string]string{
		"page":     strconv.Itoa(int(key)),
		"pageSize": strconv.Itoa(n.pageSize),
	}
	set := func(name, v string) {
		if v != "" {
			params[name] = v
		}
	}

	switch q.Kind {
	case model.KindTopHeadlines:
		set("country", q.Country)
		set("sources", q.Sources)
		set("category", q.Category)
		return "/v2/top-headlines", params
	default:
		set("q", q.Term)
		set("from", q.From)
		set("sortBy", q.SortBy)
		set("language", n.language)
		return "/v2/everything", params
	}
}

// page converts a response body into a Page with continuation keys.
// The forward direction ends on an empty page or once totalResults is covered.
func (n *NewsAPI) page(key model.PageKey, body newsResponse) model.Page {
	p := model.Page{Items: body.Articles, PrevKey: key - 1, NextKey: key + 1}
	if key <= model.FirstPage {
		p.PrevKey = model.NoPage
	}
	if len(body.Articles) == 0 || int(key)*n.pageSize >= body.TotalResults {
		p.NextKey = model.NoPage
	}
	return p
}

// statusKind maps an HTTP status to an error kind. Throttling and server
// errors are worth retrying; other rejections are not.
func statusKind(status int) ErrorKind {
	if status == http.StatusTooManyRequests || status >= 500 {
		return Transient
	}
	return Upstream
}

func apiError(body newsResponse, resp *resty.Response) error {
	if body.Message != "" {
		return fmt.Errorf("newsapi %s: %s", body.Code, body.Message)
	}
	if resp != nil {
		return errors.New("newsapi returned " + resp.Status())
	}
	return errors.New("newsapi error")
}
