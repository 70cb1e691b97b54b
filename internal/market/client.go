package market

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
	"sync"
	"time"

	"github.com/apk-analysis/hermes-go/internal/config"
	"github.com/apk-analysis/hermes-go/internal/retry"
	"github.com/sirupsen/logrus"
)

// ErrNotLoggedIn 调用接口前没有登录
var ErrNotLoggedIn = errors.New("market: not logged in")

// Doc 列表中的应用条目
type Doc struct {
	DocID     string  `json:"docid"`
	Title     string  `json:"title"`
	Creator   string  `json:"creator"`
	Price     string  `json:"price"`
	Downloads string  `json:"downloads"` // 例如 "10,000+"
	Rating    float64 `json:"rating"`
}

// Details 应用详情
type Details struct {
	DocID       string   `json:"docid"`
	VersionCode int      `json:"version_code"`
	OfferType   int      `json:"offer_type"`
	UploadDate  string   `json:"upload_date"` // 例如 "Mar 4, 2012"
	Permissions []string `json:"permissions"`
}

// Client 应用市场接口
type Client interface {
	Login(ctx context.Context) error
	Categories(ctx context.Context) ([]string, error)
	Subcategories(ctx context.Context, category string) ([]string, error)
	List(ctx context.Context, category, subcategory string, limit, offset int) ([]Doc, error)
	Details(ctx context.Context, docID string) (*Details, error)
	Download(ctx context.Context, docID string, versionCode, offerType int) (io.ReadCloser, error)
}

// HTTPClient 通过 JSON 网关访问应用市场
type HTTPClient struct {
	baseURL    string
	cfg        config.MarketConfig
	httpClient *http.Client
	logger     *logrus.Logger

	mu    sync.RWMutex
	token string
}

// NewHTTPClient 创建市场客户端；配置了 token 时无需再登录
func NewHTTPClient(cfg config.MarketConfig, logger *logrus.Logger) *HTTPClient {
	timeout := time.Duration(cfg.Timeout) * time.Second
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	return &HTTPClient{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		cfg:     cfg,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
		token:  cfg.Token,
	}
}

type loginRequest struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	AndroidID string `json:"android_id"`
}

type loginResponse struct {
	Token string `json:"token"`
}

// Login 使用邮箱和密码换取 token；已有 token 时直接返回
func (c *HTTPClient) Login(ctx context.Context) error {
	if c.currentToken() != "" {
		return nil
	}
	if c.cfg.Email == "" || c.cfg.Password == "" {
		return retry.NewNonRetryableError(errors.New("market: missing credentials"))
	}

	body, err := json.Marshal(loginRequest{
		Email:     c.cfg.Email,
		Password:  c.cfg.Password,
		AndroidID: c.cfg.AndroidID,
	})
	if err != nil {
		return err
	}

	var resp loginResponse
	if err := c.doJSON(ctx, http.MethodPost, "/auth/login", nil, bytes.NewReader(body), &resp, false); err != nil {
		return fmt.Errorf("login: %w", err)
	}
	if resp.Token == "" {
		return retry.NewNonRetryableError(errors.New("login: empty token in response"))
	}

	c.mu.Lock()
	c.token = resp.Token
	c.mu.Unlock()

	c.logger.WithField("email", c.cfg.Email).Info("Logged in to market")
	return nil
}

type browseResponse struct {
	Categories []string `json:"categories"`
}

type listResponse struct {
	Docs []Doc `json:"docs"`
}

func (c *HTTPClient) Categories(ctx context.Context) ([]string, error) {
	var resp browseResponse
	if err := c.doJSON(ctx, http.MethodGet, "/browse", nil, nil, &resp, true); err != nil {
		return nil, fmt.Errorf("browse categories: %w", err)
	}
	return resp.Categories, nil
}

// Subcategories 子分类即分类列表中各条目的 docid
func (c *HTTPClient) Subcategories(ctx context.Context, category string) ([]string, error) {
	var resp listResponse
	query := url.Values{"cat": {category}}
	if err := c.doJSON(ctx, http.MethodGet, "/list", query, nil, &resp, true); err != nil {
		return nil, fmt.Errorf("list subcategories of %s: %w", category, err)
	}

	ids := make([]string, 0, len(resp.Docs))
	for _, d := range resp.Docs {
		ids = append(ids, d.DocID)
	}
	return ids, nil
}

func (c *HTTPClient) List(ctx context.Context, category, subcategory string, limit, offset int) ([]Doc, error) {
	query := url.Values{
		"cat": {category},
		"ctr": {subcategory},
		"n":   {strconv.Itoa(limit)},
	}
	if offset > 0 {
		query.Set("o", strconv.Itoa(offset))
	}

	var resp listResponse
	if err := c.doJSON(ctx, http.MethodGet, "/list", query, nil, &resp, true); err != nil {
		return nil, fmt.Errorf("list %s/%s: %w", category, subcategory, err)
	}
	return resp.Docs, nil
}

func (c *HTTPClient) Details(ctx context.Context, docID string) (*Details, error) {
	var d Details
	if err := c.doJSON(ctx, http.MethodGet, "/details", url.Values{"doc": {docID}}, nil, &d, true); err != nil {
		return nil, fmt.Errorf("details %s: %w", docID, err)
	}
	if d.DocID == "" {
		d.DocID = docID
	}
	return &d, nil
}

// Download 返回 APK 数据流，调用方负责关闭
func (c *HTTPClient) Download(ctx context.Context, docID string, versionCode, offerType int) (io.ReadCloser, error) {
	query := url.Values{
		"doc": {docID},
		"vc":  {strconv.Itoa(versionCode)},
		"ot":  {strconv.Itoa(offerType)},
	}

	resp, err := c.do(ctx, http.MethodGet, "/download", query, nil, true)
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", docID, err)
	}
	return resp.Body, nil
}

func (c *HTTPClient) currentToken() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

func (c *HTTPClient) doJSON(ctx context.Context, method, path string, query url.Values, body io.Reader, out interface{}, auth bool) error {
	resp, err := c.do(ctx, method, path, query, body, auth)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return retry.NewNonRetryableError(fmt.Errorf("decode response: %w", err))
	}
	return nil
}

// do 发送请求；非 2xx 响应会被关闭并按状态码分类为可重试或不可重试错误
func (c *HTTPClient) do(ctx context.Context, method, path string, query url.Values, body io.Reader, auth bool) (*http.Response, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, fmt.Errorf("create request failed: %w", err)
	}

	req.Header.Set("User-Agent", "hermes/1.0")
	if c.cfg.AndroidID != "" {
		req.Header.Set("X-Android-ID", c.cfg.AndroidID)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if auth {
		token := c.currentToken()
		if token == "" {
			return nil, retry.NewNonRetryableError(ErrNotLoggedIn)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		resp.Body.Close()
		c.logger.WithFields(logrus.Fields{
			"path":   path,
			"status": resp.StatusCode,
		}).Debug("Market returned error status")
		return nil, retry.FromStatus(resp.StatusCode,
			fmt.Errorf("market returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg))))
	}

	return resp, nil
}
