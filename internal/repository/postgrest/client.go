package postgrest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"creatively/internal/auth"
	"creatively/internal/logger"
	repo "creatively/internal/repository"

	"go.uber.org/zap"
)

// Client ходит в REST-интерфейс облачного бэкенда (/rest/v1).
type Client struct {
	baseURL    string
	apiKey     string
	serviceKey string
	httpClient *http.Client
}

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.httpClient = c }
}

// WithServiceKey используется, когда в запросе нет токена пользователя.
func WithServiceKey(key string) Option {
	return func(cl *Client) { cl.serviceKey = key }
}

func New(baseURL, apiKey string, timeout time.Duration, opts ...Option) *Client {
	if !strings.HasPrefix(baseURL, "http") {
		baseURL = "https://" + baseURL
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.apiKey == "" {
		c.apiKey = c.serviceKey
	}
	return c
}

func (c *Client) Close() {
	c.httpClient.CloseIdleConnections()
}

func (c *Client) HealthCheck(ctx context.Context) error {
	_, err := c.do(ctx, http.MethodGet, repo.Profiles, "select=id&limit=1", nil, nil)
	if err != nil && !repo.IsRelationMissing(err) {
		return fmt.Errorf("проверка соединения: %w", err)
	}
	return nil
}

func (c *Client) Select(ctx context.Context, q *repo.Query) ([]repo.Row, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	values := url.Values{}
	if len(q.Columns) > 0 {
		values.Set("select", strings.Join(q.Columns, ","))
	} else {
		values.Set("select", "*")
	}
	encodeFilters(values, q.Filters)
	switch len(q.Or) {
	case 0:
	case 1:
		values.Set("or", "("+joinGroup(q.Or[0])+")")
	default:
		// несколько or-групп объединяются через and=(or(...),or(...))
		groups := make([]string, len(q.Or))
		for i, g := range q.Or {
			groups[i] = "or(" + joinGroup(g) + ")"
		}
		values.Set("and", "("+strings.Join(groups, ",")+")")
	}
	if len(q.Order) > 0 {
		parts := make([]string, 0, len(q.Order))
		for _, o := range q.Order {
			dir := "asc"
			if o.Desc {
				dir = "desc"
			}
			parts = append(parts, o.Column+"."+dir)
		}
		values.Set("order", strings.Join(parts, ","))
	}
	if q.Limit > 0 {
		values.Set("limit", strconv.Itoa(q.Limit))
	}
	return c.do(ctx, http.MethodGet, q.Resource, values.Encode(), nil, nil)
}

func (c *Client) Insert(ctx context.Context, resource repo.Resource, rows ...map[string]any) ([]repo.Row, error) {
	if len(rows) == 0 {
		return []repo.Row{}, nil
	}
	return c.do(ctx, http.MethodPost, resource, "", rows, nil)
}

func (c *Client) Update(ctx context.Context, resource repo.Resource, patch map[string]any, filters ...repo.Filter) ([]repo.Row, error) {
	if len(filters) == 0 {
		return nil, repo.ErrEmptyFilter
	}
	if err := (&repo.Query{Resource: resource, Filters: filters}).Validate(); err != nil {
		return nil, err
	}
	values := url.Values{}
	encodeFilters(values, filters)
	return c.do(ctx, http.MethodPatch, resource, values.Encode(), patch, nil)
}

func (c *Client) Delete(ctx context.Context, resource repo.Resource, filters ...repo.Filter) (int, error) {
	if len(filters) == 0 {
		return 0, repo.ErrEmptyFilter
	}
	if err := (&repo.Query{Resource: resource, Filters: filters}).Validate(); err != nil {
		return 0, err
	}
	values := url.Values{}
	encodeFilters(values, filters)
	rows, err := c.do(ctx, http.MethodDelete, resource, values.Encode(), nil, nil)
	if err != nil {
		return 0, err
	}
	return len(rows), nil
}

func (c *Client) do(ctx context.Context, method string, resource repo.Resource, rawQuery string, body any, headers map[string]string) ([]repo.Row, error) {
	start := time.Now()

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("кодирование тела запроса: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	endpoint := c.baseURL + "/rest/v1/" + string(resource)
	if rawQuery != "" {
		endpoint += "?" + rawQuery
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reqBody)
	if err != nil {
		return nil, fmt.Errorf("создание запроса: %w", err)
	}

	token := c.serviceKey
	if id, ok := auth.FromContext(ctx); ok && id.AccessToken != "" {
		token = id.AccessToken
	}
	if token == "" {
		token = c.apiKey
	}
	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if method != http.MethodGet {
		req.Header.Set("Prefer", "return=representation")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		logger.Error("Repository: Ошибка запроса к backend", err,
			zap.String("method", method),
			zap.String("resource", string(resource)))
		return nil, fmt.Errorf("запрос %s %s: %w", method, resource, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("чтение ответа: %w", err)
	}

	if time.Since(start) > 500*time.Millisecond {
		logger.Warn("Repository: Медленный запрос",
			zap.String("method", method),
			zap.String("resource", string(resource)),
			zap.Duration("ms", time.Since(start)))
	}

	if resp.StatusCode >= 400 {
		return nil, parseError(resource, opName(method), resp.StatusCode, respBody)
	}

	if len(bytes.TrimSpace(respBody)) == 0 {
		return []repo.Row{}, nil
	}
	var rows []repo.Row
	if err := json.Unmarshal(respBody, &rows); err != nil {
		// одиночный объект вместо массива
		var single json.RawMessage
		if err2 := json.Unmarshal(respBody, &single); err2 != nil {
			return nil, fmt.Errorf("разбор ответа %s: %w", resource, err)
		}
		rows = []repo.Row{single}
	}
	return rows, nil
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details"`
	Hint    any    `json:"hint"`
}

func parseError(resource repo.Resource, op string, status int, body []byte) error {
	e := &repo.Error{Resource: resource, Op: op, Status: status}
	var eb errorBody
	if err := json.Unmarshal(body, &eb); err == nil && (eb.Message != "" || eb.Code != "") {
		e.Code = eb.Code
		e.Message = eb.Message
		e.Details = stringify(eb.Details)
		e.Hint = stringify(eb.Hint)
		return e
	}
	e.Message = strings.TrimSpace(string(body))
	if e.Message == "" {
		e.Message = http.StatusText(status)
	}
	return e
}

func stringify(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	default:
		b, _ := json.Marshal(x)
		return string(b)
	}
}

func opName(method string) string {
	switch method {
	case http.MethodGet:
		return "select"
	case http.MethodPost:
		return "insert"
	case http.MethodPatch:
		return "update"
	case http.MethodDelete:
		return "delete"
	}
	return strings.ToLower(method)
}

func encodeFilters(values url.Values, filters []repo.Filter) {
	for _, f := range filters {
		values.Add(f.Column, operand(f, false))
	}
}

func joinGroup(filters []repo.Filter) string {
	parts := make([]string, 0, len(filters))
	for _, f := range filters {
		parts = append(parts, f.Column+"."+operand(f, true))
	}
	return strings.Join(parts, ",")
}

// operand записывает правую часть в синтаксисе PostgREST, например "eq.5".
// Внутри групп or=(...) значения кавычатся, на верхнем уровне нет.
func operand(f repo.Filter, nested bool) string {
	value := func(s string) string {
		if nested {
			return quote(s)
		}
		return s
	}
	switch f.Op {
	case repo.OpIs:
		return "is.null"
	case repo.OpNotIs:
		return "not.is.null"
	case repo.OpIn:
		values, _ := f.Value.([]string)
		quoted := make([]string, len(values))
		for i, v := range values {
			quoted[i] = quote(v)
		}
		return "in.(" + strings.Join(quoted, ",") + ")"
	case repo.OpILike:
		s := fmt.Sprint(f.Value)
		// PostgREST превращает любую * в %, буквальную звёздочку ilike не передать
		if strings.Contains(s, "*") {
			return "imatch." + value(repo.LikeRegexp(s))
		}
		return "ilike." + value(likeStars(s))
	default:
		return string(f.Op) + "." + value(fmt.Sprint(f.Value))
	}
}

// likeStars заменяет неэкранированные % на *, экранированные оставляет как есть.
func likeStars(pattern string) string {
	var b strings.Builder
	escaped := false
	for _, r := range pattern {
		switch {
		case escaped:
			b.WriteRune(r)
			escaped = false
		case r == '\\':
			b.WriteRune(r)
			escaped = true
		case r == '%':
			b.WriteRune('*')
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

var quoteEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`)

// quote берёт в кавычки значения с зарезервированными символами PostgREST.
func quote(s string) string {
	if strings.ContainsAny(s, ",.:()\" \\") {
		return `"` + quoteEscaper.Replace(s) + `"`
	}
	return s
}
