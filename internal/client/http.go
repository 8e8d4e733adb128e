package client

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

	"github.com/gorilla/websocket"

	"github.com/alfredjeanlab/liveqa/internal/model"
)

// ConflictRetries is how many times a request answered with 409 Conflict is
// sent again before the client gives up.
const ConflictRetries = 3

// ErrTryAgain is returned when every attempt of a request lost a concurrent
// update race.
var ErrTryAgain = errors.New("the event is busy, please try again")

// HTTPClient implements QAClient using the liveqa HTTP/JSON REST API.
type HTTPClient struct {
	baseURL    string
	httpClient *http.Client
	dialer     *websocket.Dialer
	backoff    time.Duration
}

var _ QAClient = (*HTTPClient)(nil)

// NewHTTPClient creates a new HTTP client targeting the given base URL
// (e.g. "http://localhost:8080").
func NewHTTPClient(baseURL string) *HTTPClient {
	return &HTTPClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{},
		dialer:     websocket.DefaultDialer,
		backoff:    100 * time.Millisecond,
	}
}

// Close is a no-op for the HTTP client.
func (c *HTTPClient) Close() error { return nil }

func eventPath(token string, parts ...string) string {
	p := "/v1/events/" + url.PathEscape(token)
	for _, s := range parts {
		p += "/" + s
	}
	return p
}

// --- Events ---

func (c *HTTPClient) CreateEvent(ctx context.Context, info model.Info) (*model.Event, error) {
	var ev model.Event
	if err := c.doJSON(ctx, http.MethodPost, "/v1/events", info, &ev); err != nil {
		return nil, err
	}
	return &ev, nil
}

func (c *HTTPClient) GetEvent(ctx context.Context, token string) (*model.Event, error) {
	var ev model.Event
	if err := c.doJSON(ctx, http.MethodGet, eventPath(token), nil, &ev); err != nil {
		return nil, err
	}
	return &ev, nil
}

func (c *HTTPClient) EditEvent(ctx context.Context, token string, req *EditEventRequest) (*model.Event, error) {
	var ev model.Event
	if err := c.doJSON(ctx, http.MethodPatch, eventPath(token), req, &ev); err != nil {
		return nil, err
	}
	return &ev, nil
}

func (c *HTTPClient) SetState(ctx context.Context, token string, state model.State) (*model.Event, error) {
	var ev model.Event
	body := map[string]string{"state": string(state)}
	if err := c.doJSON(ctx, http.MethodPut, eventPath(token, "state"), body, &ev); err != nil {
		return nil, err
	}
	return &ev, nil
}

func (c *HTTPClient) DeleteEvent(ctx context.Context, token string) error {
	return c.doJSON(ctx, http.MethodDelete, eventPath(token), nil, nil)
}

func (c *HTTPClient) SetPassword(ctx context.Context, token string, password *string) error {
	body := map[string]*string{"password": password}
	return c.doJSON(ctx, http.MethodPut, eventPath(token, "password"), body, nil)
}

// --- Tags and links ---

func (c *HTTPClient) AddTag(ctx context.Context, token, name string) (*model.Tag, error) {
	var tag model.Tag
	if err := c.doJSON(ctx, http.MethodPost, eventPath(token, "tags"), map[string]string{"name": name}, &tag); err != nil {
		return nil, err
	}
	return &tag, nil
}

func (c *HTTPClient) RemoveTag(ctx context.Context, token string, id int) error {
	return c.doJSON(ctx, http.MethodDelete, eventPath(token, "tags", strconv.Itoa(id)), nil, nil)
}

func (c *HTTPClient) AddContextLink(ctx context.Context, token string, link model.ContextLink) error {
	return c.doJSON(ctx, http.MethodPost, eventPath(token, "links"), link, nil)
}

func (c *HTTPClient) RemoveContextLink(ctx context.Context, token string, index int) error {
	return c.doJSON(ctx, http.MethodDelete, eventPath(token, "links", strconv.Itoa(index)), nil, nil)
}

// --- Questions ---

func (c *HTTPClient) AddQuestion(ctx context.Context, token, text string, tag *int) (*model.Question, error) {
	body := map[string]any{"text": text}
	if tag != nil {
		body["tag"] = *tag
	}
	var q model.Question
	if err := c.doJSON(ctx, http.MethodPost, eventPath(token, "questions"), body, &q); err != nil {
		return nil, err
	}
	return &q, nil
}

func (c *HTTPClient) UpdateQuestion(ctx context.Context, token string, id int, req *UpdateQuestionRequest) (*model.Question, error) {
	var q model.Question
	if err := c.doJSON(ctx, http.MethodPatch, eventPath(token, "questions", strconv.Itoa(id)), req.body(), &q); err != nil {
		return nil, err
	}
	return &q, nil
}

func (c *HTTPClient) LikeQuestion(ctx context.Context, token string, id int) (*model.Question, error) {
	var q model.Question
	if err := c.doJSON(ctx, http.MethodPost, eventPath(token, "questions", strconv.Itoa(id), "like"), nil, &q); err != nil {
		return nil, err
	}
	return &q, nil
}

func (c *HTTPClient) UnlikeQuestion(ctx context.Context, token string, id int) (*model.Question, error) {
	var q model.Question
	if err := c.doJSON(ctx, http.MethodDelete, eventPath(token, "questions", strconv.Itoa(id), "like"), nil, &q); err != nil {
		return nil, err
	}
	return &q, nil
}

func (c *HTTPClient) DeleteQuestion(ctx context.Context, token string, id int) error {
	return c.doJSON(ctx, http.MethodDelete, eventPath(token, "questions", strconv.Itoa(id)), nil, nil)
}

// --- Live ---

func (c *HTTPClient) ViewerCount(ctx context.Context, token string) (int64, error) {
	var resp struct {
		Viewers int64 `json:"viewers"`
	}
	if err := c.doJSON(ctx, http.MethodGet, eventPath(token, "viewers"), nil, &resp); err != nil {
		return 0, err
	}
	return resp.Viewers, nil
}

// Watch opens a WebSocket to the event and calls fn for every notification
// until ctx is done or the server closes the connection.
func (c *HTTPClient) Watch(ctx context.Context, token string, fn func(Notification)) error {
	wsURL := "ws" + strings.TrimPrefix(c.baseURL, "http") + eventPath(token, "ws")
	wc, resp, err := c.dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		if resp != nil && resp.StatusCode >= 400 {
			return &APIError{StatusCode: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
		}
		return fmt.Errorf("dialing %s: %w", wsURL, err)
	}
	defer wc.Close()

	stop := context.AfterFunc(ctx, func() {
		wc.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		wc.Close()
	})
	defer stop()

	for {
		var n Notification
		if err := wc.ReadJSON(&n); err != nil {
			if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return fmt.Errorf("reading notification: %w", err)
		}
		fn(n)
	}
}

// --- Health ---

func (c *HTTPClient) Health(ctx context.Context) (*HealthResponse, error) {
	var resp HealthResponse
	if err := c.doJSON(ctx, http.MethodGet, "/v1/health", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// APIError represents an error response from the server.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server error %d: %s", e.StatusCode, e.Message)
}

// IsNotFound reports whether err is a 404 from the server.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// doJSON sends the request, retrying while the server answers 409 Conflict.
func (c *HTTPClient) doJSON(ctx context.Context, method, path string, body any, result any) error {
	var data []byte
	if body != nil {
		var err error
		if data, err = json.Marshal(body); err != nil {
			return fmt.Errorf("marshaling request body: %w", err)
		}
	}

	var err error
	for attempt := 1; attempt <= ConflictRetries; attempt++ {
		err = c.do(ctx, method, path, data, result)
		var apiErr *APIError
		if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusConflict {
			return err
		}
		if attempt == ConflictRetries {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt) * c.backoff):
		}
	}
	return fmt.Errorf("%w: %w", ErrTryAgain, err)
}

func (c *HTTPClient) do(ctx context.Context, method, path string, data []byte, result any) error {
	var bodyReader io.Reader
	if data != nil {
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	if data != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("performing request: %w", err)
	}
	defer resp.Body.Close()

	// 204 No Content: success with no body.
	if resp.StatusCode == http.StatusNoContent {
		return nil
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var errResp struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(respBody, &errResp) == nil && errResp.Error != "" {
			return &APIError{StatusCode: resp.StatusCode, Message: errResp.Error}
		}
		return &APIError{StatusCode: resp.StatusCode, Message: string(respBody)}
	}

	if result != nil {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
	}

	return nil
}
