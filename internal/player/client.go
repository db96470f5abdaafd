package player

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Catalog はトラック一覧と楽曲データの取得元
type Catalog interface {
	ListTracks(ctx context.Context, dir string) ([]string, error)
	FetchTrack(ctx context.Context, dir, name string) ([]byte, error)
}

// StatusError はサーバーが成功以外のステータスを返したことを表す
type StatusError struct {
	URL    string
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: ステータス %d: %s", e.URL, e.Status, e.Body)
}

// Client はファイルサーバーのHTTPクライアント
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient は新しいClientを作成する。httpClient が nil ならデフォルトを使う
func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 5 * time.Minute}
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
	}
}

// ListTracks はディレクトリ内の音声ファイル名を取得する
func (c *Client) ListTracks(ctx context.Context, dir string) ([]string, error) {
	body, err := c.get(ctx, "/list-audio/"+escapeSegment(dir))
	if err != nil {
		return nil, err
	}

	var names []string
	if err := json.Unmarshal(body, &names); err != nil {
		return nil, fmt.Errorf("トラック一覧の解析に失敗: %w", err)
	}
	return names, nil
}

// FetchTrack は楽曲ファイル全体を取得する
func (c *Client) FetchTrack(ctx context.Context, dir, name string) ([]byte, error) {
	return c.get(ctx, "/song/"+escapeSegment(dir+"/"+name))
}

func (c *Client) get(ctx context.Context, path string) ([]byte, error) {
	target := c.baseURL + path
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("リクエストの作成に失敗: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s の取得に失敗: %w", target, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s の読み込みに失敗: %w", target, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{URL: target, Status: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	return body, nil
}

// escapeSegment は "/" を含む名前を1つのパスセグメントとしてエスケープする
func escapeSegment(s string) string {
	return url.PathEscape(s)
}
