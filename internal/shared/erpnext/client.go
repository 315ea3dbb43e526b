// Package erpnext ERPNext REST 接口的最小客户端，只读取物料主数据
package erpnext

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ErrNotFound 物料在 ERPNext 中不存在
var ErrNotFound = errors.New("erpnext: not found")

// Client ERPNext 客户端，使用 token 认证
type Client struct {
	baseURL   string
	apiKey    string
	apiSecret string
	http      *http.Client
}

func NewClient(baseURL, apiKey, apiSecret string) *Client {
	return &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		apiKey:    apiKey,
		apiSecret: apiSecret,
		http:      &http.Client{Timeout: 15 * time.Second},
	}
}

func (c *Client) setAuthHeader(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("Authorization", "token "+c.apiKey+":"+c.apiSecret)
	}
	req.Header.Set("Accept", "application/json")
}

// Item ERPNext 物料
type Item struct {
	ItemCode      string  `json:"item_code"`
	ItemName      string  `json:"item_name"`
	ItemGroup     string  `json:"item_group"`
	StockUOM      string  `json:"stock_uom"`
	ValuationRate float64 `json:"valuation_rate"`
	WeightPerUnit float64 `json:"weight_per_unit"`
	Disabled      int     `json:"disabled"`
}

type itemResponse struct {
	Data Item `json:"data"`
}

// GetItem 读取物料；不存在或已停用返回 ErrNotFound
func (c *Client) GetItem(ctx context.Context, code string) (*Item, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, fmt.Errorf("item code 为空")
	}
	endpoint := c.baseURL + "/api/resource/Item/" + url.PathEscape(code)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	c.setAuthHeader(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("erpnext item %s: %w", code, err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512*1024))
	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%w: item %s", ErrNotFound, code)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("erpnext item http %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var out itemResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("erpnext item json 解析失败: %w", err)
	}
	if out.Data.Disabled == 1 {
		return nil, fmt.Errorf("%w: item %s 已停用", ErrNotFound, code)
	}
	if strings.TrimSpace(out.Data.ItemCode) == "" {
		out.Data.ItemCode = code
	}
	return &out.Data, nil
}
