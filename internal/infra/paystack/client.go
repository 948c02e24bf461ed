// Package paystack は決済ゲートウェイ（Paystack）のHTTPSクライアント。
// 金額はすべて最小通貨単位（kobo）の整数で受け渡す。
package paystack

import (
	"bytes"
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

const (
	DefaultBaseURL = "https://api.paystack.co"
	DefaultTimeout = 15 * time.Second

	// レスポンスは大きくないので上限を決めておく
	maxResponseBytes = 1 << 20
)

var (
	// 通信エラー・タイムアウト・5xx。再試行してよい。
	ErrUnavailable = errors.New("payment gateway unavailable")
	// ゲートウェイが入力を拒否した（status:false / 4xx）
	ErrRejected = errors.New("payment gateway rejected request")
)

type Client struct {
	baseURL   string
	secretKey string
	http      *http.Client
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") }
}

func NewClient(secretKey string, timeout time.Duration, opts ...Option) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	c := &Client{
		baseURL:   DefaultBaseURL,
		secretKey: secretKey,
		http:      &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// 共通の {status, message, data} 形式
type envelope struct {
	Status  bool            `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type InitializeRequest struct {
	Email       string
	AmountMinor int64
	Currency    string
	Reference   string
	CallbackURL string
	Metadata    map[string]any

	// 分割先（空なら分割しない）
	Subaccount string
}

type InitializeResult struct {
	AuthorizationURL string `json:"authorization_url"`
	AccessCode       string `json:"access_code"`
	Reference        string `json:"reference"`
}

type initializeBody struct {
	Email       string         `json:"email"`
	Amount      int64          `json:"amount"`
	Currency    string         `json:"currency,omitempty"`
	Reference   string         `json:"reference"`
	CallbackURL string         `json:"callback_url,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	Subaccount  string         `json:"subaccount,omitempty"`
}

func (c *Client) InitializeTransaction(ctx context.Context, in InitializeRequest) (InitializeResult, error) {
	if in.AmountMinor <= 0 {
		return InitializeResult{}, fmt.Errorf("%w: amount must be positive", ErrRejected)
	}

	env, _, err := c.do(ctx, http.MethodPost, "/transaction/initialize", initializeBody{
		Email:       in.Email,
		Amount:      in.AmountMinor,
		Currency:    in.Currency,
		Reference:   in.Reference,
		CallbackURL: in.CallbackURL,
		Metadata:    in.Metadata,
		Subaccount:  in.Subaccount,
	})
	if err != nil {
		return InitializeResult{}, err
	}

	var out InitializeResult
	if err := json.Unmarshal(env.Data, &out); err != nil {
		return InitializeResult{}, fmt.Errorf("%w: decode initialize data: %v", ErrUnavailable, err)
	}
	if out.Reference == "" {
		out.Reference = in.Reference
	}
	return out, nil
}

const (
	StatusSuccess  = "success"
	StatusFailed   = "failed"
	StatusReversed = "reversed"
	StatusNotFound = "not_found"
)

type VerifyResult struct {
	Reference       string
	Status          string
	AmountMinor     int64
	Currency        string
	Channel         string
	GatewayResponse string
	Metadata        json.RawMessage

	// verifyのdataそのもの（保存用）
	Raw json.RawMessage
}

func (r VerifyResult) Succeeded() bool {
	return r.Status == StatusSuccess
}

// 失敗が確定したか（abandoned/ongoing等はまだ変わりうる）
func (r VerifyResult) DefinitelyFailed() bool {
	return r.Status == StatusFailed || r.Status == StatusReversed
}

type verifyData struct {
	Reference       string          `json:"reference"`
	Status          string          `json:"status"`
	Amount          int64           `json:"amount"`
	Currency        string          `json:"currency"`
	Channel         string          `json:"channel"`
	GatewayResponse string          `json:"gateway_response"`
	Metadata        json.RawMessage `json:"metadata"`
}

// VerifyTransaction はゲートウェイ側の結果を取得する。
// 決済不成立はエラーではなく Status で返す。
func (c *Client) VerifyTransaction(ctx context.Context, reference string) (VerifyResult, error) {
	if strings.TrimSpace(reference) == "" {
		return VerifyResult{}, fmt.Errorf("%w: reference required", ErrRejected)
	}

	env, raw, err := c.do(ctx, http.MethodGet, "/transaction/verify/"+url.PathEscape(reference), nil)
	if errors.Is(err, ErrRejected) && env != nil {
		//存在しないreferenceなど
		return VerifyResult{
			Reference:       reference,
			Status:          StatusNotFound,
			GatewayResponse: env.Message,
			Raw:             raw,
		}, nil
	}
	if err != nil {
		return VerifyResult{}, err
	}

	var d verifyData
	if err := json.Unmarshal(env.Data, &d); err != nil {
		return VerifyResult{}, fmt.Errorf("%w: decode verify data: %v", ErrUnavailable, err)
	}
	if d.Reference == "" {
		d.Reference = reference
	}

	return VerifyResult{
		Reference:       d.Reference,
		Status:          strings.ToLower(d.Status),
		AmountMinor:     d.Amount,
		Currency:        d.Currency,
		Channel:         d.Channel,
		GatewayResponse: d.GatewayResponse,
		Metadata:        d.Metadata,
		Raw:             env.Data,
	}, nil
}

type SubaccountRequest struct {
	BusinessName     string
	BankCode         string
	AccountNumber    string
	PercentageCharge float64
	Description      string
}

type subaccountBody struct {
	BusinessName     string  `json:"business_name"`
	BankCode         string  `json:"bank_code"`
	AccountNumber    string  `json:"account_number"`
	PercentageCharge float64 `json:"percentage_charge"`
	Description      string  `json:"description,omitempty"`
}

func (c *Client) CreateSubaccount(ctx context.Context, in SubaccountRequest) (string, error) {
	env, _, err := c.do(ctx, http.MethodPost, "/subaccount", subaccountBody(in))
	if err != nil {
		return "", err
	}

	var d struct {
		SubaccountCode string `json:"subaccount_code"`
	}
	if err := json.Unmarshal(env.Data, &d); err != nil {
		return "", fmt.Errorf("%w: decode subaccount data: %v", ErrUnavailable, err)
	}
	if d.SubaccountCode == "" {
		return "", fmt.Errorf("%w: empty subaccount_code", ErrUnavailable)
	}
	return d.SubaccountCode, nil
}

// do は1回のAPI呼び出し。
// 4xx/status:false のときも envelope を返す（メッセージを使うため）。
func (c *Client) do(ctx context.Context, method, path string, body any) (*envelope, json.RawMessage, error) {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, nil, fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, nil, fmt.Errorf("%w: read response: %v", ErrUnavailable, err)
	}

	if resp.StatusCode >= 500 {
		return nil, raw, fmt.Errorf("%w: http %d", ErrUnavailable, resp.StatusCode)
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, raw, fmt.Errorf("%w: decode response (http %d): %v", ErrUnavailable, resp.StatusCode, err)
	}

	if resp.StatusCode >= 400 || !env.Status {
		msg := env.Message
		if msg == "" {
			msg = fmt.Sprintf("http %d", resp.StatusCode)
		}
		return &env, raw, fmt.Errorf("%w: %s", ErrRejected, msg)
	}
	return &env, raw, nil
}
