// Package gateway is a chain.Adapter talking to an escrow gateway: a small
// REST service in front of a node that signs and submits escrow
// transactions and serves the contract event log.
package gateway

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
	"time"

	"github.com/40acres/htlc-bridge/chain"
	"github.com/40acres/htlc-bridge/database/models"
	"github.com/lightningnetwork/lnd/lntypes"
	"github.com/shopspring/decimal"
)

var ErrUnexpectedStatus = errors.New("unexpected status code")

const (
	defaultPollWait  = 20 * time.Second
	defaultPageLimit = 100
	idleDelay        = 500 * time.Millisecond
)

// Error codes returned by the gateway in 409 responses.
var conflictCodes = map[string]error{
	"secret_mismatch":        chain.ErrSecretMismatch,
	"already_withdrawn":      chain.ErrAlreadyWithdrawn,
	"already_refunded":       chain.ErrAlreadyRefunded,
	"timelock_not_expired":   chain.ErrTimelockNotExpired,
	"insufficient_liquidity": chain.ErrInsufficientLiquidity,
}

type Option func(*Gateway)

func WithHTTPClient(client *http.Client) Option {
	return func(g *Gateway) {
		g.client = client
	}
}

func WithAPIKey(key string) Option {
	return func(g *Gateway) {
		g.apiKey = key
	}
}

// WithPollWait sets how long the gateway may hold an event poll open.
func WithPollWait(wait time.Duration) Option {
	return func(g *Gateway) {
		g.pollWait = wait
	}
}

type Gateway struct {
	chain    models.Chain
	baseURL  string
	contract string
	apiKey   string
	client   *http.Client
	pollWait time.Duration
}

var _ chain.Adapter = (*Gateway)(nil)

func New(c models.Chain, baseURL, contract string, options ...Option) *Gateway {
	g := &Gateway{
		chain:    c,
		baseURL:  baseURL,
		contract: contract,
		client:   &http.Client{},
		pollWait: defaultPollWait,
	}
	for _, option := range options {
		option(g)
	}

	return g
}

type createEscrowRequest struct {
	Contract    string          `json:"contract,omitempty"`
	Hashlock    string          `json:"hashlock"`
	Timelock    int64           `json:"timelock"`
	Beneficiary string          `json:"beneficiary"`
	Amount      decimal.Decimal `json:"amount"`
}

type createEscrowResponse struct {
	EscrowRef string `json:"escrowRef"`
	TxRef     string `json:"txRef"`
}

type withdrawRequest struct {
	Secret string `json:"secret"`
}

type txResponse struct {
	TxRef string `json:"txRef"`
}

type escrowResponse struct {
	EscrowRef   string          `json:"escrowRef"`
	Hashlock    string          `json:"hashlock"`
	Sender      string          `json:"sender"`
	Beneficiary string          `json:"beneficiary"`
	Amount      decimal.Decimal `json:"amount"`
	Timelock    int64           `json:"timelock"`
	State       string          `json:"state"`
	Secret      string          `json:"secret,omitempty"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type eventsResponse struct {
	Events []chain.NativeEvent `json:"events"`
}

func (g *Gateway) Chain() models.Chain {
	return g.chain
}

func (g *Gateway) CreateEscrow(ctx context.Context, req chain.EscrowRequest) (chain.EscrowReceipt, error) {
	var resp createEscrowResponse
	err := g.do(ctx, http.MethodPost, "/escrows", createEscrowRequest{
		Contract:    g.contract,
		Hashlock:    req.Hashlock.String(),
		Timelock:    req.Timelock.Unix(),
		Beneficiary: req.Beneficiary,
		Amount:      req.Amount,
	}, &resp)
	if err != nil {
		return chain.EscrowReceipt{}, err
	}

	return chain.EscrowReceipt{EscrowRef: resp.EscrowRef, TxRef: resp.TxRef}, nil
}

func (g *Gateway) Withdraw(ctx context.Context, escrowRef string, secret lntypes.Preimage) (string, error) {
	var resp txResponse
	err := g.do(ctx, http.MethodPost, "/escrows/"+url.PathEscape(escrowRef)+"/withdraw", withdrawRequest{Secret: secret.String()}, &resp)
	if err != nil {
		return "", err
	}

	return resp.TxRef, nil
}

func (g *Gateway) Refund(ctx context.Context, escrowRef string) (string, error) {
	var resp txResponse
	err := g.do(ctx, http.MethodPost, "/escrows/"+url.PathEscape(escrowRef)+"/refund", struct{}{}, &resp)
	if err != nil {
		return "", err
	}

	return resp.TxRef, nil
}

func (g *Gateway) GetEscrow(ctx context.Context, escrowRef string) (*chain.Escrow, error) {
	var resp escrowResponse
	if err := g.do(ctx, http.MethodGet, "/escrows/"+url.PathEscape(escrowRef), nil, &resp); err != nil {
		return nil, err
	}

	hashlock, err := lntypes.MakeHashFromStr(resp.Hashlock)
	if err != nil {
		return nil, fmt.Errorf("failed to parse escrow hashlock: %w", err)
	}

	escrow := &chain.Escrow{
		Ref:         resp.EscrowRef,
		Hashlock:    hashlock,
		Sender:      resp.Sender,
		Beneficiary: resp.Beneficiary,
		Amount:      resp.Amount,
		Timelock:    time.Unix(resp.Timelock, 0),
		State:       chain.EscrowState(resp.State),
	}
	if resp.Secret != "" {
		secret, err := lntypes.MakePreimageFromStr(resp.Secret)
		if err != nil {
			return nil, fmt.Errorf("failed to parse escrow secret: %w", err)
		}
		escrow.Secret = &secret
	}

	return escrow, nil
}

func (g *Gateway) EventsSince(ctx context.Context, after uint64, limit int) ([]chain.NativeEvent, error) {
	return g.events(ctx, after, limit, 0)
}

// Watch long-polls the event log.
func (g *Gateway) Watch(ctx context.Context, after uint64, sink chan<- chain.NativeEvent) error {
	for {
		events, err := g.events(ctx, after, defaultPageLimit, g.pollWait)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}

			return err
		}

		if len(events) == 0 {
			select {
			case <-time.After(idleDelay):
			case <-ctx.Done():
				return ctx.Err()
			}

			continue
		}

		for _, ev := range events {
			if ev.Sequence <= after {
				continue
			}
			select {
			case sink <- ev:
				after = ev.Sequence
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

func (g *Gateway) events(ctx context.Context, after uint64, limit int, wait time.Duration) ([]chain.NativeEvent, error) {
	query := url.Values{}
	query.Set("after", strconv.FormatUint(after, 10))
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	if wait > 0 {
		query.Set("wait", strconv.Itoa(int(wait.Seconds())))
	}

	var resp eventsResponse
	if err := g.do(ctx, http.MethodGet, "/events?"+query.Encode(), nil, &resp); err != nil {
		return nil, err
	}
	for i := range resp.Events {
		resp.Events[i].Chain = g.chain
	}

	return resp.Events, nil
}

func (g *Gateway) do(ctx context.Context, method, path string, body any, out any) error {
	req, err := g.makeRequest(ctx, method, path, body)
	if err != nil {
		return err
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return chain.Transient(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return g.statusError(resp)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode gateway response: %w", err)
	}

	return nil
}

func (g *Gateway) statusError(resp *http.Response) error {
	bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	base := fmt.Errorf("unexpected status code: %d: %w, err: %s", resp.StatusCode, ErrUnexpectedStatus, bodyBytes)

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %w", chain.ErrEscrowNotFound, base)
	case resp.StatusCode == http.StatusConflict:
		var e errorResponse
		if json.Unmarshal(bodyBytes, &e) == nil {
			if sentinel, ok := conflictCodes[e.Code]; ok {
				return fmt.Errorf("%w: %s", sentinel, e.Message)
			}
		}

		return base
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return chain.Transient(base)
	}

	return base
}

func (g *Gateway) makeRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if g.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+g.apiKey)
	}

	return req, nil
}
