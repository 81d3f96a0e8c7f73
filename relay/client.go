package relay

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"time"

	"github.com/michaelpento.lv/bracketbot/safe"
	"github.com/michaelpento.lv/bracketbot/types"
	"github.com/michaelpento.lv/bracketbot/utils/metrics"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	contentTypeJSON = "application/json"
	serviceName     = "relay"
	notFoundDetail  = "Not found."
	defaultAttempts = 3
)

// ErrMalformedResponse is returned when the transaction service answers with
// an unexpected body
var ErrMalformedResponse = errors.New("failed to decode transaction service response")

// GasEstimator returns the safeTxGas for a Safe transaction
type GasEstimator interface {
	EstimateSafeTxGas(ctx context.Context, safe common.Address, tx types.Transaction) (uint64, error)
}

// Config configures the relay client
type Config struct {
	Network           string
	BaseURL           string
	Timeout           time.Duration
	RequestsPerSecond float64
	Burst             int
	// Attempts bounds the tries of idempotent requests
	Attempts   int
	RetryDelay time.Duration
	DryRun     bool
}

// Client proposes master Safe transactions to the Safe transaction service,
// where the remaining owners confirm and execute them
type Client struct {
	httpClient *http.Client
	config     Config
	limiter    *rate.Limiter
	signer     *ecdsa.PrivateKey
	sender     common.Address
	backend    safe.Backend
	estimator  GasEstimator
	logger     *zap.Logger
	metrics    *metrics.Metrics
}

// NewClient creates a relay client proposing transactions signed by signer
func NewClient(cfg Config, signer *ecdsa.PrivateKey, backend safe.Backend, estimator GasEstimator, m *metrics.Metrics, logger *zap.Logger) (*Client, error) {
	if signer == nil {
		return nil, fmt.Errorf("signer key cannot be nil")
	}
	if backend == nil {
		return nil, fmt.Errorf("backend cannot be nil")
	}
	if estimator == nil {
		return nil, fmt.Errorf("gas estimator cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	if cfg.BaseURL == "" {
		if cfg.Network == "" {
			return nil, fmt.Errorf("network or base url is required")
		}
		cfg.BaseURL = TransactionServiceURL(cfg.Network)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	if cfg.Attempts <= 0 {
		cfg.Attempts = defaultAttempts
	}

	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		config:     cfg,
		limiter:    rate.NewLimiter(limit, cfg.Burst),
		signer:     signer,
		sender:     crypto.PubkeyToAddress(signer.PublicKey),
		backend:    backend,
		estimator:  estimator,
		logger:     logger,
		metrics:    m,
	}, nil
}

// TransactionServiceURL returns the transaction service API of network
func TransactionServiceURL(network string) string {
	return fmt.Sprintf("https://safe-transaction.%s.gnosis.io/api/v1", network)
}

// InterfaceURL returns the web interface page listing the pending
// transactions of safeAddress
func InterfaceURL(network string, safeAddress common.Address) string {
	prefix := ""
	if network != "mainnet" {
		prefix = network + "."
	}
	return fmt.Sprintf("https://%sgnosis-safe.io/app/#/safes/%s/transactions/", prefix, safeAddress.Hex())
}

// Sender returns the proposer address
func (c *Client) Sender() common.Address {
	return c.sender
}

// Proposal is a signed master transaction as posted to the service
type Proposal struct {
	To                      string          `json:"to"`
	Value                   string          `json:"value"`
	Data                    string          `json:"data"`
	Operation               types.Operation `json:"operation"`
	SafeTxGas               uint64          `json:"safeTxGas"`
	BaseGas                 uint64          `json:"baseGas"`
	GasPrice                string          `json:"gasPrice"`
	GasToken                common.Address  `json:"gasToken"`
	RefundReceiver          common.Address  `json:"refundReceiver"`
	Nonce                   uint64          `json:"nonce"`
	ContractTransactionHash common.Hash     `json:"contractTransactionHash"`
	Sender                  string          `json:"sender"`
	Signature               string          `json:"signature"`
}

type listResponse struct {
	Results *[]struct {
		Nonce *uint64 `json:"nonce"`
	} `json:"results"`
}

type errorResponse struct {
	Detail string `json:"detail"`
}

// FirstAvailableNonce returns the first Safe nonce not used by any proposed
// transaction, executed or pending. The on-chain nonce would overwrite
// pending proposals.
func (c *Client) FirstAvailableNonce(ctx context.Context, safeAddress common.Address) (uint64, error) {
	endpoint := fmt.Sprintf("%s/safes/%s/transactions/?ordering=-nonce&limit=1", c.config.BaseURL, safeAddress.Hex())
	status, body, attempts, err := c.getWithRetry(ctx, endpoint)
	if err != nil {
		return 0, err
	}
	if status != http.StatusOK {
		return 0, c.serviceError(attempts, fmt.Errorf("nonce request failed with status %d: %s", status, body))
	}

	var list listResponse
	if err := json.Unmarshal(body, &list); err != nil || list.Results == nil {
		return 0, c.serviceError(attempts, ErrMalformedResponse)
	}
	if len(*list.Results) == 0 {
		return 0, nil
	}
	latest := (*list.Results)[0].Nonce
	if latest == nil {
		return 0, c.serviceError(attempts, ErrMalformedResponse)
	}
	return *latest + 1, nil
}

// Prepare estimates, hashes and signs tx for the master at nonce. A nil
// nonce takes the first available one.
func (c *Client) Prepare(ctx context.Context, master common.Address, tx types.Transaction, nonce *uint64) (*Proposal, error) {
	if nonce == nil {
		first, err := c.FirstAvailableNonce(ctx, master)
		if err != nil {
			return nil, fmt.Errorf("failed to get nonce: %w", err)
		}
		nonce = &first
	}

	hash, safeTxGas, err := c.transactionHash(ctx, master, tx, *nonce)
	if err != nil {
		return nil, err
	}
	signature, err := c.sign(hash)
	if err != nil {
		return nil, err
	}

	value := "0"
	if tx.Value != nil {
		value = tx.Value.String()
	}
	return &Proposal{
		To:                      tx.To.Hex(),
		Value:                   value,
		Data:                    hexutil.Encode(tx.Data),
		Operation:               tx.Operation,
		SafeTxGas:               safeTxGas,
		BaseGas:                 0,
		GasPrice:                "0",
		Nonce:                   *nonce,
		ContractTransactionHash: hash,
		Sender:                  c.sender.Hex(),
		Signature:               hexutil.Encode(signature),
	}, nil
}

// SignAndSend signs tx and proposes it to the master's pending transactions
func (c *Client) SignAndSend(ctx context.Context, master common.Address, tx types.Transaction, nonce *uint64) (*Proposal, error) {
	proposal, err := c.Prepare(ctx, master, tx, nonce)
	if err != nil {
		return nil, err
	}
	fields := []zap.Field{
		zap.String("master", master.Hex()),
		zap.String("safeTxHash", proposal.ContractTransactionHash.Hex()),
		zap.Uint64("nonce", proposal.Nonce),
		zap.Uint64("safeTxGas", proposal.SafeTxGas),
		zap.String("sender", proposal.Sender),
		zap.String("fingerprint", safe.Fingerprint(tx)),
	}

	if c.config.DryRun {
		c.logger.Info("Dry run, not sending transaction", fields...)
		c.observe("dry_run")
		return proposal, nil
	}

	payload, err := json.Marshal(proposal)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal proposal: %w", err)
	}
	endpoint := fmt.Sprintf("%s/safes/%s/transactions/", c.config.BaseURL, master.Hex())
	c.logger.Info("Posting transaction to the Safe service", fields...)

	// not retried: a lost response may hide an accepted proposal
	status, body, err := c.do(ctx, http.MethodPost, endpoint, payload)
	if err != nil {
		c.observe("failed")
		return nil, c.serviceError(1, err)
	}
	if status < 200 || status >= 300 {
		c.observe("rejected")
		return nil, c.serviceError(1, fmt.Errorf("proposal rejected with status %d: %s", status, body))
	}

	c.observe("accepted")
	c.logger.Info("Transaction awaiting execution in the interface",
		zap.String("link", InterfaceURL(c.config.Network, master)))
	return proposal, nil
}

// TransactionExists reports whether the service knows a transaction with hash
func (c *Client) TransactionExists(ctx context.Context, hash common.Hash) (bool, error) {
	endpoint := fmt.Sprintf("%s/transactions/%s/", c.config.BaseURL, hash.Hex())
	status, body, attempts, err := c.getWithRetry(ctx, endpoint)
	if err != nil {
		return false, err
	}
	if status == http.StatusOK {
		return true, nil
	}

	var detail errorResponse
	if status == http.StatusNotFound && (json.Unmarshal(body, &detail) != nil || detail.Detail == notFoundDetail || detail.Detail == "") {
		return false, nil
	}
	return false, c.serviceError(attempts, fmt.Errorf("transaction request failed with status %d: %s", status, body))
}

// MatchesProposal reports whether tx was proposed for master at nonce. A nil
// nonce checks the most recent proposal.
func (c *Client) MatchesProposal(ctx context.Context, master common.Address, tx types.Transaction, nonce *uint64) (bool, error) {
	if nonce == nil {
		first, err := c.FirstAvailableNonce(ctx, master)
		if err != nil {
			return false, fmt.Errorf("failed to get nonce: %w", err)
		}
		if first == 0 {
			return false, nil
		}
		latest := first - 1
		nonce = &latest
	}

	hash, _, err := c.transactionHash(ctx, master, tx, *nonce)
	if err != nil {
		return false, err
	}
	exists, err := c.TransactionExists(ctx, hash)
	if err != nil {
		return false, err
	}
	if exists {
		c.logger.Info("Transaction matches a pending proposal",
			zap.Uint64("nonce", *nonce),
			zap.String("link", InterfaceURL(c.config.Network, master)))
	} else {
		c.logger.Warn("Transaction does not match the proposal in the interface",
			zap.Uint64("nonce", *nonce),
			zap.String("safeTxHash", hash.Hex()))
	}
	return exists, nil
}

func (c *Client) transactionHash(ctx context.Context, master common.Address, tx types.Transaction, nonce uint64) (common.Hash, uint64, error) {
	safeTxGas, err := c.estimator.EstimateSafeTxGas(ctx, master, tx)
	if err != nil {
		return common.Hash{}, 0, err
	}
	reader, err := safe.NewReader(c.backend, master)
	if err != nil {
		return common.Hash{}, 0, err
	}
	hash, err := reader.TransactionHash(ctx, tx, new(big.Int).SetUint64(safeTxGas), new(big.Int).SetUint64(nonce))
	if err != nil {
		return common.Hash{}, 0, fmt.Errorf("failed to get transaction hash: %w", err)
	}
	return hash, safeTxGas, nil
}

// sign produces an eth_sign signature over hash. The Safe recognises those by
// a recovery byte raised by 4.
func (c *Client) sign(hash common.Hash) ([]byte, error) {
	signature, err := crypto.Sign(accounts.TextHash(hash.Bytes()), c.signer)
	if err != nil {
		return nil, fmt.Errorf("failed to sign transaction hash: %w", err)
	}
	signature[64] += 27 + 4
	return signature, nil
}

func (c *Client) do(ctx context.Context, method, endpoint string, payload []byte) (int, []byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return 0, nil, err
	}
	if c.metrics != nil {
		defer c.metrics.ObserveCall(serviceName, time.Now())
	}

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Add("Accept", contentTypeJSON)
	if payload != nil {
		req.Header.Add("Content-Type", contentTypeJSON)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to read response: %w", err)
	}
	return resp.StatusCode, respBody, nil
}

// getWithRetry retries a GET on transport failures, 429 and 5xx answers. It
// returns the number of attempts made along with the last answer.
func (c *Client) getWithRetry(ctx context.Context, endpoint string) (int, []byte, int, error) {
	var lastErr error
	attempt := 1
	for ; attempt <= c.config.Attempts; attempt++ {
		status, body, err := c.do(ctx, http.MethodGet, endpoint, nil)
		if err == nil && !retryable(status) {
			return status, body, attempt, nil
		}
		if err == nil {
			err = fmt.Errorf("request failed with status %d: %s", status, body)
		}
		lastErr = err
		c.logger.Debug("Transaction service request failed",
			zap.String("endpoint", endpoint),
			zap.Int("attempt", attempt),
			zap.Error(err))
		if ctx.Err() != nil {
			break
		}
		if attempt < c.config.Attempts && c.config.RetryDelay > 0 {
			select {
			case <-ctx.Done():
			case <-time.After(c.config.RetryDelay):
			}
		}
	}
	if attempt > c.config.Attempts {
		attempt = c.config.Attempts
	}
	return 0, nil, attempt, c.serviceError(attempt, lastErr)
}

func retryable(status int) bool {
	return status == http.StatusTooManyRequests || status >= http.StatusInternalServerError
}

func (c *Client) serviceError(attempts int, err error) error {
	return &types.ExternalServiceError{Service: serviceName, Attempts: attempts, Err: err}
}

func (c *Client) observe(outcome string) {
	if c.metrics != nil {
		c.metrics.RelaySubmissions.WithLabelValues(outcome).Inc()
	}
}
