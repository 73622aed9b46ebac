package viva

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

	"github.com/shopspring/decimal"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/simcheck/simcheck-backend/pkg/config"
	"github.com/simcheck/simcheck-backend/pkg/logger"
)

var (
	errClientIDRequired   = errors.New("viva client id is required")
	errSourceCodeRequired = errors.New("viva source code is required")

	// ErrTransactionNotFound is returned when Viva does not know a transaction id.
	ErrTransactionNotFound = errors.New("viva transaction not found")
)

// OrderRequest describes a Smart Checkout payment order.
type OrderRequest struct {
	Amount       decimal.Decimal
	CustomerTrns string
	Email        string
	FullName     string
	MerchantTrns string
}

// Order is a created payment order.
type Order struct {
	OrderCode   string
	CheckoutURL string
}

// Client talks to the Viva Wallet Smart Checkout API.
type Client struct {
	http        *http.Client
	apiURL      string
	checkoutURL string
	sourceCode  string
}

// NewClient builds an OAuth2 client-credentials client for Viva.
func NewClient(ctx context.Context, cfg config.VivaConfig, logg *logger.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.ClientID) == "" {
		return nil, errClientIDRequired
	}
	if strings.TrimSpace(cfg.SourceCode) == "" {
		return nil, errSourceCodeRequired
	}
	creds := clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     strings.TrimRight(cfg.AccountsURL, "/") + "/connect/token",
		AuthStyle:    oauth2.AuthStyleInHeader,
	}
	base := &http.Client{Timeout: 15 * time.Second}
	httpClient := creds.Client(context.WithValue(context.Background(), oauth2.HTTPClient, base))
	if logg != nil {
		logg.Info(ctx, "viva client initialized")
	}
	return &Client{
		http:        httpClient,
		apiURL:      strings.TrimRight(cfg.APIURL, "/"),
		checkoutURL: strings.TrimRight(cfg.CheckoutURL, "/"),
		sourceCode:  cfg.SourceCode,
	}, nil
}

type createOrderBody struct {
	Amount         int64        `json:"amount"`
	CustomerTrns   string       `json:"customerTrns,omitempty"`
	Customer       customerBody `json:"customer"`
	SourceCode     string       `json:"sourceCode"`
	MerchantTrns   string       `json:"merchantTrns,omitempty"`
	PaymentTimeout int          `json:"paymentTimeout,omitempty"`
}

type customerBody struct {
	Email    string `json:"email,omitempty"`
	FullName string `json:"fullName,omitempty"`
}

// CreateOrder registers a payment order and returns its code and checkout URL.
func (c *Client) CreateOrder(ctx context.Context, req OrderRequest) (*Order, error) {
	cents := req.Amount.Shift(2).Round(0).IntPart()
	if cents <= 0 {
		return nil, errors.New("viva order amount must be positive")
	}
	body, err := json.Marshal(createOrderBody{
		Amount:         cents,
		CustomerTrns:   req.CustomerTrns,
		Customer:       customerBody{Email: req.Email, FullName: req.FullName},
		SourceCode:     c.sourceCode,
		MerchantTrns:   req.MerchantTrns,
		PaymentTimeout: 1800,
	})
	if err != nil {
		return nil, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL+"/checkout/v2/orders", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("create viva order: %w", err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read viva response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("viva order rejected: status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	var decoded struct {
		OrderCode json.Number `json:"orderCode"`
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode viva order: %w", err)
	}
	code := decoded.OrderCode.String()
	if _, err := strconv.ParseInt(code, 10, 64); err != nil {
		return nil, fmt.Errorf("viva returned invalid order code %q", code)
	}
	return &Order{OrderCode: code, CheckoutURL: c.checkoutURL + "?ref=" + code}, nil
}

// Transaction is a payment as Viva reports it.
type Transaction struct {
	TransactionID string
	OrderCode     string
	StatusID      string
	Amount        decimal.Decimal
	CurrencyCode  string
	MerchantTrns  string
}

type transactionBody struct {
	OrderCode    json.Number     `json:"orderCode"`
	StatusID     string          `json:"statusId"`
	Amount       decimal.Decimal `json:"amount"`
	CurrencyCode string          `json:"currencyCode"`
	MerchantTrns string          `json:"merchantTrns"`
}

// Transaction retrieves a transaction by id. Webhook notifications are not
// signed, so this is the source of truth for status, order and amount.
func (c *Client) Transaction(ctx context.Context, transactionID string) (*Transaction, error) {
	transactionID = strings.TrimSpace(transactionID)
	if transactionID == "" {
		return nil, ErrTransactionNotFound
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiURL+"/checkout/v2/transactions/"+url.PathEscape(transactionID), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("retrieve viva transaction: %w", err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read viva response: %w", err)
	}
	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrTransactionNotFound
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("viva transaction lookup failed: status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	var decoded transactionBody
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode viva transaction: %w", err)
	}
	return &Transaction{
		TransactionID: transactionID,
		OrderCode:     decoded.OrderCode.String(),
		StatusID:      decoded.StatusID,
		Amount:        decoded.Amount,
		CurrencyCode:  decoded.CurrencyCode,
		MerchantTrns:  decoded.MerchantTrns,
	}, nil
}
