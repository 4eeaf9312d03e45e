package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// EventPayload mirrors the node's notification wire format.
type EventPayload struct {
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}

// JournalEntry mirrors the node's sequenced journal entry.
type JournalEntry struct {
	Sequence  int64         `json:"sequence"`
	Timestamp int64         `json:"timestamp"`
	Event     *EventPayload `json:"event"`
}

// OrderView is the read model the gateway exposes for order lookups.
type OrderView struct {
	ID            string `json:"id"`
	Buyer         string `json:"buyer"`
	Seller        string `json:"seller"`
	Amount        string `json:"amount"`
	Fee           string `json:"fee"`
	Quantity      uint64 `json:"quantity"`
	ItemName      string `json:"itemName"`
	CreatedAt     int64  `json:"createdAt"`
	CompletedAt   int64  `json:"completedAt,omitempty"`
	Status        string `json:"status"`
	DisputeRaised bool   `json:"disputeRaised"`
}

// NodeClient is the subset of the custody daemon the gateway needs.
type NodeClient interface {
	FetchEvents(ctx context.Context, after int64, limit int) ([]JournalEntry, error)
	GetOrder(ctx context.Context, ref string) (*OrderView, error)
}

// RPCNodeClient talks JSON-RPC to the custody daemon.
type RPCNodeClient struct {
	url    string
	token  string
	client *http.Client
}

func NewRPCNodeClient(url, token string) *RPCNodeClient {
	return &RPCNodeClient{
		url:    url,
		token:  token,
		client: &http.Client{Timeout: 15 * time.Second},
	}
}

type rpcEnvelope struct {
	Result json.RawMessage `json:"result"`
	Error  *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (c *RPCNodeClient) call(ctx context.Context, method string, params interface{}, out interface{}) error {
	payload, err := json.Marshal(map[string]interface{}{
		"jsonrpc": "2.0",
		"method":  method,
		"params":  []interface{}{params},
		"id":      1,
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	var envelope rpcEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return err
	}
	if envelope.Error != nil {
		return fmt.Errorf("gateway: node rpc %s: %d %s", method, envelope.Error.Code, envelope.Error.Message)
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(envelope.Result, out)
}

func (c *RPCNodeClient) FetchEvents(ctx context.Context, after int64, limit int) ([]JournalEntry, error) {
	var result struct {
		Events []JournalEntry `json:"events"`
	}
	if err := c.call(ctx, "escrow_listEvents", map[string]interface{}{"after": after, "limit": limit}, &result); err != nil {
		return nil, err
	}
	return result.Events, nil
}

func (c *RPCNodeClient) GetOrder(ctx context.Context, ref string) (*OrderView, error) {
	view := &OrderView{}
	if err := c.call(ctx, "escrow_getOrder", map[string]interface{}{"ref": ref}, view); err != nil {
		return nil, err
	}
	return view, nil
}
