package rpc

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"strings"

	"tradevault/crypto"
	"tradevault/native/escrow"
)

const (
	codeEscrowInvalidParams = -32021
	codeEscrowNotFound      = -32022
	codeEscrowForbidden     = -32023
	codeEscrowConflict      = -32024
	codeEscrowInternal      = -32025
	codeEscrowInconsistent  = -32026
)

type orderCreateParams struct {
	Ref         string `json:"ref"`
	Buyer       string `json:"buyer"`
	Seller      string `json:"seller"`
	Quantity    uint64 `json:"quantity"`
	ItemName    string `json:"itemName"`
	LockedFunds string `json:"lockedFunds"`
}

type orderRefParams struct {
	Ref string `json:"ref"`
}

type orderActorParams struct {
	Ref    string `json:"ref"`
	Caller string `json:"caller"`
}

type orderResolveParams struct {
	Ref       string `json:"ref"`
	Caller    string `json:"caller"`
	BuyerWins bool   `json:"buyerWins"`
}

type listEventsParams struct {
	After int64 `json:"after"`
	Limit int   `json:"limit"`
}

type depositParams struct {
	Address string `json:"address"`
	Amount  string `json:"amount"`
}

type balanceParams struct {
	Address string `json:"address"`
}

type orderJSON struct {
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

func orderToJSON(o *escrow.Order) orderJSON {
	return orderJSON{
		ID:            "0x" + hex.EncodeToString(o.ID[:]),
		Buyer:         mustBech32(o.Buyer),
		Seller:        mustBech32(o.Seller),
		Amount:        o.Amount.String(),
		Fee:           o.Fee.String(),
		Quantity:      o.Quantity,
		ItemName:      o.ItemName,
		CreatedAt:     o.CreatedAt,
		CompletedAt:   o.CompletedAt,
		Status:        o.Status.String(),
		DisputeRaised: o.DisputeRaised,
	}
}

func mustBech32(addr [20]byte) string {
	a, err := crypto.NewAddress(addr[:])
	if err != nil {
		return ""
	}
	return a.String()
}

func parseAddress(s string) ([20]byte, error) {
	addr, err := crypto.DecodeAddress(strings.TrimSpace(s))
	if err != nil {
		return [20]byte{}, err
	}
	return addr.Fixed(), nil
}

func parsePositiveBigInt(s string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(strings.TrimSpace(s), 10)
	if !ok || v.Sign() <= 0 {
		return nil, errors.New("amount must be a positive base-10 integer")
	}
	return v, nil
}

// decodeSingleParam unmarshals the single object parameter convention used by
// every escrow method.
func decodeSingleParam(req *RPCRequest, out interface{}) error {
	if len(req.Params) != 1 {
		return errors.New("exactly one parameter object expected")
	}
	return json.Unmarshal(req.Params[0], out)
}

// writeEscrowError maps the engine's error taxonomy onto JSON-RPC codes.
func writeEscrowError(w http.ResponseWriter, id interface{}, err error) {
	switch {
	case errors.Is(err, escrow.ErrSettlementInconsistency):
		writeError(w, http.StatusInternalServerError, id, codeEscrowInconsistent, "settlement_inconsistency", err.Error())
	case errors.Is(err, escrow.ErrNotFound):
		writeError(w, http.StatusNotFound, id, codeEscrowNotFound, "not_found", err.Error())
	case errors.Is(err, escrow.ErrUnauthorized):
		writeError(w, http.StatusForbidden, id, codeEscrowForbidden, "forbidden", err.Error())
	case errors.Is(err, escrow.ErrInvalidState):
		writeError(w, http.StatusConflict, id, codeEscrowConflict, "invalid_state", err.Error())
	case errors.Is(err, escrow.ErrValidation):
		writeError(w, http.StatusBadRequest, id, codeEscrowInvalidParams, "invalid_params", err.Error())
	case errors.Is(err, escrow.ErrTransferFailed):
		writeError(w, http.StatusConflict, id, codeEscrowConflict, "transfer_failed", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, id, codeEscrowInternal, "internal_error", err.Error())
	}
}

func (s *Server) handleCreateOrder(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	if authErr := s.requireAuth(r); authErr != nil {
		writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
		return
	}
	var params orderCreateParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, "invalid_params", err.Error())
		return
	}
	buyer, err := parseAddress(params.Buyer)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, "invalid_params", err.Error())
		return
	}
	seller, err := parseAddress(params.Seller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, "invalid_params", err.Error())
		return
	}
	lockedFunds, err := parsePositiveBigInt(params.LockedFunds)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, "invalid_params", err.Error())
		return
	}
	order, err := s.node.CreateOrder(params.Ref, buyer, seller, params.Quantity, params.ItemName, lockedFunds)
	if err != nil {
		writeEscrowError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, orderToJSON(order))
}

func (s *Server) actorCall(w http.ResponseWriter, r *http.Request, req *RPCRequest, call func(ref string, caller [20]byte) error) {
	if authErr := s.requireAuth(r); authErr != nil {
		writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
		return
	}
	var params orderActorParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, "invalid_params", err.Error())
		return
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, "invalid_params", err.Error())
		return
	}
	if err := call(params.Ref, caller); err != nil {
		writeEscrowError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]bool{"ok": true})
}

func (s *Server) handleConfirmDelivery(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	s.actorCall(w, r, req, s.node.ConfirmDelivery)
}

func (s *Server) handleReleasePayment(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	s.actorCall(w, r, req, s.node.ReleasePayment)
}

func (s *Server) handleRaiseDispute(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	s.actorCall(w, r, req, s.node.RaiseDispute)
}

func (s *Server) handleResolveDispute(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	if authErr := s.requireAuth(r); authErr != nil {
		writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
		return
	}
	var params orderResolveParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, "invalid_params", err.Error())
		return
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, "invalid_params", err.Error())
		return
	}
	if err := s.node.ResolveDispute(params.Ref, caller, params.BuyerWins); err != nil {
		writeEscrowError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]bool{"ok": true})
}

func (s *Server) handleGetOrder(w http.ResponseWriter, req *RPCRequest) {
	var params orderRefParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, "invalid_params", err.Error())
		return
	}
	order, err := s.node.GetOrder(params.Ref)
	if err != nil {
		writeEscrowError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, orderToJSON(order))
}

func (s *Server) handleGetStatus(w http.ResponseWriter, req *RPCRequest) {
	var params orderRefParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, "invalid_params", err.Error())
		return
	}
	status, err := s.node.GetStatus(params.Ref)
	if err != nil {
		writeEscrowError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]string{"status": status.String()})
}

func (s *Server) handleListEvents(w http.ResponseWriter, req *RPCRequest) {
	params := listEventsParams{Limit: 100}
	if len(req.Params) > 0 {
		if err := decodeSingleParam(req, &params); err != nil {
			writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, "invalid_params", err.Error())
			return
		}
	}
	entries := s.node.EventsAfter(params.After, params.Limit)
	writeResult(w, req.ID, map[string]interface{}{"events": entries})
}

func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	if authErr := s.requireAuth(r); authErr != nil {
		writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
		return
	}
	var params depositParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, "invalid_params", err.Error())
		return
	}
	addr, err := parseAddress(params.Address)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, "invalid_params", err.Error())
		return
	}
	amount, err := parsePositiveBigInt(params.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, "invalid_params", err.Error())
		return
	}
	if err := s.node.Deposit(addr, amount); err != nil {
		writeEscrowError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]bool{"ok": true})
}

func (s *Server) handleBalance(w http.ResponseWriter, req *RPCRequest) {
	var params balanceParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, "invalid_params", err.Error())
		return
	}
	addr, err := parseAddress(params.Address)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, "invalid_params", err.Error())
		return
	}
	balance, err := s.node.Balance(addr)
	if err != nil {
		writeEscrowError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]string{"address": params.Address, "balance": balance.String()})
}
