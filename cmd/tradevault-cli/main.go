package main

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"tradevault/crypto"
)

var rpcEndpoint = defaultRPCEndpoint()
var rpcAuthToken = os.Getenv("TRADEVAULT_RPC_TOKEN")

func defaultRPCEndpoint() string {
	if url := strings.TrimSpace(os.Getenv("RPC_URL")); url != "" {
		return url
	}
	return "http://localhost:8080"
}

func main() {
	args := os.Args[1:]
	var err error
	args, err = applyGlobalFlags(args)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	if len(args) < 1 {
		printUsage()
		return
	}

	command := args[0]
	rest := args[1:]
	switch command {
	case "generate-key":
		generateKey(rest)
	case "deposit":
		requireArgs(rest, 2, "deposit <address> <amount>")
		call("bank_deposit", map[string]interface{}{"address": rest[0], "amount": rest[1]})
	case "balance":
		requireArgs(rest, 1, "balance <address>")
		call("bank_balance", map[string]interface{}{"address": rest[0]})
	case "create":
		requireArgs(rest, 6, "create <ref> <buyer> <seller> <quantity> <item-name> <locked-funds>")
		quantity, convErr := strconv.ParseUint(rest[3], 10, 64)
		if convErr != nil {
			fatalf("quantity must be a positive integer: %v", convErr)
		}
		call("escrow_createOrder", map[string]interface{}{
			"ref":         rest[0],
			"buyer":       rest[1],
			"seller":      rest[2],
			"quantity":    quantity,
			"itemName":    rest[4],
			"lockedFunds": rest[5],
		})
	case "confirm":
		requireArgs(rest, 2, "confirm <ref> <caller>")
		call("escrow_confirmDelivery", map[string]interface{}{"ref": rest[0], "caller": rest[1]})
	case "release":
		requireArgs(rest, 2, "release <ref> <caller>")
		call("escrow_releasePayment", map[string]interface{}{"ref": rest[0], "caller": rest[1]})
	case "dispute":
		requireArgs(rest, 2, "dispute <ref> <caller>")
		call("escrow_raiseDispute", map[string]interface{}{"ref": rest[0], "caller": rest[1]})
	case "resolve":
		requireArgs(rest, 3, "resolve <ref> <caller> <buyer|seller>")
		var buyerWins bool
		switch strings.ToLower(rest[2]) {
		case "buyer":
			buyerWins = true
		case "seller":
			buyerWins = false
		default:
			fatalf("verdict must be \"buyer\" or \"seller\", got %q", rest[2])
		}
		call("escrow_resolveDispute", map[string]interface{}{"ref": rest[0], "caller": rest[1], "buyerWins": buyerWins})
	case "get":
		requireArgs(rest, 1, "get <ref>")
		call("escrow_getOrder", map[string]interface{}{"ref": rest[0]})
	case "status":
		requireArgs(rest, 1, "status <ref>")
		call("escrow_getStatus", map[string]interface{}{"ref": rest[0]})
	case "events":
		after := int64(0)
		if len(rest) > 0 {
			parsed, convErr := strconv.ParseInt(rest[0], 10, 64)
			if convErr != nil {
				fatalf("cursor must be an integer: %v", convErr)
			}
			after = parsed
		}
		call("escrow_listEvents", map[string]interface{}{"after": after, "limit": 100})
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n", command)
		printUsage()
		os.Exit(1)
	}
}

func applyGlobalFlags(args []string) ([]string, error) {
	out := args[:0]
	for i := 0; i < len(args); i++ {
		arg := args[i]
		switch {
		case arg == "--rpc":
			if i+1 >= len(args) {
				return nil, fmt.Errorf("--rpc requires a value")
			}
			i++
			rpcEndpoint = args[i]
		case strings.HasPrefix(arg, "--rpc="):
			rpcEndpoint = strings.TrimPrefix(arg, "--rpc=")
		default:
			out = append(out, arg)
		}
	}
	return out, nil
}

func requireArgs(args []string, n int, usage string) {
	if len(args) < n {
		fatalf("usage: tradevault-cli %s", usage)
	}
}

func fatalf(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

func generateKey(args []string) {
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		fatalf("generate key: %v", err)
	}
	address := key.PubKey().Address().String()
	if len(args) > 0 {
		if err := crypto.SaveToKeystore(args[0], key, ""); err != nil {
			fatalf("save keystore: %v", err)
		}
		fmt.Printf("address: %s\nkeystore: %s\n", address, args[0])
		return
	}
	fmt.Printf("address: %s\nprivate key (hex): %s\n", address, hex.EncodeToString(key.Bytes()))
}

type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
	ID      int           `json:"id"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *struct {
		Code    int         `json:"code"`
		Message string      `json:"message"`
		Data    interface{} `json:"data"`
	} `json:"error"`
}

func call(method string, params map[string]interface{}) {
	payload, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		Method:  method,
		Params:  []interface{}{params},
		ID:      1,
	})
	if err != nil {
		fatalf("encode request: %v", err)
	}
	req, err := http.NewRequest(http.MethodPost, rpcEndpoint, bytes.NewReader(payload))
	if err != nil {
		fatalf("build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if rpcAuthToken != "" {
		req.Header.Set("Authorization", "Bearer "+rpcAuthToken)
	}
	client := &http.Client{Timeout: 15 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		fatalf("rpc call: %v", err)
	}
	defer resp.Body.Close()

	var decoded rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		fatalf("decode response: %v", err)
	}
	if decoded.Error != nil {
		fatalf("rpc error %d: %s (%v)", decoded.Error.Code, decoded.Error.Message, decoded.Error.Data)
	}
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, decoded.Result, "", "  "); err != nil {
		fmt.Println(string(decoded.Result))
		return
	}
	fmt.Println(pretty.String())
}

func printUsage() {
	fmt.Println(`tradevault-cli [--rpc <url>] <command>

Commands:
  generate-key [keystore-file]                       create a new key pair
  deposit <address> <amount>                         credit deposited value (operator)
  balance <address>                                  show an account balance
  create <ref> <buyer> <seller> <qty> <item> <funds> open a custodied order
  confirm <ref> <caller>                             confirm delivery (buyer)
  release <ref> <caller>                             release payment (buyer)
  dispute <ref> <caller>                             raise a dispute (participant)
  resolve <ref> <caller> <buyer|seller>              resolve a dispute (arbitrator)
  get <ref>                                          fetch the order record
  status <ref>                                       fetch the order status
  events [after]                                     list journaled notifications

Environment:
  RPC_URL                 RPC endpoint (default http://localhost:8080)
  TRADEVAULT_RPC_TOKEN    bearer token for mutating methods`)
}
