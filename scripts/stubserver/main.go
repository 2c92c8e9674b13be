// Command stubserver is a local stand-in for the Eagle
// script-execution service. It speaks the same JSON-RPC tools/call
// surface and produces the double-encoded reply shape, so the CLI can
// be exercised without a real deployment.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"regexp"
	"strconv"
	"time"

	"github.com/google/uuid"
)

type envelope struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int    `json:"id"`
	Method  string `json:"method"`
	Params  struct {
		Name      string `json:"name"`
		Arguments struct {
			Script        string `json:"script"`
			SecurityLevel string `json:"securityLevel"`
			SessionID     *string `json:"sessionId"`
		} `json:"arguments"`
	} `json:"params"`
}

var (
	scriptIDPattern = regexp.MustCompile(`set scriptId (\d+)`)
	afterPattern    = regexp.MustCompile(`after (\d+)`)
)

func main() {
	addr := flag.String("addr", ":8080", "Listen address")
	flag.Parse()

	mux := http.NewServeMux()
	mux.HandleFunc("/mcp", handleCall)

	log.Printf("stub service listening on %s", *addr)
	log.Fatal(http.ListenAndServe(*addr, mux))
}

func handleCall(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var env envelope
	if err := json.NewDecoder(r.Body).Decode(&env); err != nil {
		http.Error(w, fmt.Sprintf("bad request: %v", err), http.StatusBadRequest)
		return
	}
	if env.Method != "tools/call" || env.Params.Name != "execute_eagle_script" {
		http.Error(w, "unknown method or tool", http.StatusBadRequest)
		return
	}

	script := env.Params.Arguments.Script

	// Honor the script's embedded delay so concurrent runs spread out
	// the way they would against a real interpreter pool.
	if m := afterPattern.FindStringSubmatch(script); m != nil {
		if ms, err := strconv.Atoi(m[1]); err == nil && ms > 0 {
			time.Sleep(time.Duration(ms) * time.Millisecond)
		}
	}

	inner := map[string]interface{}{
		"isSuccess":   true,
		"executionId": uuid.NewString(),
	}
	switch {
	case env.Params.Arguments.SecurityLevel == "Minimal":
		inner["isSuccess"] = false
		inner["result"] = "permission denied: operation not allowed at Minimal security"
	case scriptIDPattern.MatchString(script):
		id := scriptIDPattern.FindStringSubmatch(script)[1]
		inner["result"] = fmt.Sprintf("Script %s completed in 5ms, sum=125250", id)
	default:
		inner["result"] = "ok"
	}
	if sid := env.Params.Arguments.SessionID; sid != nil {
		if *sid == "" {
			inner["sessionId"] = uuid.NewString()
		} else {
			inner["sessionId"] = *sid
		}
	}

	innerJSON, err := json.Marshal(inner)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	reply := map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      env.ID,
		"result": map[string]interface{}{
			"content": []map[string]interface{}{
				{"type": "text", "text": string(innerJSON)},
			},
		},
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(reply); err != nil {
		log.Printf("writing reply: %v", err)
	}
}
