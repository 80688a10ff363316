package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
)

type LoginResponse struct {
	Token string `json:"token"`
}

func get(apiAddr, path, token string) string {
	req, _ := http.NewRequest(http.MethodGet, apiAddr+path, nil)
	req.Header.Add("Authorization", "Bearer "+token)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		log.Fatalf("%s request failed: %v", path, err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	return fmt.Sprintf("%d %s", resp.StatusCode, body)
}

func main() {
	apiAddr := flag.String("api", "http://localhost:8081", "api service address")
	userID := flag.Int64("user", 1, "user id to log in as")
	peer := flag.Int64("with", 2, "peer for the history request")
	flag.Parse()

	// 1. Login
	reqBody, _ := json.Marshal(map[string]int64{"user_id": *userID})
	resp, err := http.Post(*apiAddr+"/login", "application/json", bytes.NewBuffer(reqBody))
	if err != nil {
		log.Fatal(err)
	}
	defer resp.Body.Close()

	var loginResp LoginResponse
	if err := json.NewDecoder(resp.Body).Decode(&loginResp); err != nil {
		log.Fatal(err)
	}
	token := loginResp.Token

	// 2. History, conversation list and unread counters
	log.Printf("History with %d: %s", *peer, get(*apiAddr, fmt.Sprintf("/history?with=%d", *peer), token))
	log.Printf("Conversations: %s", get(*apiAddr, "/conversations", token))
	log.Printf("Unread: %s", get(*apiAddr, "/conversations/unread", token))
}
