package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/vovakirdan/studyroom-server/internal/proto"
)

func main() {
	if err := run(); err != nil {
		log.Printf("ws_smoke: %v", err)
		os.Exit(1)
	}
}

func run() error {
	base := flag.String("base", "http://localhost:8080", "server base URL")
	wsAddr := flag.String("ws", "ws://localhost:8080/ws", "WebSocket address")
	text := flag.String("text", "hello from smoke test", "message text to send")
	timeout := flag.Duration("timeout", 5*time.Second, "total timeout for the run")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	var user struct {
		ID    int64  `json:"id"`
		Token string `json:"token"`
	}
	if err := postJSON(ctx, *base+"/api/user/create", "", nil, &user); err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	fmt.Printf("user %d created\n", user.ID)

	var room struct {
		ID int64 `json:"id"`
	}
	roomReq := map[string]any{"name": "smoke", "capacity": 2}
	if err := postJSON(ctx, *base+"/api/room/create", user.Token, roomReq, &room); err != nil {
		return fmt.Errorf("create room: %w", err)
	}
	fmt.Printf("room %d created\n", room.ID)

	conn, _, err := websocket.Dial(ctx, *wsAddr, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")

	join := proto.Inbound{Operation: proto.OpJoinRoom, ID: proto.Int(room.ID), Token: user.Token}
	if err := wsjson.Write(ctx, conn, join); err != nil {
		return fmt.Errorf("send join: %w", err)
	}

	var status int
	if err := wsjson.Read(ctx, conn, &status); err != nil {
		return fmt.Errorf("read join status: %w", err)
	}
	if status != proto.JoinStatusOK {
		return fmt.Errorf("join rejected with status %d", status)
	}
	fmt.Println("joined")

	msg := proto.Inbound{Operation: proto.OpUserMessage, ID: proto.Int(room.ID), Token: user.Token, Message: *text}
	if err := wsjson.Write(ctx, conn, msg); err != nil {
		return fmt.Errorf("send message: %w", err)
	}

	for {
		var raw json.RawMessage
		if err := wsjson.Read(ctx, conn, &raw); err != nil {
			return fmt.Errorf("read: %w", err)
		}
		fmt.Printf("received: %s\n", raw)

		var chat proto.ChatMessage
		if json.Unmarshal(raw, &chat) == nil && chat.Operation == proto.OpMessage && chat.Text == *text {
			fmt.Println("message echoed; smoke test passed")
			return nil
		}
	}
}

func postJSON(ctx context.Context, url, token string, body, out any) error {
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return err
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected status %s", resp.Status)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
