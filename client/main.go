package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/mahaj/dupahar-messaging/pkg/model"
)

type LoginResponse struct {
	Token string `json:"token"`
}

func login(apiAddr string, userID int64) (string, error) {
	reqBody, _ := json.Marshal(map[string]int64{"user_id": userID})
	resp, err := http.Post(apiAddr+"/login", "application/json", bytes.NewBuffer(reqBody))
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("login failed: %s", string(body))
	}

	var loginResp LoginResponse
	if err := json.NewDecoder(resp.Body).Decode(&loginResp); err != nil {
		return "", err
	}

	return loginResp.Token, nil
}

func send(c *websocket.Conn, event string, data any) error {
	frame, err := model.Encode(event, data)
	if err != nil {
		return err
	}
	return c.WriteMessage(websocket.TextMessage, frame)
}

func printFrame(raw []byte) {
	var env model.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		fmt.Printf("\rReceived raw: %s\n> ", raw)
		return
	}

	switch env.Event {
	case model.EventPrivateMessage:
		var m model.PrivateMessagePush
		json.Unmarshal(env.Data, &m)
		fmt.Printf("\r%d: %s\n> ", m.From, m.Text)
	case model.EventMessageStatus:
		var s model.MessageStatusPush
		json.Unmarshal(env.Data, &s)
		fmt.Printf("\r[%s] %s\n> ", s.CorrelationID, s.Status)
	case model.EventChatHistory:
		var h model.ChatHistoryPush
		json.Unmarshal(env.Data, &h)
		fmt.Printf("\r--- history with %d (%d messages) ---\n", h.With.ID, len(h.Messages))
		for _, m := range h.Messages {
			who := fmt.Sprint(m.SenderID)
			if m.FromMe {
				who = "me"
			}
			seen := ""
			if m.Seen {
				seen = " ✓"
			}
			fmt.Printf("%s %s: %s%s\n", time.UnixMilli(m.Timestamp).Format("15:04"), who, m.Text, seen)
		}
		fmt.Print("> ")
	case model.EventMessagesSeen:
		var s model.MessagesSeenPush
		json.Unmarshal(env.Data, &s)
		fmt.Printf("\r%d read %d of your messages\n> ", s.By, s.Count)
	case model.EventUserList:
		var users []int64
		json.Unmarshal(env.Data, &users)
		fmt.Printf("\rOnline: %v\n> ", users)
	case model.EventError:
		var e model.ErrorPush
		json.Unmarshal(env.Data, &e)
		fmt.Printf("\rerror (%s): %s\n> ", e.Code, e.Error)
	default:
		fmt.Printf("\r%s: %s\n> ", env.Event, env.Data)
	}
}

func main() {
	serverAddr := flag.String("addr", "localhost:8080", "gateway service address")
	apiAddr := flag.String("api", "http://localhost:8081", "api service address")
	userID := flag.Int64("user", 1, "user id")
	peer := flag.Int64("to", 2, "user id to chat with")
	flag.Parse()

	if *userID == *peer {
		log.Fatal("-user and -to must differ")
	}

	// 1. Login to get token
	log.Printf("Logging in as %d...", *userID)
	token, err := login(*apiAddr, *userID)
	if err != nil {
		log.Fatal("Login failed:", err)
	}

	// 2. Connect to WebSocket with token
	u := url.URL{Scheme: "ws", Host: *serverAddr, Path: "/ws"}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	log.Printf("connecting to %s", *serverAddr)

	c, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		log.Fatal("dial:", err)
	}
	defer c.Close()

	if err := send(c, model.EventRegister, model.RegisterRequest{UserID: *userID}); err != nil {
		log.Fatal("register:", err)
	}
	send(c, model.EventGetHistory, model.GetHistoryRequest{UserAID: *userID, UserBID: *peer})

	done := make(chan struct{})

	// 3. Start goroutine to read frames
	go func() {
		defer close(done)
		for {
			_, message, err := c.ReadMessage()
			if err != nil {
				log.Println("read:", err)
				return
			}
			printFrame(message)
		}
	}()

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)

	// 4. Read from stdin and send messages
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		fmt.Print("> ")
		for scanner.Scan() {
			text := strings.TrimSpace(scanner.Text())

			var err error
			switch text {
			case "":
			case "/quit":
				interrupt <- os.Interrupt
				return
			case "/history":
				err = send(c, model.EventGetHistory, model.GetHistoryRequest{UserAID: *userID, UserBID: *peer})
			case "/seen":
				err = send(c, model.EventMarkAsSeen, model.MarkAsSeenRequest{UserID: *userID, FriendID: *peer})
			default:
				err = send(c, model.EventPrivateMessage, model.PrivateMessageRequest{
					ClientCorrelationID: uuid.NewString(),
					From:                *userID,
					To:                  *peer,
					Text:                text,
				})
			}
			if err != nil {
				log.Println("write:", err)
				return
			}
			fmt.Print("> ")
		}
	}()

	for {
		select {
		case <-done:
			return
		case <-interrupt:
			log.Println("interrupt")

			// Cleanly close the connection by sending a close message and then
			// waiting (with timeout) for the server to close the connection.
			err := c.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			if err != nil {
				log.Println("write close:", err)
				return
			}
			select {
			case <-done:
			case <-time.After(time.Second):
			}
			return
		}
	}
}
