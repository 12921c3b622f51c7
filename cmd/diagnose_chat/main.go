// Command diagnose_chat runs an end-to-end check against a running server:
// a user opens a thread and posts over REST while a staff websocket joined
// to that thread waits for the realtime echo.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/joho/godotenv"

	"github.com/vthuan-dev/bufforder-sub001/internal/auth"
	"github.com/vthuan-dev/bufforder-sub001/internal/config"
	"github.com/vthuan-dev/bufforder-sub001/internal/models"
	"github.com/vthuan-dev/bufforder-sub001/internal/realtime"
)

var client = &http.Client{Timeout: 10 * time.Second}

func main() {
	baseURL := flag.String("base", "http://localhost:8080", "server base URL")
	userID := flag.String("user", "diagnose-user", "end-user id to act as")
	flag.Parse()

	_ = godotenv.Load()
	jwtManager := auth.NewJWTManager(config.New())

	userToken, err := jwtManager.GenerateUserToken(*userID)
	must(err)
	staffToken, err := jwtManager.GenerateStaffToken("diagnose-staff")
	must(err)

	fmt.Println("=== CHAT DIAGNOSTIC ===")

	fmt.Println("1. Health check...")
	status, body := call(http.MethodGet, *baseURL+"/healthz", "", nil)
	fmt.Printf("   Status: %d %s\n", status, body)

	fmt.Println("2. Opening thread as user...")
	status, body = call(http.MethodPost, *baseURL+"/chat/thread", userToken, nil)
	if status != http.StatusOK {
		fail("open thread failed (status %d): %s", status, body)
	}
	var opened struct {
		Thread models.Thread `json:"thread"`
	}
	must(json.Unmarshal(body, &opened))
	fmt.Printf("   ✓ Thread %s (status %s)\n", opened.Thread.ID, opened.Thread.Status)

	fmt.Println("3. Connecting staff websocket...")
	wsURL, err := url.Parse(*baseURL)
	must(err)
	wsURL.Scheme = strings.Replace(wsURL.Scheme, "http", "ws", 1)
	wsURL.Path = "/ws"
	wsURL.RawQuery = url.Values{"adminToken": {staffToken}}.Encode()

	conn, _, err := websocket.DefaultDialer.Dial(wsURL.String(), nil)
	if err != nil {
		fail("websocket dial failed: %v", err)
	}
	defer conn.Close()
	join, _ := json.Marshal(models.JoinThreadPayload{ThreadID: opened.Thread.ID})
	must(conn.WriteJSON(realtime.Envelope{Event: models.EventJoinThread, Data: join}))
	fmt.Println("   ✓ Connected and joined thread room")

	fmt.Println("4. Sending message as user over REST...")
	text := fmt.Sprintf("diagnostic ping %s", time.Now().Format(time.RFC3339))
	status, body = call(http.MethodPost, *baseURL+"/chat/thread/"+opened.Thread.ID+"/messages", userToken, map[string]string{"text": text})
	if status != http.StatusCreated {
		fail("send failed (status %d): %s", status, body)
	}
	fmt.Println("   ✓ Message stored")

	fmt.Println("5. Waiting for realtime events...")
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for {
		var env realtime.Envelope
		if err := conn.ReadJSON(&env); err != nil {
			fail("no message-received event: %v", err)
		}
		fmt.Printf("   <- %s %s\n", env.Event, string(env.Data))
		if env.Event == models.EventMessageReceived {
			break
		}
	}

	fmt.Println("6. Checking staff inbox...")
	status, body = call(http.MethodGet, inboxSearchURL(*baseURL, text), staffToken, nil)
	fmt.Printf("   Status: %d\n", status)
	var inbox models.ThreadList
	if err := json.Unmarshal(body, &inbox); err != nil {
		fail("inbox decode failed: %v", err)
	}
	for _, t := range inbox.Threads {
		fmt.Printf("   - %s user=%s unread=%d online=%t last=%q\n", t.ID, t.UserID, t.UnreadAdmin, t.Online, t.LastMessageText)
	}
	if findThread(inbox, opened.Thread.ID) == nil {
		fail("thread %s not found in inbox search for %q", opened.Thread.ID, text)
	}
	fmt.Println("   ✓ Thread listed with the diagnostic message")

	fmt.Println("\n=== END DIAGNOSTIC ===")
}

// inboxSearchURL searches the staff inbox, which matches on the cached last
// message text.
func inboxSearchURL(base, text string) string {
	return base + "/chat/admin/threads?" + url.Values{"search": {text}}.Encode()
}

func findThread(list models.ThreadList, id string) *models.ThreadSummary {
	for i := range list.Threads {
		if list.Threads[i].ID == id {
			return &list.Threads[i]
		}
	}
	return nil
}

func call(method, target, token string, payload any) (int, []byte) {
	var rdr io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		must(err)
		rdr = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, target, rdr)
	must(err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := client.Do(req)
	if err != nil {
		fail("%s %s: %v", method, target, err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, body
}

func must(err error) {
	if err != nil {
		fail("%v", err)
	}
}

func fail(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "   ✗ "+format+"\n", args...)
	os.Exit(1)
}
