package main

import (
	"bufio"
	"flag"
	"log"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/wfunc/quizserver/auth"
	"github.com/wfunc/quizserver/models"
	"github.com/wfunc/quizserver/network"
)

const usage = `commands:
  create <game_id>     create a room and join it
  join <code>          join a room
  room <code>          follow a room you created
  leave                leave the current room
  ready | unready      toggle readiness
  start                start the game (host)
  buzz                 buzz in
  answer <text>        submit an answer
  next                 advance the round (host)
  quit`

func main() {
	addr := flag.String("addr", "localhost:8080", "server address")
	secret := flag.String("secret", os.Getenv("QUIZ_AUTH_SECRET"), "token signing secret")
	userID := flag.String("user", "player1", "user id")
	name := flag.String("name", "", "display name")
	flag.Parse()

	if *name == "" {
		*name = *userID
	}
	token, err := auth.Issue(*secret, models.Identity{UserID: *userID, Username: *name}, 24*time.Hour)
	if err != nil {
		log.Fatalf("Failed to mint token: %v", err)
	}

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)
	u := url.URL{Scheme: "ws", Host: *addr, Path: "/ws", RawQuery: "token=" + url.QueryEscape(token)}
	log.Printf("Connecting to %s as %s", *addr, *userID)

	ws, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		log.Fatalf("Dial failed: %v", err)
	}
	conn := network.NewWSConnection(ws)
	defer conn.Close()

	done := make(chan struct{})

	// Read loop
	go func() {
		defer close(done)
		for {
			p, err := conn.ReadPacket()
			if err != nil {
				log.Println("Read error:", err)
				return
			}
			evt, payload, err := network.DecodeEvent(p.MsgID, p.Data)
			if err != nil {
				log.Printf("Received undecodable packet %d: %v", p.MsgID, err)
				continue
			}
			log.Printf("<- %s #%d: %s", evt.Kind, evt.Seq, string(payload))
		}
	}()

	// 心跳
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if err := conn.Send(network.MsgTypeHeartbeat, nil); err != nil {
					return
				}
			}
		}
	}()

	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	log.Println(usage)
	var room string
	for {
		select {
		case <-done:
			return
		case <-interrupt:
			log.Println("Interrupt received, closing connection.")
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			cmd, next, quit := parse(line, room)
			if quit {
				return
			}
			room = next
			if cmd == nil {
				continue
			}
			id, data, err := network.EncodeCommand(cmd)
			if err != nil {
				log.Println("Encode error:", err)
				continue
			}
			if err := conn.Send(id, data); err != nil {
				log.Println("Write error:", err)
				return
			}
			log.Printf("-> %s", network.MessageName(id))
		}
	}
}

// parse turns one input line into a command; room is the code the client is following.
func parse(line, room string) (cmd interface{}, next string, quit bool) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil, room, false
	}
	arg := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line), fields[0]))

	switch fields[0] {
	case "create":
		return models.CreateRoom{GameID: arg}, room, false
	case "join":
		code := strings.ToUpper(arg)
		return models.JoinRoom{Code: code}, code, false
	case "leave":
		return models.LeaveRoom{Code: room}, "", false
	case "ready":
		return models.SetReady{Code: room, Ready: true}, room, false
	case "unready":
		return models.SetReady{Code: room, Ready: false}, room, false
	case "start":
		return models.StartGame{Code: room}, room, false
	case "buzz":
		return models.Buzz{Code: room}, room, false
	case "answer":
		return models.SubmitAnswer{Code: room, Answer: arg}, room, false
	case "next":
		return models.AdvanceRound{Code: room}, room, false
	case "quit", "exit":
		return nil, room, true
	case "room":
		// 创建房间后用 room <code> 指定后续命令的房间
		return nil, strings.ToUpper(arg), false
	}
	log.Println(usage)
	return nil, room, false
}
