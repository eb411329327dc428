// Command client is a minimal terminal chat client for the ChatGenius
// hub. Lines typed on stdin are sent to the configured conversation;
// incoming events print as they arrive.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/Rishab-Kumar09/ChatGenius/internal/client"
	"github.com/Rishab-Kumar09/ChatGenius/internal/protocol"
)

func main() {
	url := flag.String("url", "ws://localhost:8080/ws", "hub WebSocket endpoint")
	user := flag.String("user", "", "user id (insecure development mode)")
	token := flag.String("token", "", "signed handshake token")
	channel := flag.String("channel", "general", "channel to chat in")
	flag.Parse()

	if *user == "" {
		fmt.Fprintln(os.Stderr, "usage: client -user <id> [-url ws://...] [-channel <id>]")
		os.Exit(2)
	}

	c, err := client.New(client.Options{
		URL:    *url,
		UserID: *user,
		Token:  *token,
		OnEvent: func(evt protocol.Event) {
			printEvent(evt)
		},
		OnState: func(s client.State) {
			fmt.Printf("* connection %s\n", s)
		},
	})
	if err != nil {
		log.Fatal(err)
	}

	if err := c.Connect(); err != nil {
		log.Fatal(err)
	}
	defer c.Close()

	if err := c.SetStatus(protocol.StatusOnline); err != nil {
		log.Printf("presence announce failed: %v", err)
	}

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "/quit" {
			return
		}
		if _, err := c.SendMessage(line, *channel, "", ""); err != nil {
			log.Printf("send failed: %v", err)
		}
	}
}

func printEvent(evt protocol.Event) {
	switch evt.Type {
	case protocol.EventNewMessage:
		fmt.Printf("[%s] %s: %s\n", evt.Timestamp.Format("15:04:05"), evt.UserID, evt.Content)
	case protocol.EventMessageConfirmed:
		fmt.Printf("* message delivered (%s)\n", evt.ID)
	case protocol.EventPresenceUpdate:
		fmt.Printf("* %s is now %s\n", evt.UserID, evt.Status)
	case protocol.EventTypingIndicator:
		if evt.Typing() {
			fmt.Printf("* %s is typing...\n", evt.UserID)
		}
	case protocol.EventMessageDeleted:
		fmt.Printf("* %s deleted message %s\n", evt.UserID, evt.MessageID)
	case protocol.EventMessageEdited:
		fmt.Printf("* %s edited message %s: %s\n", evt.UserID, evt.MessageID, evt.Content)
	case protocol.EventError:
		fmt.Printf("! %s: %s\n", evt.Code, evt.Message)
	}
}
