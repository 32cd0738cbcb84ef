package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/botbyte/botbyte-go/pkg/streamclient"
)

func main() {
	baseURL := flag.String("addr", "http://localhost:3001", "chat server base URL")
	userID := flag.String("user", "cli-user", "user id")
	conversationID := flag.String("conversation", "", "resume an existing conversation")
	list := flag.Bool("list", false, "list conversations and exit")
	flag.Parse()

	client := streamclient.New(*baseURL)
	ctx := context.Background()

	if *list {
		conversations, err := client.ListConversations(ctx, *userID)
		if err != nil {
			log.Fatalf("list conversations: %v", err)
		}
		for _, c := range conversations {
			fmt.Printf("%s  %s  (%s)\n", c.ID, c.Title, c.UpdatedAt.Format("2006-01-02 15:04"))
		}
		return
	}

	convID := *conversationID
	if convID == "" {
		conv, err := client.CreateConversation(ctx, *userID, "chat", "")
		if err != nil {
			log.Fatalf("create conversation: %v", err)
		}
		convID = conv.ID
		fmt.Printf("Started conversation %s\n", convID)
	}

	reader := bufio.NewReader(os.Stdin)
	for {
		fmt.Print("> ")
		line, err := reader.ReadString('\n')
		if err != nil {
			fmt.Println()
			return
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if line == "/quit" || line == "/exit" {
			return
		}

		var printed strings.Builder
		final, err := client.StreamMessage(ctx, convID, line, func(text string) {
			printed.WriteString(text)
			fmt.Print(text)
		})
		if final != printed.String() {
			// The server replaced the partial text, e.g. with the
			// failure message. Show what the final message actually is.
			if printed.Len() > 0 {
				fmt.Println()
			}
			fmt.Print(final)
		}
		fmt.Println()
		if err != nil {
			log.Printf("stream: %v", err)
		}
	}
}
