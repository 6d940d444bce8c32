package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"
)

var (
	gatewayURL   string
	authToken    string
	characterID  string
	systemPrompt string
	memory       string
	model        string
)

var rootCmd = &cobra.Command{
	Use:   "chat-cli",
	Short: "Interactive terminal client for the persona gateway",
	Long: `Chat with a character through the gateway's streaming endpoint.

Commands inside the session:
  /context   show what the gateway stores for the character
  /save      save the current history as the character's context
  /clear     delete the stored context and local history
  /exit      quit`,
	SilenceUsage: true,
	RunE:         runChat,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	f := rootCmd.Flags()
	f.StringVarP(&gatewayURL, "url", "u", "http://localhost:8000", "Gateway base URL")
	f.StringVar(&authToken, "token", os.Getenv("PERSONA_TOKEN"), "Bearer token when the gateway requires auth")
	f.StringVarP(&characterID, "character", "c", "", "Character id used as the memory key")
	f.StringVarP(&systemPrompt, "system", "s", "", "Persona system prompt")
	f.StringVarP(&memory, "memory", "m", "", "Extra memory appended to the system prompt")
	f.StringVar(&model, "model", "", "Model override")
}

func runChat(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	client := newGatewayClient(gatewayURL, authToken)
	reader := bufio.NewReader(os.Stdin)
	var history []message

	fmt.Println("Connected to", gatewayURL, "- type /exit to quit.")
	for {
		fmt.Print("You: ")
		line, err := reader.ReadString('\n')
		if err != nil {
			fmt.Println()
			return nil
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		switch line {
		case "/exit", "/quit":
			fmt.Println("Goodbye!")
			return nil
		case "/context":
			showContext(ctx, client)
			continue
		case "/save":
			if err := client.saveContext(ctx, characterID, systemPrompt, memory, history); err != nil {
				fmt.Printf("Save failed: %v\n", err)
			} else {
				fmt.Println("Context saved.")
			}
			continue
		case "/clear":
			history = nil
			if characterID != "" {
				deleted, err := client.deleteContext(ctx, characterID)
				if err != nil {
					fmt.Printf("Clear failed: %v\n", err)
					continue
				}
				if !deleted {
					fmt.Println("Nothing stored on the gateway.")
				}
			}
			fmt.Println("History cleared.")
			continue
		}

		fmt.Print("Bot: ")
		reply, err := client.streamChat(ctx, chatPayload{
			Message:             line,
			CharacterID:         characterID,
			SystemPrompt:        systemPrompt,
			Memory:              memory,
			ConversationHistory: history,
			Model:               model,
		}, func(tok string) { fmt.Print(tok) })
		fmt.Println()
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			if ctx.Err() != nil {
				return nil
			}
			continue
		}
		history = append(history, message{Role: "user", Content: line}, message{Role: "assistant", Content: reply})
	}
}

func showContext(ctx context.Context, client *gatewayClient) {
	if characterID == "" {
		fmt.Println("No --character set; nothing is stored.")
		return
	}
	view, err := client.getContext(ctx, characterID)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	if view.Context != nil {
		fmt.Printf("Saved context: %d messages, memory %q\n", len(view.Context.History), view.Context.Memory)
		return
	}
	fmt.Printf("%d stored exchanges\n", view.ConversationCount)
	for _, ex := range view.Conversations {
		fmt.Printf("[%s] you: %s\n           bot: %s\n", ex.Timestamp.Format("15:04:05"), ex.User, ex.Assistant)
	}
}
