package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/vnmchuo/puqee/internal/agent"
	"github.com/vnmchuo/puqee/internal/agent/chatbot"
	"github.com/vnmchuo/puqee/internal/gateway"
)

const cliSession = "cli"

const chatHelp = `Commands:
  help         show this message
  clear        forget the current conversation
  status       show agents and LLM providers
  exit, quit   leave the chat`

// runChat drives the default chatbot from a line-oriented terminal.
func runChat(ctx context.Context, in io.Reader, out io.Writer, manager *agent.Manager, gw *gateway.Gateway) error {
	fmt.Fprintln(out, "Puqee chat. Type 'help' for commands.")

	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "\nyou> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())

		switch strings.ToLower(line) {
		case "":
			continue
		case "exit", "quit":
			fmt.Fprintln(out, "Goodbye!")
			return nil
		case "help":
			fmt.Fprintln(out, chatHelp)
			continue
		case "clear":
			clearSession(out, manager)
			continue
		case "status":
			printStatus(out, manager, gw)
			continue
		}

		res, err := manager.Process(ctx, chatbot.DefaultAgentID, agent.Input{Message: line, SessionID: cliSession})
		if err != nil {
			if errors.Is(err, agent.ErrAgentNotFound) {
				return err
			}
			fmt.Fprintf(out, "error: %v\n", err)
			continue
		}
		fmt.Fprintf(out, "bot> %s\n", res.Response)
	}
}

func clearSession(out io.Writer, manager *agent.Manager) {
	a, ok := manager.Get(chatbot.DefaultAgentID)
	if !ok {
		return
	}
	if conv, ok := a.(agent.Conversational); ok {
		conv.ClearConversation(cliSession)
	}
	fmt.Fprintln(out, "Conversation cleared.")
}

func printStatus(out io.Writer, manager *agent.Manager, gw *gateway.Gateway) {
	st := manager.Status()
	fmt.Fprintf(out, "agents: %d active (%s)\n", st.ActiveAgents, strings.Join(st.ActiveAgentIDs, ", "))
	fmt.Fprintf(out, "agent types: %s\n", strings.Join(st.RegisteredTypes, ", "))
	fmt.Fprintf(out, "llm providers: %s (default %s)\n", strings.Join(gw.Providers(), ", "), gw.DefaultProvider())

	if a, ok := manager.Get(chatbot.DefaultAgentID); ok {
		if conv, ok := a.(agent.Conversational); ok {
			info := conv.ConversationInfo(cliSession)
			fmt.Fprintf(out, "session %s: %d messages\n", cliSession, info.MessageCount)
		}
	}
}
