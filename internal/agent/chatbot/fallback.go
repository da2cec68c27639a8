package chatbot

import (
	"fmt"
	"math/rand/v2"
	"strings"
	"unicode/utf8"

	"github.com/vnmchuo/puqee/internal/agent"
)

var (
	greetings = []string{"你好", "您好", "hello", "hi", "嗨"}
	farewells = []string{"再见", "拜拜", "goodbye", "bye"}
	thanks    = []string{"谢谢", "感谢", "thank"}
	intros    = []string{"你是谁", "介绍一下", "自我介绍", "who are you", "introduce yourself"}
	abilities = []string{"能做什么", "功能", "帮助", "help", "what can you do"}
	histories = []string{"历史", "记录", "history"}
	technical = []string{"puqee", "框架", "代码", "编程", "开发", "framework", "code", "programming"}
)

var openEnded = []string{
	"I see what you mean. Could you tell me a bit more?",
	"That sounds interesting! Can you share more about it?",
	"I'm thinking about what you said. Could you give me some more context?",
	"Thanks for sharing. To understand what you need, could you explain in more detail?",
}

// fallbackReply answers without an LLM. history includes the current message.
func fallbackReply(botName, message string, history []agent.ChatMessage) string {
	lower := strings.ToLower(strings.TrimSpace(message))

	switch {
	case containsAny(lower, greetings):
		if len(history) <= 2 {
			return fmt.Sprintf("Hello! I'm %s, the Puqee assistant. I can answer questions and keep a conversation going. How can I help?", botName)
		}
		return "Hello again! Is there something new I can help you with?"
	case containsAny(lower, farewells):
		return "Goodbye! It was a pleasure, talk to you next time."
	case containsAny(lower, thanks):
		return "You're welcome! Anything else I can help with?"
	case containsAny(lower, intros):
		return fmt.Sprintf("I'm %s, a chat assistant built on the Puqee agent framework. I can:\n1. hold a natural conversation\n2. remember our conversation\n3. answer questions\n4. help with technical topics", botName)
	case containsAny(lower, abilities):
		return "Here is what I can do:\n• chat naturally\n• remember conversation context\n• answer questions\n• give suggestions\n• help with technical topics"
	case containsAny(lower, histories):
		return fmt.Sprintf("We've had %d exchanges so far. I keep track of our conversation to help you better.", len(history)/2)
	case containsAny(lower, technical):
		return "Happy to talk about Puqee or technical questions! Puqee is a general agent framework with a three-layer design. Which part are you interested in?"
	}

	switch {
	case utf8.RuneCountInString(message) > 100:
		return "That's a detailed message and I'm still taking it in. Could you tell me which part matters most to you?"
	case strings.ContainsAny(message, "?？"):
		return "Good question! My knowledge is still growing, but I can look at it from a few angles. Could you give me more background?"
	}
	return openEnded[rand.IntN(len(openEnded))]
}

func containsAny(s string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}
