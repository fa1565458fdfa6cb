package thinking

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/tidwall/gjson"
)

// BuildSessionKey derives the signature-caching scope for a request:
// "<server-session>:<lowercase-model>:<project|default>:<conversation|default>".
func BuildSessionKey(serverSessionID, model, convKey, projectKey string) string {
	if projectKey == "" {
		projectKey = "default"
	}
	if convKey == "" {
		convKey = "default"
	}
	return serverSessionID + ":" + strings.ToLower(model) + ":" + projectKey + ":" + convKey
}

// conversationIDFields are tried in order on the request payload.
var conversationIDFields = []string{
	"conversationId",
	"conversation_id",
	"thread_id",
	"threadId",
	"chat_id",
	"chatId",
	"sessionId",
	"session_id",
	"metadata.conversation_id",
	"metadata.conversationId",
}

// ExtractConversationKey finds a stable conversation identifier in the
// payload. Without an explicit field it derives a seed from the system text
// and the first user message, so identical openings share a signature scope.
// Returns "" when neither exists.
func ExtractConversationKey(payload []byte) string {
	for _, field := range conversationIDFields {
		if v := gjson.GetBytes(payload, field); v.Exists() && v.String() != "" {
			return v.String()
		}
	}

	systemText := extractSystemText(payload)
	firstUser := extractFirstUserText(payload)
	if systemText == "" && firstUser == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(systemText + "|" + firstUser))
	return "seed-" + hex.EncodeToString(sum[:])[:16]
}

func extractSystemText(payload []byte) string {
	// Anthropic: top-level system, string or block list.
	if system := gjson.GetBytes(payload, "system"); system.Exists() {
		if system.IsArray() {
			var sb strings.Builder
			system.ForEach(func(_, block gjson.Result) bool {
				sb.WriteString(block.Get("text").String())
				return true
			})
			return sb.String()
		}
		return system.String()
	}

	// Gemini: systemInstruction parts.
	for _, path := range []string{"systemInstruction.parts", "system_instruction.parts", "request.systemInstruction.parts"} {
		if parts := gjson.GetBytes(payload, path); parts.Exists() {
			var sb strings.Builder
			parts.ForEach(func(_, part gjson.Result) bool {
				sb.WriteString(part.Get("text").String())
				return true
			})
			return sb.String()
		}
	}

	// OpenAI: leading system/developer message.
	var text string
	gjson.GetBytes(payload, "messages").ForEach(func(_, msg gjson.Result) bool {
		role := msg.Get("role").String()
		if role == "system" || role == "developer" {
			text = contentText(msg.Get("content"))
			return false
		}
		return true
	})
	return text
}

func extractFirstUserText(payload []byte) string {
	var text string
	for _, path := range []string{"messages", "contents", "request.contents"} {
		arr := gjson.GetBytes(payload, path)
		if !arr.Exists() {
			continue
		}
		arr.ForEach(func(_, msg gjson.Result) bool {
			if msg.Get("role").String() != "user" {
				return true
			}
			if content := msg.Get("content"); content.Exists() {
				text = contentText(content)
			} else {
				text = partsText(msg.Get("parts"))
			}
			return false
		})
		break
	}
	return text
}

func contentText(content gjson.Result) string {
	if content.IsArray() {
		var sb strings.Builder
		content.ForEach(func(_, block gjson.Result) bool {
			sb.WriteString(block.Get("text").String())
			return true
		})
		return sb.String()
	}
	return content.String()
}

func partsText(parts gjson.Result) string {
	var sb strings.Builder
	parts.ForEach(func(_, part gjson.Result) bool {
		sb.WriteString(part.Get("text").String())
		return true
	})
	return sb.String()
}
