package httpapi

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/Saurav-kan/gist/internal/aichat"
	"github.com/Saurav-kan/gist/internal/parsers"
)

// summarizeBody is the POST /api/ai/summarize body, grounded on ai.rs's
// SummarizeRequest.
type summarizeBody struct {
	FilePath string `json:"file_path"`
}

// summarizeResult mirrors ai.rs's SummarizeResponse: success/summary/error
// rather than a giserr envelope, since a disabled-AI or upstream-failure
// response is a normal (200) outcome for this endpoint, not a client error.
type summarizeResult struct {
	Success bool    `json:"success"`
	Summary *string `json:"summary,omitempty"`
	Error   *string `json:"error,omitempty"`
}

func errResult(msg string) summarizeResult { return summarizeResult{Success: false, Error: &msg} }

func (s *Server) handleAISummarize(c echo.Context) error {
	var body summarizeBody
	if err := c.Bind(&body); err != nil || body.FilePath == "" {
		return c.JSON(http.StatusOK, errResult("file_path is required"))
	}

	if !s.cfg.AIFeaturesEnabled {
		return c.JSON(http.StatusOK, errResult("AI features are disabled in settings"))
	}
	if s.chat == nil {
		return c.JSON(http.StatusOK, errResult("no chat provider configured"))
	}

	content, err := extractAIContent(body.FilePath)
	if err != nil {
		return c.JSON(http.StatusOK, errResult("failed to read file: "+err.Error()))
	}
	if strings.TrimSpace(content) == "" {
		return c.JSON(http.StatusOK, errResult("file is empty or cannot be read"))
	}

	prompt := "Please provide a concise summary of the following document. Focus on the main points, key information, and important details:\n\n" + content
	summary, err := s.chat.Generate(c.Request().Context(), []aichat.Message{
		{Role: aichat.RoleUser, Content: prompt},
	})
	if err != nil {
		return c.JSON(http.StatusOK, errResult("failed to generate summary: "+err.Error()))
	}
	return c.JSON(http.StatusOK, summarizeResult{Success: true, Summary: &summary})
}

// chatBody is the POST /api/ai/chat body, grounded on ai.rs's ChatRequest.
type chatBody struct {
	FilePath            string           `json:"file_path"`
	Message             string           `json:"message"`
	ConversationHistory []aichat.Message `json:"conversation_history"`
}

type chatResult struct {
	Success bool    `json:"success"`
	Message *string `json:"message,omitempty"`
	Error   *string `json:"error,omitempty"`
}

func chatErrResult(msg string) chatResult { return chatResult{Success: false, Error: &msg} }

func (s *Server) handleAIChat(c echo.Context) error {
	var body chatBody
	if err := c.Bind(&body); err != nil || body.FilePath == "" || body.Message == "" {
		return c.JSON(http.StatusOK, chatErrResult("file_path and message are required"))
	}

	if !s.cfg.AIFeaturesEnabled {
		return c.JSON(http.StatusOK, chatErrResult("AI features are disabled in settings"))
	}
	if s.chat == nil {
		return c.JSON(http.StatusOK, chatErrResult("no chat provider configured"))
	}

	content, err := extractAIContent(body.FilePath)
	if err != nil {
		return c.JSON(http.StatusOK, chatErrResult("failed to read file: "+err.Error()))
	}
	if strings.TrimSpace(content) == "" {
		return c.JSON(http.StatusOK, chatErrResult("file is empty or cannot be read"))
	}

	messages := make([]aichat.Message, 0, len(body.ConversationHistory)+2)
	messages = append(messages, aichat.Message{
		Role:    aichat.RoleSystem,
		Content: "You are a helpful assistant. The user is asking questions about the following document. Use the document content to answer their questions accurately.\n\nDocument content:\n" + content,
	})
	messages = append(messages, body.ConversationHistory...)
	messages = append(messages, aichat.Message{Role: aichat.RoleUser, Content: body.Message})

	reply, err := s.chat.Generate(c.Request().Context(), messages)
	if err != nil {
		return c.JSON(http.StatusOK, chatErrResult("failed to generate reply: "+err.Error()))
	}
	return c.JSON(http.StatusOK, chatResult{Success: true, Message: &reply})
}

// extractAIContent reads a file's text the same way the indexer would,
// falling back to a default registry so AI chat/summarize works even on a
// file whose type the configured FileTypeFilters would otherwise skip for
// indexing — summarizing a file doesn't re-apply the indexing filters.
func extractAIContent(path string) (string, error) {
	reg := parsers.NewDefaultRegistry()
	if !reg.CanParse(path) {
		return "", nil
	}
	return reg.ExtractText(path)
}
