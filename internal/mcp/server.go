// Package mcp exposes a notebook Service as MCP tools.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	mcplib "github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	. "github.com/roelfdiedericks/notebooklm-mcp/internal/logging"
	"github.com/roelfdiedericks/notebooklm-mcp/internal/notebook"
)

// ServerName is reported to MCP clients during initialization.
const ServerName = "notebooklm-mcp"

// Notebook is the subset of *notebook.Service the tools call.
type Notebook interface {
	Health(ctx context.Context, checkAuth bool) notebook.Health
	Send(ctx context.Context, message string, wait bool, maxWait time.Duration, format string) (notebook.SendResult, error)
	Response(ctx context.Context, req notebook.ResponseRequest) (notebook.Response, error)
	Chat(ctx context.Context, message, notebookID string, maxWait time.Duration, format string) (notebook.ChatResult, error)
	Navigate(ctx context.Context, notebookID string) (string, error)
	DefaultNotebook() string
	SetDefaultNotebook(notebookID string, persist bool) (string, error)
}

type handler = server.ToolHandlerFunc

type toolDef struct {
	tool    mcplib.Tool
	handler handler
}

// NewServer creates an MCP server with every notebook tool registered.
func NewServer(nb Notebook, version string) *server.MCPServer {
	srv := server.NewMCPServer(ServerName, version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
	)
	Register(srv, nb)
	return srv
}

// Register adds the notebook tools to srv.
func Register(srv *server.MCPServer, nb Notebook) {
	for _, def := range toolDefs(&tools{nb: nb}) {
		srv.AddTool(def.tool, logged(def.tool.Name, def.handler))
	}
}

func formatOption() mcplib.ToolOption {
	return mcplib.WithString("format",
		mcplib.Enum(notebook.FormatText, notebook.FormatMarkdown),
		mcplib.Description("Response format: text (default) or markdown"),
	)
}

func toolDefs(t *tools) []toolDef {
	return []toolDef{
		{
			tool: mcplib.NewTool("healthcheck",
				mcplib.WithDescription("Check that the server and its browser session are up. With check_auth the notebook is opened to confirm the browser is signed in."),
				mcplib.WithBoolean("check_auth",
					mcplib.Description("Also verify the Google sign-in (slower)"),
				),
			),
			handler: t.healthcheck,
		},
		{
			tool: mcplib.NewTool("send_chat_message",
				mcplib.WithDescription("Send a message to the current notebook chat, optionally waiting for the answer."),
				mcplib.WithString("message",
					mcplib.Required(),
					mcplib.Description("The message to send"),
				),
				mcplib.WithBoolean("wait_for_response",
					mcplib.DefaultBool(true),
					mcplib.Description("Wait for the streamed answer to finish"),
				),
				mcplib.WithNumber("timeout",
					mcplib.Description("Seconds to wait for the answer (default from config)"),
				),
				formatOption(),
			),
			handler: t.sendChatMessage,
		},
		{
			tool: mcplib.NewTool("get_chat_response",
				mcplib.WithDescription("Wait for the latest answer in the chat to stop changing and return it."),
				mcplib.WithNumber("timeout",
					mcplib.DefaultNumber(60),
					mcplib.Description("Seconds to wait for the answer to settle"),
				),
				formatOption(),
			),
			handler: t.getChatResponse,
		},
		{
			tool: mcplib.NewTool("get_quick_response",
				mcplib.WithDescription("Return the latest answer as it is right now, without waiting."),
				formatOption(),
			),
			handler: t.getQuickResponse,
		},
		{
			tool: mcplib.NewTool("chat_with_notebook",
				mcplib.WithDescription("Send a message and wait for the answer, optionally switching notebook first."),
				mcplib.WithString("message",
					mcplib.Required(),
					mcplib.Description("The message to send"),
				),
				mcplib.WithString("notebook_id",
					mcplib.Description("Notebook to open first; the current one when empty"),
				),
				mcplib.WithNumber("timeout",
					mcplib.Description("Seconds to wait for the answer (default from config)"),
				),
				formatOption(),
			),
			handler: t.chatWithNotebook,
		},
		{
			tool: mcplib.NewTool("navigate_to_notebook",
				mcplib.WithDescription("Open a notebook by id."),
				mcplib.WithString("notebook_id",
					mcplib.Required(),
					mcplib.Description("Notebook id from the NotebookLM URL"),
				),
			),
			handler: t.navigateToNotebook,
		},
		{
			tool: mcplib.NewTool("get_default_notebook",
				mcplib.WithDescription("Return the notebook id new sessions open."),
			),
			handler: t.getDefaultNotebook,
		},
		{
			tool: mcplib.NewTool("set_default_notebook",
				mcplib.WithDescription("Change the notebook id new sessions open."),
				mcplib.WithString("notebook_id",
					mcplib.Required(),
					mcplib.Description("Notebook id from the NotebookLM URL"),
				),
				mcplib.WithBoolean("persist",
					mcplib.Description("Also write it to the config file"),
				),
			),
			handler: t.setDefaultNotebook,
		},
	}
}

type ctxKey struct{}

// RequestID returns the id logged for the tool call carried by ctx.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}

func logged(name string, h handler) handler {
	return func(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
		id := uuid.NewString()
		ctx = context.WithValue(ctx, ctxKey{}, id)
		start := time.Now()
		L_info("mcp: tool call", "tool", name, "request", id)

		res, err := h(ctx, req)
		if err != nil {
			L_error("mcp: tool failed", "tool", name, "request", id, "error", err)
			return res, err
		}
		if res != nil && res.IsError {
			L_elapsed(start, "mcp: tool returned error", "tool", name, "request", id)
		} else {
			L_elapsed(start, "mcp: tool done", "tool", name, "request", id)
		}
		return res, nil
	}
}

type tools struct {
	nb Notebook
}

// ErrorBody is the JSON carried by error results.
type ErrorBody struct {
	Status  string        `json:"status"`
	Kind    notebook.Kind `json:"kind"`
	Message string        `json:"message"`
	Detail  string        `json:"detail,omitempty"`
	Request string        `json:"request_id,omitempty"`
}

func jsonResult(v any) (*mcplib.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode result: %w", err)
	}
	return mcplib.NewToolResultText(string(data)), nil
}

func errorResult(ctx context.Context, err error) *mcplib.CallToolResult {
	body := ErrorBody{
		Status:  "error",
		Kind:    notebook.KindOf(err),
		Message: notebook.MessageOf(err),
		Detail:  err.Error(),
		Request: RequestID(ctx),
	}
	if body.Detail == body.Message {
		body.Detail = ""
	}
	data, _ := json.Marshal(body)
	return mcplib.NewToolResultError(string(data))
}

func invalidArgs(err error) *mcplib.CallToolResult {
	data, _ := json.Marshal(ErrorBody{Status: "error", Kind: "invalid_arguments", Message: err.Error()})
	return mcplib.NewToolResultError(string(data))
}

func seconds(req mcplib.CallToolRequest, key string) time.Duration {
	n := req.GetInt(key, 0)
	if n <= 0 {
		return 0
	}
	return time.Duration(n) * time.Second
}

func (t *tools) healthcheck(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	return jsonResult(t.nb.Health(ctx, req.GetBool("check_auth", false)))
}

func (t *tools) sendChatMessage(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	msg, err := req.RequireString("message")
	if err != nil {
		return invalidArgs(err), nil
	}
	res, err := t.nb.Send(ctx, msg,
		req.GetBool("wait_for_response", true),
		seconds(req, "timeout"),
		req.GetString("format", notebook.FormatText),
	)
	if err != nil {
		return errorResult(ctx, err), nil
	}
	return jsonResult(res)
}

type responseBody struct {
	Status   string `json:"status"`
	Response string `json:"response"`
	Complete bool   `json:"complete"`
	Polls    int    `json:"polls"`
	Format   string `json:"format"`
	Note     string `json:"note,omitempty"`
}

func newResponseBody(r notebook.Response) responseBody {
	body := responseBody{
		Status:   "success",
		Response: r.Text,
		Complete: r.Complete,
		Polls:    r.Polls,
		Format:   r.Format,
	}
	if !r.Complete {
		body.Note = "the answer may still be streaming; call get_chat_response again for the rest"
	}
	return body
}

func (t *tools) getChatResponse(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	resp, err := t.nb.Response(ctx, notebook.ResponseRequest{
		Wait:    true,
		MaxWait: seconds(req, "timeout"),
		Format:  req.GetString("format", notebook.FormatText),
	})
	if err != nil {
		return errorResult(ctx, err), nil
	}
	return jsonResult(newResponseBody(resp))
}

func (t *tools) getQuickResponse(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	resp, err := t.nb.Response(ctx, notebook.ResponseRequest{
		Format: req.GetString("format", notebook.FormatText),
	})
	if err != nil {
		return errorResult(ctx, err), nil
	}
	return jsonResult(newResponseBody(resp))
}

func (t *tools) chatWithNotebook(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	msg, err := req.RequireString("message")
	if err != nil {
		return invalidArgs(err), nil
	}
	res, err := t.nb.Chat(ctx, msg,
		req.GetString("notebook_id", ""),
		seconds(req, "timeout"),
		req.GetString("format", notebook.FormatText),
	)
	if err != nil {
		return errorResult(ctx, err), nil
	}
	return jsonResult(struct {
		Status     string `json:"status"`
		Message    string `json:"message"`
		NotebookID string `json:"notebook_id"`
		responseBody
	}{"success", res.Message, res.NotebookID, newResponseBody(res.Response)})
}

func (t *tools) navigateToNotebook(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	id, err := req.RequireString("notebook_id")
	if err != nil {
		return invalidArgs(err), nil
	}
	url, err := t.nb.Navigate(ctx, id)
	if err != nil {
		return errorResult(ctx, err), nil
	}
	return jsonResult(map[string]string{
		"status":      "success",
		"notebook_id": id,
		"url":         url,
	})
}

func (t *tools) getDefaultNotebook(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	return jsonResult(map[string]string{
		"status":      "success",
		"notebook_id": t.nb.DefaultNotebook(),
	})
}

func (t *tools) setDefaultNotebook(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	id, err := req.RequireString("notebook_id")
	if err != nil {
		return invalidArgs(err), nil
	}
	persist := req.GetBool("persist", false)
	old, err := t.nb.SetDefaultNotebook(id, persist)
	if err != nil {
		return errorResult(ctx, err), nil
	}
	return jsonResult(map[string]any{
		"status":       "success",
		"old_notebook": old,
		"new_notebook": id,
		"persisted":    persist,
	})
}
