package gateway

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/rahul/exoscope/internal/agent"
	"github.com/rahul/exoscope/internal/cache"
	"github.com/rahul/exoscope/internal/render"
	"github.com/rahul/exoscope/internal/store"
)

const (
	maxPreviewColumns = 5
	maxCellChars      = 40
)

const chatHelp = "Commands:\n" +
	"/tables - list the datasets\n" +
	"/table <name> - choose the dataset to ask about\n" +
	"/page <query id> <n> - show page n of an earlier result\n" +
	"/reset - forget this conversation\n\n" +
	"Then just ask, for example \"show top 5 rows\" or \"plot histogram of pl_orbper\"."

// Reply is what a chat gateway sends back for one message.
type Reply struct {
	Text string
	// ImagePath points at a rendered chart to attach, when one exists on disk.
	ImagePath string
}

// ChatSessions remembers which table each chat is talking about.
type ChatSessions struct {
	mu     sync.RWMutex
	tables map[string]string
	// Default is used for chats that never picked a table. Empty means ask first.
	Default string
}

func NewChatSessions(defaultTable string) *ChatSessions {
	return &ChatSessions{
		tables:  make(map[string]string),
		Default: defaultTable,
	}
}

func (s *ChatSessions) Table(chatID string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if t, ok := s.tables[chatID]; ok {
		return t
	}
	return s.Default
}

func (s *ChatSessions) SetTable(chatID, table string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tables[chatID] = table
}

// HandleChat runs one chat message: either a slash command or a question for the assistant.
func HandleChat(ctx context.Context, a Assistant, sessions *ChatSessions, chatID, text string) Reply {
	text = strings.TrimSpace(text)
	fields := strings.Fields(text)
	if len(fields) > 0 && strings.HasPrefix(fields[0], "/") {
		// Telegram appends @botname to commands in groups.
		cmd := strings.ToLower(strings.SplitN(fields[0], "@", 2)[0])
		return handleCommand(ctx, a, sessions, chatID, cmd, fields[1:])
	}

	env := a.Handle(ctx, agent.Request{
		Message: text,
		Table:   sessions.Table(chatID),
		Session: chatID,
	})
	return envelopeReply(env)
}

func handleCommand(ctx context.Context, a Assistant, sessions *ChatSessions, chatID, cmd string, args []string) Reply {
	switch cmd {
	case "/start", "/help":
		return Reply{Text: chatHelp}

	case "/tables":
		current := sessions.Table(chatID)
		var lines []string
		for _, t := range a.Tables() {
			marker := ""
			if t == current {
				marker = " (selected)"
			}
			lines = append(lines, "- "+t+marker)
		}
		return Reply{Text: "Datasets:\n" + strings.Join(lines, "\n")}

	case "/table":
		if len(args) != 1 {
			return Reply{Text: "Usage: /table <name>"}
		}
		table := strings.ToLower(args[0])
		if !contains(a.Tables(), table) {
			return Reply{Text: fmt.Sprintf("Unknown dataset %q. Try /tables.", args[0])}
		}
		sessions.SetTable(chatID, table)
		cols, err := a.Columns(ctx, table)
		if err != nil {
			return Reply{Text: fmt.Sprintf("Now using %s.", table)}
		}
		return Reply{Text: fmt.Sprintf("Now using %s (%d columns).", table, len(cols))}

	case "/reset":
		if err := a.ResetSession(ctx, chatID); err != nil {
			return Reply{Text: "Could not clear the conversation."}
		}
		return Reply{Text: "Conversation cleared."}

	case "/page":
		if len(args) != 2 {
			return Reply{Text: "Usage: /page <query id> <n>"}
		}
		n, err := strconv.Atoi(args[1])
		if err != nil || n < 1 {
			return Reply{Text: "Page numbers start at 1."}
		}
		page, err := a.FetchPage(args[0], n-1)
		if errors.Is(err, cache.ErrNotFound) {
			return Reply{Text: "That result has expired. Ask the question again."}
		}
		if err != nil {
			return Reply{Text: "Could not load that page."}
		}
		if len(page.Rows) == 0 {
			return Reply{Text: fmt.Sprintf("No rows on page %d (%d rows in total).", n, page.TotalCount)}
		}
		text := fmt.Sprintf("Page %d, rows %d-%d of %d:\n%s", n,
			(n-1)*page.PageSize+1, (n-1)*page.PageSize+len(page.Rows), page.TotalCount,
			formatRows(page.Columns, page.Rows))
		if page.HasNext {
			text += fmt.Sprintf("\n\nNext: /page %s %d", args[0], n+1)
		}
		return Reply{Text: text}
	}
	return Reply{Text: "Unknown command.\n\n" + chatHelp}
}

func envelopeReply(env agent.Envelope) Reply {
	parts := []string{env.Text}
	reply := Reply{}

	switch {
	case env.Plot != nil:
		if env.Plot.Kind == render.KindPNG && env.Plot.ImagePath != "" {
			reply.ImagePath = env.Plot.ImagePath
		} else {
			parts = append(parts, fmt.Sprintf("Chart %q is ready (%d points). Open query %s in the web view to see it.",
				env.Plot.Title, env.Plot.Points, env.QueryID))
		}
	case len(env.Data) > 0:
		preview := store.Head(env.Data, agent.PreviewRows)
		parts = append(parts, formatRows(env.Columns, preview))
		if len(env.Data) > len(preview) {
			parts = append(parts, fmt.Sprintf("Showing %d of %d rows. More: /page %s 2", len(preview), len(env.Data), env.QueryID))
		}
	}

	reply.Text = strings.Join(parts, "\n\n")
	return reply
}

// formatRows renders rows as numbered "column=value" lines, keeping the first few columns.
func formatRows(columns []string, rows []store.Row) string {
	if len(columns) == 0 && len(rows) > 0 {
		for c := range rows[0] {
			columns = append(columns, c)
		}
		sort.Strings(columns)
	}
	if len(columns) > maxPreviewColumns {
		columns = columns[:maxPreviewColumns]
	}

	var b strings.Builder
	for i, row := range rows {
		if i > 0 {
			b.WriteString("\n")
		}
		cells := make([]string, 0, len(columns))
		for _, c := range columns {
			cells = append(cells, c+"="+cell(row[c]))
		}
		fmt.Fprintf(&b, "%d. %s", i+1, strings.Join(cells, " | "))
	}
	return b.String()
}

func cell(v any) string {
	if v == nil {
		return "null"
	}
	s := fmt.Sprint(v)
	if r := []rune(s); len(r) > maxCellChars {
		s = string(r[:maxCellChars]) + "..."
	}
	return s
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// truncate caps text at limit runes for platforms with message size limits.
func truncate(text string, limit int) string {
	r := []rune(text)
	if len(r) <= limit {
		return text
	}
	return string(r[:limit-3]) + "..."
}
