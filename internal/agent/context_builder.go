// internal/agent/context_builder.go
package agent

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/xkilldash9x/pilot-cli/api/schemas"
	"github.com/xkilldash9x/pilot-cli/internal/vision"
)

// Role tags a conversation entry.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Entry is one role-tagged item of the conversation log.
type Entry struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// timestampLayout formats the observation time shown to the model.
const timestampLayout = "2006-01-02 15:04:05"

// maxPageTextExcerpt bounds, in runes, the readable page text carried by each snapshot entry.
const maxPageTextExcerpt = 500

// ContextBuilder accumulates the conversation for one task and renders it into a prompt.
// The system entry is fixed at construction; all other entries are append-only.
type ContextBuilder struct {
	system  Entry
	entries []Entry
	now     func() time.Time
}

// NewContextBuilder creates a builder for task. now supplies snapshot timestamps;
// nil means time.Now.
func NewContextBuilder(task string, now func() time.Time) *ContextBuilder {
	if now == nil {
		now = time.Now
	}
	return &ContextBuilder{
		system: Entry{Role: RoleSystem, Content: systemPrompt(task)},
		now:    now,
	}
}

// AddSnapshot appends one user entry describing the observed page.
func (b *ContextBuilder) AddSnapshot(snapshot *schemas.Snapshot) {
	var sb strings.Builder
	ts := snapshot.CapturedAt
	if ts.IsZero() {
		ts = b.now()
	}
	fmt.Fprintf(&sb, "Timestamp: %s\n", ts.Format(timestampLayout))
	fmt.Fprintf(&sb, "URL: %s\n", snapshot.URL)
	fmt.Fprintf(&sb, "Title: %s\n", snapshot.Title)

	if len(snapshot.Tabs) > 0 {
		sb.WriteString("Tabs:\n")
		for _, tab := range snapshot.Tabs {
			marker := ""
			if tab.Active {
				marker = " (active)"
			}
			fmt.Fprintf(&sb, "  - page_id=%d%s: %s (%s)\n", tab.PageID, marker, tab.Title, tab.URL)
		}
	}

	sb.WriteString("Interactive elements:\n")
	if len(snapshot.Elements) == 0 {
		sb.WriteString("  (none)\n")
	}
	for _, el := range snapshot.Elements {
		sb.WriteString(renderElement(el))
		sb.WriteByte('\n')
	}

	if text := strings.TrimSpace(snapshot.Text); text != "" {
		sb.WriteString("Page text:\n")
		sb.WriteString(excerpt(text, maxPageTextExcerpt))
		sb.WriteByte('\n')
	}

	if v := snapshot.Vision; v != nil {
		if detections := vision.TopDetections(v.Detections, vision.MaxPromptDetections); len(detections) > 0 {
			sb.WriteString("Vision detections:\n")
			for _, d := range detections {
				fmt.Fprintf(&sb, "  - %s (%.2f)\n", d.Class, d.Confidence)
			}
		}
		if regions := vision.TopTextRegions(v.TextRegions, vision.MaxPromptTextRegions); len(regions) > 0 {
			sb.WriteString("Vision text:\n")
			for _, r := range regions {
				fmt.Fprintf(&sb, "  - %q (%.2f)\n", r.Text, r.Confidence)
			}
		}
	}

	b.entries = append(b.entries, Entry{Role: RoleUser, Content: strings.TrimRight(sb.String(), "\n")})
}

// excerpt cuts s to at most n runes and marks the cut.
func excerpt(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}

// renderElement formats an element as [index]<tag attr="val" ...>text</tag>.
// Attributes are sorted by name so identical snapshots render identically.
func renderElement(el schemas.InteractiveElement) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "[%d]<%s", el.Index, el.Tag)

	keys := make([]string, 0, len(el.Attributes))
	for k := range el.Attributes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&sb, " %s=%q", k, el.Attributes[k])
	}

	fmt.Fprintf(&sb, ">%s</%s>", el.Text, el.Tag)
	return sb.String()
}

// AddDecision appends one assistant entry. Valid JSON is re-indented for readability;
// anything else is stored verbatim.
func (b *ContextBuilder) AddDecision(text string) {
	content := text
	trimmed := strings.TrimSpace(text)
	if json.Valid([]byte(trimmed)) {
		var buf bytes.Buffer
		if err := json.Indent(&buf, []byte(trimmed), "", "  "); err == nil {
			content = buf.String()
		}
	}
	b.entries = append(b.entries, Entry{Role: RoleAssistant, Content: content})
}

// AddActionResults appends a user entry reporting the outcome of a dispatched batch.
func (b *ContextBuilder) AddActionResults(step int, results []ActionResult) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Results of step %d:", step)
	if len(results) == 0 {
		sb.WriteString("\n  (no actions executed)")
	}
	for _, r := range results {
		switch {
		case r.Failed():
			fmt.Fprintf(&sb, "\n  - %s: ERROR [%s] %s", r.Action, r.ErrorCode, r.Error)
		case r.ExtractedContent != "" && !r.IsDone:
			fmt.Fprintf(&sb, "\n  - %s: %s\n%s", r.Action, r.Message, r.ExtractedContent)
		default:
			fmt.Fprintf(&sb, "\n  - %s: %s", r.Action, r.Message)
		}
	}
	b.entries = append(b.entries, Entry{Role: RoleUser, Content: sb.String()})
}

// AddFeedback appends a user entry explaining why the previous step produced no actions.
func (b *ContextBuilder) AddFeedback(text string) {
	b.entries = append(b.entries, Entry{Role: RoleUser, Content: "Feedback: " + text})
}

// RenderPrompt concatenates the system entry and every logged entry in order.
func (b *ContextBuilder) RenderPrompt() string {
	parts := make([]string, 0, len(b.entries)+1)
	parts = append(parts, b.system.Content)
	for _, e := range b.entries {
		parts = append(parts, e.Content)
	}
	return strings.Join(parts, "\n\n")
}

// Entries returns the full log, system entry first.
func (b *ContextBuilder) Entries() []Entry {
	out := make([]Entry, 0, len(b.entries)+1)
	out = append(out, b.system)
	return append(out, b.entries...)
}
