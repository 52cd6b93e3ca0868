package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"todo-sync/app/views"
)

func ac(light, dark string) lipgloss.AdaptiveColor {
	return lipgloss.AdaptiveColor{Light: light, Dark: dark}
}

var (
	idStyle      = lipgloss.NewStyle().Foreground(ac("240", "243"))
	doneStyle    = lipgloss.NewStyle().Foreground(ac("246", "240")).Strikethrough(true)
	overdueStyle = lipgloss.NewStyle().Foreground(ac("160", "203")).Bold(true)
	dueStyle     = lipgloss.NewStyle().Foreground(ac("27", "75"))
	parentStyle  = lipgloss.NewStyle().Foreground(ac("240", "245")).Italic(true)
	emptyStyle   = lipgloss.NewStyle().Foreground(ac("240", "243")).Italic(true)

	// The default priority is not shown.
	priorityStyles = map[int]lipgloss.Style{
		1: lipgloss.NewStyle().Foreground(ac("160", "203")).Bold(true),
		2: lipgloss.NewStyle().Foreground(ac("166", "215")),
		3: lipgloss.NewStyle().Foreground(ac("27", "75")),
	}
)

// renderList formats view rows, one per line, subtasks indented.
func renderList(items []views.Item, now time.Time) string {
	if len(items) == 0 {
		return emptyStyle.Render("nothing here") + "\n"
	}
	var b strings.Builder
	for _, it := range items {
		b.WriteString(renderRow(it, now, ""))
		for _, sub := range it.Subtasks {
			b.WriteString(renderRow(sub, now, "    "))
		}
	}
	return b.String()
}

func renderRow(it views.Item, now time.Time, indent string) string {
	t := it.Task
	box := "[ ]"
	title := t.Title
	if t.IsDone {
		box = "[x]"
		title = doneStyle.Render(title)
	}

	parts := []string{indent + box, idStyle.Render(shortID(it.Ref.ID())), title}
	if st, ok := priorityStyles[t.Priority]; ok {
		parts = append(parts, st.Render(fmt.Sprintf("p%d", t.Priority)))
	}
	if t.Deadline != nil {
		due := t.Deadline.String()
		if t.ReminderAt != nil {
			due += " " + t.ReminderAt.String()
		}
		if views.IsOverdue(t, now) {
			parts = append(parts, overdueStyle.Render(due))
		} else {
			parts = append(parts, dueStyle.Render(due))
		}
	}
	if it.ParentTitle != "" {
		parts = append(parts, parentStyle.Render("in "+it.ParentTitle))
	}
	return strings.Join(parts, " ") + "\n"
}

// shortID abbreviates server ids for display. Any unique prefix resolves.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
