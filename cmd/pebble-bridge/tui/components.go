package tui

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/marshallshelly/pebble-bridge/pkg/bridge"
)

// TableItem is a table in the browser list, with the class mapped onto it.
type TableItem struct {
	Table bridge.TableInfo
	Class *bridge.ClassInfo
}

func (i TableItem) FilterValue() string { return i.Table.Name }
func (i TableItem) Title() string {
	if i.Class == nil {
		return i.Table.Name
	}
	return fmt.Sprintf("%s → %s", i.Table.Name, i.Class.Name)
}
func (i TableItem) Description() string {
	rels := 0
	if i.Class != nil {
		rels = len(i.Class.Relationships)
	}
	return mutedStyle.Render(fmt.Sprintf("%d columns, %d relationships", len(i.Table.Columns), rels))
}

// TableItemDelegate renders TableItems.
type TableItemDelegate struct{}

func (d TableItemDelegate) Height() int                             { return 2 }
func (d TableItemDelegate) Spacing() int                            { return 1 }
func (d TableItemDelegate) Update(_ tea.Msg, _ *list.Model) tea.Cmd { return nil }
func (d TableItemDelegate) Render(w io.Writer, m list.Model, index int, item list.Item) {
	i, ok := item.(TableItem)
	if !ok {
		return
	}

	var s string
	if index == m.Index() {
		s = selectedItemStyle.Render("▸ " + i.Title() + "\n  " + i.Description())
	} else {
		s = unselectedItemStyle.Render("  " + i.Title() + "\n  " + i.Description())
	}

	_, _ = fmt.Fprint(w, s)
}

// DetailView renders one table with its columns and relationships.
type DetailView struct {
	Item TableItem
}

// View renders the detail view
func (v DetailView) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render(v.Item.Table.Name))
	b.WriteString("\n")
	if v.Item.Class != nil {
		b.WriteString(subtitleStyle.Render(fmt.Sprintf("class %s, reads from %s", v.Item.Class.Name, v.Item.Class.Alias)))
		b.WriteString("\n\n")
	}

	for _, c := range v.Item.Table.Columns {
		name := c.Name
		if c.PrimaryKey {
			name = pkStyle.Render(name)
		}
		line := fmt.Sprintf("  %-24s %s", name, c.Type)
		if c.Nullable {
			line += mutedStyle.Render(" null")
		}
		if c.References != "" {
			line += " " + refStyle.Render("→ "+c.References)
		}
		b.WriteString(line + "\n")
	}

	if v.Item.Class != nil && len(v.Item.Class.Relationships) > 0 {
		b.WriteString("\n")
		for _, r := range v.Item.Class.Relationships {
			b.WriteString(infoStyle.Render("  "+r.Key) + fmt.Sprintf(" → %s (%s)\n", r.Target, r.Direction))
			b.WriteString(mutedStyle.Render("    on "+r.Join) + "\n")
			if r.Secondary != "" {
				b.WriteString(mutedStyle.Render(fmt.Sprintf("    via %s on %s", r.Secondary, r.SecondaryJoin)) + "\n")
			}
		}
	}

	return boxStyle.Render(b.String())
}
