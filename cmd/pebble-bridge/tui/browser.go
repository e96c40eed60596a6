package tui

import (
	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/marshallshelly/pebble-bridge/pkg/bridge"
)

// BrowseMode is the current screen of the browser.
type BrowseMode int

const (
	ModeList BrowseMode = iota
	ModeDetail
)

// BrowserModel is the Bubbletea model for browsing tables and classes.
type BrowserModel struct {
	mode   BrowseMode
	list   list.Model
	detail DetailView
	width  int
	height int
}

// NewBrowserModel creates a browser over d.
func NewBrowserModel(d bridge.Description) BrowserModel {
	byTable := make(map[string]*bridge.ClassInfo, len(d.Classes))
	for i := range d.Classes {
		c := &d.Classes[i]
		if _, taken := byTable[c.Table]; !taken {
			byTable[c.Table] = c
		}
	}

	items := make([]list.Item, len(d.Tables))
	for i, t := range d.Tables {
		items[i] = TableItem{Table: t, Class: byTable[t.Name]}
	}

	l := list.New(items, TableItemDelegate{}, 0, 0)
	l.Title = "Tables"
	l.SetShowStatusBar(false)
	l.SetFilteringEnabled(true)
	l.Styles.Title = titleStyle

	return BrowserModel{mode: ModeList, list: l}
}

// Init initializes the model
func (m BrowserModel) Init() tea.Cmd {
	return tea.EnterAltScreen
}

// Update handles messages
func (m BrowserModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.list.SetSize(msg.Width-4, msg.Height-6)
		return m, nil

	case tea.KeyMsg:
		switch m.mode {
		case ModeList:
			if m.list.FilterState() == list.Filtering {
				break
			}
			switch msg.String() {
			case "ctrl+c", "q":
				return m, tea.Quit
			case "enter", " ":
				if item, ok := m.list.SelectedItem().(TableItem); ok {
					m.detail = DetailView{Item: item}
					m.mode = ModeDetail
				}
				return m, nil
			}

		case ModeDetail:
			switch msg.String() {
			case "ctrl+c", "q":
				return m, tea.Quit
			case "esc", "backspace", "enter":
				m.mode = ModeList
				return m, nil
			}
			return m, nil
		}
	}

	if m.mode == ModeList {
		var cmd tea.Cmd
		m.list, cmd = m.list.Update(msg)
		return m, cmd
	}
	return m, nil
}

// View renders the UI
func (m BrowserModel) View() string {
	switch m.mode {
	case ModeDetail:
		help := helpStyle.Render(FormatKey("esc", "back") + " • " + FormatKey("q", "quit"))
		return lipgloss.Place(
			m.width,
			m.height,
			lipgloss.Center,
			lipgloss.Center,
			lipgloss.JoinVertical(lipgloss.Left, m.detail.View(), help),
		)
	default:
		help := helpStyle.Render(
			FormatKey("↑/↓", "navigate") + " • " +
				FormatKey("/", "filter") + " • " +
				FormatKey("enter", "details") + " • " +
				FormatKey("q", "quit"),
		)
		return lipgloss.JoinVertical(lipgloss.Left, m.list.View(), help)
	}
}

// RunBrowser starts the interactive table browser.
func RunBrowser(d bridge.Description) error {
	p := tea.NewProgram(NewBrowserModel(d))
	_, err := p.Run()
	return err
}
