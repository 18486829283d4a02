// Package picker offers an interactive, filterable list of inventory hosts.
package picker

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/treykane/ansible-ssh/internal/inventory"
	"github.com/treykane/ansible-ssh/internal/sshargs"
	"github.com/treykane/ansible-ssh/internal/util"
)

var (
	docStyle   = lipgloss.NewStyle().Margin(1, 2)
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FAFAFA")).Background(lipgloss.Color("#7D56F4")).Padding(0, 1)
)

// Item is one selectable host.
type Item struct {
	Host   string
	Vars   inventory.Vars
	Recent bool
}

func (i Item) Title() string {
	if i.Recent {
		return i.Host + " •"
	}
	return i.Host
}

func (i Item) Description() string {
	address, _ := sshargs.FieldAddress.Lookup(i.Vars)
	port, _ := sshargs.FieldPort.Lookup(i.Vars)
	user, _ := sshargs.FieldUser.Lookup(i.Vars)
	desc := util.DefaultString(address, i.Host)
	if user != "" {
		desc = user + "@" + desc
	}
	if port != "" {
		desc += ":" + port
	}
	return desc
}

func (i Item) FilterValue() string {
	address, _ := sshargs.FieldAddress.Lookup(i.Vars)
	return strings.TrimSpace(i.Host + " " + address)
}

// Model is the bubbletea model behind Run.
type Model struct {
	list     list.Model
	choice   string
	quitting bool
}

// NewModel builds the picker for hosts, in the given order.
func NewModel(title string, hosts []string, listing inventory.Listing, lastUsed map[string]int64) Model {
	items := make([]list.Item, 0, len(hosts))
	for _, h := range hosts {
		items = append(items, Item{Host: h, Vars: listing[h], Recent: lastUsed[h] > 0})
	}
	l := list.New(items, list.NewDefaultDelegate(), 0, 0)
	l.Title = title
	l.Styles.Title = titleStyle
	l.SetStatusBarItemName("host", "hosts")
	return Model{list: l}
}

func (m Model) Init() tea.Cmd {
	return nil
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		h, v := docStyle.GetFrameSize()
		m.list.SetSize(msg.Width-h, msg.Height-v)
		return m, nil
	case tea.KeyMsg:
		if m.list.FilterState() == list.Filtering {
			break
		}
		switch msg.String() {
		case "enter":
			if it, ok := m.list.SelectedItem().(Item); ok {
				m.choice = it.Host
			}
			return m, tea.Quit
		case "q", "esc", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		}
	}
	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m Model) View() string {
	if m.choice != "" || m.quitting {
		return ""
	}
	return docStyle.Render(m.list.View())
}

// Choice returns the selected host, or "" when the user cancelled.
func (m Model) Choice() string {
	return m.choice
}

// Run shows the picker on the terminal and returns the chosen host. An empty
// result with a nil error means the user cancelled.
func Run(title string, hosts []string, listing inventory.Listing, lastUsed map[string]int64, in io.Reader, out io.Writer) (string, error) {
	if len(hosts) == 0 {
		return "", fmt.Errorf("inventory has no hosts to pick from")
	}
	p := tea.NewProgram(NewModel(title, hosts, listing, lastUsed), tea.WithAltScreen(), tea.WithInput(in), tea.WithOutput(out))
	final, err := p.Run()
	if err != nil {
		return "", err
	}
	m, ok := final.(Model)
	if !ok {
		return "", nil
	}
	return m.Choice(), nil
}
