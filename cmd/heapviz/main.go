// Command heapviz is a bubbletea diagnostic dashboard over a running
// Runtime's heap.Stats(): allocated vs. threshold bytes, block/free
// counts, and the static size-class table. It polls on a timer rather
// than subscribing to a push channel, since heap.Heap exposes Stats()
// as a point-in-time snapshot rather than a stream.
package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"github.com/Starlight-JS/starlight-sub002/heap"
	"github.com/Starlight-JS/starlight-sub002/runtime"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	goodStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#90EE90"))
	warnStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFD27F"))
	hotStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B"))
	helpStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#666666"))
)

type tickMsg time.Time

type model struct {
	h        *heap.Heap
	stats    heap.Stats
	classes  []int
	width    int
	interval time.Duration
	bar      progress.Model
}

func newModel(h *heap.Heap, interval time.Duration) *model {
	w, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || w <= 0 {
		w = 80
	}
	return &model{
		h:        h,
		stats:    h.Stats(),
		classes:  h.SizeClasses(),
		width:    w,
		interval: interval,
		bar:      progress.New(progress.WithDefaultGradient()),
	}
}

func (m *model) scheduleTick() tea.Cmd {
	return tea.Tick(m.interval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m *model) Init() tea.Cmd {
	return m.scheduleTick()
}

func (m *model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.bar.Width = msg.Width - 2
		return m, nil
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		}
	case tickMsg:
		m.stats = m.h.Stats()
		return m, m.scheduleTick()
	}
	return m, nil
}

func (m *model) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("heapviz") + "\n\n")

	st := m.stats
	frac := 0.0
	if st.Threshold > 0 {
		frac = float64(st.AllocatedBytes) / float64(st.Threshold)
	}
	b.WriteString(labelStyle.Render("allocated") + fmt.Sprintf(" %d / %d bytes\n", st.AllocatedBytes, st.Threshold))
	b.WriteString(m.bar.ViewAs(frac) + "\n\n")

	fmt.Fprintf(&b, "%s %d   %s %d   %s %d\n",
		labelStyle.Render("cycles"), st.CycleCount,
		labelStyle.Render("evacuations"), st.EvacuationCount,
		labelStyle.Render("live cells"), st.LiveCells)
	freeStyle := goodStyle
	switch {
	case st.BlockCount > 0 && st.FreeBlockCount == 0:
		freeStyle = hotStyle
	case st.BlockCount > 0 && float64(st.FreeBlockCount)/float64(st.BlockCount) < 0.1:
		freeStyle = warnStyle
	}
	fmt.Fprintf(&b, "%s %d   %s %s   %s %d (%d bytes)\n\n",
		labelStyle.Render("blocks"), st.BlockCount,
		labelStyle.Render("free blocks"), freeStyle.Render(fmt.Sprintf("%d", st.FreeBlockCount)),
		labelStyle.Render("large objects"), st.LargeObjectCount, st.LargeObjectBytes)

	b.WriteString(labelStyle.Render("size classes") + "\n")
	for i, c := range m.classes {
		if i > 0 && i%8 == 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "%6d", c)
	}
	b.WriteString("\n\n")
	b.WriteString(helpStyle.Render("q to quit"))
	return b.String()
}

func main() {
	interval := 500 * time.Millisecond
	rt, err := runtime.New(runtime.Options{VerboseGC: true})
	if err != nil {
		fmt.Fprintf(os.Stderr, "creating runtime: %v\n", err)
		os.Exit(1)
	}

	p := tea.NewProgram(newModel(rt.Heap(), interval), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "heapviz: %v\n", err)
		os.Exit(1)
	}
}
