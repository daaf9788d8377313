package plot

import (
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/yitech/candlechart/protocol"
)

// ── styles ────────────────────────────────────────────────────────────────────

var (
	bullStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#26a641"))
	bearStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#e05c5c"))
	wickStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888"))
	axisStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#555555"))
	lineStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#4aa3df"))
	markStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#e5c07b"))
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#aaaaaa"))
)

const (
	yAxisWidth   = 11 // "  12345.67 │"
	headerRows   = 1
	volumeRows   = 3
	footerRows   = 3 // x-axis, time labels, key help
	minChartRows = 3
)

// Terminal renders frames as styled text for a bubbletea view. The last
// rendered frame is kept so View can be called at any time.
type Terminal struct {
	mu     sync.Mutex
	title  string
	width  int
	height int
	out    string
	draws  int
}

// NewTerminal creates a plotter with a header title such as "BTCUSDT 1m".
func NewTerminal(title string) *Terminal {
	return &Terminal{title: title}
}

// Resize sets the terminal dimensions used by the next Draw.
func (t *Terminal) Resize(width, height int) {
	t.mu.Lock()
	t.width, t.height = width, height
	t.mu.Unlock()
}

// String returns the last rendered frame.
func (t *Terminal) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.out
}

// Draws returns how many frames have been rendered.
func (t *Terminal) Draws() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.draws
}

// Locate maps a terminal cell to fractions of the plot area (0..1 from the
// left and from the top). ok is false outside the candle area.
func (t *Terminal) Locate(x, y int) (fx, fy float64, ok bool) {
	t.mu.Lock()
	w, h := t.width, t.height
	t.mu.Unlock()

	rows, cols := chartRows(h), w-yAxisWidth
	x -= yAxisWidth
	y -= headerRows
	if x < 0 || y < 0 || x >= cols || y >= rows || cols < 2 || rows < 2 {
		return 0, 0, false
	}
	return float64(x) / float64(cols-1), float64(y) / float64(rows-1), true
}

func chartRows(height int) int {
	return max(height-headerRows-volumeRows-footerRows, minChartRows)
}

// Draw renders f.
func (t *Terminal) Draw(f Frame) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.draws++
	if t.width == 0 {
		t.out = "connecting…"
		return
	}

	var b strings.Builder
	b.WriteString(t.renderHeader(f))
	b.WriteByte('\n')
	if !f.Viewport.Valid() {
		b.WriteString(axisStyle.Render("waiting for data…"))
		t.out = b.String()
		return
	}
	b.WriteString(t.renderChart(f))
	t.out = b.String()
}

// ── header ────────────────────────────────────────────────────────────────────

func (t *Terminal) renderHeader(f Frame) string {
	mode := string(f.ChartType)
	if f.IndicatorsVisible {
		mode += "+ind"
	}
	if !f.HasLast {
		return headerStyle.Render(fmt.Sprintf("%s  [%s]  no data", t.title, mode))
	}
	c := f.Last
	line := fmt.Sprintf("%s  [%s]  O:%.2f  H:%.2f  L:%.2f  C:%.2f  %d candles",
		t.title, mode, c.Open, c.High, c.Low, c.Close, f.Total)
	if f.HasPrice {
		line += fmt.Sprintf("  ▸ %.2f", f.Price)
	}
	return headerStyle.Render(line)
}

// ── chart ─────────────────────────────────────────────────────────────────────

func (t *Terminal) renderChart(f Frame) string {
	rows := chartRows(t.height)
	cols := max(t.width-yAxisWidth, 1)
	vp := f.Viewport

	grid := newGrid(rows, cols)
	for _, c := range f.Candles {
		x := timeToCol(c.Time, cols, vp.XMin, vp.XMax)
		if f.ChartType == protocol.Line {
			grid[priceToRow(c.Close, rows, vp.YMax, vp.YMin)][x] = lineStyle.Render("•")
			continue
		}
		renderCandle(grid, x, rows, vp.YMax, vp.YMin, c.Open, c.High, c.Low, c.Close)
	}
	if f.HasPrice && vp.Contains(f.Price) {
		r := priceToRow(f.Price, rows, vp.YMax, vp.YMin)
		for x := range grid[r] {
			if grid[r][x] == " " {
				grid[r][x] = markStyle.Render("┄")
			}
		}
	}

	var b strings.Builder
	for row := 0; row < rows; row++ {
		label := fmt.Sprintf("%9.2f │", rowToPrice(row, rows, vp.YMax, vp.YMin))
		b.WriteString(axisStyle.Render(label))
		b.WriteString(strings.Join(grid[row], ""))
		b.WriteByte('\n')
	}
	b.WriteString(renderVolumes(f, cols))

	// X-axis separator.
	b.WriteString(axisStyle.Render(strings.Repeat("─", yAxisWidth+cols)))
	b.WriteByte('\n')
	b.WriteString(renderTimeLabels(vp.XMin, vp.XMax, cols))
	b.WriteByte('\n')
	b.WriteString(axisStyle.Render("[+/-] zoom  [←/→] pan  [a] scale  [m] market  [t] type  [i] ind  [c] clear  [q] quit"))
	return b.String()
}

func newGrid(rows, cols int) [][]string {
	grid := make([][]string, rows)
	for r := range grid {
		grid[r] = make([]string, cols)
		for c := range grid[r] {
			grid[r][c] = " "
		}
	}
	return grid
}

// renderCandle paints one candle into column x.
func renderCandle(grid [][]string, x, rows int, hi, lo, open, high, low, cls float64) {
	style := bullStyle
	if cls < open {
		style = bearStyle
	}
	bodyTop := priceToRow(math.Max(open, cls), rows, hi, lo)
	bodyBot := priceToRow(math.Min(open, cls), rows, hi, lo)
	wickTop := priceToRow(high, rows, hi, lo)
	wickBot := priceToRow(low, rows, hi, lo)

	for row := wickTop; row <= wickBot; row++ {
		if row >= bodyTop && row <= bodyBot {
			grid[row][x] = style.Render("█")
		} else {
			grid[row][x] = wickStyle.Render("│")
		}
	}
}

func renderVolumes(f Frame, cols int) string {
	var peak float64
	for _, v := range f.Volumes {
		peak = math.Max(peak, v.Volume)
	}
	grid := newGrid(volumeRows, cols)
	if peak > 0 {
		for _, v := range f.Volumes {
			x := timeToCol(v.Time, cols, f.Viewport.XMin, f.Viewport.XMax)
			style := bullStyle
			if !v.Rising {
				style = bearStyle
			}
			h := int(math.Round(v.Volume / peak * volumeRows))
			for r := volumeRows - h; r < volumeRows; r++ {
				grid[r][x] = style.Render("▆")
			}
		}
	}
	var b strings.Builder
	for r := range grid {
		b.WriteString(axisStyle.Render(strings.Repeat(" ", yAxisWidth-1) + "│"))
		b.WriteString(strings.Join(grid[r], ""))
		b.WriteByte('\n')
	}
	return b.String()
}

// renderTimeLabels writes an HH:MM label every 12 columns. Times are read
// as Unix milliseconds.
func renderTimeLabels(xMin, xMax int64, cols int) string {
	const every = 12
	line := []rune(strings.Repeat(" ", yAxisWidth+cols))
	for c := 0; c+5 <= cols; c += every {
		ts := xMin + int64(float64(c)/float64(max(cols-1, 1))*float64(xMax-xMin))
		label := time.UnixMilli(ts).UTC().Format("15:04")
		copy(line[yAxisWidth+c:], []rune(label))
	}
	return axisStyle.Render(string(line))
}

// timeToCol converts a time to a grid column, clamped to the grid.
func timeToCol(ts int64, cols int, xMin, xMax int64) int {
	if xMax <= xMin || cols <= 1 {
		return 0
	}
	c := int(math.Round(float64(ts-xMin) / float64(xMax-xMin) * float64(cols-1)))
	return min(max(c, 0), cols-1)
}

// priceToRow converts a price to a grid row (0 = top = hi).
func priceToRow(price float64, rows int, hi, lo float64) int {
	if hi == lo {
		return rows / 2
	}
	r := int(math.Round((hi - price) / (hi - lo) * float64(rows-1)))
	return min(max(r, 0), rows-1)
}

// rowToPrice is the inverse of priceToRow.
func rowToPrice(row, rows int, hi, lo float64) float64 {
	if rows <= 1 {
		return hi
	}
	return hi - float64(row)/float64(rows-1)*(hi-lo)
}
