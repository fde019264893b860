package display

import (
	"strconv"
	"strings"
	"sync"

	"github.com/jusunglee/subway-board/internal/models"
)

// Page is one line's arrivals in both directions
type Page struct {
	Line models.LineID
	Up   *models.StationArrival
	Down *models.StationArrival
}

// String renders a page the way the matrix shows it, e.g. "F: ↑4 ↓5"
func (p Page) String() string {
	var b strings.Builder
	b.WriteString(string(p.Line))
	b.WriteString(":")
	if p.Up != nil {
		b.WriteString(" ↑" + strconv.Itoa(p.Up.Minutes()))
	}
	if p.Down != nil {
		b.WriteString(" ↓" + strconv.Itoa(p.Down.Minutes()))
	}
	return b.String()
}

// Pages splits a board into one page per line, in line order
func Pages(board models.ArrivalBoard) []Page {
	var pages []Page
	for _, line := range board.Lines() {
		p := Page{Line: line}
		if a, ok := board.Get(line, models.North); ok {
			p.Up = &a
		}
		if a, ok := board.Get(line, models.South); ok {
			p.Down = &a
		}
		pages = append(pages, p)
	}
	return pages
}

// Pager cycles through pages. Refreshing the board keeps the page that
// was about to be shown when its line is still on the board.
type Pager struct {
	mu    sync.Mutex
	pages []Page
	next  int
}

// NewPager creates an empty pager
func NewPager() *Pager {
	return &Pager{}
}

// Update replaces the pages from board
func (p *Pager) Update(board models.ArrivalBoard) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var current models.LineID
	if p.next < len(p.pages) {
		current = p.pages[p.next].Line
	}

	p.pages = Pages(board)
	p.next = 0
	for i, page := range p.pages {
		if page.Line == current {
			p.next = i
			break
		}
	}
}

// Next returns the page to show and advances. ok is false when there is nothing to show.
func (p *Pager) Next() (page Page, index, total int, ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.pages) == 0 {
		return Page{}, 0, 0, false
	}
	if p.next >= len(p.pages) {
		p.next = 0
	}

	index = p.next
	page = p.pages[index]
	p.next = (p.next + 1) % len(p.pages)
	return page, index, len(p.pages), true
}
