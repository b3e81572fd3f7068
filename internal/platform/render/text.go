package render

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/clinsys/clinsys/pkg/pagination"
)

// TextTable writes rows as aligned columns, for the command line.
type TextTable[T any] struct {
	layout Layout[T]
	w      io.Writer
	// IDs prints a leading id column when set.
	IDs func(T) int64
}

// NewTextTable creates a TextTable writing to w.
func NewTextTable[T any](w io.Writer, layout Layout[T]) *TextTable[T] {
	return &TextTable[T]{layout: layout, w: w}
}

// WithIDs prefixes every row with its identifier.
func (t *TextTable[T]) WithIDs(fn func(T) int64) *TextTable[T] {
	t.IDs = fn
	return t
}

func (t *TextTable[T]) RenderRows(rows []T) {
	if len(rows) == 0 {
		fmt.Fprintln(t.w, t.layout.Empty)
		return
	}

	tw := tabwriter.NewWriter(t.w, 0, 4, 2, ' ', 0)
	headers := t.layout.Headers
	if t.IDs != nil {
		headers = append([]string{"ID"}, headers...)
	}
	fmt.Fprintln(tw, strings.Join(headers, "\t"))
	for _, r := range rows {
		cells := t.layout.Cells(r)
		cols := make([]string, 0, len(cells)+1)
		if t.IDs != nil {
			cols = append(cols, fmt.Sprint(t.IDs(r)))
		}
		for _, c := range cells {
			cols = append(cols, oneLine(c.Text))
		}
		fmt.Fprintln(tw, strings.Join(cols, "\t"))
	}
	tw.Flush()
}

func (t *TextTable[T]) RenderPager(info pagination.Info) {
	fmt.Fprintln(t.w, info.Caption())
}

func oneLine(s string) string {
	r := []rune(strings.Join(strings.Fields(s), " "))
	if len(r) > 60 {
		return string(r[:57]) + "..."
	}
	return string(r)
}
