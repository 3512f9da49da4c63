package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/visionboost/portal/internal/nav"
)

// WriteMenu prints a rendered menu as an indented tree. Active entries are
// marked with "*", disabled ones with "(inactive)" and open groups with "-".
func WriteMenu(w io.Writer, items []nav.Item) error {
	return writeItems(w, items, 0)
}

func writeItems(w io.Writer, items []nav.Item, depth int) error {
	for _, item := range items {
		marker := " "
		switch {
		case item.IsGroup() && item.Open:
			marker = "-"
		case item.IsGroup():
			marker = "+"
		case item.Active:
			marker = "*"
		}
		line := strings.Repeat("  ", depth) + marker + " " + item.Label
		if item.Path != "" {
			line += "  " + item.Path
		}
		if item.Disabled {
			line += "  (inactive)"
		}
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
		if err := writeItems(w, item.Items, depth+1); err != nil {
			return err
		}
	}
	return nil
}
