package main

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"bouncelight/internal/journal"
	"bouncelight/internal/motion"
)

var (
	historyHeaderStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("252")).Padding(0, 1)
	historyCellStyle   = lipgloss.NewStyle().Padding(0, 1)
	historyExplode     = lipgloss.NewStyle().Padding(0, 1).Foreground(lipgloss.Color("#dc7f1f")).Bold(true)
	historyBorderStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
)

// writeHistory prints the most recent transitions, newest first, followed by
// the total explosion count.
func writeHistory(ctx context.Context, w io.Writer, store *journal.Store, limit int) error {
	rows, err := store.Recent(ctx, limit)
	if err != nil {
		return err
	}
	explosions, err := store.CountTo(ctx, motion.Explode)
	if err != nil {
		return err
	}

	if len(rows) == 0 {
		_, err := fmt.Fprintln(w, "no transitions recorded")
		return err
	}

	fmt.Fprintln(w, historyTable(rows).Render())
	_, err = fmt.Fprintf(w, "explosions: %d\n", explosions)
	return err
}

func historyTable(rows []journal.Transition) *table.Table {
	data := make([][]string, 0, len(rows))
	for _, tr := range rows {
		data = append(data, []string{
			strconv.FormatInt(tr.ID, 10),
			tr.RecordedAt.Local().Format(time.DateTime),
			strconv.FormatUint(uint64(tr.At), 10),
			tr.From.String(),
			tr.To.String(),
			strconv.FormatFloat(tr.Position, 'f', 2, 64),
			strconv.FormatFloat(tr.Speed, 'f', 5, 64),
		})
	}

	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(historyBorderStyle).
		Headers("ID", "RECORDED", "AT MS", "FROM", "TO", "POSITION", "SPEED").
		Rows(data...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return historyHeaderStyle
			case row >= 0 && row < len(data) && col == 4 && data[row][4] == motion.Explode.String():
				return historyExplode
			default:
				return historyCellStyle
			}
		})
}
