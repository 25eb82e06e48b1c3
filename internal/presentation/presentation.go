// Package presentation renders statement results for the interactive
// client: a tablewriter.Table for anything tabular, and a short status
// line for everything else.
package presentation

import (
	"fmt"
	"io"

	"github.com/olekukonko/tablewriter"

	"github.com/clstatham/veris/exec/session"
	netproto "github.com/clstatham/veris/net"
	"github.com/clstatham/veris/types"
)

// Result renders one statement's session.Result to w.
func Result(w io.Writer, r session.Result) error {
	switch r.Kind {
	case session.Query:
		return queryTable(w, r.Columns, r.Rows)
	case session.ShowTables:
		return tableList(w, r.Tables)
	default:
		_, err := fmt.Fprintln(w, r.String())
		return err
	}
}

// Outcome renders one statement outcome as received over the wire (the
// client's view of a session.Result after its round trip through JSON).
func Outcome(w io.Writer, o netproto.StatementOutcome) error {
	return Result(w, session.Result{
		Kind:      o.Kind,
		Message:   o.Message,
		TableName: o.TableName,
		Tables:    o.Tables,
		RowCount:  o.RowCount,
		Rows:      o.Rows,
		Columns:   o.Columns,
	})
}

func queryTable(w io.Writer, columns []types.ColumnLabel, rows []types.Row) error {
	if len(columns) == 0 {
		_, err := fmt.Fprintln(w, "(no columns)")
		return err
	}

	header := make([]string, len(columns))
	for i, c := range columns {
		header[i] = c.String()
	}

	table := tablewriter.NewWriter(w)
	table.SetHeader(header)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetAutoWrapText(false)

	for _, row := range rows {
		cells := make([]string, len(row))
		for i, v := range row {
			cells[i] = v.String()
		}
		table.Append(cells)
	}

	table.Render()
	_, err := fmt.Fprintf(w, "(%d row(s))\n", len(rows))
	return err
}

func tableList(w io.Writer, tables []*types.Table) error {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"table", "columns"})
	table.SetAlignment(tablewriter.ALIGN_LEFT)

	for _, t := range tables {
		names := ""
		for i, c := range t.Columns {
			if i > 0 {
				names += ", "
			}
			names += c.Name
		}
		table.Append([]string{t.Name, names})
	}

	table.Render()
	_, err := fmt.Fprintf(w, "(%d table(s))\n", len(tables))
	return err
}

// Error renders an error the way the REPL shows every other failure: a
// single line to w, never a panic.
func Error(w io.Writer, err error) error {
	_, werr := fmt.Fprintln(w, "error:", err)
	return werr
}
