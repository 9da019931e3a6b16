// Package cmdfmt renders command output either as a table sized to the
// terminal or as (pretty) JSON, selected by the global print-json flag.
package cmdfmt

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"golang.org/x/term"
)

type Printer interface {
	SetHeader(columns []string)
	AppendRow(values []any)
	Render() string
}

// New returns a table printer, or a JSON printer when printJSON is set.
func New(printJSON, pretty bool) Printer {
	if printJSON {
		return &jsonPrinter{pretty: pretty}
	}
	return &tablePrinter{}
}

type tablePrinter struct {
	writer table.Writer
}

func (p *tablePrinter) SetHeader(columns []string) {
	p.writer = table.NewWriter()
	if width, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && width > 0 {
		p.writer.SetAllowedRowLength(width)
	}
	header := make(table.Row, len(columns))
	for i, c := range columns {
		header[i] = c
	}
	p.writer.AppendHeader(header)
	p.writer.SetStyle(table.StyleLight)
}

func (p *tablePrinter) AppendRow(values []any) {
	p.writer.AppendRow(table.Row(values))
}

func (p *tablePrinter) Render() string {
	return p.writer.Render()
}

type jsonPrinter struct {
	columns []string
	rows    []map[string]any
	pretty  bool
}

func (p *jsonPrinter) SetHeader(columns []string) {
	p.columns = columns
	p.rows = []map[string]any{}
}

func (p *jsonPrinter) AppendRow(values []any) {
	if len(values) != len(p.columns) {
		panic(fmt.Sprintf("unable to print json, %d values for %d columns (this is likely a bug)",
			len(values), len(p.columns)))
	}
	item := make(map[string]any, len(values))
	for i, col := range p.columns {
		item[col] = values[i]
	}
	p.rows = append(p.rows, item)
}

func (p *jsonPrinter) Render() string {
	var out []byte
	var err error
	if p.pretty {
		out, err = json.MarshalIndent(p.rows, "", " ")
	} else {
		out, err = json.Marshal(p.rows)
	}
	if err != nil {
		panic("unable to marshal json (this is likely a bug): " + err.Error())
	}
	return string(out)
}
