package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/list"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"mediaforge/internal/submit"
)

type columnAlignment int

const (
	alignLeft columnAlignment = iota
	alignRight
)

const (
	ansiReset  = "\x1b[0m"
	ansiRed    = "\x1b[31m"
	ansiGreen  = "\x1b[32m"
	ansiYellow = "\x1b[33m"
	ansiBlue   = "\x1b[34m"
)

const (
	statusLabelWidth = 16
	statusIndent     = "  "
)

var titleCaser = cases.Title(language.English)

// writeJSON encodes v as indented JSON to the command's stdout.
func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func renderTable(headers []string, rows [][]string, aligns []columnAlignment) string {
	columns := len(headers)
	if columns == 0 {
		return ""
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, columns)
	for i := 0; i < columns; i++ {
		header[i] = headers[i]
	}
	tw.AppendHeader(header)

	for _, row := range rows {
		r := make(table.Row, columns)
		for i := 0; i < columns; i++ {
			if i < len(row) {
				r[i] = row[i]
			}
		}
		tw.AppendRow(r)
	}

	columnConfigs := make([]table.ColumnConfig, 0, columns)
	for i := 0; i < columns; i++ {
		align := text.AlignLeft
		if i < len(aligns) && aligns[i] == alignRight {
			align = text.AlignRight
		}
		columnConfigs = append(columnConfigs, table.ColumnConfig{
			Number:      i + 1,
			Align:       align,
			AlignHeader: text.AlignLeft,
		})
	}
	tw.SetColumnConfigs(columnConfigs)

	return tw.Render()
}

// assetNode is one asset with its derivatives for tree rendering.
type assetNode struct {
	Asset    submit.AssetView `json:"asset"`
	Children []assetNode      `json:"children,omitempty"`
}

func renderAssetTree(root assetNode) string {
	lw := list.NewWriter()
	lw.SetStyle(list.StyleConnectedRounded)
	appendAssetNode(lw, root)
	return lw.Render()
}

func appendAssetNode(lw list.Writer, node assetNode) {
	lw.AppendItem(assetSummary(node.Asset))
	if len(node.Children) == 0 {
		return
	}
	lw.Indent()
	for _, child := range node.Children {
		appendAssetNode(lw, child)
	}
	lw.UnIndent()
}

func assetSummary(asset submit.AssetView) string {
	parts := []string{fmt.Sprintf("#%d %s", asset.ID, asset.Name)}
	if asset.Quality != "" {
		parts = append(parts, asset.Quality)
	}
	parts = append(parts, formatBytes(asset.SizeBytes))
	if !asset.Ingested {
		parts = append(parts, "not ingested")
	}
	return strings.Join(parts, "  ")
}

func statusLabel(status string) string {
	return titleCaser.String(strings.TrimSpace(status))
}

func kindLabel(kind string) string {
	return titleCaser.String(strings.ReplaceAll(strings.TrimSpace(kind), "_", " "))
}

func formatBytes(size int64) string {
	if size <= 0 {
		return "-"
	}
	return humanize.Bytes(uint64(size))
}

func formatSeconds(seconds float64) string {
	if seconds <= 0 {
		return "-"
	}
	return (time.Duration(seconds * float64(time.Second))).Round(100 * time.Millisecond).String()
}

func formatWhen(ts *time.Time) string {
	if ts == nil || ts.IsZero() {
		return "-"
	}
	return humanize.Time(*ts)
}

func formatID(id int64) string {
	return strconv.FormatInt(id, 10)
}

func renderStatusLine(label, status, message string, colorize bool) string {
	statusText := fmt.Sprintf("[%s]", status)
	if message != "" {
		statusText += " " + message
	}
	base := fmt.Sprintf("%s%-*s %s", statusIndent, statusLabelWidth, label+":", statusText)
	if colorize {
		if color := statusColor(status); color != "" {
			return color + base + ansiReset
		}
	}
	return base
}

func statusColor(status string) string {
	switch status {
	case "OK":
		return ansiGreen
	case "WARN":
		return ansiYellow
	case "ERROR":
		return ansiRed
	case "INFO":
		return ansiBlue
	default:
		return ""
	}
}

func renderSectionHeader(title string, colorize bool) []string {
	line := fmt.Sprintf("== %s ==", strings.TrimSpace(title))
	rule := strings.Repeat("-", len(line))
	if colorize {
		line = ansiBlue + line + ansiReset
		rule = ansiBlue + rule + ansiReset
	}
	return []string{line, rule}
}

func shouldColorize(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
