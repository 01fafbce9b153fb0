package ui

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/muurk/iotctl/internal/device"
)

// SortOrder selects how process tables are ordered
type SortOrder int

const (
	SortByCPU SortOrder = iota
	SortByMemory
	SortByName
)

// String returns the column name used in help text
func (o SortOrder) String() string {
	switch o {
	case SortByMemory:
		return "memory"
	case SortByName:
		return "name"
	default:
		return "cpu"
	}
}

// Next cycles to the following sort order
func (o SortOrder) Next() SortOrder {
	return (o + 1) % 3
}

// SortProcesses returns a sorted copy of procs
func SortProcesses(procs []device.Process, order SortOrder) []device.Process {
	sorted := make([]device.Process, len(procs))
	copy(sorted, procs)

	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		switch order {
		case SortByMemory:
			if a.WorkingSetSize != b.WorkingSetSize {
				return a.WorkingSetSize > b.WorkingSetSize
			}
		case SortByName:
			if !strings.EqualFold(a.ImageName, b.ImageName) {
				return strings.ToLower(a.ImageName) < strings.ToLower(b.ImageName)
			}
		default:
			if a.CPUUsage != b.CPUUsage {
				return a.CPUUsage > b.CPUUsage
			}
		}
		return a.ProcessID < b.ProcessID
	})

	return sorted
}

// FormatBytes renders a byte count with a binary unit suffix
func FormatBytes(n uint64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := uint64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

// RenderProcessTable renders procs as an aligned table. A positive limit
// truncates the table and notes how many rows were hidden.
func RenderProcessTable(procs []device.Process, order SortOrder, limit int) string {
	sorted := SortProcesses(procs, order)

	hidden := 0
	if limit > 0 && len(sorted) > limit {
		hidden = len(sorted) - limit
		sorted = sorted[:limit]
	}

	nameWidth := len("NAME")
	userWidth := len("USER")
	for _, p := range sorted {
		if w := lipgloss.Width(p.ImageName); w > nameWidth {
			nameWidth = w
		}
		if w := lipgloss.Width(p.UserName); w > userWidth {
			userWidth = w
		}
	}
	if nameWidth > 32 {
		nameWidth = 32
	}
	if userWidth > 24 {
		userWidth = 24
	}

	var b strings.Builder
	header := fmt.Sprintf("  %-*s  %7s  %-*s  %6s  %10s", nameWidth, "NAME", "PID", userWidth, "USER", "CPU%", "WORKING SET")
	b.WriteString(TableHeaderStyle.Render(header))
	b.WriteString("\n")

	for _, p := range sorted {
		name := fmt.Sprintf("  %-*s", nameWidth, truncate(p.ImageName, nameWidth))
		pid := fmt.Sprintf("  %7d", p.ProcessID)
		user := fmt.Sprintf("  %-*s", userWidth, truncate(p.UserName, userWidth))
		usage := fmt.Sprintf("  %6.1f  %10s", p.CPUUsage, FormatBytes(p.WorkingSetSize))

		b.WriteString(TableCellStyle.Render(name))
		b.WriteString(TableMutedCellStyle.Render(pid + user))
		b.WriteString(TableCellStyle.Render(usage))
		b.WriteString("\n")
	}

	if hidden > 0 {
		b.WriteString(StepNoteStyle.Render(fmt.Sprintf("  ... %d more", hidden)))
		b.WriteString("\n")
	}

	return b.String()
}

func truncate(s string, width int) string {
	runes := []rune(s)
	if len(runes) <= width {
		return s
	}
	if width < 2 {
		return string(runes[:width])
	}
	return string(runes[:width-1]) + "…"
}

// RenderState summarizes a session state as a result box
func RenderState(state device.State, width int) string {
	details := map[string]string{
		"Address":       state.Address,
		"Kind":          string(state.Kind),
		"Connected":     yesNo(state.Connected),
		"Authenticated": yesNo(state.Authenticated),
	}

	var result *Result
	switch {
	case state.Connected && state.Authenticated:
		result = NewSuccessResult("Device reachable and authenticated", details)
	case state.Connected:
		result = NewWarningResult("Device reachable, authentication required", details)
	default:
		err := device.NewNotConnectedError(state.Address)
		result = NewFailureResult("Device not reachable", err, device.TroubleshootingHints(err))
		result.Details = details
	}

	return result.SetWidth(width).Render()
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
