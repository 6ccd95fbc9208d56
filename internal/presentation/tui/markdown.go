// Package tui renders docflow data for the terminal.
package tui

import (
	"fmt"
	"sort"
	"strings"

	"github.com/aretw0/docflow/pkg/domain"
)

// HandleMarkdown summarizes a handle and, when given, the hints of a viewer.
func HandleMarkdown(h *domain.DocumentHandle, hints *domain.Hints) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# %s\n\n", h.ID)
	fmt.Fprintf(&sb, "- **workflow**: %s\n", h.Workflow)
	fmt.Fprintf(&sb, "- **state**: %s\n", orDash(h.State))
	fmt.Fprintf(&sb, "- **version**: %d\n", h.Version)
	if !h.UpdatedAt.IsZero() {
		fmt.Fprintf(&sb, "- **updated**: %s\n", h.UpdatedAt.Format("2006-01-02 15:04:05 MST"))
	}

	if states := h.SortedVariantStates(); len(states) > 0 {
		sb.WriteString("\n## Variants\n\n| variant | availability | holder |\n|---|---|---|\n")
		for _, s := range states {
			v := h.Variant(s)
			fmt.Fprintf(&sb, "| %s | %s | %s |\n", s, orDash(strings.Join(v.Availability, ", ")), orDash(v.Holder))
		}
	}

	if len(h.Requests) > 0 {
		sb.WriteString("\n## Requests\n\n")
		sb.WriteString(RequestsMarkdown(h.Requests))
	}

	if hints != nil {
		sb.WriteString("\n## Hints\n\n")
		sb.WriteString(HintsMarkdown(hints))
	}
	return sb.String()
}

// HintsMarkdown lists each event with either "allowed" or its blocking reason.
func HintsMarkdown(hints *domain.Hints) string {
	var sb strings.Builder
	sb.WriteString("| event | status |\n|---|---|\n")
	for _, e := range hints.Events() {
		status := "allowed"
		if !hints.Allowed(e) {
			status = hints.Reason(e)
		}
		fmt.Fprintf(&sb, "| %s | %s |\n", e, status)
	}
	if v, ok := hints.Get(domain.HintInUseBy); ok {
		fmt.Fprintf(&sb, "\nIn use by **%v**.\n", v)
	}
	return sb.String()
}

// RequestsMarkdown renders requests as a table, oldest first.
func RequestsMarkdown(reqs []*domain.Request) string {
	sorted := make([]*domain.Request, len(reqs))
	copy(sorted, reqs)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].RequestDate.Before(sorted[j].RequestDate)
	})

	var sb strings.Builder
	sb.WriteString("| id | type | status | requester | scheduled | reason |\n|---|---|---|---|---|---|\n")
	for _, r := range sorted {
		scheduled := ""
		if r.ScheduledDate != nil {
			scheduled = r.ScheduledDate.Format("2006-01-02 15:04")
		}
		fmt.Fprintf(&sb, "| %s | %s | %s | %s | %s | %s |\n",
			r.ID, r.Type, r.Status, orDash(r.Requester), orDash(scheduled), orDash(r.Reason))
	}
	return sb.String()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
