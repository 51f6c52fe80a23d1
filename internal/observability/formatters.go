// Package observability provides formatted output utilities for verbose CLI mode.
package observability

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/jonathan/kids-video-pipeline/internal/db"
	"github.com/jonathan/kids-video-pipeline/internal/types"
)

const (
	// boxWidth is the default width for formatted output boxes
	boxWidth = 60
	// maxItemsToShow is the default number of items to display in lists
	maxItemsToShow = 5
)

// Printer handles formatted output for verbose mode
type Printer struct {
	out   io.Writer
	box   lipgloss.Style
	title lipgloss.Style
	ok    lipgloss.Style
	bad   lipgloss.Style
	muted lipgloss.Style
}

// NewPrinter creates a new Printer that writes to the given writer. Colors
// are dropped when out is not a terminal.
func NewPrinter(out io.Writer) *Printer {
	r := lipgloss.NewRenderer(out)
	return &Printer{
		out:   out,
		box:   r.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1).Width(boxWidth - 2),
		title: r.NewStyle().Bold(true).Foreground(lipgloss.Color("212")),
		ok:    r.NewStyle().Foreground(lipgloss.Color("42")).Bold(true),
		bad:   r.NewStyle().Foreground(lipgloss.Color("203")).Bold(true),
		muted: r.NewStyle().Foreground(lipgloss.Color("245")),
	}
}

// printBox prints a bordered box with a title and content. Long lines wrap
// inside the box.
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) printBox(title string, content string) {
	body := lipgloss.JoinVertical(lipgloss.Left, p.title.Render(title), "", content)
	fmt.Fprintln(p.out, p.box.Render(body))
}

// PrintTopic outputs the chosen topic.
func (p *Printer) PrintTopic(topic *types.Topic) {
	if topic == nil {
		return
	}
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Topic:     %s\n", topic.Topic))
	sb.WriteString(fmt.Sprintf("Category:  %s\n", topic.Category))
	if topic.TargetAge != "" {
		sb.WriteString(fmt.Sprintf("Ages:      %s\n", topic.TargetAge))
	}
	if topic.Source != "" {
		sb.WriteString(fmt.Sprintf("Source:    %s\n", topic.Source))
	}
	if topic.Description != "" {
		sb.WriteString("\n" + topic.Description)
	}
	p.printBox("TOPIC", strings.TrimSuffix(sb.String(), "\n"))
}

// PrintScript outputs the script title and the first scenes.
func (p *Printer) PrintScript(script *types.Script) {
	if script == nil || len(script.Scenes) == 0 {
		return
	}
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Title:  %s\n", script.Title))
	sb.WriteString(fmt.Sprintf("Scenes: %d\n", len(script.Scenes)))
	if script.IntroHook != "" {
		sb.WriteString(fmt.Sprintf("Hook:   %s\n", script.IntroHook))
	}
	sb.WriteString("\n")

	count := min(len(script.Scenes), maxItemsToShow)
	for i := 0; i < count; i++ {
		scene := script.Scenes[i]
		sb.WriteString(fmt.Sprintf("#%d  %s\n", scene.SceneNumber, truncate(scene.Narration, boxWidth-10)))
		sb.WriteString(p.muted.Render("    "+truncate(scene.VisualDescription, boxWidth-10)) + "\n")
	}
	if len(script.Scenes) > maxItemsToShow {
		sb.WriteString(fmt.Sprintf("... and %d more scenes", len(script.Scenes)-maxItemsToShow))
	}
	p.printBox(fmt.Sprintf("SCRIPT (%s)", script.Language), strings.TrimSuffix(sb.String(), "\n"))
}

// PrintMetadata outputs the upload metadata for one language.
func (p *Printer) PrintMetadata(lang string, md *types.Metadata) {
	if md == nil {
		return
	}
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Title:     %s\n", md.Title))
	sb.WriteString(fmt.Sprintf("Thumbnail: %s\n", md.ThumbnailText))
	if len(md.Tags) > 0 {
		sb.WriteString(fmt.Sprintf("Tags:      %s", strings.Join(md.Tags, ", ")))
	}
	p.printBox(fmt.Sprintf("METADATA (%s)", lang), strings.TrimSuffix(sb.String(), "\n"))
}

// PrintSummary outputs the per-language outcome of a run.
func (p *Printer) PrintSummary(s *types.RunSummary) {
	if s == nil {
		return
	}
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Variant: %s\n", s.Variant))
	if s.Topic != nil {
		sb.WriteString(fmt.Sprintf("Topic:   %s\n", s.Topic.Topic))
	}
	sb.WriteString(fmt.Sprintf("Output:  %s\n", s.RunDir))
	if s.Error != "" {
		sb.WriteString(p.bad.Render("Error:   "+s.Error) + "\n")
	}

	for _, l := range s.Languages {
		sb.WriteString("\n")
		mark := p.ok.Render("✓")
		if l.Error != "" || (s.Upload && !l.UploadSucceeded()) {
			mark = p.bad.Render("✗")
		}
		sb.WriteString(fmt.Sprintf("%s %s (%s)\n", mark, l.Name, l.Code))
		if l.VideoURL != "" {
			sb.WriteString(fmt.Sprintf("  Video:  %s\n", l.VideoURL))
		}
		if l.ShortsURL != "" {
			sb.WriteString(fmt.Sprintf("  Shorts: %s\n", l.ShortsURL))
		}
		if l.ReelURL != "" {
			sb.WriteString(fmt.Sprintf("  Reel:   %s\n", l.ReelURL))
		}
		if failed := failedSteps(l.Steps); len(failed) > 0 {
			sb.WriteString(p.bad.Render("  Failed: "+strings.Join(failed, ", ")) + "\n")
		}
	}
	p.printBox("RUN SUMMARY", strings.TrimSuffix(sb.String(), "\n"))
}

// PrintAnalysis outputs the channel performance report.
func (p *Printer) PrintAnalysis(top []db.CategoryScore, summary *db.PerformanceSummary, best []db.VideoPerformance, recommendations []string) {
	var sb strings.Builder
	if summary != nil {
		sb.WriteString(fmt.Sprintf("Videos tracked: %d\n", summary.TotalVideos))
		sb.WriteString(fmt.Sprintf("Average views:  %.0f\n", summary.AvgViews))
		sb.WriteString(fmt.Sprintf("Average CTR:    %.2f%%\n", summary.AvgCTR*100))
	}
	if len(top) > 0 {
		sb.WriteString("\nTop categories:\n")
		for i := 0; i < min(len(top), maxItemsToShow); i++ {
			sb.WriteString(fmt.Sprintf("  • %s (score: %.1f, uses: %d)\n", top[i].Category, top[i].AvgScore, top[i].TotalUses))
		}
	}
	if len(best) > 0 {
		sb.WriteString("\nBest videos:\n")
		for i := 0; i < min(len(best), maxItemsToShow); i++ {
			sb.WriteString(fmt.Sprintf("  • %s: %d views\n", best[i].Title, best[i].Views))
		}
	}
	if len(recommendations) > 0 {
		sb.WriteString("\nRecommendations:\n")
		for _, r := range recommendations {
			sb.WriteString(fmt.Sprintf("  • %s\n", r))
		}
	}
	if sb.Len() == 0 {
		sb.WriteString("No performance data yet")
	}
	p.printBox("PERFORMANCE", strings.TrimSuffix(sb.String(), "\n"))
}

// PrintQuota outputs per-provider unit usage for one day.
func (p *Printer) PrintQuota(day string, usage []db.QuotaUsage) {
	var sb strings.Builder
	if len(usage) == 0 {
		sb.WriteString("No quota used")
	}
	for _, u := range usage {
		sb.WriteString(fmt.Sprintf("%-16s %8d units\n", u.Provider, u.UnitsUsed))
	}
	p.printBox("QUOTA "+day, strings.TrimSuffix(sb.String(), "\n"))
}

func failedSteps(steps map[string]string) []string {
	var out []string
	for name, status := range steps {
		if status == "failed" {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

func truncate(s string, width int) string {
	if lipgloss.Width(s) <= width {
		return s
	}
	r := []rune(s)
	if len(r) > width-1 {
		r = r[:width-1]
	}
	return string(r) + "…"
}
