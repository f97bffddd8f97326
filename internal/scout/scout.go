// Package scout probes a page and splits what it finds into focused
// exploration tasks. Discovery never fails outward: any probe or
// partition error degrades to a fixed fallback plan so a session can
// always proceed.
package scout

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/joescharf/vibetest/internal/browser"
)

type invoker interface {
	Invoke(ctx context.Context, task string, schema json.RawMessage, observer browser.StepFunc) (string, error)
}

type partitioner interface {
	PartitionCatalog(ctx context.Context, url, catalog string) ([]string, error)
}

// Scout runs the catalog probe and task partition for a base URL.
type Scout struct {
	invoker invoker
	llm     partitioner
}

func New(inv invoker, llm partitioner) *Scout {
	return &Scout{invoker: inv, llm: llm}
}

// Discover returns exploration tasks for url. The probe observes the
// page without clicking, then the catalog is partitioned into 6 to 8
// distinct tasks. Both stages fall back to FallbackTasks on failure,
// so the returned slice is never empty.
func (s *Scout) Discover(ctx context.Context, url string) []string {
	if s.llm == nil {
		// Without a partitioner the probe output has no consumer, so
		// skip the probe entirely.
		slog.Warn("no task partitioner configured, using fallback tasks", "url", url)
		return FallbackTasks(url)
	}

	catalog, err := s.invoker.Invoke(ctx, catalogInstruction(url), nil, nil)
	if err != nil {
		slog.Warn("page catalog probe failed, using fallback tasks", "url", url, "error", err)
		return FallbackTasks(url)
	}

	tasks, err := s.llm.PartitionCatalog(ctx, url, catalog)
	if err != nil {
		slog.Warn("task partition failed, using fallback tasks", "url", url, "error", err)
		return FallbackTasks(url)
	}

	return tasks
}

func catalogInstruction(url string) string {
	return fmt.Sprintf("Navigate to %s using the go_to_url action, then identify ALL interactive elements on the page. "+
		"Do NOT click anything, just observe and catalog what's available. "+
		"List buttons, links, forms, input fields, menus, dropdowns, and any other clickable elements you can see. "+
		"Provide a comprehensive inventory.", url)
}

// FallbackTasks is the fixed six-task plan used when discovery cannot
// produce a page-specific one. It covers the common regions of a page.
func FallbackTasks(url string) []string {
	return []string{
		fmt.Sprintf("Test navigation elements in the header area of %s", url),
		fmt.Sprintf("Test main content links and buttons in %s", url),
		fmt.Sprintf("Test footer links and elements in %s", url),
		fmt.Sprintf("Test any form elements found in %s", url),
		fmt.Sprintf("Test sidebar or secondary navigation in %s", url),
		fmt.Sprintf("Test any remaining interactive elements in %s", url),
	}
}
