package scout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/vibetest/internal/browser"
)

type stubInvoker struct {
	catalog string
	err     error
	gotTask string
}

func (s *stubInvoker) Invoke(ctx context.Context, task string, schema json.RawMessage, observer browser.StepFunc) (string, error) {
	s.gotTask = task
	if s.err != nil {
		return "", s.err
	}
	return s.catalog, nil
}

type stubPartitioner struct {
	tasks      []string
	err        error
	gotCatalog string
}

func (s *stubPartitioner) PartitionCatalog(ctx context.Context, url, catalog string) ([]string, error) {
	s.gotCatalog = catalog
	if s.err != nil {
		return nil, s.err
	}
	return s.tasks, nil
}

func TestDiscover(t *testing.T) {
	inv := &stubInvoker{catalog: "3 nav links, 1 search form, 12 product cards"}
	part := &stubPartitioner{tasks: []string{
		"Navigate to https://shop.test using go_to_url, then test the nav links",
		"Navigate to https://shop.test using go_to_url, then test the search form",
	}}

	s := New(inv, part)
	tasks := s.Discover(context.Background(), "https://shop.test")

	assert.Equal(t, part.tasks, tasks)
	assert.Equal(t, inv.catalog, part.gotCatalog)
	assert.Contains(t, inv.gotTask, "https://shop.test")
	assert.Contains(t, inv.gotTask, "Do NOT click anything")
}

func TestDiscover_ProbeFailureFallsBack(t *testing.T) {
	inv := &stubInvoker{err: errors.New("browser pool exhausted")}
	part := &stubPartitioner{}

	s := New(inv, part)
	tasks := s.Discover(context.Background(), "https://example.com")

	assert.Equal(t, FallbackTasks("https://example.com"), tasks)
	assert.Empty(t, part.gotCatalog, "partition must not run when the probe failed")
}

func TestDiscover_PartitionFailureFallsBack(t *testing.T) {
	inv := &stubInvoker{catalog: "some elements"}
	part := &stubPartitioner{err: errors.New("parse LLM response as JSON: unexpected token")}

	s := New(inv, part)
	tasks := s.Discover(context.Background(), "https://example.com")

	assert.Equal(t, FallbackTasks("https://example.com"), tasks)
}

func TestDiscover_NoPartitionerSkipsProbe(t *testing.T) {
	inv := &stubInvoker{catalog: "unused"}

	s := New(inv, nil)
	tasks := s.Discover(context.Background(), "https://example.com")

	assert.Equal(t, FallbackTasks("https://example.com"), tasks)
	assert.Empty(t, inv.gotTask, "probe must not run without a partitioner")
}

func TestFallbackTasks(t *testing.T) {
	tasks := FallbackTasks("https://example.com/app")

	require.Len(t, tasks, 6)
	for i, task := range tasks {
		assert.Contains(t, task, "https://example.com/app", fmt.Sprintf("task %d must target the URL", i))
	}

	assert.Contains(t, tasks[0], "header")
	assert.Contains(t, tasks[1], "main content")
	assert.Contains(t, tasks[2], "footer")
	assert.Contains(t, tasks[3], "form")
	assert.Contains(t, tasks[4], "sidebar")
	assert.Contains(t, tasks[5], "remaining interactive")
}
