package cmd

import (
	"github.com/spf13/viper"

	"github.com/joescharf/vibetest/internal/browser"
	"github.com/joescharf/vibetest/internal/orchestrator"
	"github.com/joescharf/vibetest/internal/pool"
	"github.com/joescharf/vibetest/internal/report"
	"github.com/joescharf/vibetest/internal/scout"
	"github.com/joescharf/vibetest/internal/store"
)

// newInvoker builds the browser agent invoker from config.
func newInvoker() *browser.Invoker {
	client := browser.NewClient(viper.GetString("browser.base_url"), viper.GetString("browser.api_key"))
	return browser.NewInvoker(client, viper.GetBool("browser.headless"))
}

// newPool builds the worker pool with the configured grace delay.
func newPool(st store.Store, inv *browser.Invoker) *pool.Pool {
	p := pool.New(st, inv)
	if d := viper.GetDuration("pool.grace_delay"); d > 0 {
		p.GraceDelay = d
	}
	return p
}

// newEngine wires the full session engine: scout, worker pool, and
// orchestrator. Without an LLM the scout skips task partitioning and
// falls back to its generic task set.
func newEngine(st store.Store) *orchestrator.Orchestrator {
	inv := newInvoker()

	var sc *scout.Scout
	if c := newLLMClient(); c != nil {
		sc = scout.New(inv, c)
	} else {
		// Pass an untyped nil so the scout sees no partitioner at all.
		sc = scout.New(inv, nil)
	}

	return orchestrator.New(st, sc, newPool(st, inv))
}

// newAggregator builds the report aggregator, or nil without an LLM.
func newAggregator(st store.Store) *report.Aggregator {
	c := newLLMClient()
	if c == nil {
		return nil
	}
	return report.NewAggregator(st, c)
}

// defaultAgents returns the configured per-session agent count.
func defaultAgents() int {
	n := viper.GetInt("pool.agents")
	if n < 1 {
		return 3
	}
	return n
}
