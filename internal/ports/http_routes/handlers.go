package http_routes

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"net/http"
	"time"

	"github.com/fllarpy/apm-greeter/domain/metrics"
)

const (
	// HomeGreeting is the body of the home route.
	HomeGreeting = "Welcome to the home page!"

	// CollaboratorPlaceholder replaces the collaborator's text when it cannot be fetched.
	CollaboratorPlaceholder = "Error fetching cAdvisor metrics"

	recentVisitorsLimit = 50
)

// Greeting configures the meet route.
type Greeting struct {
	Creator string
	// DelayMin and DelayMax bound an artificial per-request delay used to
	// simulate latency. Zero DelayMax disables it.
	DelayMin time.Duration
	DelayMax time.Duration
}

// Message returns the greeting for name, which is echoed verbatim.
func (g Greeting) Message(name string) string {
	return fmt.Sprintf("Hello %s! Welcome to my website. My name is %s.", name, g.Creator)
}

func (g Greeting) delay() time.Duration {
	if g.DelayMax <= 0 {
		return 0
	}
	if g.DelayMax <= g.DelayMin {
		return g.DelayMin
	}
	return g.DelayMin + rand.N(g.DelayMax-g.DelayMin)
}

type handlers struct {
	deps Deps
}

func (h *handlers) home(w http.ResponseWriter, r *http.Request) {
	h.deps.Logger.Debug("user at home page")
	writeText(w, http.StatusOK, HomeGreeting)
}

func (h *handlers) meet(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	g := h.deps.Greeting

	if err := sleep(r.Context(), g.delay()); err != nil {
		// The caller went away; nothing left to answer.
		return
	}

	if h.deps.Ledger != nil {
		if err := h.deps.Ledger.Record(r.Context(), name); err != nil {
			h.deps.Logger.Warn("failed to record visit", "name", name, "error", err)
		}
	}

	h.deps.Logger.Info("creator meets visitor", "creator", g.Creator, "visitor", name)
	writeText(w, http.StatusOK, g.Message(name))
}

func (h *handlers) cadvisorMetrics(w http.ResponseWriter, r *http.Request) {
	body, err := h.deps.Fetcher.Fetch(r.Context())
	if err != nil {
		h.deps.Logger.Error("failed to fetch collaborator metrics", "error", err)
		h.deps.Events.AddError(metrics.NewErrorEvent(r, err))

		status := http.StatusOK
		if h.deps.CollaboratorStrict {
			status = http.StatusBadGateway
		}
		writeText(w, status, CollaboratorPlaceholder)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write(body)
}

func (h *handlers) visitors(w http.ResponseWriter, r *http.Request) {
	recent, err := h.deps.Ledger.Recent(r.Context(), recentVisitorsLimit)
	if err != nil {
		h.deps.Logger.Error("failed to list visitors", "error", err)
		http.Error(w, "Failed to list visitors", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	if err := json.NewEncoder(w).Encode(recent); err != nil {
		h.deps.Logger.Debug("failed to write visitors response", "error", err)
	}
}

// sleep suspends only the calling request and returns early on cancellation.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
