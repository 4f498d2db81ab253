package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"

	"github.com/eunmann/s3-lifecycle/internal/logctx"
	"github.com/eunmann/s3-lifecycle/pkg/stages"
)

// countingStage records which groups ran and can fail selected groups.
type countingStage struct {
	mu       sync.Mutex
	ran      []string
	failDest map[string]bool

	inFlight    atomic.Int32
	maxInFlight atomic.Int32
}

func (s *countingStage) Run(_ context.Context, dest string) stages.Result {
	cur := s.inFlight.Add(1)
	for {
		prev := s.maxInFlight.Load()
		if cur <= prev || s.maxInFlight.CompareAndSwap(prev, cur) {
			break
		}
	}
	defer s.inFlight.Add(-1)

	s.mu.Lock()
	s.ran = append(s.ran, dest)
	s.mu.Unlock()

	if s.failDest[dest] {
		return stages.Result{Destination: dest, Outcome: stages.Failed, Err: errors.New("boom")}
	}
	return stages.Result{Destination: dest, Outcome: stages.Succeeded}
}

func destNames(n int) []string {
	dests := make([]string, n)
	for i := range n {
		dests[i] = fmt.Sprintf("archive/acme/short/Contact/2024-1-%d.tar", i+2)
	}
	return dests
}

func TestPoolRunsEveryGroup(t *testing.T) {
	stage := &countingStage{}
	pool := &Pool{Workers: 3}

	summary, err := pool.Run(context.Background(), stage, destNames(10))
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if summary.Succeeded != 10 {
		t.Errorf("Succeeded = %d, want 10", summary.Succeeded)
	}
	if len(stage.ran) != 10 {
		t.Errorf("groups run = %d, want 10", len(stage.ran))
	}
	if got := stage.maxInFlight.Load(); got > 3 {
		t.Errorf("max in-flight = %d, want <= 3", got)
	}
}

func TestPoolFailureDoesNotStopSiblings(t *testing.T) {
	dests := destNames(8)
	stage := &countingStage{failDest: map[string]bool{dests[1]: true, dests[5]: true}}
	pool := &Pool{Workers: 2}

	summary, err := pool.Run(context.Background(), stage, dests)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if summary.Failed != 2 {
		t.Errorf("Failed = %d, want 2", summary.Failed)
	}
	if summary.Succeeded != 6 {
		t.Errorf("Succeeded = %d, want 6", summary.Succeeded)
	}
	if len(stage.ran) != 8 {
		t.Errorf("groups run = %d, want 8 (failures must not cancel siblings)", len(stage.ran))
	}
}

func TestPoolCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	stage := &countingStage{}
	pool := &Pool{}

	_, err := pool.Run(ctx, stage, destNames(5))
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestPoolEmptyInput(t *testing.T) {
	pool := &Pool{}
	summary, err := pool.Run(context.Background(), &countingStage{}, nil)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if summary.Total() != 0 {
		t.Errorf("Total = %d, want 0", summary.Total())
	}
}

func TestPoolLogsProgress(t *testing.T) {
	var buf bytes.Buffer
	ctx := logctx.WithLogger(context.Background(), zerolog.New(&buf))

	stage := &countingStage{}
	pool := &Pool{Workers: 1, Phase: "archive"}

	if _, err := pool.Run(ctx, stage, destNames(30)); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	logs := buf.String()
	if !strings.Contains(logs, `"phase":"archive"`) {
		t.Errorf("progress log missing phase:\n%s", logs)
	}
	if !strings.Contains(logs, `"completed":25`) {
		t.Errorf("expected a progress line at %d groups:\n%s", progressInterval, logs)
	}
	if !strings.Contains(logs, `"total":30`) {
		t.Errorf("progress log missing total:\n%s", logs)
	}
}
