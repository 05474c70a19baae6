package rgi

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sawpanic/sentinel/internal/money"
)

type fakeRepo struct {
	state *TrustState
	err   error
	delay time.Duration
}

func (f *fakeRepo) Load(ctx context.Context, _, _ string) (*TrustState, error) {
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return f.state, f.err
}

func prob(s string) money.Prob {
	p, err := money.NewProb(s)
	if err != nil {
		panic(err)
	}
	return p
}

func TestTrustProbabilityReturnsLearnedValue(t *testing.T) {
	repo := &fakeRepo{state: &TrustState{TrustProbability: prob("0.8200")}}
	r := New(repo, nil)
	p := r.TrustProbability(context.Background(), "fp", "trending")
	if p.String() != "0.8200" {
		t.Errorf("got %s", p.String())
	}
}

func TestTrustProbabilityFailsSafeOnError(t *testing.T) {
	repo := &fakeRepo{err: errors.New("db down")}
	r := New(repo, nil)
	p := r.TrustProbability(context.Background(), "fp", "trending")
	if p.String() != "0.5000" {
		t.Errorf("expected neutral 0.5, got %s", p.String())
	}
}

func TestTrustProbabilityFailsSafeOnTimeout(t *testing.T) {
	repo := &fakeRepo{state: &TrustState{TrustProbability: prob("0.9000")}, delay: 100 * time.Millisecond}
	r := New(repo, nil)
	p := r.TrustProbability(context.Background(), "fp", "trending")
	if p.String() != "0.5000" {
		t.Errorf("expected neutral 0.5 on timeout, got %s", p.String())
	}
}

func TestTrustProbabilitySafeModeForcesNeutral(t *testing.T) {
	repo := &fakeRepo{state: &TrustState{TrustProbability: prob("0.9000")}}
	r := New(repo, nil)
	r.SetSafeMode(true)
	p := r.TrustProbability(context.Background(), "fp", "trending")
	if p.String() != "0.5000" {
		t.Errorf("expected neutral under safe-mode, got %s", p.String())
	}
}

func TestAdjustedConfidenceGate(t *testing.T) {
	adj := AdjustedConfidence(prob("0.9900"), prob("0.9900"), prob("1.0000"))
	if Recommend(adj) != (adj.GreaterOrEqual(ExecutionGate)) {
		t.Fatal("Recommend should mirror the gate comparison")
	}
	low := AdjustedConfidence(prob("0.8000"), prob("0.8000"), prob("1.0000"))
	if Recommend(low) {
		t.Errorf("adjusted confidence %s should not clear the 0.95 gate", low.String())
	}
}

func TestAdjustedConfidenceClampsToOne(t *testing.T) {
	adj := AdjustedConfidence(prob("1.0000"), prob("1.0000"), prob("1.0000"))
	if adj.String() != "1.0000" {
		t.Errorf("got %s", adj.String())
	}
}
