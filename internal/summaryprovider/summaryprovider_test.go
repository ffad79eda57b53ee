package summaryprovider

import (
	"context"
	"errors"
	"testing"
)

type fakeProvider struct {
	result string
	err    error
}

func (f fakeProvider) Summarize(context.Context, string, int) (string, error) {
	return f.result, f.err
}

func TestSummaryProvider_InterfaceContract(t *testing.T) {
	var p SummaryProvider = fakeProvider{result: "a concise summary"}
	got, err := p.Summarize(context.Background(), "some notes", 50)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "a concise summary" {
		t.Fatalf("unexpected summary: %q", got)
	}
}

func TestSummaryProvider_EmptyResultIsNotAnError(t *testing.T) {
	// §4.7 Open Question: an abstractive attempt that succeeds with an empty
	// string is treated by the orchestrator as a failure that falls back to
	// extraction, but the provider contract itself returns (\"\", nil) rather
	// than inventing an error.
	var p SummaryProvider = fakeProvider{result: ""}
	got, err := p.Summarize(context.Background(), "notes", 50)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "" {
		t.Fatalf("expected empty result, got %q", got)
	}
}

func TestSummaryProvider_PropagatesProviderError(t *testing.T) {
	wantErr := errors.New("boom")
	var p SummaryProvider = fakeProvider{err: wantErr}
	_, err := p.Summarize(context.Background(), "notes", 50)
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected wrapped/equal error, got %v", err)
	}
}
