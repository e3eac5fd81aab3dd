package pipeline

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/nao1215/productingest/internal/model"
)

func TestBatchProcessor(t *testing.T) {
	t.Parallel()

	t.Run("returns reports in query then strategy order", func(t *testing.T) {
		t.Parallel()

		store := newFakeStore()
		api := &fakeStrategy{name: "api", pages: map[int]fakePage{1: {products: []model.RawProduct{raw("A")}}}}
		html := &fakeStrategy{name: "html", pages: map[int]fakePage{1: {products: []model.RawProduct{raw("A"), raw("B")}}}}
		pipelines := []*Pipeline{
			newTestPipeline(api, store, WithPagination(false, 0)),
			newTestPipeline(html, store, WithPagination(false, 0)),
		}

		bp := NewBatchProcessor(pipelines, WithConcurrency(3), WithBatchLogger(quietLogger()))
		queries := []string{"q1", "q2", "q3"}
		reports, err := bp.ProcessBatch(context.Background(), queries)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if len(reports) != 6 {
			t.Fatalf("expected 6 reports, got %d", len(reports))
		}
		for i, r := range reports {
			wantQuery := queries[i/2]
			wantStrategy := []string{"api", "html"}[i%2]
			if r.Query != wantQuery || r.Strategy != wantStrategy {
				t.Errorf("report %d: got %s/%s, want %s/%s", i, r.Query, r.Strategy, wantQuery, wantStrategy)
			}
		}
		if store.count() != 2 {
			t.Errorf("expected 2 distinct records, got %d", store.count())
		}
	})

	t.Run("failed run does not stop other queries", func(t *testing.T) {
		t.Parallel()

		strategy := &fakeStrategy{pages: map[int]fakePage{1: {fetchErr: errFetchFailed}}}
		p := newTestPipeline(strategy, newFakeStore(), WithPagination(false, 0), WithFailFast(true))

		var calls atomic.Int32
		bp := NewBatchProcessor([]*Pipeline{p}, WithConcurrency(2), WithBatchLogger(quietLogger()))
		reports, err := bp.ProcessBatchWithCallback(context.Background(), []string{"a", "b"}, func(*model.RunReport) {
			calls.Add(1)
		})

		if !errors.Is(err, errFetchFailed) {
			t.Errorf("expected joined fetch error, got %v", err)
		}
		if len(reports) != 2 || reports[0] == nil || reports[1] == nil {
			t.Fatalf("expected two partial reports, got %v", reports)
		}
		if calls.Load() != 2 {
			t.Errorf("expected callback per run, got %d", calls.Load())
		}
	})

	t.Run("default concurrency", func(t *testing.T) {
		t.Parallel()

		bp := NewBatchProcessor(nil, WithConcurrency(0))
		if bp.concurrency != 1 {
			t.Errorf("expected concurrency 1, got %d", bp.concurrency)
		}
	})
}
