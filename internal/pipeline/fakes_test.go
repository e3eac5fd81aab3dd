package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strconv"
	"sync"

	"github.com/nao1215/productingest/internal/extract"
	"github.com/nao1215/productingest/internal/model"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var errFetchFailed = errors.New("fetch failed")

// fakePage describes what the fake strategy serves for one page.
type fakePage struct {
	products   []model.RawProduct
	fetchErr   error
	extractErr error
}

// fakeStrategy serves canned pages and records which pages were fetched.
type fakeStrategy struct {
	name  string
	pages map[int]fakePage

	// onFetch runs after a page is recorded, before it is served.
	onFetch func(page int)

	mu      sync.Mutex
	fetched []int
	queries []string
}

func (s *fakeStrategy) Name() string {
	if s.name == "" {
		return "fake"
	}
	return s.name
}

func (s *fakeStrategy) Fetch(_ context.Context, query string, page int) ([]byte, error) {
	s.mu.Lock()
	s.fetched = append(s.fetched, page)
	s.queries = append(s.queries, query)
	s.mu.Unlock()

	if s.onFetch != nil {
		s.onFetch(page)
	}
	if err := s.pages[page].fetchErr; err != nil {
		return nil, err
	}
	return []byte(strconv.Itoa(page)), nil
}

func (s *fakeStrategy) Extract(body []byte) (extract.Result, error) {
	page, _ := strconv.Atoi(string(body))
	fp := s.pages[page]
	if fp.extractErr != nil {
		return extract.Result{}, fp.extractErr
	}
	return extract.Result{Products: fp.products}, nil
}

var errMalformed = errors.New("malformed")

func (s *fakeStrategy) Normalize(raw model.RawProduct) (*model.Product, error) {
	id := raw.String("id")
	if id == "" {
		return nil, errMalformed
	}
	return &model.Product{ProductID: id, Title: id, URL: "https://x/" + id, Source: "flipkart"}, nil
}

func (s *fakeStrategy) fetchedPages() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int(nil), s.fetched...)
}

func raw(id string) model.RawProduct {
	if id == "" {
		return model.RawProduct{"titles": map[string]any{"title": "no id"}}
	}
	return model.RawProduct{"id": id}
}

// fakeStore is an in-memory Store keyed on product_id.
type fakeStore struct {
	mu       sync.Mutex
	records  map[string]*model.Product
	failIDs  map[string]bool
	racedIDs map[string]bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		records:  make(map[string]*model.Product),
		failIDs:  make(map[string]bool),
		racedIDs: make(map[string]bool),
	}
}

var errStoreDown = errors.New("store down")

func (s *fakeStore) Exists(_ context.Context, p *model.Product) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.records[p.ProductID]
	return ok, nil
}

func (s *fakeStore) Insert(_ context.Context, p *model.Product) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failIDs[p.ProductID] {
		return false, errStoreDown
	}
	// a raced id behaves as if another writer inserted it after Exists
	if s.racedIDs[p.ProductID] {
		return false, nil
	}
	if _, ok := s.records[p.ProductID]; ok {
		return false, nil
	}
	s.records[p.ProductID] = p
	return true, nil
}

func (s *fakeStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}
