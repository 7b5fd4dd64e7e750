// Package pagination runs page requests against any backing store using the
// count-plus-window pattern.
package pagination

import (
	"context"
	"fmt"
	"math"
	"strings"

	"golang.org/x/sync/errgroup"

	"messaging-service/internal/apperr"
)

// Request is a caller's page request. Zero values fall back to the
// per-use-site defaults in Options.
type Request struct {
	Page     int      `json:"page"`
	Limit    int      `json:"limit"`
	SortBy   string   `json:"sort_by"`
	Populate []string `json:"populate"`
}

// Window is the slice of results a Source must fetch.
type Window struct {
	Offset int
	Limit  int
	Sort   []SortField
}

// Source is implemented by each store for a single filtered query.
type Source[T any] interface {
	Count(ctx context.Context) (int64, error)
	Fetch(ctx context.Context, w Window) ([]T, error)
}

// Populator fills relations on a fetched page in place.
type Populator[T any] func(ctx context.Context, items []T) error

// Options carries the defaults and capabilities of one use site.
type Options[T any] struct {
	DefaultSort     string
	DefaultLimit    int
	MaxLimit        int
	SortFields      []string
	Populators      map[string]Populator[T]
	DefaultPopulate []string
}

// Page is the result of Run.
type Page[T any] struct {
	Results      []T   `json:"results"`
	Page         int   `json:"page"`
	Limit        int   `json:"limit"`
	TotalResults int64 `json:"total_results"`
	TotalPages   int   `json:"total_pages"`
}

// Run counts and fetches independently, then applies population directives.
// The total may be slightly stale relative to the page under concurrent writes.
func Run[T any](ctx context.Context, src Source[T], req Request, opts Options[T]) (Page[T], error) {
	page := req.Page
	if page < 1 {
		page = 1
	}
	limit := req.Limit
	if limit < 1 {
		limit = opts.DefaultLimit
	}
	if limit < 1 {
		return Page[T]{}, fmt.Errorf("no page size and no default limit configured: %w", apperr.ErrInvalidArgument)
	}
	if opts.MaxLimit > 0 && limit > opts.MaxLimit {
		limit = opts.MaxLimit
	}
	// the offset (page-1)*limit must fit in an int
	if page-1 > math.MaxInt/limit {
		return Page[T]{}, fmt.Errorf("page %d is out of range: %w", page, apperr.ErrInvalidArgument)
	}

	sortBy := req.SortBy
	if strings.TrimSpace(sortBy) == "" {
		sortBy = opts.DefaultSort
	}
	sort, err := ParseSort(sortBy)
	if err != nil {
		return Page[T]{}, err
	}
	if err := checkSortFields(sort, opts.SortFields); err != nil {
		return Page[T]{}, err
	}

	directives := req.Populate
	if len(directives) == 0 {
		directives = opts.DefaultPopulate
	}
	populators := make([]Populator[T], 0, len(directives))
	for _, name := range directives {
		p, ok := opts.Populators[name]
		if !ok {
			return Page[T]{}, fmt.Errorf("unknown populate directive %q: %w", name, apperr.ErrInvalidArgument)
		}
		populators = append(populators, p)
	}

	var (
		total int64
		items []T
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		n, err := src.Count(gctx)
		if err != nil {
			return fmt.Errorf("count: %w", err)
		}
		total = n
		return nil
	})
	g.Go(func() error {
		res, err := src.Fetch(gctx, Window{Offset: (page - 1) * limit, Limit: limit, Sort: sort})
		if err != nil {
			return fmt.Errorf("fetch: %w", err)
		}
		items = res
		return nil
	})
	if err := g.Wait(); err != nil {
		return Page[T]{}, err
	}

	if items == nil {
		items = []T{}
	}
	if len(items) > 0 {
		for _, p := range populators {
			if err := p(ctx, items); err != nil {
				return Page[T]{}, fmt.Errorf("populate: %w", err)
			}
		}
	}

	return Page[T]{
		Results:      items,
		Page:         page,
		Limit:        limit,
		TotalResults: total,
		TotalPages:   TotalPages(total, limit),
	}, nil
}

// TotalPages returns ceil(total/limit).
func TotalPages(total int64, limit int) int {
	if limit < 1 || total <= 0 {
		return 0
	}
	return int((total + int64(limit) - 1) / int64(limit))
}

func checkSortFields(sort []SortField, allowed []string) error {
	if len(allowed) == 0 {
		return nil
	}
	for _, s := range sort {
		ok := false
		for _, a := range allowed {
			if s.Field == a {
				ok = true
				break
			}
		}
		if !ok {
			return fmt.Errorf("cannot sort by %q: %w", s.Field, apperr.ErrInvalidArgument)
		}
	}
	return nil
}
