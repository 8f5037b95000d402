package search

import (
	"context"
	"fmt"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/search/query"

	"github.com/shelfmark/shelfmark-server/internal/genre"
)

// Sort orders accepted in SearchParams.SortBy.
const (
	SortRelevance = "relevance"
	SortRating    = "rating"
	SortRecent    = "recent"
	SortTitle     = "title"
	SortYear      = "year"
)

// DefaultLimit and MaxLimit bound SearchParams.Limit.
const (
	DefaultLimit = 20
	MaxLimit     = 100
)

// SearchParams configures a search query.
type SearchParams struct {
	Query string // Matched against title and author
	Genre string // Optional filter, normalized through genre.Normalize

	MinYear int
	MaxYear int

	Limit  int
	Offset int

	SortBy string // One of the Sort* constants; relevance when empty

	IncludeFacets bool
}

// SearchResult holds ranked book IDs. Callers load the books themselves so
// results always reflect the store.
type SearchResult struct {
	Query  string       `json:"query"`
	Total  uint64       `json:"total"`
	TookMs int64        `json:"took_ms"`
	Hits   []SearchHit  `json:"hits"`
	Genres []FacetCount `json:"genres,omitempty"`
}

// SearchHit represents a single search result.
type SearchHit struct {
	ID         string            `json:"id"`
	Score      float64           `json:"score"`
	Title      string            `json:"title"`
	Author     string            `json:"author"`
	Highlights map[string]string `json:"highlights,omitempty"`
}

// FacetCount represents a facet value and its count.
type FacetCount struct {
	Value string `json:"value"`
	Count int    `json:"count"`
}

// Search executes a search query.
func (s *SearchIndex) Search(ctx context.Context, params SearchParams) (*SearchResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	limit := params.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	limit = min(limit, MaxLimit)

	req := bleve.NewSearchRequestOptions(buildSearchQuery(params), limit, max(params.Offset, 0), false)
	addSorting(req, params.SortBy)

	if params.IncludeFacets {
		req.AddFacet("genre_slug", bleve.NewFacetRequest("genre_slug", 20))
	}

	req.Highlight = bleve.NewHighlight()
	req.Highlight.AddField("title")
	req.Highlight.AddField("author")
	req.Fields = []string{"title", "author"}

	res, err := s.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("execute search: %w", err)
	}

	result := &SearchResult{
		Query:  params.Query,
		Total:  res.Total,
		TookMs: res.Took.Milliseconds(),
		Hits:   make([]SearchHit, 0, len(res.Hits)),
	}

	for _, hit := range res.Hits {
		searchHit := SearchHit{ID: hit.ID, Score: hit.Score}
		if t, ok := hit.Fields["title"].(string); ok {
			searchHit.Title = t
		}
		if a, ok := hit.Fields["author"].(string); ok {
			searchHit.Author = a
		}
		if len(hit.Fragments) > 0 {
			searchHit.Highlights = make(map[string]string)
			for field, fragments := range hit.Fragments {
				if len(fragments) > 0 {
					searchHit.Highlights[field] = fragments[0]
				}
			}
		}
		result.Hits = append(result.Hits, searchHit)
	}

	if facet, ok := res.Facets["genre_slug"]; ok && facet.Terms != nil {
		for _, term := range facet.Terms.Terms() {
			result.Genres = append(result.Genres, FacetCount{Value: term.Term, Count: term.Count})
		}
	}

	return result, nil
}

// IDs returns the hit IDs in rank order.
func (r *SearchResult) IDs() []string {
	ids := make([]string, len(r.Hits))
	for i, hit := range r.Hits {
		ids[i] = hit.ID
	}
	return ids
}

// buildSearchQuery constructs the Bleve query from params. Text matches
// are OR'ed across fields; filters are AND'ed on top.
func buildSearchQuery(params SearchParams) query.Query {
	var queries []query.Query

	if q := strings.TrimSpace(params.Query); q != "" {
		titleMatch := bleve.NewMatchQuery(q)
		titleMatch.SetField("title")
		titleMatch.SetBoost(3.0)

		authorMatch := bleve.NewMatchQuery(q)
		authorMatch.SetField("author")
		authorMatch.SetBoost(2.0)

		// Typo tolerance on the title
		fuzzy := bleve.NewFuzzyQuery(strings.ToLower(q))
		fuzzy.SetFuzziness(1)
		fuzzy.SetField("title")
		fuzzy.SetBoost(0.8)

		textQueries := []query.Query{titleMatch, authorMatch, fuzzy}

		// Prefix for search-as-you-type (minimum 2 chars)
		if len(q) >= 2 {
			for _, field := range []string{"title", "author"} {
				prefix := bleve.NewPrefixQuery(strings.ToLower(q))
				prefix.SetField(field)
				prefix.SetBoost(0.5)
				textQueries = append(textQueries, prefix)
			}
		}

		queries = append(queries, bleve.NewDisjunctionQuery(textQueries...))
	}

	if params.Genre != "" {
		gq := bleve.NewTermQuery(genre.Normalize(params.Genre))
		gq.SetField("genre_slug")
		queries = append(queries, gq)
	}

	if params.MinYear > 0 || params.MaxYear > 0 {
		minYear := float64(params.MinYear)
		var maxYear *float64
		if params.MaxYear > 0 {
			v := float64(params.MaxYear)
			maxYear = &v
		}
		inclusive := true
		rq := bleve.NewNumericRangeInclusiveQuery(&minYear, maxYear, &inclusive, &inclusive)
		rq.SetField("year")
		queries = append(queries, rq)
	}

	switch len(queries) {
	case 0:
		return bleve.NewMatchAllQuery()
	case 1:
		return queries[0]
	default:
		return bleve.NewConjunctionQuery(queries...)
	}
}

func addSorting(req *bleve.SearchRequest, sortBy string) {
	switch sortBy {
	case SortRating:
		req.SortBy([]string{"-average_rating", "-_score"})
	case SortRecent:
		req.SortBy([]string{"-created_at"})
	case SortTitle:
		req.SortBy([]string{"title", "-_score"})
	case SortYear:
		req.SortBy([]string{"-year", "-_score"})
	default:
		req.SortBy([]string{"-_score"})
	}
}
