package search

import (
	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/simple"
	"github.com/blevesearch/bleve/v2/analysis/lang/en"
	"github.com/blevesearch/bleve/v2/mapping"
)

// buildIndexMapping creates the Bleve mapping for book documents.
//
// Title and author are full-text with English stemming. The genre slug is
// a keyword for exact filters and facets. Year, rating and creation time
// are numeric for sorting.
func buildIndexMapping() mapping.IndexMapping {
	indexMapping := bleve.NewIndexMapping()
	indexMapping.DefaultAnalyzer = en.AnalyzerName

	docMapping := bleve.NewDocumentMapping()

	titleFieldMapping := bleve.NewTextFieldMapping()
	titleFieldMapping.Analyzer = en.AnalyzerName
	titleFieldMapping.Store = true
	titleFieldMapping.IncludeTermVectors = true // For highlighting
	docMapping.AddFieldMappingsAt("title", titleFieldMapping)

	authorFieldMapping := bleve.NewTextFieldMapping()
	authorFieldMapping.Analyzer = simple.Name // Names should not be stemmed
	authorFieldMapping.Store = true
	authorFieldMapping.IncludeTermVectors = true
	docMapping.AddFieldMappingsAt("author", authorFieldMapping)

	genreFieldMapping := bleve.NewTextFieldMapping()
	genreFieldMapping.Analyzer = simple.Name
	genreFieldMapping.Store = true
	docMapping.AddFieldMappingsAt("genre", genreFieldMapping)

	// --- Keyword fields ---

	idFieldMapping := bleve.NewTextFieldMapping()
	idFieldMapping.Analyzer = keyword.Name
	docMapping.AddFieldMappingsAt("id", idFieldMapping)

	genreSlugFieldMapping := bleve.NewTextFieldMapping()
	genreSlugFieldMapping.Analyzer = keyword.Name
	genreSlugFieldMapping.Store = true
	docMapping.AddFieldMappingsAt("genre_slug", genreSlugFieldMapping)

	// --- Numeric fields ---

	for _, field := range []string{"year", "average_rating", "created_at"} {
		numeric := bleve.NewNumericFieldMapping()
		numeric.Store = true
		docMapping.AddFieldMappingsAt(field, numeric)
	}

	indexMapping.AddDocumentMapping("_default", docMapping)
	return indexMapping
}
