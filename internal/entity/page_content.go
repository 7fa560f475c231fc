package entity

// PageContent is the rendered document returned by one navigation.
type PageContent struct {
	RawHTML   string
	SourceURL string
}

// ExtractionResult is the deduplicated set of strings matched on one page.
type ExtractionResult []string
