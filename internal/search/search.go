package search

// ResultType identifies the kind of entity in a search result.
type ResultType string

const (
	ResultRequest   ResultType = "request"
	ResultViolation ResultType = "violation"
)

// Result is a single search hit returned to the caller.
type Result struct {
	Type    ResultType `json:"type"`
	ID      string     `json:"id"`
	Title   string     `json:"title"`
	Snippet string     `json:"snippet"`
	AreaID  string     `json:"areaId"`
	PlotID  string     `json:"plotId,omitempty"`
}

// Query describes a search request. ScopeAreaIDs carries the calling
// admin's jurisdiction; empty means no area restriction.
type Query struct {
	Text         string
	FilterType   ResultType // empty = all types
	ScopeAreaIDs []string
	Limit        int
	Offset       int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// Searcher can execute a full-text search.
type Searcher interface {
	Search(q Query) ([]Result, int, error)
	Healthy() bool
}

// Indexer can push entities into a search index.
type Indexer interface {
	IndexRequest(r RequestRecord) error
	IndexViolation(v ViolationRecord) error
	DeleteRequest(id string) error
}

// RequestRecord is the data we index for a land request.
type RequestRecord struct {
	ID       string `json:"id"`
	Purpose  string `json:"purpose"`
	QuotedBy string `json:"quotedBy"`
	AreaID   string `json:"areaId"`
	PlotID   string `json:"plotId"`
	Stage    string `json:"stage"`
}

// ViolationRecord is the data we index for a violation.
type ViolationRecord struct {
	ID         string `json:"id"`
	Comments   string `json:"comments"`
	OwnerEmail string `json:"ownerEmail"`
	AreaID     string `json:"areaId"`
	PlotID     string `json:"plotId"`
	Flagged    bool   `json:"flagged"`
}
