package search

import (
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync/atomic"
	"time"

	meili "github.com/meilisearch/meilisearch-go"
)

const (
	idxRequests   = "landgov_requests"
	idxViolations = "landgov_violations"
)

// Meili implements Searcher and Indexer via Meilisearch.
type Meili struct {
	client  meili.ServiceManager
	healthy atomic.Bool
	done    chan struct{}
}

// NewMeili creates a Meilisearch client and configures indexes.
// Returns a client even if the initial connection fails; the health loop
// keeps probing and reconfigures on recovery.
func NewMeili(url, apiKey string) *Meili {
	client := meili.New(url, meili.WithAPIKey(apiKey))

	m := &Meili{
		client: client,
		done:   make(chan struct{}),
	}

	if _, err := client.Health(); err != nil {
		log.Printf("search: meilisearch unavailable at %s: %v", url, err)
		m.healthy.Store(false)
	} else {
		m.healthy.Store(true)
		m.configureIndexes()
	}

	go m.healthLoop()
	return m
}

func (m *Meili) configureIndexes() {
	indexes := []struct {
		uid        string
		primaryKey string
		filterable []string
		searchable []string
	}{
		{
			uid:        idxRequests,
			primaryKey: "id",
			filterable: []string{"areaId", "stage"},
			searchable: []string{"purpose", "quotedBy"},
		},
		{
			uid:        idxViolations,
			primaryKey: "id",
			filterable: []string{"areaId", "flagged"},
			searchable: []string{"comments", "ownerEmail", "plotId"},
		},
	}

	for _, idx := range indexes {
		if _, err := m.client.CreateIndex(&meili.IndexConfig{
			Uid:        idx.uid,
			PrimaryKey: idx.primaryKey,
		}); err != nil {
			log.Printf("search: create index %s (may already exist): %v", idx.uid, err)
		}

		index := m.client.Index(idx.uid)
		filterableInterface := make([]interface{}, len(idx.filterable))
		for i, v := range idx.filterable {
			filterableInterface[i] = v
		}
		if _, err := index.UpdateFilterableAttributes(&filterableInterface); err != nil {
			log.Printf("search: update filterable attrs for %s: %v", idx.uid, err)
		}
		if _, err := index.UpdateSearchableAttributes(&idx.searchable); err != nil {
			log.Printf("search: update searchable attrs for %s: %v", idx.uid, err)
		}
	}
}

func (m *Meili) healthLoop() {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			_, err := m.client.Health()
			wasHealthy := m.healthy.Load()
			m.healthy.Store(err == nil)
			if err == nil && !wasHealthy {
				log.Println("search: meilisearch recovered, reconfiguring indexes")
				m.configureIndexes()
			}
		}
	}
}

// Close stops the background health monitor.
func (m *Meili) Close() {
	close(m.done)
}

// Healthy reports whether Meilisearch is reachable.
func (m *Meili) Healthy() bool {
	return m.healthy.Load()
}

// Search queries both indexes (or a filtered subset) and merges results.
func (m *Meili) Search(q Query) ([]Result, int, error) {
	if !m.healthy.Load() {
		return nil, 0, fmt.Errorf("meilisearch unhealthy")
	}

	limit := int64(q.Limit)
	if limit == 0 {
		limit = 20
	}

	var queries []*meili.SearchRequest
	targetIndexes := []struct {
		uid  string
		rtyp ResultType
	}{
		{idxRequests, ResultRequest},
		{idxViolations, ResultViolation},
	}

	for _, ti := range targetIndexes {
		if q.FilterType != "" && q.FilterType != ti.rtyp {
			continue
		}
		sr := &meili.SearchRequest{
			IndexUID:              ti.uid,
			Limit:                 limit,
			Offset:                int64(q.Offset),
			AttributesToHighlight: []string{"*"},
			HighlightPreTag:       "<mark>",
			HighlightPostTag:      "</mark>",
			ShowRankingScore:      true,
		}

		if len(q.ScopeAreaIDs) > 0 {
			quoted := make([]string, len(q.ScopeAreaIDs))
			for i, id := range q.ScopeAreaIDs {
				quoted[i] = fmt.Sprintf("%q", id)
			}
			sr.Filter = []string{"areaId IN [" + strings.Join(quoted, ", ") + "]"}
		}
		queries = append(queries, sr)
	}

	if len(queries) == 0 {
		return nil, 0, nil
	}

	resp, err := m.client.MultiSearch(&meili.MultiSearchRequest{
		Queries: queries,
	})
	if err != nil {
		m.healthy.Store(false)
		return nil, 0, fmt.Errorf("meilisearch multi-search: %w", err)
	}

	var results []Result
	total := 0
	for _, sr := range resp.Results {
		total += int(sr.EstimatedTotalHits)
		rtyp := indexToResultType(sr.IndexUID)
		for _, hit := range sr.Hits {
			results = append(results, hitToResult(hit, rtyp))
		}
	}

	return results, total, nil
}

func indexToResultType(uid string) ResultType {
	switch uid {
	case idxRequests:
		return ResultRequest
	case idxViolations:
		return ResultViolation
	default:
		return ""
	}
}

func hitToResult(hit meili.Hit, rtyp ResultType) Result {
	r := Result{Type: rtyp}
	r.ID = decodeString(hit, "id")
	r.AreaID = decodeString(hit, "areaId")
	r.PlotID = decodeString(hit, "plotId")

	switch rtyp {
	case ResultRequest:
		r.Title = firstNonBlank(decodeFormattedString(hit, "purpose"), decodeString(hit, "purpose"))
		r.Snippet = firstNonBlank(decodeFormattedString(hit, "quotedBy"), decodeString(hit, "quotedBy"))
	case ResultViolation:
		r.Title = firstNonBlank(decodeFormattedString(hit, "ownerEmail"), decodeString(hit, "ownerEmail"))
		r.Snippet = firstNonBlank(decodeFormattedString(hit, "comments"), decodeString(hit, "comments"))
	}
	return r
}

func decodeString(hit meili.Hit, key string) string {
	raw, ok := hit[key]
	if !ok {
		return ""
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return ""
}

func decodeFormattedString(hit meili.Hit, key string) string {
	raw, ok := hit["_formatted"]
	if !ok {
		return ""
	}
	var formatted map[string]string
	if err := json.Unmarshal(raw, &formatted); err != nil {
		return ""
	}
	return strings.TrimSpace(formatted[key])
}

func firstNonBlank(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}

// IndexRequest adds or updates a land request in the search index.
func (m *Meili) IndexRequest(r RequestRecord) error {
	_, err := m.client.Index(idxRequests).AddDocuments([]RequestRecord{r}, nil)
	return err
}

// IndexViolation adds or updates a violation in the search index.
func (m *Meili) IndexViolation(v ViolationRecord) error {
	_, err := m.client.Index(idxViolations).AddDocuments([]ViolationRecord{v}, nil)
	return err
}

// DeleteRequest removes a land request from the search index. Used when
// an allocation purges the losing bids.
func (m *Meili) DeleteRequest(id string) error {
	_, err := m.client.Index(idxRequests).DeleteDocument(id, nil)
	return err
}

// IndexRequests bulk-indexes land requests.
func (m *Meili) IndexRequests(requests []RequestRecord) error {
	if len(requests) == 0 {
		return nil
	}
	_, err := m.client.Index(idxRequests).AddDocuments(requests, nil)
	return err
}

// IndexViolations bulk-indexes violations.
func (m *Meili) IndexViolations(violations []ViolationRecord) error {
	if len(violations) == 0 {
		return nil
	}
	_, err := m.client.Index(idxViolations).AddDocuments(violations, nil)
	return err
}
