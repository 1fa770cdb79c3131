package opensearch

import (
	"bytes"
	"context"
	"encoding/json"
	"time"

	"github.com/opensearch-project/opensearch-go/v2/opensearchapi"

	"github.com/turtacn/sigparse/internal/domain/instruction"
	"github.com/turtacn/sigparse/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/sigparse/pkg/errors"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// Query selects indexed records. Zero-valued fields do not filter.
type Query struct {
	Text          string `json:"text,omitempty" form:"q"`
	InputID       string `json:"inputId,omitempty" form:"inputId"`
	BatchID       string `json:"batchId,omitempty" form:"batchId"`
	Form          string `json:"form,omitempty" form:"form"`
	FrequencyType string `json:"frequencyType,omitempty" form:"frequencyType"`
	DurationType  string `json:"durationType,omitempty" form:"durationType"`
	AsRequired    *bool  `json:"asRequired,omitempty" form:"asRequired"`
	AsDirected    *bool  `json:"asDirected,omitempty" form:"asDirected"`
	From          int    `json:"from,omitempty" form:"from"`
	Size          int    `json:"size,omitempty" form:"size"`
}

// SearchResult is one page of matches.
type SearchResult struct {
	Total   int64                 `json:"total"`
	TookMs  int64                 `json:"tookMs"`
	Records []*instruction.Record `json:"records"`
}

// Searcher queries the instruction index.
type Searcher struct {
	client *Client
	index  string
	logger logging.Logger
}

// NewSearcher queries index (DefaultIndex when empty).
func NewSearcher(client *Client, index string, log logging.Logger) *Searcher {
	if index == "" {
		index = DefaultIndex
	}
	if log == nil {
		log = logging.NewNopLogger()
	}
	return &Searcher{client: client, index: index, logger: log}
}

// Search runs q against the index.
func (s *Searcher) Search(ctx context.Context, q Query) (*SearchResult, error) {
	body, err := json.Marshal(BuildQueryDSL(q))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "failed to marshal query DSL")
	}

	start := time.Now()
	resp, err := opensearchapi.SearchRequest{
		Index: []string{s.index},
		Body:  bytes.NewReader(body),
	}.Do(ctx, s.client.GetClient())
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, errors.New(errors.ErrCodeTimeout, "search request timed out")
		}
		return nil, errors.Wrap(err, errors.ErrCodeExternalService, "search request failed")
	}
	defer resp.Body.Close()

	if resp.IsError() {
		return nil, responseError(resp, errors.New(errors.ErrCodeExternalService, "search failed"))
	}

	var raw struct {
		Took int64 `json:"took"`
		Hits struct {
			Total struct {
				Value int64 `json:"value"`
			} `json:"total"`
			Hits []struct {
				Source Document `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "failed to decode search response")
	}

	out := &SearchResult{
		Total:   raw.Hits.Total.Value,
		TookMs:  raw.Took,
		Records: make([]*instruction.Record, 0, len(raw.Hits.Hits)),
	}
	for _, h := range raw.Hits.Hits {
		out.Records = append(out.Records, h.Source.Record())
	}

	s.logger.Debug("search executed",
		logging.String("index", s.index),
		logging.Int64("took_ms", time.Since(start).Milliseconds()),
		logging.Int64("hits", out.Total),
	)
	return out, nil
}

// BuildQueryDSL renders q as an OpenSearch bool query sorted by creation
// time then sequence.
func BuildQueryDSL(q Query) map[string]interface{} {
	size := q.Size
	if size <= 0 {
		size = defaultPageSize
	}
	if size > maxPageSize {
		size = maxPageSize
	}
	from := q.From
	if from < 0 {
		from = 0
	}

	var must []interface{}
	if q.Text != "" {
		must = append(must, map[string]interface{}{
			"match": map[string]interface{}{"text": map[string]interface{}{"query": q.Text, "operator": "and"}},
		})
	}

	var filter []interface{}
	term := func(field, value string) {
		if value != "" {
			filter = append(filter, map[string]interface{}{"term": map[string]interface{}{field: value}})
		}
	}
	term("input_id", q.InputID)
	term("batch_id", q.BatchID)
	term("form", q.Form)
	term("frequency_type", q.FrequencyType)
	term("duration_type", q.DurationType)
	if q.AsRequired != nil {
		filter = append(filter, map[string]interface{}{"term": map[string]interface{}{"as_required": *q.AsRequired}})
	}
	if q.AsDirected != nil {
		filter = append(filter, map[string]interface{}{"term": map[string]interface{}{"as_directed": *q.AsDirected}})
	}

	boolQuery := map[string]interface{}{}
	if len(must) > 0 {
		boolQuery["must"] = must
	}
	if len(filter) > 0 {
		boolQuery["filter"] = filter
	}
	query := map[string]interface{}{"match_all": map[string]interface{}{}}
	if len(boolQuery) > 0 {
		query = map[string]interface{}{"bool": boolQuery}
	}

	return map[string]interface{}{
		"from":  from,
		"size":  size,
		"query": query,
		"sort": []interface{}{
			map[string]interface{}{"created_at": map[string]interface{}{"order": "desc"}},
			map[string]interface{}{"seq": map[string]interface{}{"order": "asc"}},
		},
	}
}
