package opensearch

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"time"

	"github.com/opensearch-project/opensearch-go/v2/opensearchapi"

	"github.com/turtacn/sigparse/internal/domain/instruction"
	"github.com/turtacn/sigparse/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/sigparse/pkg/errors"
)

var (
	ErrIndexCreationFailed = errors.New(errors.ErrCodeExternalService, "index creation failed")
	ErrBulkFailed          = errors.New(errors.ErrCodeExternalService, "bulk index failed")
)

const (
	DefaultIndex         = "sigparse-instructions"
	defaultBulkBatchSize = 500
)

// Document is the indexed form of one record.
type Document struct {
	ID            string    `json:"id"`
	BatchID       string    `json:"batch_id,omitempty"`
	Seq           int       `json:"seq"`
	InputID       *string   `json:"input_id,omitempty"`
	Text          string    `json:"text"`
	Form          *string   `json:"form,omitempty"`
	DosageMin     *float64  `json:"dosage_min,omitempty"`
	DosageMax     *float64  `json:"dosage_max,omitempty"`
	FrequencyMin  *float64  `json:"frequency_min,omitempty"`
	FrequencyMax  *float64  `json:"frequency_max,omitempty"`
	FrequencyType *string   `json:"frequency_type,omitempty"`
	DurationMin   *float64  `json:"duration_min,omitempty"`
	DurationMax   *float64  `json:"duration_max,omitempty"`
	DurationType  *string   `json:"duration_type,omitempty"`
	AsRequired    bool      `json:"as_required"`
	AsDirected    bool      `json:"as_directed"`
	CreatedAt     time.Time `json:"created_at"`
}

// NewDocument flattens rec.
func NewDocument(rec *instruction.Record) Document {
	d := Document{ID: rec.ID, BatchID: rec.BatchID, Seq: rec.Seq, CreatedAt: rec.CreatedAt}
	if r := rec.Result; r != nil {
		d.InputID = r.InputID
		d.Text = r.Text
		d.Form = r.Form
		d.DosageMin, d.DosageMax = r.DosageMin, r.DosageMax
		d.FrequencyMin, d.FrequencyMax, d.FrequencyType = r.FrequencyMin, r.FrequencyMax, r.FrequencyType
		d.DurationMin, d.DurationMax, d.DurationType = r.DurationMin, r.DurationMax, r.DurationType
		d.AsRequired, d.AsDirected = r.AsRequired, r.AsDirected
	}
	return d
}

// Record converts the document back into a record.
func (d Document) Record() *instruction.Record {
	return &instruction.Record{
		ID:        d.ID,
		BatchID:   d.BatchID,
		Seq:       d.Seq,
		CreatedAt: d.CreatedAt,
		Result: &instruction.StructuredInstruction{
			InputID:       d.InputID,
			Text:          d.Text,
			Form:          d.Form,
			DosageMin:     d.DosageMin,
			DosageMax:     d.DosageMax,
			FrequencyMin:  d.FrequencyMin,
			FrequencyMax:  d.FrequencyMax,
			FrequencyType: d.FrequencyType,
			DurationMin:   d.DurationMin,
			DurationMax:   d.DurationMax,
			DurationType:  d.DurationType,
			AsRequired:    d.AsRequired,
			AsDirected:    d.AsDirected,
		},
	}
}

// IndexMapping is the mapping applied when the index is created.
func IndexMapping() map[string]interface{} {
	keyword := map[string]interface{}{"type": "keyword"}
	double := map[string]interface{}{"type": "double"}
	boolean := map[string]interface{}{"type": "boolean"}
	return map[string]interface{}{
		"settings": map[string]interface{}{
			"number_of_shards":   1,
			"number_of_replicas": 1,
		},
		"mappings": map[string]interface{}{
			"properties": map[string]interface{}{
				"id":             keyword,
				"batch_id":       keyword,
				"seq":            map[string]interface{}{"type": "integer"},
				"input_id":       keyword,
				"text":           map[string]interface{}{"type": "text"},
				"form":           keyword,
				"dosage_min":     double,
				"dosage_max":     double,
				"frequency_min":  double,
				"frequency_max":  double,
				"frequency_type": keyword,
				"duration_min":   double,
				"duration_max":   double,
				"duration_type":  keyword,
				"as_required":    boolean,
				"as_directed":    boolean,
				"created_at":     map[string]interface{}{"type": "date"},
			},
		},
	}
}

// BulkItemError is one rejected document.
type BulkItemError struct {
	DocID     string `json:"doc_id"`
	ErrorType string `json:"error_type"`
	Reason    string `json:"reason"`
}

// BulkResult summarises a bulk request.
type BulkResult struct {
	Succeeded int             `json:"succeeded"`
	Failed    int             `json:"failed"`
	Errors    []BulkItemError `json:"errors,omitempty"`
}

// Indexer writes records into one index. It satisfies instruction.Index.
type Indexer struct {
	client    *Client
	index     string
	batchSize int
	refresh   string
	logger    logging.Logger
}

// IndexerOption configures an Indexer.
type IndexerOption func(*Indexer)

// WithRefresh sets the refresh policy for writes ("true", "wait_for" or
// "false").
func WithRefresh(policy string) IndexerOption {
	return func(i *Indexer) { i.refresh = policy }
}

// NewIndexer writes to index (DefaultIndex when empty) in bulk requests of
// batchSize documents.
func NewIndexer(client *Client, index string, batchSize int, log logging.Logger, opts ...IndexerOption) *Indexer {
	if index == "" {
		index = DefaultIndex
	}
	if batchSize <= 0 {
		batchSize = defaultBulkBatchSize
	}
	if log == nil {
		log = logging.NewNopLogger()
	}
	i := &Indexer{client: client, index: index, batchSize: batchSize, refresh: "false", logger: log}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Index is the target index name.
func (i *Indexer) Index() string {
	return i.index
}

// EnsureIndex creates the index with IndexMapping when it does not exist.
func (i *Indexer) EnsureIndex(ctx context.Context) error {
	resp, err := opensearchapi.IndicesExistsRequest{Index: []string{i.index}}.Do(ctx, i.client.GetClient())
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeExternalService, "failed to check index existence")
	}
	resp.Body.Close()
	if resp.StatusCode == 200 {
		return nil
	}
	if resp.StatusCode != 404 {
		return errors.Newf(errors.ErrCodeExternalService, "index existence check returned status %d", resp.StatusCode)
	}

	body, err := json.Marshal(IndexMapping())
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeSerialization, "failed to marshal index mapping")
	}
	resp, err = opensearchapi.IndicesCreateRequest{Index: i.index, Body: bytes.NewReader(body)}.Do(ctx, i.client.GetClient())
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeExternalService, "failed to create index")
	}
	defer resp.Body.Close()
	if resp.IsError() {
		return responseError(resp, ErrIndexCreationFailed)
	}
	i.logger.Info("index created", logging.String("index", i.index))
	return nil
}

// IndexRecords bulk indexes records keyed by record id. Any rejected
// document makes the call fail with ErrCodeExternalService after every
// batch has been attempted.
func (i *Indexer) IndexRecords(ctx context.Context, records []*instruction.Record) error {
	res, err := i.Bulk(ctx, records)
	if err != nil {
		return err
	}
	if res.Failed > 0 {
		first := res.Errors[0]
		return ErrBulkFailed.WithDetail(first.DocID + ": " + first.ErrorType + " " + first.Reason)
	}
	return nil
}

// Bulk indexes records and reports per-document outcomes.
func (i *Indexer) Bulk(ctx context.Context, records []*instruction.Record) (*BulkResult, error) {
	result := &BulkResult{}
	for start := 0; start < len(records); start += i.batchSize {
		end := start + i.batchSize
		if end > len(records) {
			end = len(records)
		}
		if err := i.bulkBatch(ctx, records[start:end], result); err != nil {
			return result, err
		}
	}

	i.logger.Debug("bulk index completed",
		logging.String("index", i.index),
		logging.Int("total", len(records)),
		logging.Int("succeeded", result.Succeeded),
		logging.Int("failed", result.Failed),
	)
	return result, nil
}

type bulkMeta struct {
	Index struct {
		Index string `json:"_index"`
		ID    string `json:"_id"`
	} `json:"index"`
}

func (i *Indexer) bulkBatch(ctx context.Context, batch []*instruction.Record, result *BulkResult) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, rec := range batch {
		var meta bulkMeta
		meta.Index.Index = i.index
		meta.Index.ID = rec.ID
		if err := enc.Encode(meta); err != nil {
			return errors.Wrap(err, errors.ErrCodeSerialization, "failed to encode bulk metadata")
		}
		if err := enc.Encode(NewDocument(rec)); err != nil {
			return errors.Wrap(err, errors.ErrCodeSerialization, "failed to encode document")
		}
	}

	resp, err := opensearchapi.BulkRequest{Body: bytes.NewReader(buf.Bytes()), Refresh: i.refresh}.Do(ctx, i.client.GetClient())
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeExternalService, "bulk request failed")
	}
	defer resp.Body.Close()

	if resp.IsError() {
		result.Failed += len(batch)
		err := responseError(resp, ErrBulkFailed)
		result.Errors = append(result.Errors, BulkItemError{DocID: "batch", ErrorType: "http_error", Reason: err.Error()})
		return nil
	}

	var bulkResp struct {
		Errors bool `json:"errors"`
		Items  []map[string]struct {
			ID     string `json:"_id"`
			Status int    `json:"status"`
			Error  struct {
				Type   string `json:"type"`
				Reason string `json:"reason"`
			} `json:"error"`
		} `json:"items"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&bulkResp); err != nil {
		return errors.Wrap(err, errors.ErrCodeSerialization, "failed to decode bulk response")
	}
	if !bulkResp.Errors {
		result.Succeeded += len(bulkResp.Items)
		return nil
	}
	for _, item := range bulkResp.Items {
		for _, v := range item {
			if v.Status >= 200 && v.Status < 300 {
				result.Succeeded++
				continue
			}
			result.Failed++
			result.Errors = append(result.Errors, BulkItemError{DocID: v.ID, ErrorType: v.Error.Type, Reason: v.Error.Reason})
		}
	}
	return nil
}

func responseError(resp *opensearchapi.Response, base *errors.AppError) error {
	var errResp struct {
		Error struct {
			Type   string `json:"type"`
			Reason string `json:"reason"`
		} `json:"error"`
	}
	body, _ := io.ReadAll(resp.Body)
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error.Reason != "" {
		return base.WithDetail(errResp.Error.Type + ": " + errResp.Error.Reason)
	}
	return base.WithDetail(resp.Status())
}
