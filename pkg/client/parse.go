package client

import (
	"context"
	"net/url"
	"strconv"
	"time"

	"github.com/turtacn/sigparse/pkg/errors"
)

// Batch modes accepted by ParseBatch. Empty lets the server choose.
const (
	ModeSequential = "sequential"
	ModeParallel   = "parallel"
	ModeConcurrent = "concurrent"
)

// Instruction is one structured record. Unknown attributes are nil.
type Instruction struct {
	InputID       *string  `json:"inputId"`
	Text          string   `json:"text"`
	Form          *string  `json:"form"`
	DosageMin     *float64 `json:"dosageMin"`
	DosageMax     *float64 `json:"dosageMax"`
	FrequencyMin  *float64 `json:"frequencyMin"`
	FrequencyMax  *float64 `json:"frequencyMax"`
	FrequencyType *string  `json:"frequencyType"`
	DurationMin   *float64 `json:"durationMin"`
	DurationMax   *float64 `json:"durationMax"`
	DurationType  *string  `json:"durationType"`
	AsRequired    bool     `json:"asRequired"`
	AsDirected    bool     `json:"asDirected"`
}

// Record is a stored parse result.
type Record struct {
	ID        string       `json:"id"`
	BatchID   string       `json:"batchId,omitempty"`
	Seq       int          `json:"seq"`
	CreatedAt time.Time    `json:"createdAt"`
	Result    *Instruction `json:"result"`
}

// BatchResult is the response of ParseBatch.
type BatchResult struct {
	BatchID string         `json:"batchId"`
	Mode    string         `json:"mode,omitempty"`
	Inputs  int            `json:"inputs"`
	Results []*Instruction `json:"results"`
}

// SearchQuery filters indexed records. Zero fields are not sent.
type SearchQuery struct {
	Text          string
	InputID       string
	BatchID       string
	Form          string
	FrequencyType string
	DurationType  string
	AsRequired    *bool
	AsDirected    *bool
	From          int
	Size          int
}

// SearchResult is one page of search matches.
type SearchResult struct {
	Total   int64     `json:"total"`
	TookMs  int64     `json:"tookMs"`
	Records []*Record `json:"records"`
}

type parseRequest struct {
	ID   *string `json:"id"`
	Text string  `json:"text"`
}

type parseResponse struct {
	Results []*Instruction `json:"results"`
}

type batchRequest struct {
	Texts []string `json:"texts"`
	IDs   []string `json:"ids,omitempty"`
	Mode  string   `json:"mode,omitempty"`
}

type recordsResponse struct {
	Total   int       `json:"total"`
	Records []*Record `json:"records"`
}

// Parse converts one free-text instruction. id may be nil.
func (c *Client) Parse(ctx context.Context, id *string, text string) ([]*Instruction, error) {
	var resp parseResponse
	if err := c.post(ctx, apiPrefix+"/parse", parseRequest{ID: id, Text: text}, &resp); err != nil {
		return nil, err
	}
	return resp.Results, nil
}

// ParseBatch converts texts in one call. ids, when given, must match texts
// one to one.
func (c *Client) ParseBatch(ctx context.Context, texts, ids []string, mode string) (*BatchResult, error) {
	if len(ids) > 0 && len(ids) != len(texts) {
		return nil, errors.InvalidParam("ids must match texts one to one")
	}
	var resp BatchResult
	if err := c.post(ctx, apiPrefix+"/parse/batch", batchRequest{Texts: texts, IDs: ids, Mode: mode}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Instructions lists the stored records for inputID.
func (c *Client) Instructions(ctx context.Context, inputID string) ([]*Record, error) {
	if inputID == "" {
		return nil, errors.InvalidParam("inputID is required")
	}
	var resp recordsResponse
	if err := c.get(ctx, apiPrefix+"/instructions/"+url.PathEscape(inputID), &resp); err != nil {
		return nil, err
	}
	return resp.Records, nil
}

// BatchInstructions lists the stored records of a batch in input order.
func (c *Client) BatchInstructions(ctx context.Context, batchID string) ([]*Record, error) {
	if batchID == "" {
		return nil, errors.InvalidParam("batchID is required")
	}
	var resp recordsResponse
	if err := c.get(ctx, apiPrefix+"/batches/"+url.PathEscape(batchID)+"/instructions", &resp); err != nil {
		return nil, err
	}
	return resp.Records, nil
}

// Search queries the instruction index.
func (c *Client) Search(ctx context.Context, q SearchQuery) (*SearchResult, error) {
	var resp SearchResult
	path := apiPrefix + "/instructions/search"
	if qs := q.values().Encode(); qs != "" {
		path += "?" + qs
	}
	if err := c.get(ctx, path, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (q SearchQuery) values() url.Values {
	v := url.Values{}
	set := func(key, val string) {
		if val != "" {
			v.Set(key, val)
		}
	}
	set("q", q.Text)
	set("inputId", q.InputID)
	set("batchId", q.BatchID)
	set("form", q.Form)
	set("frequencyType", q.FrequencyType)
	set("durationType", q.DurationType)
	if q.AsRequired != nil {
		v.Set("asRequired", strconv.FormatBool(*q.AsRequired))
	}
	if q.AsDirected != nil {
		v.Set("asDirected", strconv.FormatBool(*q.AsDirected))
	}
	if q.From > 0 {
		v.Set("from", strconv.Itoa(q.From))
	}
	if q.Size > 0 {
		v.Set("size", strconv.Itoa(q.Size))
	}
	return v
}
