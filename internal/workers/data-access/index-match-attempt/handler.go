// internal/workers/data-access/index-match-attempt/handler.go
package indexmatchattempt

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	commonerrors "transfer-reconciler/internal/common/errors"
	"transfer-reconciler/internal/common/logger"
	"transfer-reconciler/internal/models"
)

const TaskType = "index-match-attempt"

var (
	ErrIndexFailed  = errors.New("INDEX_REQUEST_FAILED")
	ErrSearchFailed = errors.New("SEARCH_QUERY_FAILED")
)

const indexMapping = `{
	"mappings": {
		"properties": {
			"attempt_id":         {"type": "long"},
			"payment_id":         {"type": "long"},
			"inbound_email_id":   {"type": "long"},
			"transaction_id":     {"type": "keyword"},
			"match_result":       {"type": "keyword"},
			"reason":             {"type": "text"},
			"payment_amount":     {"type": "scaled_float", "scaling_factor": 100},
			"extracted_amount":   {"type": "scaled_float", "scaling_factor": 100},
			"amount_diff":        {"type": "scaled_float", "scaling_factor": 100},
			"payment_name":       {"type": "keyword"},
			"extracted_name":     {"type": "keyword"},
			"time_diff_minutes":  {"type": "integer"},
			"extraction_method":  {"type": "keyword"},
			"processing_time_ms": {"type": "long"},
			"created_at":         {"type": "date"}
		}
	}
}`

// Handler mirrors match attempts into Elasticsearch and searches them.
type Handler struct {
	config *Config
	client *elasticsearch.Client
	logger logger.Logger
}

func NewHandler(config *Config, client *elasticsearch.Client, log logger.Logger) *Handler {
	if config == nil {
		config = LoadConfig()
	}
	return &Handler{
		config: config,
		client: client,
		logger: log.WithFields(map[string]interface{}{"taskType": TaskType}),
	}
}

// EnsureIndex creates the audit index unless it already exists.
func (h *Handler) EnsureIndex(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, h.config.Timeout)
	defer cancel()

	res, err := h.client.Indices.Exists([]string{h.config.Index}, h.client.Indices.Exists.WithContext(ctx))
	if err != nil {
		return commonerrors.NewTransientIOError("elasticsearch index exists", err)
	}
	res.Body.Close()
	if res.StatusCode == 200 {
		return nil
	}

	res, err = h.client.Indices.Create(
		h.config.Index,
		h.client.Indices.Create.WithContext(ctx),
		h.client.Indices.Create.WithBody(bytes.NewReader([]byte(indexMapping))),
	)
	if err != nil {
		return commonerrors.NewTransientIOError("elasticsearch create index", err)
	}
	defer res.Body.Close()

	// 400 is resource_already_exists_exception from a concurrent creator
	if res.IsError() && res.StatusCode != 400 {
		return fmt.Errorf("%w: create %s: %s", ErrIndexFailed, h.config.Index, res.Status())
	}
	h.logger.Info("audit index ready", map[string]interface{}{"index": h.config.Index})
	return nil
}

// Index writes one attempt. Attempts with a database id are upserted under it.
func (h *Handler) Index(ctx context.Context, a *models.MatchAttempt) error {
	if a == nil {
		return nil
	}
	body, err := json.Marshal(toDocument(a))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrIndexFailed, err)
	}

	ctx, cancel := context.WithTimeout(ctx, h.config.Timeout)
	defer cancel()

	req := esapi.IndexRequest{
		Index: h.config.Index,
		Body:  bytes.NewReader(body),
	}
	if a.ID != 0 {
		req.DocumentID = strconv.FormatInt(a.ID, 10)
	}

	res, err := req.Do(ctx, h.client)
	if err != nil {
		return commonerrors.NewTransientIOError("elasticsearch index", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		raw, _ := io.ReadAll(res.Body)
		return fmt.Errorf("%w: %s: %s", ErrIndexFailed, res.Status(), string(raw))
	}

	h.logger.Debug("match attempt indexed", map[string]interface{}{
		"inboundEmailId": a.InboundEmailID,
		"result":         string(a.Result),
	})
	return nil
}

type searchResponse struct {
	Took int `json:"took"`
	Hits struct {
		Total struct {
			Value int64 `json:"value"`
		} `json:"total"`
		Hits []struct {
			Source Document `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

// Search returns attempts matching input, newest first.
func (h *Handler) Search(ctx context.Context, input *SearchInput) (*SearchOutput, error) {
	if input == nil {
		input = &SearchInput{}
	}
	size := input.Size
	if size <= 0 {
		size = h.config.DefaultSize
	}
	if size > h.config.MaxSize {
		size = h.config.MaxSize
	}
	from := input.From
	if from < 0 {
		from = 0
	}

	body, err := json.Marshal(buildSearchQuery(input))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSearchFailed, err)
	}

	ctx, cancel := context.WithTimeout(ctx, h.config.Timeout)
	defer cancel()

	req := esapi.SearchRequest{
		Index: []string{h.config.Index},
		Body:  bytes.NewReader(body),
		From:  &from,
		Size:  &size,
	}
	res, err := req.Do(ctx, h.client)
	if err != nil {
		return nil, commonerrors.NewTransientIOError("elasticsearch search", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, fmt.Errorf("%w: %s", ErrSearchFailed, res.Status())
	}

	var parsed searchResponse
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrSearchFailed, err)
	}

	out := &SearchOutput{
		Attempts:  make([]Document, 0, len(parsed.Hits.Hits)),
		TotalHits: parsed.Hits.Total.Value,
		Took:      parsed.Took,
	}
	for _, hit := range parsed.Hits.Hits {
		out.Attempts = append(out.Attempts, hit.Source)
	}
	return out, nil
}

func buildSearchQuery(input *SearchInput) map[string]interface{} {
	filters := []interface{}{}
	term := func(field string, value interface{}) {
		filters = append(filters, map[string]interface{}{
			"term": map[string]interface{}{field: value},
		})
	}

	if input.EmailID != 0 {
		term("inbound_email_id", input.EmailID)
	}
	if input.PaymentID != 0 {
		term("payment_id", input.PaymentID)
	}
	if input.TransactionID != "" {
		term("transaction_id", input.TransactionID)
	}
	if input.Result != "" {
		term("match_result", input.Result)
	}

	query := map[string]interface{}{"match_all": map[string]interface{}{}}
	if len(filters) > 0 {
		query = map[string]interface{}{
			"bool": map[string]interface{}{"filter": filters},
		}
	}
	return map[string]interface{}{
		"query": query,
		"sort": []interface{}{
			map[string]interface{}{"created_at": map[string]interface{}{"order": "desc"}},
		},
	}
}
