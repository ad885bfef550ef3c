package records

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	es "github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
	"github.com/mitchellh/mapstructure"

	"github.com/jonesrussell/north-cloud/regwatch/internal/domain"
	"github.com/jonesrussell/north-cloud/regwatch/internal/logger"
)

const (
	// DefaultIndex holds the candidate records.
	DefaultIndex = "regwatch_records"

	searchPageSize = 500
	// maxResultWindow is the Elasticsearch default index.max_result_window.
	maxResultWindow = 10000
	requestTimeout  = 30 * time.Second
)

// ESStore stores records in one index, with the record key as document id.
type ESStore struct {
	client *es.Client
	index  string
	log    logger.Logger
}

var _ Store = (*ESStore)(nil)

// NewESStore creates a store on index, or DefaultIndex when empty.
func NewESStore(client *es.Client, index string, log logger.Logger) *ESStore {
	if index == "" {
		index = DefaultIndex
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &ESStore{client: client, index: index, log: log}
}

type searchResponse struct {
	Hits struct {
		Hits []struct {
			ID     string         `json:"_id"`
			Source map[string]any `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

func buildQuery(filter domain.RecordFilter) map[string]any {
	must := make([]any, 0, 4)
	if len(filter.EntityTypes) > 0 {
		must = append(must, map[string]any{"terms": map[string]any{"entity_type": filter.EntityTypes}})
	}
	if filter.Country != "" {
		must = append(must, map[string]any{"term": map[string]any{"country": strings.ToUpper(filter.Country)}})
	}
	if filter.RiskLevel != "" {
		must = append(must, map[string]any{"term": map[string]any{"risk_level": string(filter.RiskLevel)}})
	}
	if filter.SourceName != "" {
		must = append(must, map[string]any{"term": map[string]any{"source_name": filter.SourceName}})
	}
	if len(must) == 0 {
		return map[string]any{"match_all": map[string]any{}}
	}
	return map[string]any{"bool": map[string]any{"filter": must}}
}

// FindByCriteria implements Store. Unlimited requests page through the index
// up to the default result window.
func (s *ESStore) FindByCriteria(ctx context.Context, filter domain.RecordFilter) ([]*domain.Record, error) {
	want := filter.Limit
	if want <= 0 || want > maxResultWindow {
		want = maxResultWindow
	}
	query := buildQuery(filter)

	out := make([]*domain.Record, 0)
	for from := 0; from < want; from += searchPageSize {
		size := min(searchPageSize, want-from)
		page, err := s.search(ctx, map[string]any{
			"query": query,
			"from":  from,
			"size":  size,
			"sort":  []any{map[string]any{"entity_type": "asc"}, map[string]any{"entity_id": "asc"}},
		})
		if err != nil {
			return nil, err
		}
		out = append(out, page...)
		if len(page) < size {
			break
		}
	}
	return out, nil
}

func (s *ESStore) search(ctx context.Context, body map[string]any) ([]*domain.Record, error) {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("error marshaling search query: %w", err)
	}
	res, err := s.client.Search(
		s.client.Search.WithContext(ctx),
		s.client.Search.WithIndex(s.index),
		s.client.Search.WithBody(bytes.NewReader(payload)),
	)
	if err != nil {
		return nil, fmt.Errorf("error executing search: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return nil, fmt.Errorf("search error: %s", res.String())
	}

	var sr searchResponse
	if decodeErr := json.NewDecoder(res.Body).Decode(&sr); decodeErr != nil {
		return nil, fmt.Errorf("error decoding search response: %w", decodeErr)
	}
	out := make([]*domain.Record, 0, len(sr.Hits.Hits))
	for _, hit := range sr.Hits.Hits {
		r, decodeErr := decodeRecord(hit.Source)
		if decodeErr != nil {
			s.log.Warn("Skipping undecodable record",
				logger.String("index", s.index),
				logger.String("doc_id", hit.ID),
				logger.Error(decodeErr),
			)
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

func decodeRecord(source map[string]any) (*domain.Record, error) {
	var r domain.Record
	if err := mapstructure.Decode(source, &r); err != nil {
		return nil, fmt.Errorf("decode record: %w", err)
	}
	return &r, nil
}

// Get implements Store.
func (s *ESStore) Get(ctx context.Context, entityType, entityID string) (*domain.Record, error) {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	key := (&domain.Record{EntityType: entityType, EntityID: entityID}).Key()
	res, err := s.client.Get(s.index, key, s.client.Get.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("error getting record: %w", err)
	}
	defer res.Body.Close()
	if res.StatusCode == http.StatusNotFound {
		return nil, domain.NotFoundf("record %s", key)
	}
	if res.IsError() {
		return nil, fmt.Errorf("get error: %s", res.String())
	}

	var doc struct {
		Source map[string]any `json:"_source"`
	}
	if decodeErr := json.NewDecoder(res.Body).Decode(&doc); decodeErr != nil {
		return nil, fmt.Errorf("error decoding record: %w", decodeErr)
	}
	return decodeRecord(doc.Source)
}

// Save implements Store.
func (s *ESStore) Save(ctx context.Context, record *domain.Record) error {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	body, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}
	res, err := s.client.Index(
		s.index,
		bytes.NewReader(body),
		s.client.Index.WithContext(ctx),
		s.client.Index.WithDocumentID(record.Key()),
		s.client.Index.WithRefresh("wait_for"),
	)
	if err != nil {
		return fmt.Errorf("failed to index record: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("elasticsearch error: %s", res.String())
	}
	return nil
}

type bulkResponse struct {
	Errors bool `json:"errors"`
	Items  []map[string]struct {
		ID     string `json:"_id"`
		Status int    `json:"status"`
		Error  *struct {
			Reason string `json:"reason"`
		} `json:"error,omitempty"`
	} `json:"items"`
}

// SaveAll implements Store with one bulk request.
func (s *ESStore) SaveAll(ctx context.Context, records []*domain.Record) error {
	if len(records) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	var buf bytes.Buffer
	for _, r := range records {
		meta := map[string]any{"index": map[string]any{"_index": s.index, "_id": r.Key()}}
		if err := writeNDJSON(&buf, meta, r); err != nil {
			return err
		}
	}

	res, err := s.client.Bulk(
		bytes.NewReader(buf.Bytes()),
		s.client.Bulk.WithContext(ctx),
		s.client.Bulk.WithRefresh("wait_for"),
	)
	if err != nil {
		return fmt.Errorf("failed to bulk index records: %w", err)
	}
	defer res.Body.Close()
	return checkBulk(res)
}

func writeNDJSON(w io.Writer, lines ...any) error {
	enc := json.NewEncoder(w)
	for _, line := range lines {
		if err := enc.Encode(line); err != nil {
			return fmt.Errorf("failed to encode bulk line: %w", err)
		}
	}
	return nil
}

func checkBulk(res *esapi.Response) error {
	if res.IsError() {
		return fmt.Errorf("bulk error: %s", res.String())
	}
	var br bulkResponse
	if err := json.NewDecoder(res.Body).Decode(&br); err != nil {
		return fmt.Errorf("error decoding bulk response: %w", err)
	}
	if !br.Errors {
		return nil
	}
	var errs []error
	for _, item := range br.Items {
		for _, result := range item {
			if result.Error != nil {
				errs = append(errs, fmt.Errorf("%s: %s", result.ID, result.Error.Reason))
			}
		}
	}
	return fmt.Errorf("bulk indexing failed for %d records: %w", len(errs), errors.Join(errs...))
}
