package vectorstore

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/weaviate/weaviate-go-client/v4/weaviate"
	"github.com/weaviate/weaviate-go-client/v4/weaviate/auth"
	"github.com/weaviate/weaviate-go-client/v4/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"
)

// WeaviateStore is a Weaviate implementation of Store for corpora that
// outgrow exact scanning.
//
// Weaviate requires UUID object IDs, so external IDs (Drive file IDs,
// URLs) are mapped to deterministic v5 UUIDs and the original ID is
// kept as a property. Vectors are supplied by this application
// (vectorizer "none"); Weaviate only indexes them.
type WeaviateStore struct {
	client    *weaviate.Client
	className string
}

// WeaviateConfig holds connection settings for a Weaviate instance.
type WeaviateConfig struct {
	// Host is the instance address, e.g. "localhost:8080".
	Host string

	// Scheme is "http" or "https". Empty defaults to "https".
	Scheme string

	// APIKey enables API-key auth when non-empty.
	APIKey string

	// ClassName is the object class holding the index. Empty defaults
	// to "RagChunk".
	ClassName string
}

// NewWeaviateStore connects to Weaviate and ensures the class exists.
func NewWeaviateStore(ctx context.Context, cfg WeaviateConfig) (*WeaviateStore, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("weaviate host is required")
	}
	if cfg.Scheme == "" {
		cfg.Scheme = "https"
	}
	if cfg.ClassName == "" {
		cfg.ClassName = "RagChunk"
	}

	clientConfig := weaviate.Config{
		Host:   cfg.Host,
		Scheme: cfg.Scheme,
	}
	if cfg.APIKey != "" {
		clientConfig.AuthConfig = auth.ApiKey{Value: cfg.APIKey}
	}

	client, err := weaviate.NewClient(clientConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create weaviate client: %w", err)
	}

	store := &WeaviateStore{client: client, className: cfg.ClassName}
	if err := store.ensureClass(ctx); err != nil {
		return nil, err
	}
	return store, nil
}

// ensureClass creates the object class when it does not already exist.
func (s *WeaviateStore) ensureClass(ctx context.Context) error {
	exists, err := s.client.Schema().ClassExistenceChecker().WithClassName(s.className).Do(ctx)
	if err != nil {
		return fmt.Errorf("failed to check weaviate class: %w", err)
	}
	if exists {
		return nil
	}

	class := &models.Class{
		Class:      s.className,
		Vectorizer: "none",
		Properties: []*models.Property{
			{Name: "docId", DataType: []string{"text"}},
			{Name: "metaJson", DataType: []string{"text"}},
		},
	}
	if err := s.client.Schema().ClassCreator().WithClass(class).Do(ctx); err != nil {
		return fmt.Errorf("failed to create weaviate class %s: %w", s.className, err)
	}
	return nil
}

// Upsert implements Store.
//
// Weaviate has no single create-or-replace call, so each item is
// created first and replaced via update when the ID already exists.
func (s *WeaviateStore) Upsert(ctx context.Context, items []Item) error {
	for _, item := range items {
		if item.ID == "" {
			return fmt.Errorf("item with empty ID")
		}
		metaJSON, err := json.Marshal(item.Meta)
		if err != nil {
			return fmt.Errorf("failed to marshal meta for %q: %w", item.ID, err)
		}

		properties := map[string]interface{}{
			"docId":    item.ID,
			"metaJson": string(metaJSON),
		}
		id := objectID(item.ID)

		_, err = s.client.Data().Creator().
			WithClassName(s.className).
			WithID(id).
			WithProperties(properties).
			WithVector(item.Vector).
			Do(ctx)
		if err == nil {
			continue
		}
		if !strings.Contains(strings.ToLower(err.Error()), "already exists") &&
			!strings.Contains(err.Error(), "422") {
			return fmt.Errorf("weaviate create %q failed: %w", item.ID, err)
		}

		err = s.client.Data().Updater().
			WithClassName(s.className).
			WithID(id).
			WithProperties(properties).
			WithVector(item.Vector).
			Do(ctx)
		if err != nil {
			return fmt.Errorf("weaviate update %q failed: %w", item.ID, err)
		}
	}
	return nil
}

// Query implements Store.
func (s *WeaviateStore) Query(ctx context.Context, vec []float32, topK int) ([]Match, error) {
	if topK <= 0 {
		return []Match{}, nil
	}

	nearVector := s.client.GraphQL().NearVectorArgBuilder().WithVector(vec)

	fields := []graphql.Field{
		{Name: "docId"},
		{Name: "metaJson"},
		{Name: "_additional", Fields: []graphql.Field{
			{Name: "distance"},
		}},
	}

	result, err := s.client.GraphQL().Get().
		WithClassName(s.className).
		WithNearVector(nearVector).
		WithLimit(topK).
		WithFields(fields...).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("weaviate search failed: %w", err)
	}
	if len(result.Errors) > 0 {
		return nil, fmt.Errorf("weaviate search error: %s", result.Errors[0].Message)
	}

	matches := make([]Match, 0, topK)
	if result.Data == nil {
		return matches, nil
	}
	get, ok := result.Data["Get"].(map[string]interface{})
	if !ok {
		return matches, nil
	}
	objects, ok := get[s.className].([]interface{})
	if !ok {
		return matches, nil
	}

	for _, raw := range objects {
		obj, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		match := Match{}
		if id, ok := obj["docId"].(string); ok {
			match.ID = id
		}
		if metaJSON, ok := obj["metaJson"].(string); ok && metaJSON != "" {
			_ = json.Unmarshal([]byte(metaJSON), &match.Meta)
		}
		if additional, ok := obj["_additional"].(map[string]interface{}); ok {
			if distance, ok := additional["distance"].(float64); ok {
				// Weaviate reports cosine distance; similarity = 1 - distance.
				match.Score = 1 - distance
			}
		}
		matches = append(matches, match)
	}
	return matches, nil
}

// Delete implements Store.
func (s *WeaviateStore) Delete(ctx context.Context, ids []string) error {
	for _, id := range ids {
		err := s.client.Data().Deleter().
			WithClassName(s.className).
			WithID(objectID(id)).
			Do(ctx)
		if err != nil {
			return fmt.Errorf("weaviate delete %q failed: %w", id, err)
		}
	}
	return nil
}

// Count implements Store.
func (s *WeaviateStore) Count(ctx context.Context) (int, error) {
	result, err := s.client.GraphQL().Aggregate().
		WithClassName(s.className).
		WithFields(graphql.Field{Name: "meta", Fields: []graphql.Field{{Name: "count"}}}).
		Do(ctx)
	if err != nil {
		return 0, fmt.Errorf("weaviate aggregate failed: %w", err)
	}
	if len(result.Errors) > 0 {
		return 0, fmt.Errorf("weaviate aggregate error: %s", result.Errors[0].Message)
	}

	aggregate, ok := result.Data["Aggregate"].(map[string]interface{})
	if !ok {
		return 0, nil
	}
	objects, ok := aggregate[s.className].([]interface{})
	if !ok || len(objects) == 0 {
		return 0, nil
	}
	obj, ok := objects[0].(map[string]interface{})
	if !ok {
		return 0, nil
	}
	meta, ok := obj["meta"].(map[string]interface{})
	if !ok {
		return 0, nil
	}
	count, ok := meta["count"].(float64)
	if !ok {
		return 0, nil
	}
	return int(count), nil
}

// Close implements Store. The weaviate client holds no persistent
// connections, so this is a no-op.
func (s *WeaviateStore) Close() error { return nil }

// objectID maps an external ID to a deterministic weaviate UUID.
func objectID(id string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(id)).String()
}
