package chroma

import (
	"context"
	"fmt"
	"log"
	"os"

	"daybrief-backend/pkg/config"

	chroma "github.com/amikos-tech/chroma-go/pkg/api/v2"
	"github.com/amikos-tech/chroma-go/pkg/embeddings/gemini"
)

type ChromaClient struct {
	client     chroma.Client
	embedFunc  *gemini.GeminiEmbeddingFunction
	config     *config.Config
	collection chroma.Collection // Pre-created collection
}

func NewChromaClient(cfg *config.Config) (*ChromaClient, error) {
	if cfg.ChromaAPIKey == "" {
		return nil, fmt.Errorf("CHROMA_API_KEY is required")
	}

	// Set environment variable for Gemini API key if needed
	if cfg.GeminiApiKey != "" {
		os.Setenv("GEMINI_API_KEY", cfg.GeminiApiKey)
	}

	embedFunc, err := gemini.NewGeminiEmbeddingFunction(
		gemini.WithEnvAPIKey(),
		gemini.WithDefaultModel("text-embedding-004"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini embedding function: %w", err)
	}

	// Chroma Cloud client
	var client chroma.Client
	if cfg.ChromaDatabase != "" && cfg.ChromaTenant != "" {
		client, err = chroma.NewHTTPClient(
			chroma.WithBaseURL(chroma.ChromaCloudEndpoint),
			chroma.WithCloudAPIKey(cfg.ChromaAPIKey),
			chroma.WithDatabaseAndTenant(cfg.ChromaDatabase, cfg.ChromaTenant),
		)
	} else if cfg.ChromaTenant != "" {
		client, err = chroma.NewHTTPClient(
			chroma.WithBaseURL(chroma.ChromaCloudEndpoint),
			chroma.WithCloudAPIKey(cfg.ChromaAPIKey),
			chroma.WithTenant(cfg.ChromaTenant),
		)
	} else {
		client, err = chroma.NewHTTPClient(
			chroma.WithBaseURL(chroma.ChromaCloudEndpoint),
			chroma.WithCloudAPIKey(cfg.ChromaAPIKey),
		)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create Chroma client: %w", err)
	}

	// Create collection once during initialization
	ctx := context.Background()
	collection, err := client.GetOrCreateCollection(
		ctx,
		"synced_records",
		chroma.WithEmbeddingFunctionCreate(embedFunc),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create collection: %w", err)
	}

	log.Printf("Initialized Chroma client with collection: synced_records")

	return &ChromaClient{
		client:     client,
		embedFunc:  embedFunc,
		config:     cfg,
		collection: collection,
	}, nil
}

// UpsertRecordEmbedding indexes one synced record's redacted text. The
// record's native ID is the document ID, so re-syncs update in place
// instead of duplicating.
func (c *ChromaClient) UpsertRecordEmbedding(ctx context.Context, userID, provider, nativeID, title, body string) error {
	text := fmt.Sprintf("Title: %s\n\nBody: %s", title, body)
	if len(text) > 10000 {
		// Truncate if too long (embedding models have token limits)
		text = text[:10000]
	}

	metadata, err := chroma.NewDocumentMetadataFromMap(map[string]interface{}{
		"user_id":   userID,
		"provider":  provider,
		"native_id": nativeID,
		"title":     title,
	})
	if err != nil {
		return fmt.Errorf("failed to create metadata: %w", err)
	}

	err = c.collection.Upsert(
		ctx,
		chroma.WithIDs(chroma.DocumentID(documentID(userID, nativeID))),
		chroma.WithMetadatas(metadata),
		chroma.WithTexts(text),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert record embedding: %w", err)
	}

	return nil
}

// SearchRecords runs a user-scoped semantic query and returns the native IDs
// of the closest records with their distances.
func (c *ChromaClient) SearchRecords(ctx context.Context, userID, query string, limit int) ([]string, []float64, error) {
	where := chroma.EqString("user_id", userID)

	results, err := c.collection.Query(
		ctx,
		chroma.WithQueryTexts(query),
		chroma.WithNResults(limit),
		chroma.WithWhereQuery(where),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to query collection: %w", err)
	}

	if results == nil || results.CountGroups() == 0 {
		return []string{}, []float64{}, nil
	}

	idGroups := results.GetIDGroups()
	distanceGroups := results.GetDistancesGroups()
	if len(idGroups) == 0 || len(idGroups[0]) == 0 {
		return []string{}, []float64{}, nil
	}

	nativeIDs := make([]string, 0, len(idGroups[0]))
	for _, id := range idGroups[0] {
		nativeIDs = append(nativeIDs, string(id))
	}

	distances := []float64{}
	if len(distanceGroups) > 0 && len(distanceGroups[0]) > 0 {
		for _, d := range distanceGroups[0] {
			distances = append(distances, float64(d))
		}
	}

	return nativeIDs, distances, nil
}

// DeleteRecordEmbedding removes one record's embedding, used when the
// provider reports a deletion or the retention sweep expires the row.
func (c *ChromaClient) DeleteRecordEmbedding(ctx context.Context, userID, nativeID string) error {
	err := c.collection.Delete(ctx, chroma.WithIDsDelete(chroma.DocumentID(documentID(userID, nativeID))))
	if err != nil {
		return fmt.Errorf("failed to delete record embedding: %w", err)
	}
	return nil
}

// DeleteUserEmbeddings removes every embedding for a user, part of the
// disconnect cascade.
func (c *ChromaClient) DeleteUserEmbeddings(ctx context.Context, userID string) error {
	where := chroma.EqString("user_id", userID)
	err := c.collection.Delete(ctx, chroma.WithWhereDelete(where))
	if err != nil {
		return fmt.Errorf("failed to delete user embeddings: %w", err)
	}
	return nil
}

func documentID(userID, nativeID string) string {
	return userID + ":" + nativeID
}
