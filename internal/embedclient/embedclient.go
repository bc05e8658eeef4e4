// Package embedclient implements the Embedding Client Facade (C3): turning
// batches of text into vectors via an OpenAI-compatible embeddings
// endpoint, and formatting query strings with the instruction prefix the
// configured model expects.
package embedclient

import (
	"context"
	"fmt"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
)

// Error reports a failed embedding request (EmbeddingError::OpenAIError in
// the original). Transport failures and the embedding service rejecting the
// request are both reported with Op "embed"; Error does not tell them apart.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string { return fmt.Sprintf("embedclient %s: %v", e.Op, e.Err) }
func (e *Error) Unwrap() error { return e.Err }

// Client embeds text batches against a single configured model.
type Client struct {
	sdk   openai.Client
	model string
}

// New constructs a Client against baseURL (e.g. the in-cluster model
// service) using apiKey (the literal string "EMPTY" is accepted by most
// self-hosted OpenAI-compatible servers and is the documented default).
func New(baseURL, apiKey, model string) *Client {
	sdk := openai.NewClient(
		option.WithBaseURL(baseURL),
		option.WithAPIKey(apiKey),
	)
	return &Client{sdk: sdk, model: model}
}

// Model returns the embedding model name this client is bound to. Every
// point written to the vector store carries this as its "model" payload
// field (spec §3).
func (c *Client) Model() string { return c.model }

// EmbedBatch embeds inputs in a single request and returns one vector per
// input, in the same order. Callers are responsible for keeping batches at
// or under MAX_TEXT_CHUNK_BATCH_SIZE (spec §5).
func (c *Client) EmbedBatch(ctx context.Context, inputs []string) ([][]float32, error) {
	if len(inputs) == 0 {
		return nil, nil
	}

	resp, err := c.sdk.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Model: c.model,
		Input: openai.EmbeddingNewParamsInputUnion{
			OfArrayOfStrings: inputs,
		},
	})
	if err != nil {
		return nil, &Error{Op: "embed", Err: err}
	}
	if len(resp.Data) != len(inputs) {
		return nil, &Error{Op: "embed", Err: fmt.Errorf("embedding service returned %d vectors for %d inputs", len(resp.Data), len(inputs))}
	}

	out := make([][]float32, len(resp.Data))
	for _, d := range resp.Data {
		vec := make([]float32, len(d.Embedding))
		for j, v := range d.Embedding {
			vec[j] = float32(v)
		}
		out[d.Index] = vec
	}
	return out, nil
}

// FormatQuery builds the instruction-prefixed input string the configured
// model expects for retrieval queries, as opposed to the bare text used for
// document chunks (spec §4.7, original `get.rs`: `"Instruct: " + task +
// "\nQuery: " + query`).
func FormatQuery(task, query string) string {
	return "Instruct: " + task + "\nQuery: " + query
}
