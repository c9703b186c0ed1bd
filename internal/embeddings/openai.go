package embeddings

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
)

const textChunkSize = 1000

// TextEmbedder embeds product card text. Long text is chunked and the chunk
// vectors are mean-pooled into one.
type TextEmbedder struct {
	client *openai.Client
	model  openai.EmbeddingModel
}

func NewTextEmbedder(apiKey string) *TextEmbedder {
	return &TextEmbedder{client: openai.NewClient(apiKey), model: openai.SmallEmbedding3}
}

func NewTextEmbedderWithConfig(cfg openai.ClientConfig) *TextEmbedder {
	return &TextEmbedder{client: openai.NewClientWithConfig(cfg), model: openai.SmallEmbedding3}
}

func (t *TextEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	chunks := Chunk(text, textChunkSize)
	if len(chunks) == 0 {
		return nil, nil
	}
	resp, err := t.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Model: t.model,
		Input: chunks,
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("empty embedding response")
	}
	return meanPool(resp.Data), nil
}

func meanPool(data []openai.Embedding) []float32 {
	out := make([]float32, len(data[0].Embedding))
	for _, d := range data {
		for i := range out {
			if i < len(d.Embedding) {
				out[i] += d.Embedding[i]
			}
		}
	}
	n := float32(len(data))
	for i := range out {
		out[i] /= n
	}
	return out
}
