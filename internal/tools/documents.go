package tools

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"smalltown/internal/store"
	"smalltown/internal/types"
)

// SaveDocumentTool writes a document owned by the calling agent. Saving the
// same title again overwrites.
func SaveDocumentTool() *Tool {
	return &Tool{
		Name:            "save_document",
		Description:     "Save a document for later. Input format: title;'content'. Saving an existing title overwrites it.",
		Worldwide:       true,
		RequiresContext: true,
		Execute: func(ctx context.Context, input string, tc ToolContext) (string, error) {
			// Same grammar as speak: one semicolon, quoted payload.
			title, content, err := parseSpeakInput(input)
			if err != nil {
				return "", fmt.Errorf("%w: save_document input must be title;'content'", ErrBadInput)
			}

			vec, err := tc.Embed.Embed(ctx, title+"\n"+content)
			if err != nil {
				return "", fmt.Errorf("failed to embed document: %w", err)
			}

			now := time.Now().UTC()
			d := &types.Document{
				ID:              types.NewID(),
				AgentID:         tc.AgentID,
				Title:           title,
				NormalizedTitle: types.NormalizeTitle(title),
				Content:         content,
				Embedding:       vec,
				CreatedAt:       now,
				UpdatedAt:       now,
			}
			if err := tc.Store.UpsertDocument(ctx, d); err != nil {
				return "", fmt.Errorf("failed to save document: %w", err)
			}
			return fmt.Sprintf("Saved document %q.", title), nil
		},
	}
}

// ReadDocumentTool returns a document's content by title.
func ReadDocumentTool() *Tool {
	return &Tool{
		Name:            "read_document",
		Description:     "Read one of your saved documents. Input: the document title.",
		Worldwide:       true,
		RequiresContext: true,
		Execute: func(ctx context.Context, input string, tc ToolContext) (string, error) {
			title := strings.TrimSpace(input)
			if title == "" {
				return "", fmt.Errorf("%w: read_document needs a title", ErrBadInput)
			}
			d, err := tc.Store.GetDocument(ctx, tc.AgentID, types.NormalizeTitle(title))
			if errors.Is(err, store.ErrNotFound) {
				return fmt.Sprintf("No document titled %q.", title), nil
			}
			if err != nil {
				return "", err
			}
			return d.Content, nil
		},
	}
}

// SearchDocumentsTool finds documents by meaning rather than title.
func SearchDocumentsTool() *Tool {
	return &Tool{
		Name:            "search_documents",
		Description:     "Search saved documents by topic. Input: what you are looking for.",
		Worldwide:       true,
		RequiresContext: true,
		Execute: func(ctx context.Context, input string, tc ToolContext) (string, error) {
			query := strings.TrimSpace(input)
			if query == "" {
				return "", fmt.Errorf("%w: search_documents needs a query", ErrBadInput)
			}

			vec, err := tc.Embed.Embed(ctx, query)
			if err != nil {
				return "", fmt.Errorf("failed to embed query: %w", err)
			}
			hits, err := tc.Store.SearchDocuments(ctx, tc.AgentID, vec, tc.DocumentSearchK, tc.DocumentSearchThreshold)
			if err != nil {
				return "", fmt.Errorf("document search failed: %w", err)
			}
			if len(hits) == 0 {
				return "No matching documents.", nil
			}

			var b strings.Builder
			for _, h := range hits {
				snippet := h.Document.Content
				if len(snippet) > 200 {
					snippet = snippet[:200] + "..."
				}
				fmt.Fprintf(&b, "%s: %s\n", h.Document.Title, snippet)
			}
			return strings.TrimRight(b.String(), "\n"), nil
		},
	}
}
