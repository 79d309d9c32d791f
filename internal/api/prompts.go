package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/fjsoftlab/cvextract/internal/storage"
)

type promptButton struct {
	Key         string `json:"key"`
	ButtonLabel string `json:"button_label"`
}

type promptRef struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	SubTitle string `json:"sub_title"`
}

type promptResultItem struct {
	Result  string    `json:"result"`
	Prompts promptRef `json:"prompts"`
}

func handleListPrompts(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		prompts, err := deps.Store.ListActivePrompts(r.Context())
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list prompts: %v", err)
			return
		}
		out := make([]promptButton, 0, len(prompts))
		for _, p := range prompts {
			out = append(out, promptButton{Key: p.Name, ButtonLabel: p.ButtonLabel})
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func handleListPromptResults(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := chi.URLParam(r, "userID")
		if !authorizeUser(w, r, userID) {
			return
		}

		results, err := listPromptResults(r.Context(), deps.Store, userID)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list prompt results: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"results": results})
	}
}

func listPromptResults(ctx context.Context, store *storage.Store, userID string) ([]promptResultItem, error) {
	views, err := store.ListPromptResults(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := make([]promptResultItem, 0, len(views))
	for _, v := range views {
		out = append(out, promptResultItem{
			Result:  v.Result,
			Prompts: promptRef{ID: v.PromptID, Title: v.Title, SubTitle: v.SubTitle},
		})
	}
	return out, nil
}
