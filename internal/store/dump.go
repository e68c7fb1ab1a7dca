package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/abelbrown/newsfeed/internal/model"
)

// DecodeArticles reads a saved upstream response ({"articles": [...]}) or a
// bare JSON array of articles.
func DecodeArticles(r io.Reader) ([]model.Article, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read dump: %w", err)
	}
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, nil
	}

	if data[0] == '[' {
		var articles []model.Article
		if err := json.Unmarshal(data, &articles); err != nil {
			return nil, fmt.Errorf("decode article array: %w", err)
		}
		return articles, nil
	}

	var resp struct {
		Status   string          `json:"status"`
		Message  string          `json:"message"`
		Articles []model.Article `json:"articles"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if resp.Status == "error" {
		return nil, fmt.Errorf("dump is an error response: %s", resp.Message)
	}
	return resp.Articles, nil
}
