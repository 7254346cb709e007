package translate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// HTTPTranslator calls the external translation collaborator. The core only
// transports whatever text comes back.
type HTTPTranslator struct {
	endpoint string
	client   *http.Client
	logger   *zap.SugaredLogger
}

func NewHTTPTranslator(endpoint string, timeout time.Duration, logger *zap.SugaredLogger) *HTTPTranslator {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPTranslator{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
		logger:   logger.With("component", "translator"),
	}
}

type translateRequest struct {
	Text      string   `json:"text"`
	Languages []string `json:"languages"`
}

type translateResponse struct {
	Translations map[string]string `json:"translations"`
}

func (t *HTTPTranslator) Translate(ctx context.Context, text string, languages []string) (map[string]string, error) {
	body, err := json.Marshal(translateRequest{Text: text, Languages: languages})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("translation request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("translation service returned %d", resp.StatusCode)
	}

	var decoded translateResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode translation response: %w", err)
	}
	return decoded.Translations, nil
}
