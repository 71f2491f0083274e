// Package httpsource fetches question pools from the remote question API.
package httpsource

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"quizprep-service/internal/domain"
)

// ErrNoBaseURL is returned when the source was built without an API address.
var ErrNoBaseURL = errors.New("question api base url is not configured")

const maxBodyBytes = 8 << 20

// Source calls GET {base}/questions?subject=<subject>.
type Source struct {
	base   string
	client *http.Client
}

func New(baseURL string, timeout time.Duration) *Source {
	return &Source{
		base:   strings.TrimRight(baseURL, "/"),
		client: &http.Client{Timeout: timeout},
	}
}

func (s *Source) Fetch(ctx context.Context, subject string) ([]domain.RawQuestion, error) {
	if s.base == "" {
		return nil, &domain.FetchError{Subject: subject, Err: ErrNoBaseURL}
	}
	endpoint := s.base + "/questions?subject=" + url.QueryEscape(subject)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, &domain.FetchError{Subject: subject, Err: err}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &domain.FetchError{Subject: subject, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &domain.FetchError{Subject: subject, Err: fmt.Errorf("unexpected status %d", resp.StatusCode)}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, &domain.FetchError{Subject: subject, Err: fmt.Errorf("read body: %w", err)}
	}
	return decode(subject, body)
}

// decode treats any JSON value that is not an array as an empty pool.
// Array items that are not objects are skipped.
func decode(subject string, body []byte) ([]domain.RawQuestion, error) {
	var payload any
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, &domain.FetchError{Subject: subject, Err: fmt.Errorf("decode body: %w", err)}
	}
	if _, ok := payload.([]any); !ok {
		log.Warn().Str("subject", subject).Msg("question api returned a non-array body")
		return []domain.RawQuestion{}, nil
	}

	var items []json.RawMessage
	if err := json.Unmarshal(body, &items); err != nil {
		return nil, &domain.FetchError{Subject: subject, Err: fmt.Errorf("decode body: %w", err)}
	}
	out := make([]domain.RawQuestion, 0, len(items))
	for _, item := range items {
		var raw domain.RawQuestion
		if err := json.Unmarshal(item, &raw); err != nil {
			continue
		}
		out = append(out, raw)
	}
	return out, nil
}
