package adapters

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

// newRESTClient builds the resty client shared by the REST venues. Retries
// are handled by the Retrier, not resty, so attempts stay countable.
func newRESTClient(baseURL string, timeout time.Duration) *resty.Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetRetryCount(0).
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", "truthplane-engine/1.0")
}

// getJSON performs a GET and decodes the body into out, treating any
// non-2xx status as an error.
func getJSON(ctx context.Context, client *resty.Client, path string, query map[string]string, out interface{}) error {
	resp, err := client.R().
		SetContext(ctx).
		SetQueryParams(query).
		SetResult(out).
		Get(path)
	if err != nil {
		return fmt.Errorf("GET %s: %w", path, err)
	}
	if resp.IsError() {
		return fmt.Errorf("GET %s: status %d", path, resp.StatusCode())
	}
	return nil
}

// graphqlRequest is the wire shape of a subgraph query.
type graphqlRequest struct {
	Query     string                 `json:"query"`
	Variables map[string]interface{} `json:"variables,omitempty"`
}

// graphqlResponse wraps subgraph responses; Errors is non-empty on a
// query-level failure even with HTTP 200.
type graphqlResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// querySubgraph posts a GraphQL query and decodes data into out.
func querySubgraph(ctx context.Context, client *resty.Client, query string, variables map[string]interface{}, out interface{}) error {
	var gqlResp graphqlResponse
	resp, err := client.R().
		SetContext(ctx).
		SetBody(graphqlRequest{Query: query, Variables: variables}).
		SetResult(&gqlResp).
		Post("")
	if err != nil {
		return fmt.Errorf("subgraph query: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("subgraph query: status %d", resp.StatusCode())
	}
	if len(gqlResp.Errors) > 0 {
		return fmt.Errorf("subgraph query: %s", gqlResp.Errors[0].Message)
	}
	if out != nil && len(gqlResp.Data) > 0 {
		if err := json.Unmarshal(gqlResp.Data, out); err != nil {
			return fmt.Errorf("subgraph decode: %w", err)
		}
	}
	return nil
}
