// Package index retrieves the list of published toolchain releases. It does no
// selection; see package selector.
package index

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"github.com/sirupsen/logrus"

	gh "github.com/thrushlang/thrushdeps/internal/host/github"
	"github.com/thrushlang/thrushdeps/internal/model"
)

//go:embed release_index.schema.json
var releaseIndexSchemaJSON []byte

const (
	releaseIndexSchemaURL = "https://thrushlang.github.io/schemas/release-index.json"
	maxErrorBody          = 512
)

// Client fetches a release index. The connectivity probe runs before the
// first request; a failed probe short-circuits with ErrNoConnectivity.
type Client struct {
	HTTP   *gh.Client
	Prober *Prober // nil disables the probe
	Log    logrus.FieldLogger
}

// Fetch returns the releases listed at url. Entries that are not objects
// carrying a tag_name are dropped.
func (c *Client) Fetch(ctx context.Context, url string) ([]model.Release, error) {
	log := c.logger().WithField("url", url)

	if c.Prober != nil && !c.Prober.Reachable(ctx) {
		return nil, fmt.Errorf("%w: %s did not answer within %s", model.ErrNoConnectivity, c.Prober.Address, c.Prober.Timeout)
	}

	log.Debug("fetching release index")
	resp, err := c.HTTP.Get(ctx, url, "application/vnd.github+json")
	if err != nil {
		return nil, fmt.Errorf("%w: fetch %s: %w", model.ErrNetwork, url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, fmt.Errorf("%w: status %d from %s: %s", model.ErrNetwork, resp.StatusCode, url, strings.TrimSpace(string(body)))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %w", model.ErrNetwork, url, err)
	}

	releases, err := Parse(body)
	if err != nil {
		return nil, err
	}
	log.WithField("releases", len(releases)).Debug("release index fetched")
	return releases, nil
}

func (c *Client) logger() logrus.FieldLogger {
	if c.Log == nil {
		return logrus.StandardLogger()
	}
	return c.Log
}

// Parse decodes a release index body. Malformed JSON or a document that
// violates the release index schema is ErrParse.
func Parse(body []byte) ([]model.Release, error) {
	sch, err := compiledSchema()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", model.ErrParse, err)
	}
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", model.ErrParse, err)
	}
	if err := sch.Validate(inst); err != nil {
		return nil, fmt.Errorf("%w: %w", model.ErrParse, err)
	}

	var raw []json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("%w: %w", model.ErrParse, err)
	}
	releases := make([]model.Release, 0, len(raw))
	for _, item := range raw {
		var probe map[string]json.RawMessage
		if err := json.Unmarshal(item, &probe); err != nil {
			continue
		}
		if _, ok := probe["tag_name"]; !ok {
			continue
		}
		var rel model.Release
		if err := json.Unmarshal(item, &rel); err != nil {
			return nil, fmt.Errorf("%w: %w", model.ErrParse, err)
		}
		releases = append(releases, rel)
	}
	return releases, nil
}

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

func compiledSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(releaseIndexSchemaJSON))
		if err != nil {
			schemaErr = fmt.Errorf("parse release index schema: %w", err)
			return
		}
		c := jsonschema.NewCompiler()
		if err := c.AddResource(releaseIndexSchemaURL, doc); err != nil {
			schemaErr = fmt.Errorf("add release index schema: %w", err)
			return
		}
		schema, schemaErr = c.Compile(releaseIndexSchemaURL)
	})
	return schema, schemaErr
}
