package apiclient

import (
	"context"
	"encoding/json"
	"net/http"

	"pkt.systems/mcpdeck/schema"
)

// ListServers returns all server definitions known to the orchestrator.
func (c *Client) ListServers(ctx context.Context) ([]schema.ServerInfo, error) {
	var servers []schema.ServerInfo
	if err := c.doJSON(ctx, http.MethodGet, "/servers", nil, &servers); err != nil {
		return nil, err
	}
	return servers, nil
}

// CreateServer registers a new server definition.
func (c *Client) CreateServer(ctx context.Context, name schema.ServerName, configuration json.RawMessage) error {
	body := map[string]any{"name": name}
	if len(configuration) > 0 {
		body["configuration"] = configuration
	}
	return c.doJSON(ctx, http.MethodPost, "/servers", body, nil)
}

// DeleteServer removes a server definition.
func (c *Client) DeleteServer(ctx context.Context, name schema.ServerName) error {
	return c.doJSON(ctx, http.MethodDelete, "/servers/"+string(name), nil, nil)
}

// GetServerConfiguration fetches a server's configuration payload.
func (c *Client) GetServerConfiguration(ctx context.Context, name schema.ServerName) (json.RawMessage, error) {
	var configuration json.RawMessage
	if err := c.doJSON(ctx, http.MethodGet, "/servers/"+string(name)+"/configuration", nil, &configuration); err != nil {
		return nil, err
	}
	return configuration, nil
}

// UpdateServerConfiguration replaces a server's configuration payload.
func (c *Client) UpdateServerConfiguration(ctx context.Context, name schema.ServerName, configuration json.RawMessage) error {
	return c.doJSON(ctx, http.MethodPut, "/servers/"+string(name)+"/configuration", configuration, nil)
}

// ListTools returns the server's tool listing plus retrieval metadata.
func (c *Client) ListTools(ctx context.Context, name schema.ServerName) (schema.ItemListing, error) {
	return c.listItems(ctx, name, "tools")
}

// ListPrompts returns the server's prompt listing plus retrieval metadata.
func (c *Client) ListPrompts(ctx context.Context, name schema.ServerName) (schema.ItemListing, error) {
	return c.listItems(ctx, name, "prompts")
}

// ListResources returns the server's resource listing plus retrieval metadata.
func (c *Client) ListResources(ctx context.Context, name schema.ServerName) (schema.ItemListing, error) {
	return c.listItems(ctx, name, "resources")
}

func (c *Client) listItems(ctx context.Context, name schema.ServerName, kind string) (schema.ItemListing, error) {
	var listing schema.ItemListing
	if err := c.doJSON(ctx, http.MethodGet, "/servers/"+string(name)+"/"+kind, nil, &listing); err != nil {
		return schema.ItemListing{}, err
	}
	return listing, nil
}

// ListInstances returns the server's currently running instances.
func (c *Client) ListInstances(ctx context.Context, name schema.ServerName) ([]schema.Instance, error) {
	var instances []schema.Instance
	if err := c.doJSON(ctx, http.MethodGet, "/servers/"+string(name)+"/instances", nil, &instances); err != nil {
		return nil, err
	}
	return instances, nil
}
