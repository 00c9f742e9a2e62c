package controlplane

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/cloudctl/cloudctl/pkg/core"
	"github.com/cloudctl/cloudctl/pkg/waiter"
)

// Collection describes a REST collection whose members carry a state field.
type Collection struct {
	Name       string
	Path       string
	StateField string
}

var (
	Stacks              = Collection{Name: "Stack", Path: "/20180917/stacks", StateField: "lifecycleState"}
	Jobs                = Collection{Name: "Job", Path: "/20180917/jobs", StateField: "lifecycleState"}
	WorkRequests        = Collection{Name: "WorkRequest", Path: "/20180917/workRequests", StateField: "status"}
	AutonomousDatabases = Collection{Name: "AutonomousDatabase", Path: "/20160918/autonomousDatabases", StateField: "lifecycleState"}
)

// Resource is a fetched member of a collection.
type Resource struct {
	State string
	Raw   map[string]any
	ETag  string
}

// Result is the response to a mutation.
type Result struct {
	Accepted      bool
	Raw           map[string]any
	ETag          string
	WorkRequestID string
}

// ResourceClient is the generic fetch/mutate interface for a single collection.
type ResourceClient struct {
	client     *Client
	collection Collection
}

func (c *Client) Resources(collection Collection) *ResourceClient {
	return &ResourceClient{client: c, collection: collection}
}

func (r *ResourceClient) Collection() Collection {
	return r.collection
}

func (r *ResourceClient) memberPath(id string, elem ...string) string {
	p := fmt.Sprintf("%s/%s", r.collection.Path, url.PathEscape(id))
	for _, e := range elem {
		p = fmt.Sprintf("%s/%s", p, e)
	}
	return p
}

func (r *ResourceClient) op(verb string) string {
	return verb + r.collection.Name
}

func (r *ResourceClient) Fetch(ctx context.Context, id string) (*Resource, error) {
	if id == "" {
		return nil, core.Validation(r.op("Get"), "identifier is empty")
	}

	var raw map[string]any
	resp, err := r.client.do(ctx, request{op: r.op("Get"), method: http.MethodGet, path: r.memberPath(id)}, &raw)
	if err != nil {
		return nil, err
	}

	res := &Resource{Raw: raw, ETag: resp.header.Get(headerETag)}
	if s, ok := raw[r.collection.StateField].(string); ok {
		res.State = s
	}
	return res, nil
}

// Accessor adapts Fetch to the waiter's re-fetch accessor.
func (r *ResourceClient) Accessor() waiter.Accessor {
	return func(ctx context.Context, id string) (map[string]any, error) {
		res, err := r.Fetch(ctx, id)
		if err != nil {
			return nil, err
		}
		return res.Raw, nil
	}
}

func (r *ResourceClient) Create(ctx context.Context, payload any) (*Result, error) {
	return r.mutate(ctx, request{op: r.op("Create"), method: http.MethodPost, path: r.collection.Path, body: payload})
}

func (r *ResourceClient) Mutate(ctx context.Context, id string, payload any) (*Result, error) {
	return r.MutateIfMatch(ctx, id, payload, "")
}

func (r *ResourceClient) MutateIfMatch(ctx context.Context, id string, payload any, ifMatch string) (*Result, error) {
	if id == "" {
		return nil, core.Validation(r.op("Update"), "identifier is empty")
	}
	return r.mutate(ctx, request{op: r.op("Update"), method: http.MethodPut, path: r.memberPath(id), body: payload, ifMatch: ifMatch})
}

func (r *ResourceClient) Delete(ctx context.Context, id, ifMatch string) (*Result, error) {
	if id == "" {
		return nil, core.Validation(r.op("Delete"), "identifier is empty")
	}
	return r.mutate(ctx, request{op: r.op("Delete"), method: http.MethodDelete, path: r.memberPath(id), ifMatch: ifMatch})
}

// Action invokes POST <collection>/<id>/actions/<action>.
func (r *ResourceClient) Action(ctx context.Context, id, action string, payload any, ifMatch string) (*Result, error) {
	if id == "" {
		return nil, core.Validation(action, "identifier is empty")
	}
	return r.mutate(ctx, request{op: action, method: http.MethodPost, path: r.memberPath(id, "actions", action), body: payload, ifMatch: ifMatch})
}

func (r *ResourceClient) mutate(ctx context.Context, req request) (*Result, error) {
	var raw map[string]any
	resp, err := r.client.do(ctx, req, &raw)
	if err != nil {
		return nil, err
	}

	return &Result{
		Accepted:      resp.statusCode == http.StatusAccepted || resp.statusCode == http.StatusOK || resp.statusCode == http.StatusNoContent || resp.statusCode == http.StatusCreated,
		Raw:           raw,
		ETag:          resp.header.Get(headerETag),
		WorkRequestID: resp.header.Get(headerWorkRequestID),
	}, nil
}
