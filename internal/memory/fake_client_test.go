package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/moolen/magma/internal/graph"
)

// fakeClient is a scripted graph.Client for facade tests. Responses are
// routed through respond; everything else records the call.
type fakeClient struct {
	mu sync.Mutex

	respond func(q graph.GraphQuery) (*graph.QueryResult, error)

	queries    []graph.GraphQuery
	created    []fakeNode
	rels       []fakeRel
	nodes      map[string]map[string]interface{}
	vectorHits []graph.VectorMatch
	vectorErr  error
	createErr  error
	relErr     error
	deleted    bool

	nextID int
}

type fakeNode struct {
	label graph.NodeLabel
	props map[string]interface{}
}

type fakeRel struct {
	src, tgt string
	relType  graph.RelationType
	props    map[string]interface{}
}

func newFakeClient() *fakeClient {
	return &fakeClient{nodes: make(map[string]map[string]interface{})}
}

func (f *fakeClient) Connect(ctx context.Context) error { return nil }
func (f *fakeClient) Close() error                      { return nil }
func (f *fakeClient) Ping(ctx context.Context) error    { return nil }
func (f *fakeClient) HealthCheck(ctx context.Context) bool {
	return true
}

func (f *fakeClient) ExecuteQuery(ctx context.Context, q graph.GraphQuery) (*graph.QueryResult, error) {
	f.mu.Lock()
	f.queries = append(f.queries, q)
	respond := f.respond
	f.mu.Unlock()

	if respond != nil {
		return respond(q)
	}
	return &graph.QueryResult{}, nil
}

func (f *fakeClient) CreateNode(ctx context.Context, label graph.NodeLabel, props map[string]interface{}) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return "", f.createErr
	}
	f.nextID++
	id := fmt.Sprintf("node-%d", f.nextID)
	stored := make(map[string]interface{}, len(props)+1)
	for k, v := range props {
		stored[k] = v
	}
	stored["uuid"] = id
	f.created = append(f.created, fakeNode{label: label, props: stored})
	f.nodes[id] = stored
	return id, nil
}

func (f *fakeClient) CreateRelationship(ctx context.Context, src, tgt string, relType graph.RelationType, props map[string]interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.relErr != nil {
		return f.relErr
	}
	f.rels = append(f.rels, fakeRel{src: src, tgt: tgt, relType: relType, props: props})
	return nil
}

func (f *fakeClient) DeleteNode(ctx context.Context, nodeUUID string) (bool, error) {
	return f.deleted, nil
}

func (f *fakeClient) FindNodeByUUID(ctx context.Context, nodeUUID string) (map[string]interface{}, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	props, ok := f.nodes[nodeUUID]
	if !ok {
		return nil, fmt.Errorf("node %q not found", nodeUUID)
	}
	return props, nil
}

func (f *fakeClient) FindNodesByLabel(ctx context.Context, label graph.NodeLabel, limit int) ([]map[string]interface{}, error) {
	return nil, nil
}

func (f *fakeClient) VectorSearch(ctx context.Context, label graph.NodeLabel, attribute string, vector []float32, topK int) ([]graph.VectorMatch, error) {
	if f.vectorErr != nil {
		return nil, f.vectorErr
	}
	return f.vectorHits, nil
}

func (f *fakeClient) ClearGraph(ctx context.Context) error { return nil }

func (f *fakeClient) ClearScope(ctx context.Context, prefix string) (int, error) {
	return 0, nil
}

func (f *fakeClient) GetStatistics(ctx context.Context) (*graph.Statistics, error) {
	return &graph.Statistics{}, nil
}

func (f *fakeClient) InitializeSchema(ctx context.Context, dimension int) error {
	return nil
}

func (f *fakeClient) lastQuery() graph.GraphQuery {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.queries) == 0 {
		return graph.GraphQuery{}
	}
	return f.queries[len(f.queries)-1]
}

// fakeProvider is a deterministic embedding provider.
type fakeProvider struct {
	dims   int
	vector []float32
	err    error
}

func (p *fakeProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	if p.err != nil {
		return nil, p.err
	}
	if p.vector != nil {
		return p.vector, nil
	}
	v := make([]float32, p.dims)
	for i := range v {
		v[i] = float32(len(text)%7) / 7
	}
	return v, nil
}

func (p *fakeProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := p.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (p *fakeProvider) Dimensions() int { return p.dims }
func (p *fakeProvider) ModelID() string { return "fake-embedding" }
