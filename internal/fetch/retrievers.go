package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/marketloom/pointer-engine/internal/repos"
	"github.com/marketloom/pointer-engine/internal/types"
)

// Content is what a retriever hands back on success.
type Content struct {
	Body        string
	ContentType string
}

// Retriever resolves one pointer type to live content. Implementations must
// honor ctx cancellation; the fetcher owns timeouts.
type Retriever interface {
	Fetch(ctx context.Context, p *types.ContentPointer) (Content, error)
}

// HTTPDoer is the slice of *http.Client the URL and API retrievers need.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Generator produces content for dynamic pointers. Registered per deployment.
type Generator func(ctx context.Context, targetID string) (Content, error)

const maxBodyBytes = 1 << 20

type urlRetriever struct {
	client HTTPDoer
}

func NewURLRetriever(client HTTPDoer) Retriever {
	return &urlRetriever{client: client}
}

func (r *urlRetriever) Fetch(ctx context.Context, p *types.ContentPointer) (Content, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.TargetID, nil)
	if err != nil {
		return Content{}, err
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return Content{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return Content{}, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return Content{}, err
	}
	return Content{
		Body:        string(body),
		ContentType: resp.Header.Get("Content-Type"),
	}, nil
}

type slugRetriever struct {
	nodes repos.ContentNodeRepo
}

func NewSlugRetriever(nodes repos.ContentNodeRepo) Retriever {
	return &slugRetriever{nodes: nodes}
}

func (r *slugRetriever) Fetch(ctx context.Context, p *types.ContentPointer) (Content, error) {
	node, err := r.nodes.GetBySlug(ctx, nil, p.TargetID)
	if err != nil {
		return Content{}, err
	}
	if node == nil {
		return Content{}, fmt.Errorf("no content for slug %q", p.TargetID)
	}
	return nodeContent(node), nil
}

type idRetriever struct {
	nodes repos.ContentNodeRepo
}

func NewIDRetriever(nodes repos.ContentNodeRepo) Retriever {
	return &idRetriever{nodes: nodes}
}

func (r *idRetriever) Fetch(ctx context.Context, p *types.ContentPointer) (Content, error) {
	node, err := r.nodes.GetByID(ctx, nil, p.TargetID)
	if err != nil {
		return Content{}, err
	}
	if node == nil {
		return Content{}, fmt.Errorf("no content with id %q", p.TargetID)
	}
	return nodeContent(node), nil
}

type apiRetriever struct {
	client  HTTPDoer
	baseURL string
}

// NewAPIRetriever resolves api pointers against the content API. The target
// id is appended to baseURL as a path segment.
func NewAPIRetriever(client HTTPDoer, baseURL string) Retriever {
	return &apiRetriever{client: client, baseURL: strings.TrimRight(baseURL, "/")}
}

func (r *apiRetriever) Fetch(ctx context.Context, p *types.ContentPointer) (Content, error) {
	if r.baseURL == "" {
		return Content{}, fmt.Errorf("content API base URL not configured")
	}
	url := r.baseURL + "/" + strings.TrimLeft(p.TargetID, "/")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Content{}, err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := r.client.Do(req)
	if err != nil {
		return Content{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return Content{}, fmt.Errorf("content API returned %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return Content{}, err
	}
	return Content{Body: string(body), ContentType: "application/json"}, nil
}

type fileRetriever struct {
	root string
}

// NewFileRetriever reads file pointers relative to root. Targets escaping the
// root are rejected.
func NewFileRetriever(root string) Retriever {
	return &fileRetriever{root: root}
}

func (r *fileRetriever) Fetch(ctx context.Context, p *types.ContentPointer) (Content, error) {
	clean := filepath.Clean(p.TargetID)
	if strings.HasPrefix(clean, "..") || filepath.IsAbs(clean) {
		return Content{}, fmt.Errorf("file target %q escapes content root", p.TargetID)
	}
	body, err := os.ReadFile(filepath.Join(r.root, clean))
	if err != nil {
		return Content{}, err
	}
	return Content{Body: string(body), ContentType: contentTypeForExt(filepath.Ext(clean))}, nil
}

type dynamicRetriever struct {
	generate Generator
}

func NewDynamicRetriever(generate Generator) Retriever {
	return &dynamicRetriever{generate: generate}
}

func (r *dynamicRetriever) Fetch(ctx context.Context, p *types.ContentPointer) (Content, error) {
	if r.generate == nil {
		return Content{}, fmt.Errorf("no dynamic generator registered")
	}
	return r.generate(ctx, p.TargetID)
}

func nodeContent(node *types.ContentNode) Content {
	ct := node.ContentType
	if ct == "" {
		ct = "text/html"
	}
	return Content{Body: node.Title, ContentType: ct}
}

func contentTypeForExt(ext string) string {
	switch strings.ToLower(ext) {
	case ".html", ".htm":
		return "text/html"
	case ".json":
		return "application/json"
	case ".md", ".markdown":
		return "text/markdown"
	default:
		return "text/plain"
	}
}
