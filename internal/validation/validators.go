package validation

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/marketloom/pointer-engine/internal/apperr"
	"github.com/marketloom/pointer-engine/internal/fetch"
	"github.com/marketloom/pointer-engine/internal/repos"
	"github.com/marketloom/pointer-engine/internal/types"
)

// Validator performs the type-appropriate reachability check for one pointer.
// A returned error means the validator itself failed to execute; an
// unreachable target is a normal result with a broken status.
type Validator interface {
	Validate(ctx context.Context, p *types.ContentPointer) (types.ValidationResult, error)
}

// DynamicChecker verifies a dynamic content source can produce content for
// the target. Registered per deployment alongside the dynamic generator.
type DynamicChecker func(ctx context.Context, targetID string) error

type urlValidator struct {
	client fetch.HTTPDoer
}

func NewURLValidator(client fetch.HTTPDoer) Validator {
	return &urlValidator{client: client}
}

func (v *urlValidator) Validate(ctx context.Context, p *types.ContentPointer) (types.ValidationResult, error) {
	return v.check(ctx, p, p.TargetID)
}

func (v *urlValidator) check(ctx context.Context, p *types.ContentPointer, url string) (types.ValidationResult, error) {
	started := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return types.ValidationResult{}, apperr.NewValidation(string(p.PointerType), err)
	}
	resp, err := v.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return outcome(p, types.ValidationBroken, types.DetailTimeout, 0, "", 0, started,
				[]string{"request timed out"}, nil), nil
		}
		return outcome(p, types.ValidationBroken, types.DetailError, 0, "", 0, started,
			[]string{err.Error()}, nil), nil
	}
	defer resp.Body.Close()

	// Some origins refuse HEAD outright; retry once with GET.
	if resp.StatusCode == http.StatusMethodNotAllowed {
		getReq, gerr := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if gerr != nil {
			return types.ValidationResult{}, apperr.NewValidation(string(p.PointerType), gerr)
		}
		getResp, gerr := v.client.Do(getReq)
		if gerr != nil {
			return outcome(p, types.ValidationBroken, types.DetailError, 0, "", 0, started,
				[]string{gerr.Error()}, nil), nil
		}
		defer getResp.Body.Close()
		resp = getResp
	}

	return statusOutcome(p, resp, started), nil
}

func statusOutcome(p *types.ContentPointer, resp *http.Response, started time.Time) types.ValidationResult {
	ct := resp.Header.Get("Content-Type")
	cl := resp.ContentLength
	code := resp.StatusCode

	switch {
	case code >= 200 && code < 300:
		return outcome(p, types.ValidationValid, types.DetailOK, code, ct, cl, started, nil, nil)
	case code >= 300 && code < 400:
		return outcome(p, types.ValidationRedirected, types.DetailOK, code, ct, cl, started, nil,
			[]string{"target redirects"})
	case code == http.StatusForbidden || code == http.StatusUnauthorized:
		return outcome(p, types.ValidationBroken, types.DetailForbidden, code, ct, cl, started,
			[]string{"access forbidden"}, nil)
	case code == http.StatusNotFound:
		return outcome(p, types.ValidationBroken, types.DetailNotFound, code, ct, cl, started,
			[]string{"target not found"}, nil)
	case code == http.StatusGone:
		return outcome(p, types.ValidationExpired, types.DetailOK, code, ct, cl, started,
			[]string{"target gone"}, nil)
	default:
		return outcome(p, types.ValidationBroken, types.DetailError, code, ct, cl, started,
			[]string{resp.Status}, nil)
	}
}

type slugValidator struct {
	nodes repos.ContentNodeRepo
}

// NewSlugValidator checks slug pointers with an existence count, skipping the
// row load the id validator does.
func NewSlugValidator(nodes repos.ContentNodeRepo) Validator {
	return &slugValidator{nodes: nodes}
}

func (v *slugValidator) Validate(ctx context.Context, p *types.ContentPointer) (types.ValidationResult, error) {
	started := time.Now()

	ok, err := v.nodes.ExistsBySlug(ctx, nil, p.TargetID)
	if err != nil {
		return types.ValidationResult{}, apperr.NewValidation(string(p.PointerType), err)
	}
	if !ok {
		return outcome(p, types.ValidationBroken, types.DetailNotFound, 0, "", 0, started,
			[]string{"no content node for slug"}, nil), nil
	}
	return outcome(p, types.ValidationValid, types.DetailOK, 0, "", 0, started, nil, nil), nil
}

type nodeValidator struct {
	nodes repos.ContentNodeRepo
}

// NewNodeValidator covers id pointers: the target is reachable when the
// content store has a row for it.
func NewNodeValidator(nodes repos.ContentNodeRepo) Validator {
	return &nodeValidator{nodes: nodes}
}

func (v *nodeValidator) Validate(ctx context.Context, p *types.ContentPointer) (types.ValidationResult, error) {
	started := time.Now()

	node, err := v.nodes.GetByID(ctx, nil, p.TargetID)
	if err != nil {
		return types.ValidationResult{}, apperr.NewValidation(string(p.PointerType), err)
	}
	if node == nil {
		return outcome(p, types.ValidationBroken, types.DetailNotFound, 0, "", 0, started,
			[]string{"no content node for target"}, nil), nil
	}
	return outcome(p, types.ValidationValid, types.DetailOK, 0, node.ContentType, 0, started, nil, nil), nil
}

type apiValidator struct {
	url     *urlValidator
	baseURL string
}

func NewAPIValidator(client fetch.HTTPDoer, baseURL string) Validator {
	return &apiValidator{
		url:     &urlValidator{client: client},
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

func (v *apiValidator) Validate(ctx context.Context, p *types.ContentPointer) (types.ValidationResult, error) {
	if v.baseURL == "" {
		return types.ValidationResult{}, apperr.NewValidation(string(p.PointerType),
			errNoAPIBase)
	}
	return v.url.check(ctx, p, v.baseURL+"/"+strings.TrimLeft(p.TargetID, "/"))
}

var errNoAPIBase = errors.New("content API base URL not configured")

type fileValidator struct {
	root string
}

func NewFileValidator(root string) Validator {
	return &fileValidator{root: root}
}

func (v *fileValidator) Validate(ctx context.Context, p *types.ContentPointer) (types.ValidationResult, error) {
	started := time.Now()

	clean := filepath.Clean(p.TargetID)
	if strings.HasPrefix(clean, "..") || filepath.IsAbs(clean) {
		return outcome(p, types.ValidationBroken, types.DetailForbidden, 0, "", 0, started,
			[]string{"file target escapes content root"}, nil), nil
	}
	info, err := os.Stat(filepath.Join(v.root, clean))
	if err != nil {
		if os.IsNotExist(err) {
			return outcome(p, types.ValidationBroken, types.DetailNotFound, 0, "", 0, started,
				[]string{"file does not exist"}, nil), nil
		}
		return types.ValidationResult{}, apperr.NewValidation(string(p.PointerType), err)
	}
	return outcome(p, types.ValidationValid, types.DetailOK, 0, "", info.Size(), started, nil, nil), nil
}

type dynamicValidator struct {
	check DynamicChecker
}

func NewDynamicValidator(check DynamicChecker) Validator {
	return &dynamicValidator{check: check}
}

func (v *dynamicValidator) Validate(ctx context.Context, p *types.ContentPointer) (types.ValidationResult, error) {
	started := time.Now()

	if v.check == nil {
		return outcome(p, types.ValidationBroken, types.DetailError, 0, "", 0, started,
			[]string{"no dynamic checker registered"}, nil), nil
	}
	if err := v.check(ctx, p.TargetID); err != nil {
		return outcome(p, types.ValidationBroken, types.DetailError, 0, "", 0, started,
			[]string{err.Error()}, nil), nil
	}
	return outcome(p, types.ValidationValid, types.DetailOK, 0, "", 0, started, nil, nil), nil
}

func outcome(p *types.ContentPointer, status types.ValidationStatus, detail types.ValidationDetail,
	code int, contentType string, contentLength int64, started time.Time,
	errs, warnings []string) types.ValidationResult {
	return types.ValidationResult{
		PointerID:     p.ID,
		Status:        status,
		Detail:        detail,
		ResponseCode:  code,
		ContentType:   contentType,
		ContentLength: contentLength,
		ResponseTime:  time.Since(started),
		Errors:        errs,
		Warnings:      warnings,
		CheckedAt:     time.Now(),
	}
}
