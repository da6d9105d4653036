package security

import (
	"fmt"
	"strings"

	"github.com/marketloom/pointer-engine/internal/apperr"
	"github.com/marketloom/pointer-engine/internal/logger"
	"github.com/marketloom/pointer-engine/internal/types"
)

// unsafe schemes reject outright; data: URLs only warn because legitimate
// inline assets use them.
var blockedSchemes = []string{"javascript:", "vbscript:"}

type CheckResult struct {
	TrustScore float64
	Warnings   []string
}

// Filter gates pointers at create/critical-update time. It is deliberately
// not applied on every fetch; the target cannot change without passing
// through here again.
type Filter struct {
	log     *logger.Logger
	denied  map[string]struct{}
	allowed map[string]struct{}
}

func NewFilter(deniedDomains, allowedDomains []string, baseLog *logger.Logger) *Filter {
	f := &Filter{
		log:     baseLog.With("service", "SecurityFilter"),
		denied:  make(map[string]struct{}, len(deniedDomains)),
		allowed: make(map[string]struct{}, len(allowedDomains)),
	}
	for _, d := range deniedDomains {
		f.denied[normalizeDomain(d)] = struct{}{}
	}
	for _, d := range allowedDomains {
		f.allowed[normalizeDomain(d)] = struct{}{}
	}
	return f
}

// Check returns a SecurityError when the pointer must be rejected. Allow-list
// membership never rejects; it only raises the trust score.
func (f *Filter) Check(p *types.ContentPointer) (CheckResult, error) {
	result := CheckResult{TrustScore: 0.5}

	meta := p.Metadata.Data()
	domain := normalizeDomain(meta.Domain)
	if domain != "" {
		if _, blocked := f.denied[domain]; blocked {
			f.log.Warn("Pointer rejected by domain deny-list", "domain", domain, "target_id", p.TargetID)
			return result, apperr.NewSecurity("domain_denied", fmt.Errorf("domain %q is deny-listed", domain))
		}
		if _, trusted := f.allowed[domain]; trusted {
			result.TrustScore = 1.0
		}
	}

	target := strings.ToLower(strings.TrimSpace(p.TargetID))
	for _, scheme := range blockedSchemes {
		if strings.Contains(target, scheme) {
			f.log.Warn("Pointer rejected by unsafe scheme", "scheme", scheme, "target_id", p.TargetID)
			return result, apperr.NewSecurity("unsafe_scheme", fmt.Errorf("target contains %q", scheme))
		}
	}

	if (p.PointerType == types.PointerTypeURL || p.PointerType == types.PointerTypeExternal) &&
		strings.HasPrefix(target, "data:") {
		result.Warnings = append(result.Warnings, "target uses a data: scheme")
	}

	return result, nil
}

func normalizeDomain(d string) string {
	return strings.ToLower(strings.TrimSpace(d))
}
