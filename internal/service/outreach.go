package service

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/boddenberg/crm-leads-bfa-go/internal/domain"
	"github.com/boddenberg/crm-leads-bfa-go/internal/infra/observability"
	"github.com/boddenberg/crm-leads-bfa-go/internal/port"
)

var outreachTracer = otel.Tracer("service/outreach")

// Probabilities used when the model is unavailable.
const (
	FallbackProbability          = 25
	FallbackPostReplyProbability = 50
	FallbackStrategy             = "Manual follow up."
	DefaultTone                  = "Professional & Persuasive"
)

var placeholderRe = regexp.MustCompile(`\[([^\[\]\n]{1,40})\]|\{\{\s*([^{}\n]{1,40}?)\s*\}\}`)

// OutreachGenerator drafts a first-contact email. It never fails: model
// errors and unusable drafts are replaced by a templated email.
type OutreachGenerator struct {
	gateway port.AIGateway
	metrics *observability.Metrics
	logger  *zap.Logger
}

// NewOutreachGenerator creates the generator.
func NewOutreachGenerator(gw port.AIGateway, metrics *observability.Metrics, logger *zap.Logger) *OutreachGenerator {
	return &OutreachGenerator{gateway: gw, metrics: metrics, logger: logger}
}

// Generate returns a complete outreach package for req.
func (g *OutreachGenerator) Generate(ctx context.Context, req *domain.OutreachRequest) *domain.OutreachPackage {
	ctx, span := outreachTracer.Start(ctx, "OutreachGenerator.Generate")
	defer span.End()

	if req.Tone == "" {
		req.Tone = DefaultTone
	}
	start := time.Now()
	defer func() { g.metrics.RecordRequestDuration("outreach", time.Since(start)) }()

	pkg, err := g.gateway.GenerateOutreach(ctx, req)
	if err != nil {
		g.logger.Warn("outreach generation failed, using template", zap.Error(err))
		return g.fallback(req, "gateway")
	}

	body, ok := resolvePlaceholders(pkg.Body, req)
	if !ok || strings.TrimSpace(body) == "" {
		g.logger.Warn("outreach draft unusable, using template", zap.Bool("empty", strings.TrimSpace(body) == ""))
		return g.fallback(req, "unresolved")
	}
	subject, ok := resolvePlaceholders(pkg.Subject, req)
	if !ok || strings.TrimSpace(subject) == "" {
		subject = fallbackSubject(req.TenantName)
	}

	span.SetAttributes(attribute.Bool("outreach.fallback", false))
	return &domain.OutreachPackage{
		Subject:              strings.TrimSpace(subject),
		Body:                 ensureSignature(strings.TrimSpace(body), req.TenantName),
		Probability:          domain.ClampPercent(pkg.Probability),
		PostReplyProbability: domain.ClampPercent(pkg.PostReplyProbability),
		Strategy:             orDefault(strings.TrimSpace(pkg.Strategy), FallbackStrategy),
	}
}

func (g *OutreachGenerator) fallback(req *domain.OutreachRequest, reason string) *domain.OutreachPackage {
	g.metrics.IncrFallback(observability.ComponentOutreach)
	g.logger.Debug("outreach fallback", zap.String("reason", reason), zap.String("tenant", req.TenantName))
	return &domain.OutreachPackage{
		Subject:              fallbackSubject(req.TenantName),
		Body:                 FallbackEmailBody(req),
		Probability:          FallbackProbability,
		PostReplyProbability: FallbackPostReplyProbability,
		Strategy:             FallbackStrategy,
	}
}

func fallbackSubject(tenant string) string {
	return "Regarding your inquiry - " + tenant
}

// FallbackEmailBody is the templated email: salutation, opening, value
// section, call to action and a signature naming the tenant.
func FallbackEmailBody(req *domain.OutreachRequest) string {
	var b strings.Builder

	if req.FirstName != "" {
		fmt.Fprintf(&b, "Dear %s,\n\n", req.FirstName)
	} else {
		b.WriteString("Hello,\n\n")
	}

	fmt.Fprintf(&b, "Thank you for your interest in %s.", req.TenantName)
	if req.City != "" {
		fmt.Fprintf(&b, " We would be glad to support your plans in %s.", req.City)
	}
	b.WriteString("\n\n")

	b.WriteString("Our team works closely with ")
	switch req.Category {
	case domain.CategoryCorporate:
		b.WriteString("corporate clients")
	case domain.CategoryIndividual:
		b.WriteString("individual customers")
	default:
		b.WriteString("growing businesses")
	}
	b.WriteString(" to put together proposals that fit their goals")
	if req.Value > 0 {
		cur := req.Currency
		if cur == "" {
			cur = "PKR"
		}
		fmt.Fprintf(&b, " and a budget of around %s %d", cur, req.Value)
	}
	b.WriteString(".\n\n")

	b.WriteString("Would you be available for a short call this week to discuss the next steps?\n\n")
	fmt.Fprintf(&b, "Best regards,\n%s", req.TenantName)
	return b.String()
}

// resolvePlaceholders fills the tokens we know. ok is false when any
// bracketed token is left over.
func resolvePlaceholders(text string, req *domain.OutreachRequest) (string, bool) {
	full := strings.TrimSpace(req.FirstName + " " + req.LastName)
	values := map[string]string{
		"name":          req.FirstName,
		"first name":    req.FirstName,
		"client name":   req.FirstName,
		"lead name":     req.FirstName,
		"customer name": req.FirstName,
		"last name":     req.LastName,
		"full name":     full,
		"city":          req.City,
		"company":       req.TenantName,
		"company name":  req.TenantName,
		"your company":  req.TenantName,
		"tenant":        req.TenantName,
		"your name":     req.TenantName + " Team",
		"sender name":   req.TenantName + " Team",
	}

	ok := true
	out := placeholderRe.ReplaceAllStringFunc(text, func(tok string) string {
		m := placeholderRe.FindStringSubmatch(tok)
		key := m[1]
		if key == "" {
			key = m[2]
		}
		key = strings.ToLower(strings.ReplaceAll(strings.TrimSpace(key), "_", " "))
		if v, found := values[key]; found && v != "" && v != " Team" {
			return v
		}
		ok = false
		return tok
	})
	return out, ok
}

func ensureSignature(body, tenant string) string {
	if tenant == "" || strings.Contains(strings.ToLower(body), strings.ToLower(tenant)) {
		return body
	}
	return body + "\n\nBest regards,\n" + tenant
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
