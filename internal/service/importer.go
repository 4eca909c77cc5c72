package service

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/boddenberg/crm-leads-bfa-go/internal/domain"
	"github.com/boddenberg/crm-leads-bfa-go/internal/infra/observability"
	"github.com/boddenberg/crm-leads-bfa-go/internal/port"
)

var importTracer = otel.Tracer("service/importer")

// Importer turns spreadsheet rows into contacts through the AI gateway.
// Chunks are mapped one after another; a failed chunk contributes nothing
// and the import goes on. The result is committed as a single batch; rows
// whose phone was stored by someone else meanwhile are dropped at commit.
type Importer struct {
	gateway   port.AIGateway
	store     port.CRMStore
	chunkSize int
	metrics   *observability.Metrics
	logger    *zap.Logger
}

// NewImporter creates an importer. chunkSize should already be clamped by
// the config layer.
func NewImporter(gw port.AIGateway, store port.CRMStore, chunkSize int, metrics *observability.Metrics, logger *zap.Logger) *Importer {
	if chunkSize <= 0 {
		chunkSize = 25
	}
	return &Importer{gateway: gw, store: store, chunkSize: chunkSize, metrics: metrics, logger: logger}
}

// ImportFile parses data and imports its rows. A parse failure aborts before
// any gateway call.
func (im *Importer) ImportFile(ctx context.Context, sess domain.Session, fileName string, data []byte, progress port.ProgressReporter) (*domain.ImportResult, error) {
	table, err := ParseTable(fileName, data)
	if err != nil {
		return nil, err
	}
	return im.ImportRows(ctx, sess, table.Rows, progress)
}

// ImportRows maps, filters and commits rows for the session's tenant.
//
// Progress is reported after every chunk as round(processed*100/total),
// held at 99 until the batch is committed; 100 is reported once, last.
// A cancelled context aborts the import without committing.
func (im *Importer) ImportRows(ctx context.Context, sess domain.Session, rows []map[string]string, progress port.ProgressReporter) (*domain.ImportResult, error) {
	ctx, span := importTracer.Start(ctx, "Importer.ImportRows")
	defer span.End()
	span.SetAttributes(
		attribute.String("tenant.id", sess.TenantID),
		attribute.Int("import.rows", len(rows)),
		attribute.Int("import.chunk_size", im.chunkSize),
	)

	if progress == nil {
		progress = port.ProgressFunc(func(int) {})
	}
	start := time.Now()
	defer func() { im.metrics.RecordRequestDuration("import", time.Since(start)) }()

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("import cancelled: %w", err)
	}

	seen, err := im.store.PhoneKeys(ctx, sess.TenantID)
	if err != nil {
		return nil, fmt.Errorf("loading existing phones: %w", err)
	}

	total := len(rows)
	result := &domain.ImportResult{Contacts: []domain.Contact{}, TotalRows: total}
	reported := 0
	now := time.Now().UTC()

	for offset := 0; offset < total; offset += im.chunkSize {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("import cancelled after %d of %d rows: %w", offset, total, err)
		}

		end := min(offset+im.chunkSize, total)
		chunk := rows[offset:end]

		mapped, err := im.gateway.MapLeadRows(ctx, sess.TenantName, chunk)
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("import cancelled after %d of %d rows: %w", offset, total, ctx.Err())
			}
			result.FailedChunks++
			im.metrics.IncrImportChunk(true)
			im.metrics.IncrFallback(observability.ComponentImporter)
			im.logger.Warn("import chunk failed, continuing with empty chunk",
				zap.String("tenant_id", sess.TenantID),
				zap.Int("offset", offset),
				zap.Int("rows", len(chunk)),
				zap.Error(err),
			)
			mapped = nil
		} else {
			im.metrics.IncrImportChunk(false)
		}

		// the model may not add rows of its own
		if len(mapped) > len(chunk) {
			mapped = mapped[:len(chunk)]
		}
		for _, m := range mapped {
			c, ok := materialize(m, sess, now)
			if !ok {
				continue
			}
			key := domain.PhoneKey(c.Phone)
			if seen[key] {
				continue
			}
			seen[key] = true
			result.Contacts = append(result.Contacts, c)
		}

		pct := int(math.Round(float64(end) * 100 / float64(total)))
		if pct > 99 {
			pct = 99
		}
		if pct > reported {
			reported = pct
			progress.Report(pct)
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("import cancelled before commit: %w", err)
	}
	if len(result.Contacts) > 0 {
		stored, err := im.store.ImportContacts(ctx, sess.TenantID, result.Contacts)
		if err != nil {
			return nil, fmt.Errorf("committing imported contacts: %w", err)
		}
		if skipped := len(result.Contacts) - len(stored); skipped > 0 {
			im.logger.Info("import skipped phones stored during the import",
				zap.String("tenant_id", sess.TenantID),
				zap.Int("skipped", skipped),
			)
		}
		result.Contacts = stored
	}

	result.Dropped = total - len(result.Contacts)
	im.metrics.RecordImportRows(len(result.Contacts), result.Dropped)
	progress.Report(100)

	span.SetAttributes(
		attribute.Int("import.imported", len(result.Contacts)),
		attribute.Int("import.dropped", result.Dropped),
		attribute.Int("import.failed_chunks", result.FailedChunks),
	)
	im.logger.Info("import completed",
		zap.String("tenant_id", sess.TenantID),
		zap.Int("rows", total),
		zap.Int("imported", len(result.Contacts)),
		zap.Int("dropped", result.Dropped),
		zap.Int("failed_chunks", result.FailedChunks),
		zap.Duration("duration", time.Since(start)),
	)
	return result, nil
}

// materialize builds a contact from a mapped row. Rows without a usable phone
// or without any name are dropped.
func materialize(m domain.MappedLead, sess domain.Session, now time.Time) (domain.Contact, bool) {
	phone := domain.NormalizePhone(m.Phone)
	if phone == "" {
		return domain.Contact{}, false
	}

	first := domain.TitleCase(m.FirstName)
	last := domain.TitleCase(m.LastName)
	if first == "" {
		first, last = last, ""
	}
	if first == "" {
		return domain.Contact{}, false
	}

	email := strings.TrimSpace(m.Email)
	if !domain.ValidEmail(email) {
		email = ""
	}

	return domain.Contact{
		ID:           uuid.NewString(),
		TenantID:     sess.TenantID,
		FirstName:    first,
		LastName:     last,
		Phone:        phone,
		Email:        strings.ToLower(email),
		City:         domain.TitleCase(m.City),
		Description:  strings.TrimSpace(m.Description),
		LeadCategory: domain.ParseCategory(m.LeadCategory),
		Tags:         []string{domain.TagBulkImport},
		AssignedTo:   sess.UserID,
		CreatedAt:    now,
	}, true
}
