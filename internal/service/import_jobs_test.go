package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/boddenberg/crm-leads-bfa-go/internal/domain"
	"github.com/boddenberg/crm-leads-bfa-go/internal/infra/cache"
	"github.com/boddenberg/crm-leads-bfa-go/internal/service"
)

func newJobs(gw *mockGateway) *service.ImportJobs {
	im := service.NewImporter(gw, newStore(), 15, newMetrics(), zap.NewNop())
	c := cache.New[domain.ImportJob](time.Hour)
	return service.NewImportJobs(im, c, zap.NewNop())
}

func TestImportJobs_CompletesInBackground(t *testing.T) {
	jobs := newJobs(newMockGateway())

	ctx, cancel := context.WithCancel(context.Background())
	job, err := jobs.Start(ctx, testSession, "leads.csv", []byte(scenarioCSV))
	cancel() // the upload request ending must not stop the job
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if job.Status != domain.ImportQueued || job.TotalRows != 3 {
		t.Errorf("unexpected initial job %+v", job)
	}

	jobs.Wait()

	got, err := jobs.Get(context.Background(), testSession.TenantID, job.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Status != domain.ImportCompleted || got.Progress != 100 {
		t.Errorf("expected completed job, got %+v", got)
	}
	if got.Imported != 2 || got.Dropped != 1 || got.FinishedAt == nil {
		t.Errorf("unexpected counters %+v", got)
	}
}

func TestImportJobs_BadFileFailsImmediately(t *testing.T) {
	jobs := newJobs(newMockGateway())

	_, err := jobs.Start(context.Background(), testSession, "leads.xls", []byte("x"))
	var fileErr *domain.ErrImportFile
	if !errors.As(err, &fileErr) {
		t.Fatalf("expected ErrImportFile, got %v", err)
	}
}

func TestImportJobs_TenantScoped(t *testing.T) {
	jobs := newJobs(newMockGateway())
	job, err := jobs.Start(context.Background(), testSession, "leads.csv", []byte(scenarioCSV))
	if err != nil {
		t.Fatal(err)
	}
	jobs.Wait()

	var notFound *domain.ErrNotFound
	if _, err := jobs.Get(context.Background(), "other-tenant", job.ID); !errors.As(err, &notFound) {
		t.Errorf("expected not found for another tenant, got %v", err)
	}
}

func TestImportJobs_ExpiredJobStaysGone(t *testing.T) {
	release := make(chan struct{})
	gw := newMockGateway()
	gw.mapRows = func(ctx context.Context, rows []map[string]string) ([]domain.MappedLead, error) {
		<-release
		return echoMapper(ctx, rows)
	}
	im := service.NewImporter(gw, newStore(), 15, newMetrics(), zap.NewNop())
	c := cache.New[domain.ImportJob](40 * time.Millisecond)
	defer c.Close()
	jobs := service.NewImportJobs(im, c, zap.NewNop())

	job, err := jobs.Start(context.Background(), testSession, "leads.csv", []byte(scenarioCSV))
	if err != nil {
		t.Fatal(err)
	}
	time.Sleep(100 * time.Millisecond)
	close(release)
	jobs.Wait()

	var notFound *domain.ErrNotFound
	if _, err := jobs.Get(context.Background(), testSession.TenantID, job.ID); !errors.As(err, &notFound) {
		t.Errorf("expected the expired job to stay gone, got %v", err)
	}
	if c.Len() != 0 {
		t.Errorf("expected no blank entries left behind, got %d", c.Len())
	}
}
