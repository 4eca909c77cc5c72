package service

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/boddenberg/crm-leads-bfa-go/internal/domain"
	"github.com/boddenberg/crm-leads-bfa-go/internal/port"
)

// JobCache is the subset of the TTL cache the job tracker needs.
type JobCache interface {
	port.Cache[domain.ImportJob]
	Update(key string, fn func(current domain.ImportJob, ok bool) (domain.ImportJob, bool)) (domain.ImportJob, bool)
}

// ImportJobs runs uploads in the background and tracks their progress so
// clients can poll.
type ImportJobs struct {
	importer *Importer
	jobs     JobCache
	logger   *zap.Logger
	wg       sync.WaitGroup
}

// NewImportJobs creates the tracker.
func NewImportJobs(importer *Importer, jobs JobCache, logger *zap.Logger) *ImportJobs {
	return &ImportJobs{importer: importer, jobs: jobs, logger: logger}
}

// Start parses the file synchronously, so a bad file fails the request, then
// imports in the background. The returned job is a snapshot.
func (j *ImportJobs) Start(ctx context.Context, sess domain.Session, fileName string, data []byte) (*domain.ImportJob, error) {
	table, err := ParseTable(fileName, data)
	if err != nil {
		return nil, err
	}

	job := domain.ImportJob{
		ID:        uuid.NewString(),
		TenantID:  sess.TenantID,
		FileName:  fileName,
		Status:    domain.ImportQueued,
		TotalRows: len(table.Rows),
		StartedAt: time.Now().UTC(),
	}
	j.jobs.Set(job.ID, job)

	// the job outlives the upload request
	runCtx := context.WithoutCancel(ctx)
	j.wg.Add(1)
	go func() {
		defer j.wg.Done()
		j.run(runCtx, sess, job.ID, table.Rows)
	}()

	return &job, nil
}

func (j *ImportJobs) run(ctx context.Context, sess domain.Session, id string, rows []map[string]string) {
	j.update(id, func(job *domain.ImportJob) { job.Status = domain.ImportRunning })

	progress := port.ProgressFunc(func(pct int) {
		j.update(id, func(job *domain.ImportJob) {
			if pct > job.Progress {
				job.Progress = pct
			}
		})
	})

	res, err := j.importer.ImportRows(ctx, sess, rows, progress)
	finished := time.Now().UTC()
	if err != nil {
		j.logger.Error("import job failed", zap.String("job_id", id), zap.Error(err))
		j.update(id, func(job *domain.ImportJob) {
			job.Status = domain.ImportFailed
			job.Error = err.Error()
			job.FinishedAt = &finished
		})
		return
	}

	j.update(id, func(job *domain.ImportJob) {
		job.Status = domain.ImportCompleted
		job.Progress = 100
		job.Imported = len(res.Contacts)
		job.Dropped = res.Dropped
		job.FailedChunks = res.FailedChunks
		job.FinishedAt = &finished
	})
}

func (j *ImportJobs) update(id string, fn func(job *domain.ImportJob)) {
	// an expired job stays gone
	j.jobs.Update(id, func(cur domain.ImportJob, ok bool) (domain.ImportJob, bool) {
		if ok {
			fn(&cur)
		}
		return cur, ok
	})
}

// Get returns a job of the tenant.
func (j *ImportJobs) Get(_ context.Context, tenantID, id string) (*domain.ImportJob, error) {
	job, ok := j.jobs.Get(id)
	if !ok || job.TenantID != tenantID {
		return nil, &domain.ErrNotFound{Resource: "import job", ID: id}
	}
	return &job, nil
}

// Wait blocks until every started job has finished.
func (j *ImportJobs) Wait() {
	j.wg.Wait()
}
