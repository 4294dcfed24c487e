package knowledge

import (
	"context"
	"testing"

	xerrors "Sailor-Bot/internal/errors"
	"Sailor-Bot/internal/events"
)

type fakeIndexer struct {
	started  [][]string
	kbID     string
	job      IndexingJob
	err      error
	queried  []string
	progress IndexingJob
}

func (f *fakeIndexer) StartIndexingJob(_ context.Context, kbID string, ids []string) (IndexingJob, error) {
	f.kbID = kbID
	f.started = append(f.started, ids)
	return f.job, f.err
}

func (f *fakeIndexer) GetIndexingJob(_ context.Context, jobID string) (IndexingJob, error) {
	f.queried = append(f.queried, jobID)
	return f.progress, f.err
}

func TestStartIndexingUsesArgumentOverDefault(t *testing.T) {
	indexer := &fakeIndexer{job: IndexingJob{UUID: "job-1"}}
	jobs := NewMemoryJobStore()
	publisher := &events.Memory{}
	svc := NewService(indexer, jobs, WithDefaults("kb-1", "ds-default"), WithPublisher(publisher))

	res, err := svc.StartIndexing(context.Background(), "C1", "  ds-arg ")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if indexer.kbID != "kb-1" || len(indexer.started) != 1 || indexer.started[0][0] != "ds-arg" {
		t.Fatalf("unexpected indexer call kb=%q ids=%v", indexer.kbID, indexer.started)
	}
	if res.Message() != "Indexing job started for data source `ds-arg` in knowledge base `kb-1`." {
		t.Fatalf("unexpected message %q", res.Message())
	}
	if got, _ := jobs.LastJob(context.Background(), "C1"); got != "job-1" {
		t.Fatalf("job id not remembered, got %q", got)
	}
	published := publisher.Events()
	if len(published) != 1 || published[0].Type != events.TypeIndexingStarted || published[0].Attributes["job_id"] != "job-1" {
		t.Fatalf("unexpected events %+v", published)
	}
}

func TestStartIndexingDefaultDataSource(t *testing.T) {
	indexer := &fakeIndexer{job: IndexingJob{UUID: "job-2"}}
	svc := NewService(indexer, NewMemoryJobStore(), WithDefaults("kb-1", "ds-default"))
	if _, err := svc.StartIndexing(context.Background(), "C1", ""); err != nil {
		t.Fatalf("start: %v", err)
	}
	if indexer.started[0][0] != "ds-default" {
		t.Fatalf("expected default data source, got %v", indexer.started)
	}
}

func TestStartIndexingValidation(t *testing.T) {
	indexer := &fakeIndexer{}
	noKB := NewService(indexer, NewMemoryJobStore(), WithDefaults("", "ds"))
	if _, err := noKB.StartIndexing(context.Background(), "C1", "ds"); !xerrors.HasCode(err, xerrors.CodeConfiguration) {
		t.Fatalf("expected CONFIGURATION_ERROR, got %v", err)
	}
	noDS := NewService(indexer, NewMemoryJobStore(), WithDefaults("kb", ""))
	if _, err := noDS.StartIndexing(context.Background(), "C1", " "); !xerrors.HasCode(err, xerrors.CodeInvalidArgument) {
		t.Fatalf("expected INVALID_ARGUMENT, got %v", err)
	}
	if len(indexer.started) != 0 {
		t.Fatalf("indexer must not be called on validation errors")
	}
}

func TestStartIndexingPropagatesAPIError(t *testing.T) {
	indexer := &fakeIndexer{err: &APIError{StatusCode: 404, Message: "knowledge base not found"}}
	jobs := NewMemoryJobStore()
	svc := NewService(indexer, jobs, WithDefaults("kb", "ds"))
	if _, err := svc.StartIndexing(context.Background(), "C1", ""); err == nil {
		t.Fatalf("expected error")
	}
	if _, err := jobs.LastJob(context.Background(), "C1"); !xerrors.HasCode(err, xerrors.CodeJobNotFound) {
		t.Fatalf("failed start must not record a job, got %v", err)
	}
}

func TestProgress(t *testing.T) {
	indexer := &fakeIndexer{progress: IndexingJob{Phase: "BATCH_JOB_PHASE_RUNNING"}}
	jobs := NewMemoryJobStore()
	svc := NewService(indexer, jobs, WithDefaults("kb", "ds"))

	if _, err := svc.Progress(context.Background(), "C1"); !xerrors.HasCode(err, xerrors.CodeJobNotFound) {
		t.Fatalf("expected JOB_NOT_FOUND, got %v", err)
	}
	if xerrors.UserMessage(ErrJobNotFound) != "No recent index job found for this channel. Please run /update-debbie first." {
		t.Fatalf("unexpected user message %q", xerrors.UserMessage(ErrJobNotFound))
	}

	_ = jobs.SaveJob(context.Background(), "C1", "job-3")
	job, err := svc.Progress(context.Background(), "C1")
	if err != nil {
		t.Fatalf("progress: %v", err)
	}
	if indexer.queried[0] != "job-3" || job.UUID != "job-3" {
		t.Fatalf("unexpected query %v job %+v", indexer.queried, job)
	}
	if got := ProgressMessage(job); got != "Index job progress for job `job-3`: phase BATCH_JOB_PHASE_RUNNING" {
		t.Fatalf("unexpected progress message %q", got)
	}
}
