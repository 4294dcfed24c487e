package knowledge

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	xerrors "Sailor-Bot/internal/errors"
	"Sailor-Bot/internal/events"
	"Sailor-Bot/internal/observability/metrics"
	"Sailor-Bot/pkg/logger"
)

// Indexer 是 Service 依赖的远端索引 API。
type Indexer interface {
	StartIndexingJob(ctx context.Context, kbID string, dataSourceIDs []string) (IndexingJob, error)
	GetIndexingJob(ctx context.Context, jobID string) (IndexingJob, error)
}

// Service 负责发起索引任务并查询频道最近一次任务的进度。
type Service struct {
	indexer           Indexer
	jobs              JobStore
	publisher         events.Publisher
	knowledgeBaseID   string
	defaultDataSource string
	log               *slog.Logger
}

// ServiceOption 定义可选的 Service 配置。
type ServiceOption func(*Service)

// WithPublisher 设置索引任务事件的发布者。
func WithPublisher(p events.Publisher) ServiceOption {
	return func(s *Service) {
		if p != nil {
			s.publisher = p
		}
	}
}

// WithDefaults 设置知识库 ID 与默认数据源 ID。
func WithDefaults(knowledgeBaseID, dataSourceID string) ServiceOption {
	return func(s *Service) {
		s.knowledgeBaseID = strings.TrimSpace(knowledgeBaseID)
		s.defaultDataSource = strings.TrimSpace(dataSourceID)
	}
}

// NewService 创建 Service。
func NewService(indexer Indexer, jobs JobStore, opts ...ServiceOption) *Service {
	s := &Service{
		indexer:   indexer,
		jobs:      jobs,
		publisher: events.Noop{},
		log:       logger.Named("knowledge"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// StartResult 描述已经发起的索引任务。
type StartResult struct {
	Job             IndexingJob
	KnowledgeBaseID string
	DataSourceID    string
}

// Message 返回给用户的确认文本。
func (r StartResult) Message() string {
	return fmt.Sprintf("Indexing job started for data source `%s` in knowledge base `%s`.",
		r.DataSourceID, r.KnowledgeBaseID)
}

// StartIndexing 为 dataSourceArg（为空时使用默认数据源）发起索引任务，并记录到频道。
func (s *Service) StartIndexing(ctx context.Context, channelID, dataSourceArg string) (StartResult, error) {
	if s.knowledgeBaseID == "" {
		metrics.ObserveIndexingJob("start", string(xerrors.CodeConfiguration))
		return StartResult{}, xerrors.New(xerrors.CodeConfiguration, "Knowledge base ID is not set",
			xerrors.WithMetadata("reason", "set DO_KB_ID in the environment"))
	}
	dataSource := strings.TrimSpace(dataSourceArg)
	if dataSource == "" {
		dataSource = s.defaultDataSource
	}
	if dataSource == "" {
		metrics.ObserveIndexingJob("start", string(xerrors.CodeInvalidArgument))
		return StartResult{}, xerrors.New(xerrors.CodeInvalidArgument,
			"Please provide a data source ID as an argument or set DO_DATA_SOURCE_ID in the environment")
	}

	log := s.log.With(
		slog.String("channel_id", channelID),
		slog.String("knowledge_base_id", s.knowledgeBaseID),
		slog.String("data_source_id", dataSource))

	job, err := s.indexer.StartIndexingJob(ctx, s.knowledgeBaseID, []string{dataSource})
	if err != nil {
		metrics.ObserveIndexingJob("start", outcome(err))
		log.Error("发起索引任务失败", slog.String("error", err.Error()))
		return StartResult{}, err
	}
	metrics.ObserveIndexingJob("start", "ok")

	if job.UUID != "" {
		if err := s.jobs.SaveJob(ctx, channelID, job.UUID); err != nil {
			log.Warn("保存索引任务 ID 失败", slog.String("job_id", job.UUID), slog.String("error", err.Error()))
		}
	}

	logger.Audit().Info("发起知识库索引",
		slog.String("channel_id", channelID),
		slog.String("knowledge_base_id", s.knowledgeBaseID),
		slog.String("data_source_id", dataSource),
		slog.String("job_id", job.UUID))

	event := events.New(events.TypeIndexingStarted, map[string]string{
		"channel_id":        channelID,
		"knowledge_base_id": s.knowledgeBaseID,
		"data_source_id":    dataSource,
		"job_id":            job.UUID,
	})
	if err := s.publisher.Publish(ctx, event); err != nil {
		log.Warn("发布索引事件失败", slog.String("error", err.Error()))
	}

	return StartResult{Job: job, KnowledgeBaseID: s.knowledgeBaseID, DataSourceID: dataSource}, nil
}

// Progress 查询频道最近一次索引任务的状态。
func (s *Service) Progress(ctx context.Context, channelID string) (IndexingJob, error) {
	jobID, err := s.jobs.LastJob(ctx, channelID)
	if err != nil {
		metrics.ObserveIndexingJob("progress", outcome(err))
		return IndexingJob{}, err
	}
	job, err := s.indexer.GetIndexingJob(ctx, jobID)
	if err != nil {
		metrics.ObserveIndexingJob("progress", outcome(err))
		s.log.Error("查询索引进度失败",
			slog.String("channel_id", channelID),
			slog.String("job_id", jobID),
			slog.String("error", err.Error()))
		return IndexingJob{}, err
	}
	if job.UUID == "" {
		job.UUID = jobID
	}
	metrics.ObserveIndexingJob("progress", "ok")
	return job, nil
}

// ProgressMessage 渲染进度查询的回复文本。
func ProgressMessage(job IndexingJob) string {
	return fmt.Sprintf("Index job progress for job `%s`: %s", job.UUID, job.Summary())
}

func outcome(err error) string {
	if _, ok := err.(*APIError); ok {
		return "api_error"
	}
	return string(xerrors.CodeOf(err))
}
