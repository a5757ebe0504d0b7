// Package job defines the userbatch jobs.
package job

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/fx"

	"github.com/tigerroll/chunkbatch/example/userbatch/internal/domain"
	"github.com/tigerroll/chunkbatch/pkg/batch/adapter/database"
	gormadapter "github.com/tigerroll/chunkbatch/pkg/batch/adapter/database/gorm"
	"github.com/tigerroll/chunkbatch/pkg/batch/adapter/storage"
	"github.com/tigerroll/chunkbatch/pkg/batch/component/sink"
	"github.com/tigerroll/chunkbatch/pkg/batch/component/source"
	"github.com/tigerroll/chunkbatch/pkg/batch/component/transformer"
	port "github.com/tigerroll/chunkbatch/pkg/batch/core/application/port"
	config "github.com/tigerroll/chunkbatch/pkg/batch/core/config"
	model "github.com/tigerroll/chunkbatch/pkg/batch/core/domain/model"
	"github.com/tigerroll/chunkbatch/pkg/batch/core/job"
	metrics "github.com/tigerroll/chunkbatch/pkg/batch/core/metrics"
	"github.com/tigerroll/chunkbatch/pkg/batch/core/tx"
	"github.com/tigerroll/chunkbatch/pkg/batch/engine/step/retry"
	"github.com/tigerroll/chunkbatch/pkg/batch/engine/step/skip"
	"github.com/tigerroll/chunkbatch/pkg/batch/support/util/logger"
)

// Job names.
const (
	CreateUsersJob       = "createUsersJob"
	ProcessEntireJob     = "processEntireJob"
	ProcessIndividualJob = "processIndividualJob"
	ProcessUserBoardJob  = "processUserBoardJob"
	UserEmailUpdateJob   = "userEmailUpdateJob"
	ExportUsersJob       = "exportUsersJob"
)

// Connection names under adapter.database and adapter.storage.
const (
	WorkloadDB     = "workload"
	ExportsStorage = "exports"
)

// Params are the dependencies shared by every job constructor.
type Params struct {
	fx.In
	Cfg            *config.Config
	Input          *Input
	DBResolver     database.DBConnectionResolver
	Storage        storage.StorageConnectionResolver `optional:"true"`
	AuditSink      port.AuditSink
	MetricRecorder metrics.MetricRecorder
	Tracer         metrics.Tracer
	Listeners      []port.Listener `group:"listeners"`
}

func (p Params) options(extra ...job.Option) []job.Option {
	opts := []job.Option{
		job.WithAuditSink(p.AuditSink),
		job.WithListeners(p.Listeners...),
		job.WithMetricRecorder(p.MetricRecorder),
		job.WithTracer(p.Tracer),
		job.WithRetryPolicy(retry.FromConfig(p.Cfg.ChunkBatch.Batch.ItemRetry)),
	}
	return append(opts, extra...)
}

func (p Params) txManager() tx.TransactionManager {
	return gormadapter.NewGormTransactionManager(p.DBResolver, WorkloadDB)
}

// validEmail rejects the sentinel invalid address.
func validEmail(u domain.UserInfo) error {
	if u.Email == domain.InvalidEmail {
		return errors.Newf("invalid email for user %s", u.Username)
	}
	return nil
}

func userInfoToUser() port.Transformer[domain.UserInfo, domain.User] {
	return transformer.Chain(
		port.Transformer[domain.UserInfo, domain.UserInfo](transformer.NewValidating[domain.UserInfo]("userValidator", validEmail)),
		transformer.Map(domain.UserInfo.ToUser),
	)
}

// usersFromInput decodes the input as a JSON array of users on every invocation.
func usersFromInput(in *Input) job.SourceFactory[domain.UserInfo] {
	return func(ctx context.Context) (port.Source[domain.UserInfo], error) {
		r, err := in.Open()
		if err != nil {
			return nil, err
		}
		return source.NewJSONArraySource[domain.UserInfo]("usersJson", r), nil
	}
}

func newUserJob(p Params, name string, opts ...job.Option) (*job.ChunkJob[domain.UserInfo, domain.User], error) {
	return job.NewChunkJob(name,
		usersFromInput(p.Input),
		userInfoToUser(),
		port.Sink[domain.User](sink.NewGormSink[domain.User]("userWriter", p.txManager())),
		p.options(opts...)...,
	)
}

// NewCreateUsersJob writes users in chunks of 10 and skips up to 10 invalid ones.
func NewCreateUsersJob(p Params) (*job.ChunkJob[domain.UserInfo, domain.User], error) {
	return newUserJob(p, CreateUsersJob,
		job.WithStepName("createUsersStep"),
		job.WithChunkSize(10),
		job.WithFaultPolicy(skip.SkipLimited(10)),
	)
}

// NewProcessEntireJob writes every user in one chunk. One invalid user fails the job and nothing is written.
func NewProcessEntireJob(p Params) (*job.ChunkJob[domain.UserInfo, domain.User], error) {
	return newUserJob(p, ProcessEntireJob,
		job.WithStepName("processEntireStep"),
		job.WithChunkSize(model.Unbounded),
		job.WithFaultPolicy(skip.AllOrNothing()),
	)
}

// NewProcessIndividualJob commits every user on its own and skips any number of invalid ones.
func NewProcessIndividualJob(p Params) (*job.ChunkJob[domain.UserInfo, domain.User], error) {
	return newUserJob(p, ProcessIndividualJob,
		job.WithStepName("processIndividualStep"),
		job.WithChunkSize(1),
		job.WithFaultPolicy(skip.SkipLimited(model.Unbounded)),
	)
}

// NewProcessUserBoardJob writes a users/boards document in a single transaction.
func NewProcessUserBoardJob(p Params) (*job.ChunkJob[domain.UserBoardDTO, domain.UserBoardDTO], error) {
	newSource := func(ctx context.Context) (port.Source[domain.UserBoardDTO], error) {
		r, err := p.Input.Open()
		if err != nil {
			return nil, err
		}
		defer r.Close()
		var dto domain.UserBoardDTO
		if err := json.NewDecoder(r).Decode(&dto); err != nil {
			return nil, errors.Wrap(err, "failed to decode user/board document")
		}
		return source.NewListSource[domain.UserBoardDTO](dto), nil
	}

	validate := transformer.NewValidating[domain.UserBoardDTO]("userBoardValidator", func(dto domain.UserBoardDTO) error {
		logger.Infof("Processing users: %d, boards: %d", len(dto.Users), len(dto.Boards))
		for _, u := range dto.Users {
			if err := validEmail(u); err != nil {
				return err
			}
		}
		return nil
	})

	return job.NewChunkJob(ProcessUserBoardJob,
		newSource,
		port.Transformer[domain.UserBoardDTO, domain.UserBoardDTO](validate),
		port.Sink[domain.UserBoardDTO](sink.NewGormSink[domain.UserBoardDTO]("userBoardWriter", p.txManager(), sink.WithTxWrite[domain.UserBoardDTO](writeUserBoards))),
		p.options(
			job.WithStepName("processUserBoardStep"),
			job.WithChunkSize(1),
		)...,
	)
}

// writeUserBoards saves the users of each document, then their boards.
// A board titled "error" fails the chunk after it has been saved.
func writeUserBoards(ctx context.Context, t tx.Tx, items []domain.UserBoardDTO) error {
	for _, dto := range items {
		userIDs := make(map[string]int64, len(dto.Users))
		for _, info := range dto.Users {
			u := info.ToUser()
			if _, err := t.ExecuteUpdate(ctx, &u, database.OperationCreate, "", nil); err != nil {
				return errors.Wrapf(err, "failed to save user %s", u.Username)
			}
			userIDs[u.Username] = u.ID
			logger.Debugf("User saved: %+v", u)
		}
		for _, info := range dto.Boards {
			userID, ok := userIDs[info.UserUsername]
			if !ok {
				return errors.Newf("user not found for board: %s", info.Title)
			}
			b := domain.Board{Title: info.Title, Content: info.Content, UserID: userID}
			if _, err := t.ExecuteUpdate(ctx, &b, database.OperationCreate, "", nil); err != nil {
				return errors.Wrapf(err, "failed to save board %s", b.Title)
			}
			logger.Debugf("Board saved: %+v", b)
			if info.Title == "error" {
				return errors.New("error in board processing")
			}
		}
	}
	return nil
}

// NewUserEmailUpdateJob rewrites the email of the 15 newest users to user<id>@example.com.
func NewUserEmailUpdateJob(p Params) (*job.ChunkJob[domain.User, domain.User], error) {
	newSource := func(ctx context.Context) (port.Source[domain.User], error) {
		return source.NewGormPagingSource[domain.User]("userReader", p.DBResolver, WorkloadDB,
			source.WithOrderBy("user_id desc"),
			source.WithPageSize(15),
			source.WithMaxItems(15),
		), nil
	}
	updateEmail := transformer.Map(func(u domain.User) domain.User {
		u.Email = fmt.Sprintf("user%d@example.com", u.ID)
		logger.Debugf("Updated email for user %s: %s", u.Username, u.Email)
		return u
	})

	return job.NewChunkJob(UserEmailUpdateJob,
		newSource,
		updateEmail,
		port.Sink[domain.User](sink.NewGormSink[domain.User]("userWriter", p.txManager(), sink.WithUpsert[domain.User]([]string{"user_id"}, "email"))),
		p.options(
			job.WithStepName("updateUserEmailStep"),
			job.WithChunkSize(5),
		)...,
	)
}

// NewExportUsersJob exports every user as parquet files partitioned by the initial of the username.
func NewExportUsersJob(p Params) (*job.ChunkJob[domain.User, domain.UserRecord], error) {
	if p.Storage == nil {
		return nil, errors.Newf("job '%s' requires a storage connection resolver", ExportUsersJob)
	}
	chunkSize := p.Cfg.ChunkBatch.Batch.ChunkSize
	if chunkSize <= 0 {
		chunkSize = 100
	}

	parquetSink, err := sink.NewParquetSink[domain.UserRecord]("userExportWriter",
		map[string]interface{}{
			"storageRef":      ExportsStorage,
			"outputBaseDir":   "users",
			"compressionType": "SNAPPY",
		},
		p.Storage,
		func(r domain.UserRecord) (string, error) { return "initial=" + r.Initial(), nil },
	)
	if err != nil {
		return nil, err
	}

	newSource := func(ctx context.Context) (port.Source[domain.User], error) {
		return source.NewGormPagingSource[domain.User]("userExportReader", p.DBResolver, WorkloadDB,
			source.WithOrderBy("user_id"),
			source.WithPageSize(chunkSize),
		), nil
	}
	toRecord := transformer.Map(func(u domain.User) domain.UserRecord {
		return domain.NewUserRecord(u, time.Now())
	})

	return job.NewChunkJob(ExportUsersJob,
		newSource,
		toRecord,
		port.Sink[domain.UserRecord](parquetSink),
		p.options(
			job.WithStepName("exportUsersStep"),
			job.WithChunkSize(chunkSize),
		)...,
	)
}
