// Package worker manages the embedded Asynq worker that executes folder
// transfers in the background, off the orchestrator's control loop.
//
// The worker is optional: when no Redis address is configured the rest of
// the service runs without background transfers.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog/log"

	"github.com/termhub/workbench/internal/remote"
	"github.com/termhub/workbench/internal/session"
	"github.com/termhub/workbench/internal/transfer"
)

const (
	TaskFolderUpload   = "transfer:folder_upload"
	TaskFolderDownload = "transfer:folder_download"
)

// FolderTransferPayload is the JSON body of both transfer task types.
// Session names a stored record; the handler opens its own channels so a
// slow transfer never ties up an interactive connection.
type FolderTransferPayload struct {
	Session    string `json:"session"`
	LocalPath  string `json:"localPath"`
	RemotePath string `json:"remotePath"`
}

// Worker manages the Asynq server and a shared client for enqueuing tasks.
type Worker struct {
	server     *asynq.Server
	client     *asynq.Client
	store      *session.Store
	scratchDir string
}

// New creates a Worker bound to the given Redis address. An empty address
// disables background transfers and returns nil.
func New(redisAddr string, store *session.Store, scratchDir string) *Worker {
	if redisAddr == "" {
		return nil
	}
	opt := asynq.RedisClientOpt{Addr: redisAddr}
	srv := asynq.NewServer(opt, asynq.Config{
		Concurrency: 4,
		Queues: map[string]int{
			"default": 1,
		},
	})
	return &Worker{
		server:     srv,
		client:     asynq.NewClient(opt),
		store:      store,
		scratchDir: scratchDir,
	}
}

// Start begins processing tasks in a background goroutine. Call once.
func (w *Worker) Start() {
	mux := asynq.NewServeMux()
	mux.HandleFunc(TaskFolderUpload, w.handleFolderUpload)
	mux.HandleFunc(TaskFolderDownload, w.handleFolderDownload)

	go func() {
		if err := w.server.Run(mux); err != nil {
			log.Error().Err(err).Msg("worker: asynq server stopped")
		}
	}()
}

// EnqueueUpload queues a background folder upload.
func (w *Worker) EnqueueUpload(ctx context.Context, p FolderTransferPayload) error {
	return w.enqueue(ctx, TaskFolderUpload, p)
}

// EnqueueDownload queues a background folder download.
func (w *Worker) EnqueueDownload(ctx context.Context, p FolderTransferPayload) error {
	return w.enqueue(ctx, TaskFolderDownload, p)
}

func (w *Worker) enqueue(ctx context.Context, taskType string, p FolderTransferPayload) error {
	payload, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("worker: marshal %s payload: %w", taskType, err)
	}
	info, err := w.client.EnqueueContext(ctx, asynq.NewTask(taskType, payload),
		asynq.MaxRetry(3), asynq.Timeout(30*time.Minute))
	if err != nil {
		return fmt.Errorf("worker: enqueue %s: %w", taskType, err)
	}
	log.Info().Str("task", taskType).Str("id", info.ID).Str("session", p.Session).Msg("worker: task enqueued")
	return nil
}

// Shutdown gracefully stops the worker and closes the client connection.
func (w *Worker) Shutdown() {
	w.server.Shutdown()
	if err := w.client.Close(); err != nil {
		log.Warn().Err(err).Msg("worker: close asynq client")
	}
}

func (w *Worker) handleFolderUpload(ctx context.Context, t *asynq.Task) error {
	return w.runTransfer(ctx, t, func(ctx context.Context, pipe *transfer.Pipeline, p FolderTransferPayload) error {
		return pipe.UploadFolder(ctx, p.LocalPath, p.RemotePath)
	})
}

func (w *Worker) handleFolderDownload(ctx context.Context, t *asynq.Task) error {
	return w.runTransfer(ctx, t, func(ctx context.Context, pipe *transfer.Pipeline, p FolderTransferPayload) error {
		return pipe.DownloadFolder(ctx, p.RemotePath, p.LocalPath)
	})
}

// runTransfer opens dedicated control and file channels for the task so
// failures and slowness stay isolated from interactive sessions.
func (w *Worker) runTransfer(ctx context.Context, t *asynq.Task, op func(context.Context, *transfer.Pipeline, FolderTransferPayload) error) error {
	var p FolderTransferPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("worker: decode %s payload: %w", t.Type(), err)
	}

	records, err := w.store.Load()
	if err != nil {
		return err
	}
	rec, ok := session.Find(records, p.Session)
	if !ok {
		return fmt.Errorf("worker: unknown session %q", p.Session)
	}

	control := remote.NewControlChannel(rec)
	if err := control.Connect(ctx); err != nil {
		return err
	}
	defer control.Disconnect()

	files := remote.NewFileChannel(rec)
	if err := files.Connect(ctx); err != nil {
		return err
	}
	defer files.Disconnect()

	pipe := transfer.NewPipeline(control, files, transfer.TarArchiver{}, w.scratchDir)
	if err := op(ctx, pipe, p); err != nil {
		return err
	}
	log.Info().Str("task", t.Type()).Str("session", p.Session).Msg("worker: transfer finished")
	return nil
}
