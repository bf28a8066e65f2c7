// Package upload implements the client side of the track ingestion pipeline.
// Files are sent to the server strictly one at a time in submission order. A
// failure marks only the file it belongs to, the rest of the batch continues.
package upload

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"

	"vilero/src/util"
)

// MaxBatchSize is the maximum number of files accepted in a single batch.
const MaxBatchSize = 50

// DefaultSettleDelay is the pause between the last upload finishing and the
// settled callback, giving the server time to index the new files.
const DefaultSettleDelay = 500 * time.Millisecond

var (
	ErrEmptyBatch    = errors.New("no files to upload")
	ErrBatchTooLarge = fmt.Errorf("too many files, the maximum batch size is %d", MaxBatchSize)
)

var uploadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "vilero_uploads_total",
	Help: "Number of file uploads by outcome.",
}, []string{"status"})

// TaskState is the lifecycle state of a single file in a batch.
type TaskState string

const (
	TaskPending   TaskState = "pending"
	TaskUploading TaskState = "uploading"
	TaskSucceeded TaskState = "succeeded"
	TaskFailed    TaskState = "failed"
)

// Task tracks one file through the pipeline.
type Task struct {
	ID       uuid.UUID
	Filename string
	Size     int64
	State    TaskState
	// Progress is the fraction of the file sent so far, in [0, 1]. It never
	// decreases.
	Progress float64
	Err      error
}

// TaskEvent is emitted whenever a task changes state or progress.
type TaskEvent struct {
	Task Task
}

// BatchDoneEvent is emitted after the last task of a batch finished and the
// settle delay elapsed.
type BatchDoneEvent struct {
	Succeeded, Failed int
}

// Client uploads batches of audio files to a server.
type Client struct {
	util.Emitter

	endpoint    string
	httpClient  *http.Client
	settleDelay time.Duration

	// OnSettled, when set, is invoked exactly once per batch after the settle
	// delay. This is where callers hook their library reload.
	OnSettled func()
}

// NewClient creates a client that posts to the specified upload endpoint.
func NewClient(endpoint string) *Client {
	return &Client{
		endpoint:    endpoint,
		httpClient:  &http.Client{Timeout: 5 * time.Minute},
		settleDelay: DefaultSettleDelay,
	}
}

// UploadBatch sends the files one at a time in the order given. The returned
// tasks reflect the final state of every file. An error is returned only when
// the batch as a whole could not run, individual failures are recorded on
// their task.
func (c *Client) UploadBatch(ctx context.Context, paths []string) ([]Task, error) {
	if len(paths) == 0 {
		return nil, ErrEmptyBatch
	}
	if len(paths) > MaxBatchSize {
		return nil, ErrBatchTooLarge
	}

	tasks := make([]Task, len(paths))
	for i, path := range paths {
		tasks[i] = Task{
			ID:       uuid.New(),
			Filename: filepath.Base(path),
			State:    TaskPending,
		}
		if info, err := os.Stat(path); err == nil {
			tasks[i].Size = info.Size()
		}
	}

	var succeeded, failed int
	for i, path := range paths {
		if err := ctx.Err(); err != nil {
			return tasks, err
		}
		tasks[i].State = TaskUploading
		c.Emit(TaskEvent{Task: tasks[i]})

		if err := c.uploadOne(ctx, path, &tasks[i]); err != nil {
			tasks[i].State = TaskFailed
			tasks[i].Err = err
			failed++
			uploadsTotal.WithLabelValues("failed").Inc()
			log.WithField("file", tasks[i].Filename).Errorf("Upload failed: %v", err)
		} else {
			tasks[i].State = TaskSucceeded
			tasks[i].Progress = 1
			succeeded++
			uploadsTotal.WithLabelValues("succeeded").Inc()
		}
		c.Emit(TaskEvent{Task: tasks[i]})
	}

	select {
	case <-time.After(c.settleDelay):
	case <-ctx.Done():
		return tasks, ctx.Err()
	}
	if c.OnSettled != nil {
		c.OnSettled()
	}
	c.Emit(BatchDoneEvent{Succeeded: succeeded, Failed: failed})
	return tasks, nil
}

func (c *Client) uploadOne(ctx context.Context, path string, task *Task) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	body, contentType := multipartBody(task, file, c.emitProgress)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", contentType)

	res, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	return decodeUploadResponse(res)
}

func (c *Client) emitProgress(task Task) {
	c.Emit(TaskEvent{Task: task})
}

// multipartBody streams the file as a multipart form without buffering it in
// memory. Progress callbacks fire as the body is consumed by the transport.
func multipartBody(task *Task, file io.Reader, progress func(Task)) (io.Reader, string) {
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		part, err := mw.CreateFormFile("file", task.Filename)
		if err != nil {
			pw.CloseWithError(err)
			return
		}
		src := &progressReader{r: file, task: task, progress: progress}
		if _, err := io.Copy(part, src); err != nil {
			pw.CloseWithError(err)
			return
		}
		pw.CloseWithError(mw.Close())
	}()
	return pr, mw.FormDataContentType()
}

type progressReader struct {
	r        io.Reader
	task     *Task
	progress func(Task)
	sent     int64
}

func (pr *progressReader) Read(p []byte) (int, error) {
	n, err := pr.r.Read(p)
	pr.sent += int64(n)
	if pr.task.Size > 0 {
		frac := float64(pr.sent) / float64(pr.task.Size)
		if frac > 1 {
			frac = 1
		}
		// Progress may only move forward.
		if frac > pr.task.Progress {
			pr.task.Progress = frac
			if pr.progress != nil {
				pr.progress(*pr.task)
			}
		}
	}
	return n, err
}

// uploadResult is one entry of the structured response shape.
type uploadResult struct {
	Filename string `json:"filename"`
	Status   string `json:"status"`
	Error    string `json:"error"`
}

// decodeUploadResponse accepts both response shapes the server may produce: a
// structured {"results": [...]} document with a per-file status, or a plain
// 2xx without a parseable body.
func decodeUploadResponse(res *http.Response) error {
	body, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return err
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		detail := strings.TrimSpace(string(body))
		if detail == "" {
			detail = res.Status
		}
		return errors.New(detail)
	}

	var structured struct {
		Results []uploadResult `json:"results"`
	}
	if err := json.Unmarshal(body, &structured); err != nil || len(structured.Results) == 0 {
		// Plain 2xx, nothing more to check.
		return nil
	}
	for _, result := range structured.Results {
		if result.Status == "error" {
			if result.Error != "" {
				return errors.New(result.Error)
			}
			return errors.New("upload rejected")
		}
	}
	return nil
}
