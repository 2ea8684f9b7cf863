package storage

import (
	"bytes"
	"context"
	"fmt"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/itsNatTan/SpeakUp-sub000/internal/v1/logging"
	"github.com/itsNatTan/SpeakUp-sub000/internal/v1/metrics"
)

const uploadTimeout = 30 * time.Second

// CloudUploader forwards capture files to an external recording endpoint as
// multipart uploads. A circuit breaker sheds uploads while the endpoint is
// down so room teardown never stalls on a dead dependency; captures always
// remain in the in-memory store regardless.
type CloudUploader struct {
	endpoint string
	client   *http.Client
	breaker  *gobreaker.CircuitBreaker
}

// NewCloudUploader creates an uploader posting to endpoint.
func NewCloudUploader(endpoint string) *CloudUploader {
	settings := gobreaker.Settings{
		Name:        "recording-upload",
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
			logging.Warn(context.Background(), "circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	}
	return &CloudUploader{
		endpoint: endpoint,
		client:   &http.Client{Timeout: uploadTimeout},
		breaker:  gobreaker.NewCircuitBreaker(settings),
	}
}

// Save uploads one capture file in the background. Satisfies the capture
// sink surface; failures are logged and counted, never propagated to the
// room.
func (u *CloudUploader) Save(filename string, data []byte) {
	go func() {
		ctx := context.Background()
		_, err := u.breaker.Execute(func() (any, error) {
			return nil, u.upload(ctx, filename, data)
		})
		if err != nil {
			logging.Warn(ctx, "recording upload failed",
				zap.String("filename", filename),
				zap.Int("bytes", len(data)),
				zap.Error(err))
			return
		}
		logging.Debug(ctx, "recording uploaded",
			zap.String("filename", filename),
			zap.Int("bytes", len(data)))
	}()
}

func (u *CloudUploader) upload(ctx context.Context, filename string, data []byte) error {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("recording", filename)
	if err != nil {
		return fmt.Errorf("build multipart body: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return fmt.Errorf("build multipart body: %w", err)
	}
	if err := mw.Close(); err != nil {
		return fmt.Errorf("build multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.endpoint, &body)
	if err != nil {
		return fmt.Errorf("build upload request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := u.client.Do(req)
	if err != nil {
		return fmt.Errorf("post recording: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("recording endpoint returned %s", resp.Status)
	}
	return nil
}
