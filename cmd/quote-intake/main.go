package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/GoogleCloudPlatform/functions-framework-go/functions"
	cloudevents "github.com/cloudevents/sdk-go/v2"

	"github.com/Lllllllleong/translationquoteflow/internal/app"
	"github.com/Lllllllleong/translationquoteflow/internal/config"
	"github.com/Lllllllleong/translationquoteflow/internal/services"
)

var (
	intake  *services.Intake
	once    sync.Once
	initErr error
)

func init() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// Triggered by object finalize events on the uploads bucket.
	functions.CloudEvent("RegisterUpload", registerUpload)
}

// main is required by the Go Functions Framework.
func main() {}

func newIntake(ctx context.Context) (*services.Intake, error) {
	cfg, err := config.Load("")
	if err != nil {
		return nil, err
	}
	a, err := app.New(ctx, cfg, app.Needs{})
	if err != nil {
		return nil, err
	}
	var dispatcher services.Dispatcher
	if cfg.AutoAnalyze {
		wd, err := a.WorkflowDispatcher(ctx)
		if err != nil {
			_ = a.Close()
			return nil, err
		}
		dispatcher = wd
	}
	return services.NewIntake(a.Repo, a.Docs, dispatcher, cfg.AutoAnalyze), nil
}

func registerUpload(ctx context.Context, e cloudevents.Event) error {
	once.Do(func() {
		intake, initErr = newIntake(context.Background())
	})
	if initErr != nil {
		slog.Error("Critical error during function initialization", "error", initErr)
		return initErr
	}

	var gcsEvent services.GCSEvent
	if err := json.Unmarshal(e.Data(), &gcsEvent); err != nil {
		slog.Error("Failed to unmarshal event data", "error", err, "data", string(e.Data()))
		return fmt.Errorf("json.Unmarshal: %w", err)
	}

	// Errors are logged inside Process; returning one makes the event retry.
	return intake.Process(ctx, gcsEvent)
}
