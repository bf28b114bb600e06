package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/config"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"

	"bug-report-proxy/handler"
	"bug-report-proxy/internal/integrations/openrouter"
	"bug-report-proxy/internal/integrations/paramstore"
	"bug-report-proxy/internal/usecase"
)

const envAPIKey = "OPENROUTER_API_KEY"

func main() {
	ctx := context.Background()

	// ---- Configuration (read only here; the API key is resolved per request) ----
	siteURL := os.Getenv("SITE_URL")
	keyParam := os.Getenv("OPENROUTER_API_KEY_PARAM")

	// ---- Key source ----
	var keys usecase.KeySource = envKeySource{}
	if keyParam != "" {
		cfg, err := config.LoadDefaultConfig(ctx)
		if err != nil {
			slog.Error("failed to load AWS config", "err", err)
			os.Exit(1)
		}
		ps, err := paramstore.New(awsssm.NewFromConfig(cfg), keyParam)
		if err != nil {
			slog.Error("failed to create paramstore key source", "err", err)
			os.Exit(1)
		}
		keys = ps
	}

	// ---- Handler ----
	client := openrouter.NewClient(openrouter.WithSiteURL(siteURL))

	svc, err := usecase.NewSubmitService(keys, client)
	if err != nil {
		slog.Error("failed to create submit service", "err", err)
		os.Exit(1)
	}

	h, err := handler.NewHandler(svc)
	if err != nil {
		slog.Error("failed to create handler", "err", err)
		os.Exit(1)
	}

	lambda.Start(h.Handle)
}

// envKeySource reads the upstream credential from the environment on every
// request, the default when no Parameter Store name is configured.
type envKeySource struct{}

func (envKeySource) APIKey(context.Context) (string, error) {
	return os.Getenv(envAPIKey), nil
}
