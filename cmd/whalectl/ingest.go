package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/noah-isme/whale-spotting-api/internal/app"
	"github.com/noah-isme/whale-spotting-api/internal/dto"
	"github.com/noah-isme/whale-spotting-api/pkg/config"
	"github.com/noah-isme/whale-spotting-api/pkg/logger"
)

func ingestCommand(cfg *config.Config) *cobra.Command {
	var (
		file string
		poll bool
	)

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Import sightings from a JSON file or the configured feed",
		Long: `Import externally sourced sightings. Records whose apiId is already
stored are skipped, so running the same import twice is harmless.

The API server only sees the resulting cache invalidation when both
processes share CACHE_BACKEND=redis. Any other backend is switched off
here, so a server using the in-memory cache serves stale search results
until its entries expire (SEARCH_CACHE_TTL).

Examples:
  whalectl ingest --file candidates.json
  whalectl ingest --poll`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if (file == "") == !poll {
				return errors.New("exactly one of --file or --poll is required")
			}

			logr, err := logger.New(cfg)
			if err != nil {
				return err
			}
			defer logr.Sync() //nolint:errcheck

			if disableLocalCache(cfg) {
				logr.Warn("cache backend is not shared with the API server; search results there refresh on TTL expiry",
					zap.String("backend", cfg.Cache.Backend))
			}

			container, err := app.Build(cmd.Context(), cfg, logr)
			if err != nil {
				return err
			}
			defer container.Close()

			var result *dto.IngestResult
			if poll {
				result, err = container.Ingest.Poll(cmd.Context())
			} else {
				var candidates []dto.IngestCandidate
				candidates, err = readCandidatesFile(file)
				if err != nil {
					return err
				}
				result, err = container.Ingest.Ingest(cmd.Context(), candidates)
			}
			if err != nil {
				logr.Error("ingest failed", zap.Error(err))
				return err
			}
			return printJSON(cmd.OutOrStdout(), result)
		},
	}

	cmd.Flags().StringVar(&file, "file", "", "JSON file holding a candidate array or {\"sightings\": [...]}")
	cmd.Flags().BoolVar(&poll, "poll", false, "Run one poll against the configured feed")
	return cmd
}

// disableLocalCache turns off any cache this process cannot share with the
// server. It reports whether the server's cache is left untouched by ingest.
func disableLocalCache(cfg *config.Config) bool {
	if cfg.Cache.Backend == config.CacheBackendRedis {
		return false
	}
	cfg.Cache.Backend = config.CacheBackendNone
	return true
}

func readCandidatesFile(path string) ([]dto.IngestCandidate, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return readCandidates(f)
}

// readCandidates accepts either a bare array or the admin endpoint payload.
func readCandidates(r io.Reader) ([]dto.IngestCandidate, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	var list []dto.IngestCandidate
	if err := json.Unmarshal(raw, &list); err == nil {
		return list, nil
	}
	var payload dto.IngestRequest
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("decode candidates: %w", err)
	}
	return payload.Sightings, nil
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
