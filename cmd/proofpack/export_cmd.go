package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/attribute"

	"github.com/chainbridge-oss/proofpack/pkg/config"
	"github.com/chainbridge-oss/proofpack/pkg/evidence"
	"github.com/chainbridge-oss/proofpack/pkg/pdo"
	"github.com/chainbridge-oss/proofpack/pkg/proofpack"
	"github.com/chainbridge-oss/proofpack/pkg/resolver"
	"github.com/chainbridge-oss/proofpack/pkg/store"
)

// exportSummary is the machine-readable export result.
type exportSummary struct {
	PDOID        string `json:"pdo_id"`
	Path         string `json:"path"`
	Files        int    `json:"files"`
	ManifestHash string `json:"manifest_hash"`
}

func runExportCmd(args []string, stdout, stderr io.Writer) int {
	defaults := config.Load()

	cmd := newFlagSet("export", stderr)
	var (
		pdoIDFlag       = cmd.String("pdo-id", "", "id of the record to export (required)")
		outFlag         = cmd.String("out", "", "directory to write the bundle into")
		archiveFlag     = cmd.String("archive", "", "write the bundle as a tar.gz at this path")
		dbFlag          = cmd.String("db", "", "postgres URL or sqlite file path (default from env)")
		evidenceDirFlag = cmd.String("evidence-dir", "", "local evidence blob directory (default from env)")
		indexFlag       = cmd.String("evidence-index", "", "evidence ref index file")
		redisFlag       = cmd.String("redis", defaults.RedisAddr, "redis address for the evidence cache")
		depthFlag       = cmd.Int("depth", defaults.LineageDepth, "maximum lineage depth to include")
		metadataFlag    = cmd.Bool("include-metadata", false, "records were sealed over metadata and tags")
		profileFlag     = cmd.String("profile", "", "export profile code to apply")
		profilesDirFlag = cmd.String("profiles-dir", defaults.ProfilesDir, "directory holding profile_*.yaml files")
		jsonFlag        = cmd.Bool("json", false, "print a JSON summary instead of text")
	)
	if err := cmd.Parse(args); err != nil {
		return 2
	}

	if *pdoIDFlag == "" {
		fmt.Fprintln(stderr, "error: --pdo-id is required")
		cmd.Usage()
		return 2
	}
	if *outFlag == "" && *archiveFlag == "" {
		fmt.Fprintln(stderr, "error: one of --out or --archive is required")
		cmd.Usage()
		return 2
	}
	pdoID, err := uuid.Parse(*pdoIDFlag)
	if err != nil {
		fmt.Fprintf(stderr, "error: invalid --pdo-id: %v\n", err)
		return 2
	}

	ctx := context.Background()
	obs := newTelemetry(ctx, defaults)
	defer func() { _ = obs.Shutdown(ctx) }()

	opts := []proofpack.ExporterOption{
		proofpack.WithLineageDepth(*depthFlag),
		proofpack.WithResolveConcurrency(defaults.ResolveConcurrency),
	}
	hashOpts := pdo.HashOptions{IncludeMetadata: *metadataFlag}

	if *profileFlag != "" {
		profile, err := config.LoadProfile(*profilesDirFlag, *profileFlag)
		if err != nil {
			fmt.Fprintf(stderr, "error: %v\n", err)
			return 2
		}
		if profile.Exporter.System != "" {
			opts = append(opts, proofpack.WithExporterInfo(proofpack.ExporterInfo{
				System:    profile.Exporter.System,
				Component: profile.Exporter.Component,
				Version:   profile.Exporter.Version,
			}))
		}
		if profile.Lineage.MaxDepth > 0 {
			opts = append(opts, proofpack.WithLineageDepth(profile.Lineage.MaxDepth))
		}
		hashOpts.IncludeMetadata = hashOpts.IncludeMetadata || profile.Hashing.IncludeMetadata
	}
	opts = append(opts, proofpack.WithHashOptions(hashOpts))

	pdoStore, closeStore, err := openPDOStore(dbTarget(*dbFlag, defaults), hashOpts)
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 2
	}
	defer closeStore()

	res, err := buildResolver(ctx, *evidenceDirFlag, *indexFlag, *redisFlag)
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 2
	}

	opCtx, done := obs.TrackExport(ctx, attribute.String("pdo_id", pdoID.String()))
	bundle, err := proofpack.NewExporter(pdoStore, res, opts...).Export(opCtx, pdoID)
	done(err)
	if err != nil {
		var exportErr *proofpack.ExportError
		if errors.As(err, &exportErr) {
			fmt.Fprintf(stderr, "❌ export failed [%s]: %s\n", exportErr.Code, exportErr.Message)
			return 1
		}
		if errors.Is(err, store.ErrNotFound) {
			fmt.Fprintf(stderr, "❌ export failed: no record with id %s\n", pdoID)
			return 1
		}
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 2
	}

	path := ""
	if *outFlag != "" {
		root, err := proofpack.WriteDir(bundle, *outFlag)
		if err != nil {
			fmt.Fprintf(stderr, "error: %v\n", err)
			return 2
		}
		path = root
	}
	if *archiveFlag != "" {
		if err := proofpack.WriteArchiveFile(bundle, *archiveFlag); err != nil {
			fmt.Fprintf(stderr, "error: %v\n", err)
			return 2
		}
		if path == "" {
			path = *archiveFlag
		}
	}

	if *jsonFlag {
		summary := exportSummary{
			PDOID:        bundle.Manifest.PDOID,
			Path:         path,
			Files:        len(bundle.Files),
			ManifestHash: bundle.Manifest.Integrity.ManifestHash,
		}
		data, err := json.MarshalIndent(summary, "", "  ")
		if err != nil {
			fmt.Fprintf(stderr, "error: %v\n", err)
			return 2
		}
		fmt.Fprintln(stdout, string(data))
		return 0
	}

	fmt.Fprintf(stdout, "✅ exported %s (%d files)\n", bundle.RootDir(), len(bundle.Files))
	fmt.Fprintf(stdout, "   path:          %s\n", path)
	fmt.Fprintf(stdout, "   manifest hash: %s\n", bundle.Manifest.Integrity.ManifestHash)
	return 0
}

// dbTarget resolves the store target: an explicit flag wins, then a
// configured postgres URL, then the sqlite path.
func dbTarget(flag string, defaults *config.Config) string {
	if flag != "" {
		return flag
	}
	if defaults.DatabaseURL != "" {
		return defaults.DatabaseURL
	}
	return defaults.SQLitePath
}

func openPDOStore(target string, hashOpts pdo.HashOptions) (store.PDOStore, func(), error) {
	if strings.HasPrefix(target, "postgres://") || strings.HasPrefix(target, "postgresql://") {
		db, err := sql.Open("postgres", target)
		if err != nil {
			return nil, nil, fmt.Errorf("open postgres: %w", err)
		}
		return store.NewPostgresPDOStore(db, store.WithHashOptions(hashOpts)), func() { _ = db.Close() }, nil
	}

	if dir := filepath.Dir(target); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, nil, fmt.Errorf("ensure db dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", target)
	if err != nil {
		return nil, nil, fmt.Errorf("open sqlite: %w", err)
	}
	s, err := store.NewSQLitePDOStore(db, store.WithHashOptions(hashOpts))
	if err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	return s, func() { _ = db.Close() }, nil
}

func buildResolver(ctx context.Context, evidenceDir, indexPath, redisAddr string) (resolver.Resolver, error) {
	var blobs evidence.BlobStore
	var err error
	if evidenceDir != "" {
		blobs, err = evidence.NewFileBlobStore(evidenceDir)
	} else {
		blobs, err = evidence.NewBlobStoreFromEnv(ctx)
	}
	if err != nil {
		return nil, err
	}

	source := evidence.NewSource(blobs)
	if indexPath != "" {
		if err := source.LoadIndex(indexPath); err != nil {
			return nil, err
		}
	}

	var res resolver.Resolver = resolver.NewStoreResolver(source)
	if redisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: redisAddr})
		res = resolver.NewCachedResolver(res, client, time.Hour)
	}
	return res, nil
}
