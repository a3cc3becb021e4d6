package sharing

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"log/slog"
	"maps"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/sync/errgroup"

	"github.com/deltashare/deltashare/internal/delta"
	"github.com/deltashare/deltashare/internal/observability"
	"github.com/deltashare/deltashare/internal/predicate"
	"github.com/deltashare/deltashare/internal/pruner"
	"github.com/deltashare/deltashare/internal/signer"
)

const defaultSignConcurrency = 16

type Service struct {
	Resolver        *Resolver
	Signer          signer.Signer
	Logger          *slog.Logger
	SignConcurrency int
}

type QueryRequest struct {
	Location           string
	PredicateHints     []string
	JSONPredicateHints json.RawMessage
	// LimitHint is advisory and not enforced.
	LimitHint *int32
	Version   *int64
	Timestamp *time.Time
}

type QueryResult struct {
	Version  int64
	Protocol ProtocolLine
	Metadata MetadataLine
	Files    []FileLine
}

// Lines returns the response stream in order.
func (r *QueryResult) Lines() []any {
	lines := make([]any, 0, len(r.Files)+2)
	lines = append(lines, r.Protocol, r.Metadata)
	for _, file := range r.Files {
		lines = append(lines, file)
	}
	return lines
}

type MetadataResult struct {
	Version  int64
	Protocol ProtocolLine
	Metadata MetadataLine
}

func (r *MetadataResult) Lines() []any {
	return []any{r.Protocol, r.Metadata}
}

// Query resolves the snapshot, prunes its files and signs the survivors.
// Unparseable hints are dropped; resolution and signing failures are fatal.
func (s *Service) Query(ctx context.Context, req QueryRequest) (*QueryResult, error) {
	res, err := s.Resolver.Resolve(ctx, ResolveRequest{
		Location:  req.Location,
		Version:   req.Version,
		Timestamp: req.Timestamp,
	})
	if err != nil {
		return nil, err
	}
	snapshot := res.Snapshot

	p := pruner.New(columnTypes(snapshot.Schema), s.parseHints(ctx, req.PredicateHints), s.parseJSONHint(ctx, req.JSONPredicateHints))
	candidates := s.prune(ctx, p, snapshot.Files)
	observability.ObservePruning(len(candidates), len(snapshot.Files)-len(candidates))

	files, err := s.sign(ctx, snapshot, candidates, res.TimeTraveled)
	if err != nil {
		return nil, err
	}

	return &QueryResult{
		Version:  snapshot.Version,
		Protocol: protocolLine(),
		Metadata: metadataLine(snapshot.Metadata),
		Files:    files,
	}, nil
}

// Metadata resolves the latest snapshot and returns its protocol and metadata.
func (s *Service) Metadata(ctx context.Context, location string) (*MetadataResult, error) {
	res, err := s.Resolver.Resolve(ctx, ResolveRequest{Location: location})
	if err != nil {
		return nil, err
	}
	return &MetadataResult{
		Version:  res.Snapshot.Version,
		Protocol: protocolLine(),
		Metadata: metadataLine(res.Snapshot.Metadata),
	}, nil
}

// Version returns the latest version, or the version current at
// startingTimestamp when one is given.
func (s *Service) Version(ctx context.Context, location string, startingTimestamp *time.Time) (int64, error) {
	res, err := s.Resolver.Resolve(ctx, ResolveRequest{Location: location, Timestamp: startingTimestamp})
	if err != nil {
		return 0, err
	}
	return res.Snapshot.Version, nil
}

// logger and signConcurrency only read the Service, so concurrent requests
// may share a zero-valued one.
func (s *Service) logger() *slog.Logger {
	if s.Logger == nil {
		return slog.Default()
	}
	return s.Logger
}

func (s *Service) signConcurrency() int {
	if s.SignConcurrency <= 0 {
		return defaultSignConcurrency
	}
	return s.SignConcurrency
}

func (s *Service) parseHints(ctx context.Context, hints []string) []predicate.PartitionFilter {
	filters, failures := predicate.ParseHints(hints)
	for _, failure := range failures {
		s.logger().WarnContext(ctx, "dropping malformed predicate hint",
			slog.String("hint", failure.Hint),
			slog.Any("error", failure.Err),
		)
		observability.IncrementHintParseFailure("sql")
	}
	return filters
}

func (s *Service) parseJSONHint(ctx context.Context, raw json.RawMessage) predicate.Expr {
	expr, err := predicate.DecodeJSONHint(raw)
	if err != nil {
		s.logger().WarnContext(ctx, "dropping malformed json predicate hint", slog.Any("error", err))
		observability.IncrementHintParseFailure("json")
		return nil
	}
	return expr
}

func (s *Service) prune(ctx context.Context, p *pruner.Pruner, files []delta.FileEntry) []delta.FileEntry {
	if p.Empty() {
		return files
	}
	kept := make([]delta.FileEntry, 0, len(files))
	for _, file := range files {
		stats, err := pruner.ParseStatistics(file.Stats)
		if err != nil {
			s.logger().DebugContext(ctx, "file statistics unreadable, keeping file",
				slog.String("path", file.Path),
				slog.Any("error", err),
			)
			kept = append(kept, file)
			continue
		}
		if p.Keep(stats) {
			kept = append(kept, file)
		}
	}
	return kept
}

// sign issues URLs on a bounded worker group. Output order matches files.
func (s *Service) sign(ctx context.Context, snapshot *delta.Snapshot, files []delta.FileEntry, timeTraveled bool) ([]FileLine, error) {
	out := make([]FileLine, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.signConcurrency())
	for i, file := range files {
		g.Go(func() error {
			loc, err := snapshot.Location.Join(file.Path)
			if err != nil {
				return fmt.Errorf("resolve file %s: %w", file.Path, err)
			}
			signed, err := s.Signer.Sign(gctx, loc)
			if err != nil {
				return fmt.Errorf("sign file %s: %w", file.Path, err)
			}
			out[i] = fileLine(file, signed, timeTraveled)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func fileLine(file delta.FileEntry, signed signer.SignedURL, timeTraveled bool) FileLine {
	partitionValues := maps.Clone(file.PartitionValues)
	if partitionValues == nil {
		partitionValues = map[string]string{}
	}
	detail := FileDetail{
		URL:                 signed.URL,
		ID:                  fileID(file.Path),
		PartitionValues:     partitionValues,
		Size:                file.Size,
		Stats:               file.Stats,
		ExpirationTimestamp: signed.ExpiresAt.UnixMilli(),
	}
	if timeTraveled {
		version := file.Version
		timestamp := file.Timestamp.UnixMilli()
		detail.Version = &version
		detail.Timestamp = &timestamp
	}
	return FileLine{File: detail}
}

func fileID(path string) string {
	sum := md5.Sum([]byte(path))
	return hex.EncodeToString(sum[:])
}

func columnTypes(schema delta.Schema) pruner.ColumnTypes {
	names := schema.ColumnTypeNames()
	types := make(pruner.ColumnTypes, len(names))
	for column, name := range names {
		types[column] = pruner.ParseColumnType(name)
	}
	return types
}
