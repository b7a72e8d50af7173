// Package harvest locates and summarizes the output artifacts of a
// completed job run. Everything here is best-effort: a missing preview
// must never block final status delivery, so failures degrade to an empty
// preview instead of propagating.
package harvest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"
)

const csvPreviewLines = 5

// ObjectAPI is the slice of the S3 client the harvester needs.
type ObjectAPI interface {
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// Harvester reads job output from <outputPrefix>/session_<id>/<timestamp>/.
// Timestamp folder names sort correctly as strings, so the newest run is
// the lexicographically greatest prefix.
type Harvester struct {
	api    ObjectAPI
	bucket string
	prefix string
	log    *zerolog.Logger
}

func NewHarvester(api ObjectAPI, bucket, outputPrefix string, logger *zerolog.Logger) *Harvester {
	compLog := logger.With().Str("component", "ResultHarvester").Logger()
	return &Harvester{
		api:    api,
		bucket: bucket,
		prefix: strings.Trim(outputPrefix, "/"),
		log:    &compLog,
	}
}

// executionSummary mirrors the JSON-lines summary the job writer produces.
type executionSummary struct {
	Query          string   `json:"query"`
	RowCount       *int64   `json:"row_count"`
	Status         string   `json:"status"`
	Columns        []string `json:"columns"`
	OutputLocation string   `json:"output_location"`
}

// Harvest returns a human-readable preview of the latest output for the
// session, and the location the full results live at. Both are empty when
// nothing usable exists.
func (h *Harvester) Harvest(ctx context.Context, sessionID string) (string, string) {
	sessionPrefix := fmt.Sprintf("%s/session_%s/", h.prefix, sessionID)

	latest, err := h.latestRunFolder(ctx, sessionPrefix)
	if err != nil {
		h.log.Warn().Err(err).Str("session_id", sessionID).Msg("could not list job output")
		return "", ""
	}
	if latest == "" {
		h.log.Warn().Str("session_id", sessionID).Str("prefix", sessionPrefix).Msg("no output folders for session")
		return "", ""
	}

	if preview, loc, ok := h.readSummary(ctx, latest); ok {
		return preview, loc
	}
	return h.readCSVPreview(ctx, latest)
}

func (h *Harvester) latestRunFolder(ctx context.Context, sessionPrefix string) (string, error) {
	out, err := h.api.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket:    aws.String(h.bucket),
		Prefix:    aws.String(sessionPrefix),
		Delimiter: aws.String("/"),
	})
	if err != nil {
		return "", err
	}

	folders := make([]string, 0, len(out.CommonPrefixes))
	for _, cp := range out.CommonPrefixes {
		if cp.Prefix != nil {
			folders = append(folders, *cp.Prefix)
		}
	}
	if len(folders) == 0 {
		return "", nil
	}
	sort.Sort(sort.Reverse(sort.StringSlice(folders)))
	return folders[0], nil
}

func (h *Harvester) readSummary(ctx context.Context, folder string) (string, string, bool) {
	key := folder + "summary.json"
	body, err := h.getObjectBody(ctx, key)
	if err != nil {
		h.log.Warn().Err(err).Str("key", key).Msg("could not read execution summary")
		return "", "", false
	}

	// The summary is written as JSON lines; the first parsable line wins.
	for _, line := range strings.Split(strings.TrimSpace(body), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		var sum executionSummary
		if err := json.Unmarshal([]byte(line), &sum); err != nil {
			h.log.Warn().Err(err).Str("key", key).Msg("malformed summary line")
			return "", "", false
		}

		var b strings.Builder
		fmt.Fprintf(&b, "SQL Query: %s\n", orNA(sum.Query))
		if sum.RowCount != nil {
			fmt.Fprintf(&b, "Row Count: %d\n", *sum.RowCount)
		} else {
			b.WriteString("Row Count: N/A\n")
		}
		fmt.Fprintf(&b, "Status: %s\n", orNA(sum.Status))
		fmt.Fprintf(&b, "Columns: %s\n", strings.Join(sum.Columns, ", "))
		return b.String(), sum.OutputLocation, true
	}
	return "", "", false
}

func (h *Harvester) readCSVPreview(ctx context.Context, folder string) (string, string) {
	resultsPrefix := folder + "results/"
	out, err := h.api.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket:  aws.String(h.bucket),
		Prefix:  aws.String(resultsPrefix),
		MaxKeys: aws.Int32(1),
	})
	if err != nil || len(out.Contents) == 0 || out.Contents[0].Key == nil {
		h.log.Warn().Str("prefix", resultsPrefix).Msg("no raw result files found")
		return "", ""
	}

	body, err := h.getObjectBody(ctx, *out.Contents[0].Key)
	if err != nil {
		h.log.Warn().Err(err).Str("key", *out.Contents[0].Key).Msg("could not read raw results")
		return "", ""
	}

	lines := strings.Split(body, "\n")
	if len(lines) > csvPreviewLines {
		lines = lines[:csvPreviewLines]
	}
	preview := "CSV Results Preview:\n" + strings.Join(lines, "\n")
	return preview, fmt.Sprintf("s3://%s/%s", h.bucket, resultsPrefix)
}

func (h *Harvester) getObjectBody(ctx context.Context, key string) (string, error) {
	out, err := h.api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(h.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return "", err
	}
	defer out.Body.Close()
	b, err := io.ReadAll(out.Body)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}
