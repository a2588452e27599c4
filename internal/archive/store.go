// Package archive keeps a copy of every uploaded prescription in S3 so that
// bookings can be audited after the chat session is gone.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"github.com/wolfman30/lab-booking-bot/pkg/logging"
)

// S3API is the subset of the S3 client used by Store.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// Prescription is one uploaded prescription image.
type Prescription struct {
	UserID      string
	BookingNo   string
	PatientCode string
	Extension   string
	Data        []byte
	UploadedAt  time.Time
}

// ManifestEntry is one line of the monthly JSONL manifest.
type ManifestEntry struct {
	Key         string `json:"key"`
	UserID      string `json:"user_id"`
	BookingNo   string `json:"booking_no"`
	PatientCode string `json:"patient_code"`
	UploadedAt  string `json:"uploaded_at"`
	SizeBytes   int    `json:"size_bytes"`
}

// Store writes prescriptions to S3.
type Store struct {
	bucket   string
	s3Client S3API
	logger   *logging.Logger
}

// NewStore creates an archive Store. If bucket is empty, all operations are no-ops.
func NewStore(s3Client S3API, bucket string, logger *logging.Logger) *Store {
	if logger == nil {
		logger = logging.Default()
	}
	return &Store{bucket: bucket, s3Client: s3Client, logger: logger}
}

// Enabled returns true if archival is configured (bucket is set).
func (s *Store) Enabled() bool {
	return s != nil && s.bucket != "" && s.s3Client != nil
}

// ArchivePrescription uploads the image and records it in the manifest. It
// returns the object key, or "" when archival is disabled.
func (s *Store) ArchivePrescription(ctx context.Context, p Prescription) (string, error) {
	if !s.Enabled() {
		return "", nil
	}
	at := p.UploadedAt
	if at.IsZero() {
		at = time.Now()
	}
	at = at.UTC()
	ext := strings.ToLower(strings.TrimSpace(p.Extension))
	if ext == "" {
		ext = "bin"
	}

	key := fmt.Sprintf("prescriptions/v1/by-date/%d/%02d/%02d/%s/%s-%s.%s",
		at.Year(), at.Month(), at.Day(), p.UserID, p.BookingNo, uuid.NewString()[:8], ext)

	_, err := s.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(p.Data),
		ContentType: aws.String("image/" + ext),
		Metadata: map[string]string{
			"user-id":      p.UserID,
			"booking-no":   p.BookingNo,
			"patient-code": p.PatientCode,
		},
	})
	if err != nil {
		return "", fmt.Errorf("archive: s3 put %s: %w", key, err)
	}
	s.logger.Info("archived prescription", "user", p.UserID, "booking_no", p.BookingNo, "s3_key", key)

	entry := ManifestEntry{
		Key:         key,
		UserID:      p.UserID,
		BookingNo:   p.BookingNo,
		PatientCode: p.PatientCode,
		UploadedAt:  at.Format(time.RFC3339),
		SizeBytes:   len(p.Data),
	}
	if err := s.appendManifest(ctx, at, entry); err != nil {
		s.logger.Warn("failed to append prescription manifest", "error", err, "s3_key", key)
	}
	return key, nil
}

// appendManifest does a read-modify-write since S3 has no append.
func (s *Store) appendManifest(ctx context.Context, at time.Time, entry ManifestEntry) error {
	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("archive: marshal manifest entry: %w", err)
	}
	manifestKey := fmt.Sprintf("prescriptions/v1/manifests/%d-%02d.jsonl", at.Year(), at.Month())

	var existing []byte
	getResp, err := s.s3Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(manifestKey),
	})
	if err == nil {
		existing, err = io.ReadAll(getResp.Body)
		getResp.Body.Close()
		if err != nil {
			return fmt.Errorf("archive: read manifest: %w", err)
		}
	}

	var buf bytes.Buffer
	buf.Write(existing)
	if len(existing) > 0 && existing[len(existing)-1] != '\n' {
		buf.WriteByte('\n')
	}
	buf.Write(line)
	buf.WriteByte('\n')

	_, err = s.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(manifestKey),
		Body:        bytes.NewReader(buf.Bytes()),
		ContentType: aws.String("application/x-ndjson"),
	})
	if err != nil {
		return fmt.Errorf("archive: s3 put manifest: %w", err)
	}
	return nil
}
