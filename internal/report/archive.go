package report

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"path/filepath"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"barsync/internal/domain"
)

// objectPutter is the subset of *minio.Client used for uploads.
type objectPutter interface {
	FPutObject(ctx context.Context, bucket, object, filePath string, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

// ArchiveConfig locates the S3-compatible bucket receiving reports.
type ArchiveConfig struct {
	Endpoint  string
	Bucket    string
	AccessKey string
	SecretKey string
	Secure    bool
	Prefix    string
}

// Archiver writes the report locally through a CSVWriter, then uploads a
// timestamped copy to object storage. Upload failures are logged and never
// fail the report.
type Archiver struct {
	local  *CSVWriter
	client objectPutter
	bucket string
	prefix string
	now    func() time.Time
	log    *slog.Logger
}

// NewArchiver connects to cfg.Endpoint and decorates local.
func NewArchiver(local *CSVWriter, cfg ArchiveConfig) (*Archiver, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.Secure,
	})
	if err != nil {
		return nil, fmt.Errorf("creating object storage client: %w", err)
	}
	return newArchiver(local, client, cfg.Bucket, cfg.Prefix), nil
}

func newArchiver(local *CSVWriter, client objectPutter, bucket, prefix string) *Archiver {
	return &Archiver{
		local:  local,
		client: client,
		bucket: bucket,
		prefix: prefix,
		now:    time.Now,
		log:    slog.Default().With("component", "report-archive"),
	}
}

// WriteErrors writes the local report and uploads it.
func (a *Archiver) WriteErrors(ctx context.Context, entries []domain.ErrorEntry) error {
	if err := a.local.WriteErrors(ctx, entries); err != nil {
		return err
	}

	object := a.objectName()
	info, err := a.client.FPutObject(ctx, a.bucket, object, a.local.Path, minio.PutObjectOptions{
		ContentType: "text/csv",
	})
	if err != nil {
		a.log.Error("uploading error report", "bucket", a.bucket, "object", object, "err", err)
		return nil
	}
	a.log.Info("error report archived", "bucket", a.bucket, "object", object, "bytes", info.Size)
	return nil
}

// objectName is <prefix>/<YYYY-MM-DD>/<report>-<HHMMSS>.csv in UTC.
func (a *Archiver) objectName() string {
	now := a.now().UTC()
	base := filepath.Base(a.local.Path)
	ext := filepath.Ext(base)
	name := fmt.Sprintf("%s-%s%s", base[:len(base)-len(ext)], now.Format("150405"), ext)
	return path.Join(a.prefix, now.Format(domain.DateLayout), name)
}
