package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"tournament-settlement/models"
	"tournament-settlement/utils"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/gosimple/slug"
)

// ReceiptArchiver stores a settlement report somewhere durable and returns its URL.
type ReceiptArchiver interface {
	Archive(ctx context.Context, report *models.SettlementReport) (string, error)
}

// ObjectPutter is the slice of the S3 API the archive needs.
type ObjectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// ReceiptArchive writes settlement reports as JSON objects to an R2 bucket.
type ReceiptArchive struct {
	Client     ObjectPutter
	Bucket     string
	CDNBaseURL string
}

func NewReceiptArchive(r2 *utils.R2Client) *ReceiptArchive {
	return &ReceiptArchive{Client: r2.Client, Bucket: r2.Bucket, CDNBaseURL: r2.CDNBaseURL}
}

func (a *ReceiptArchive) Archive(ctx context.Context, report *models.SettlementReport) (string, error) {
	body, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode settlement report: %w", err)
	}

	key := receiptKey(report)
	_, err = a.Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload settlement report to R2: %w", err)
	}
	return fmt.Sprintf("%s/%s", a.CDNBaseURL, key), nil
}

// receiptKey is settlements/<slug(name)>-<id>.json, or settlements/<id>.json for unnamed tournaments.
func receiptKey(report *models.SettlementReport) string {
	name := slug.Make(report.TournamentName)
	if name == "" {
		return fmt.Sprintf("settlements/%s.json", report.TournamentID)
	}
	return fmt.Sprintf("settlements/%s-%s.json", name, report.TournamentID)
}
