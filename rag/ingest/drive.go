package ingest

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	drive "google.golang.org/api/drive/v3"
	"google.golang.org/api/option"
)

// MIME types that Drive can export as plain text.
const (
	mimeGoogleDoc     = "application/vnd.google-apps.document"
	mimeGoogleSheet   = "application/vnd.google-apps.spreadsheet"
	mimeGoogleSlides  = "application/vnd.google-apps.presentation"
	mimeGoogleFolder  = "application/vnd.google-apps.folder"
	mimePDF           = "application/pdf"
	exportPlainText   = "text/plain"
	exportCSV         = "text/csv"
	maxDriveFileBytes = 32 << 20
)

// driveFile is the subset of Drive file metadata the loader needs.
type driveFile struct {
	ID       string
	Name     string
	MIMEType string
}

// driveClient abstracts the Drive API so the loader can be tested
// without network access.
type driveClient interface {
	listFolder(ctx context.Context, folderID string) ([]driveFile, error)
	exportText(ctx context.Context, fileID, mimeType string) ([]byte, error)
	download(ctx context.Context, fileID string) ([]byte, error)
}

// DriveLoader loads every readable file in a Google Drive folder.
//
// Google-native documents (Docs, Sheets, Slides) are exported as plain
// text. PDFs are downloaded and run through text extraction. Plain text
// files are downloaded as-is. Everything else is skipped.
//
// Per-file failures are logged and skipped so one unreadable file does
// not abort a folder index.
type DriveLoader struct {
	client driveClient
	logger *slog.Logger
	now    func() time.Time
}

// DriveOption configures a DriveLoader.
type DriveOption func(*DriveLoader)

// WithDriveLogger sets the logger used for per-file warnings.
func WithDriveLogger(logger *slog.Logger) DriveOption {
	return func(l *DriveLoader) {
		l.logger = logger
	}
}

// NewDriveLoader creates a DriveLoader authenticated with a service
// account credentials JSON blob.
//
// The service account needs read access to the target folder, which
// usually means sharing the folder with the service account's email.
func NewDriveLoader(ctx context.Context, credentialsJSON []byte, opts ...DriveOption) (*DriveLoader, error) {
	svc, err := drive.NewService(ctx,
		option.WithCredentialsJSON(credentialsJSON),
		option.WithScopes(drive.DriveReadonlyScope),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create Drive service: %w", err)
	}
	return newDriveLoader(&sdkDriveClient{svc: svc}, opts...), nil
}

func newDriveLoader(client driveClient, opts ...DriveOption) *DriveLoader {
	l := &DriveLoader{
		client: client,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load returns a Document for every supported file in the folder.
//
// Files that fail to download or extract are logged and reported in the
// warnings slice, one entry per failed file. Load returns an error only
// when the folder listing itself fails.
func (l *DriveLoader) Load(ctx context.Context, folderID string) ([]Document, []string, error) {
	if folderID == "" {
		return nil, nil, fmt.Errorf("folder ID is required")
	}

	files, err := l.client.listFolder(ctx, folderID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list Drive folder %q: %w", folderID, err)
	}

	docs := make([]Document, 0, len(files))
	var warnings []string
	for _, f := range files {
		if f.MIMEType == mimeGoogleFolder {
			continue
		}
		text, err := l.extract(ctx, f)
		if err != nil {
			l.logger.Warn("skipping Drive file", "file", f.Name, "id", f.ID, "error", err)
			warnings = append(warnings, fmt.Sprintf("%s: %v", f.Name, err))
			continue
		}
		docs = append(docs, Document{
			ID:        f.ID,
			Name:      f.Name,
			Source:    "drive",
			MIMEType:  f.MIMEType,
			Content:   text,
			Retrieved: l.now(),
		})
	}
	return docs, warnings, nil
}

// extract fetches a single file's text using the strategy its MIME
// type calls for.
func (l *DriveLoader) extract(ctx context.Context, f driveFile) (string, error) {
	switch {
	case f.MIMEType == mimeGoogleDoc || f.MIMEType == mimeGoogleSlides:
		data, err := l.client.exportText(ctx, f.ID, exportPlainText)
		if err != nil {
			return "", err
		}
		return cleanText(string(data)), nil

	case f.MIMEType == mimeGoogleSheet:
		data, err := l.client.exportText(ctx, f.ID, exportCSV)
		if err != nil {
			return "", err
		}
		return cleanText(string(data)), nil

	case f.MIMEType == mimePDF:
		data, err := l.client.download(ctx, f.ID)
		if err != nil {
			return "", err
		}
		return ExtractPDFText(data)

	case strings.HasPrefix(f.MIMEType, "text/"):
		data, err := l.client.download(ctx, f.ID)
		if err != nil {
			return "", err
		}
		return cleanText(string(data)), nil

	default:
		return "", fmt.Errorf("unsupported MIME type %q", f.MIMEType)
	}
}

// sdkDriveClient implements driveClient against the real Drive API.
type sdkDriveClient struct {
	svc *drive.Service
}

func (c *sdkDriveClient) listFolder(ctx context.Context, folderID string) ([]driveFile, error) {
	var files []driveFile
	query := fmt.Sprintf("'%s' in parents and trashed = false", folderID)
	pageToken := ""
	for {
		call := c.svc.Files.List().
			Q(query).
			Fields("nextPageToken, files(id, name, mimeType)").
			PageSize(100).
			Context(ctx)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}
		resp, err := call.Do()
		if err != nil {
			return nil, err
		}
		for _, f := range resp.Files {
			files = append(files, driveFile{ID: f.Id, Name: f.Name, MIMEType: f.MimeType})
		}
		if resp.NextPageToken == "" {
			return files, nil
		}
		pageToken = resp.NextPageToken
	}
}

func (c *sdkDriveClient) exportText(ctx context.Context, fileID, mimeType string) ([]byte, error) {
	resp, err := c.svc.Files.Export(fileID, mimeType).Context(ctx).Download()
	if err != nil {
		return nil, fmt.Errorf("export failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	return io.ReadAll(io.LimitReader(resp.Body, maxDriveFileBytes))
}

func (c *sdkDriveClient) download(ctx context.Context, fileID string) ([]byte, error) {
	resp, err := c.svc.Files.Get(fileID).Context(ctx).Download()
	if err != nil {
		return nil, fmt.Errorf("download failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	return io.ReadAll(io.LimitReader(resp.Body, maxDriveFileBytes))
}
