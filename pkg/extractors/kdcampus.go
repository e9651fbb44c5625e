package extractors

import (
	"context"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/nat-king-15/Master-Extractor-Bot/pkg/httpclient"
	"github.com/nat-king-15/Master-Extractor-Bot/pkg/interfaces"
	"github.com/nat-king-15/Master-Extractor-Bot/pkg/logging"
	"github.com/nat-king-15/Master-Extractor-Bot/pkg/manifest"
	"github.com/nat-king-15/Master-Extractor-Bot/pkg/types"
)

const (
	kdCampusAPI    = "https://web.kdcampus.live/android"
	kdCampusAPIKey = "kdc123"

	// kdCampusContentCDN hosts uploaded PDF documents.
	kdCampusContentCDN = "https://kdcampus.live/uploaded/content_data/"
)

// KDCampusExtractor handles the KD Campus dashboard API. Batch ids are
// composite, batchID_courseID, matching how the app addresses content.
type KDCampusExtractor struct {
	*BaseExtractor
	log *logging.Logger
}

// NewKDCampusExtractor creates a new KD Campus extractor.
func NewKDCampusExtractor(client *httpclient.Client, log *logging.Logger) *KDCampusExtractor {
	return &KDCampusExtractor{
		BaseExtractor: NewBaseExtractor(client, log),
		log:           log.WithComponent("kdcampus-extractor"),
	}
}

// Name returns the extractor name.
func (e *KDCampusExtractor) Name() string {
	return "kdcampus"
}

// CanHandle returns true for the KD Campus keyword or hosts.
func (e *KDCampusExtractor) CanHandle(target string) bool {
	lower := strings.ToLower(target)
	return strings.Contains(lower, "kdcampus") || strings.Contains(lower, "kd campus")
}

func kdHeaders() map[string]string {
	return map[string]string{
		"User-Agent":      "okhttp/4.10.0",
		"Accept-Encoding": "gzip",
	}
}

// Login posts the mobile number with the SHA-512 of the password. A
// ready-made connection key in Credentials.Token is validated against
// the dashboard with user id 0.
func (e *KDCampusExtractor) Login(ctx context.Context, creds types.Credentials) (*types.Session, error) {
	if creds.Token != "" {
		u := fmt.Sprintf("%s/Dashboard/get_mycourse_data_renew_new/%s/0/4", kdCampusAPI, creds.Token)
		var rows []map[string]any
		if err := e.client.GetJSON(ctx, u, kdHeaders(), &rows); err != nil || len(rows) == 0 {
			return nil, fmt.Errorf("kdcampus: token validation failed")
		}
		return &types.Session{Platform: e.Name(), Token: creds.Token, UserID: "0"}, nil
	}

	sum := sha512.Sum512([]byte(creds.Password))
	payload := map[string]string{
		"code":         "",
		"valid_id":     "",
		"api_key":      kdCampusAPIKey,
		"mobilenumber": creds.Identifier,
		"password":     hex.EncodeToString(sum[:]),
	}
	var resp struct {
		Data struct {
			ConnectionKey string `json:"connection_key"`
			ID            int64  `json:"id"`
		} `json:"data"`
		Message string `json:"message"`
	}
	if err := e.client.PostJSON(ctx, kdCampusAPI+"/Usersn/login_user", kdHeaders(), payload, &resp); err != nil {
		return nil, fmt.Errorf("kdcampus login: %w", err)
	}
	if resp.Data.ConnectionKey == "" {
		return nil, fmt.Errorf("kdcampus login failed: %s", resp.Message)
	}
	return &types.Session{Platform: e.Name(), Token: resp.Data.ConnectionKey, UserID: fmt.Sprint(resp.Data.ID)}, nil
}

// Courses lists the account's batches under composite batchID_courseID ids.
func (e *KDCampusExtractor) Courses(ctx context.Context, sess *types.Session) ([]types.Course, error) {
	u := fmt.Sprintf("%s/Dashboard/get_mycourse_data_renew_new/%s/%s/4", kdCampusAPI, sess.Token, sess.UserID)
	var resp []struct {
		CourseID  flexID `json:"course_id"`
		BatchID   flexID `json:"batch_id"`
		BatchName string `json:"batch_name"`
	}
	if err := e.withRetry(ctx, func() error {
		return e.client.GetJSON(ctx, u, kdHeaders(), &resp)
	}); err != nil {
		return nil, fmt.Errorf("kdcampus my courses: %w", err)
	}

	out := make([]types.Course, 0, len(resp))
	for _, b := range resp {
		out = append(out, types.Course{
			ID:   fmt.Sprintf("%s_%s", b.BatchID, b.CourseID),
			Name: b.BatchName,
		})
	}
	return out, nil
}

// Extract walks the batch's subjects, collecting videos and PDFs per
// subject. Both feeds arrive newest first and are reversed into course
// order.
func (e *KDCampusExtractor) Extract(ctx context.Context, sess *types.Session, course types.Course, opts interfaces.ExtractOptions) (*manifest.Manifest, error) {
	batchID, courseID, ok := strings.Cut(course.ID, "_")
	if !ok {
		return nil, fmt.Errorf("kdcampus: malformed batch id %q", course.ID)
	}

	var subjects struct {
		Subjects []struct {
			ID          flexID `json:"id"`
			SubjectName string `json:"subject_name"`
		} `json:"subjects"`
	}
	u := fmt.Sprintf("%s/Dashboard/course_subject/%s/%s/%s/%s", kdCampusAPI, sess.Token, sess.UserID, courseID, batchID)
	if err := e.withRetry(ctx, func() error {
		return e.client.GetJSON(ctx, u, kdHeaders(), &subjects)
	}); err != nil {
		return nil, fmt.Errorf("kdcampus subjects: %w", err)
	}

	m := manifest.New(course.Name)
	grow(opts, len(subjects.Subjects))

	parts := make([]*manifest.Manifest, len(subjects.Subjects))
	err := forEachLimit(ctx, len(subjects.Subjects), workers(opts), func(ctx context.Context, i int) error {
		s := subjects.Subjects[i]
		parts[i] = e.subjectManifest(ctx, sess, courseID, batchID, fmt.Sprint(s.ID), s.SubjectName)
		step(opts)
		return nil
	})
	if err != nil {
		return nil, err
	}
	for _, part := range parts {
		m.Append(part)
	}
	return m, nil
}

func (e *KDCampusExtractor) subjectManifest(ctx context.Context, sess *types.Session, courseID, batchID, subjectID, subjectName string) *manifest.Manifest {
	part := manifest.New(subjectName)

	var videos []struct {
		ContentTitle string `json:"content_title"`
		JWPlayerID   string `json:"jwplayer_id"`
	}
	u := fmt.Sprintf("%s/Dashboard/course_details_video/%s/%s/%s/%s/0/%s/0",
		kdCampusAPI, sess.Token, sess.UserID, courseID, batchID, subjectID)
	if err := e.client.GetJSON(ctx, u, kdHeaders(), &videos); err != nil {
		e.log.WithError(err).Warn("subject videos skipped", "subject", subjectName)
	}
	for i := len(videos) - 1; i >= 0; i-- {
		title := strings.TrimSpace(videos[i].ContentTitle)
		if title == "" || videos[i].JWPlayerID == "" {
			continue
		}
		part.Add(title, "https://"+videos[i].JWPlayerID)
	}

	var pdfs []struct {
		ContentTitle string `json:"content_title"`
		FileName     string `json:"file_name"`
	}
	u = fmt.Sprintf("%s/Dashboard/course_details_pdf/%s/%s/%s/%s/0/%s/0",
		kdCampusAPI, sess.Token, sess.UserID, courseID, batchID, subjectID)
	if err := e.client.GetJSON(ctx, u, kdHeaders(), &pdfs); err != nil {
		e.log.WithError(err).Warn("subject pdfs skipped", "subject", subjectName)
	}
	for i := len(pdfs) - 1; i >= 0; i-- {
		title := strings.TrimSpace(pdfs[i].ContentTitle)
		if title == "" || pdfs[i].FileName == "" {
			continue
		}
		part.Add(title, kdCampusContentCDN+pdfs[i].FileName)
	}
	return part
}

var _ interfaces.Extractor = (*KDCampusExtractor)(nil)
