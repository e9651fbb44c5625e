package extractors

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/nat-king-15/Master-Extractor-Bot/pkg/httpclient"
	"github.com/nat-king-15/Master-Extractor-Bot/pkg/interfaces"
	"github.com/nat-king-15/Master-Extractor-Bot/pkg/logging"
	"github.com/nat-king-15/Master-Extractor-Bot/pkg/manifest"
	"github.com/nat-king-15/Master-Extractor-Bot/pkg/types"
)

const (
	pwAPI         = "https://api.penpencil.co"
	pwClientID    = "5eb393ee95fab7468a79d189"
	pwOAuthID     = "system-admin"
	pwOAuthSecret = "KjPXuAVfC5xbmgreETNMaL7z"
	pwCountryCode = "+91"
)

// ErrOTPSent reports that a login code was dispatched and the login must
// be retried with the code as the password.
var ErrOTPSent = fmt.Errorf("otp sent, retry login with the received code")

// OTPPendingError is an ErrOTPSent that also carries the pending user
// id the verification call must echo back.
type OTPPendingError struct {
	UserID string
}

func (e *OTPPendingError) Error() string        { return ErrOTPSent.Error() }
func (e *OTPPendingError) Is(target error) bool { return target == ErrOTPSent }

// pwContentTypes are the content feeds each chapter is paged through.
var pwContentTypes = []string{"videos", "notes", "DppNotes", "DppVideos"}

// PhysicsWallahExtractor handles the PhysicsWallah batch platform.
type PhysicsWallahExtractor struct {
	*BaseExtractor
	log *logging.Logger
}

// NewPhysicsWallahExtractor creates a new PhysicsWallah extractor.
func NewPhysicsWallahExtractor(client *httpclient.Client, log *logging.Logger) *PhysicsWallahExtractor {
	return &PhysicsWallahExtractor{
		BaseExtractor: NewBaseExtractor(client, log),
		log:           log.WithComponent("physicswallah-extractor"),
	}
}

// Name returns the extractor name.
func (e *PhysicsWallahExtractor) Name() string {
	return "physicswallah"
}

// CanHandle returns true for PhysicsWallah keywords and hosts.
func (e *PhysicsWallahExtractor) CanHandle(target string) bool {
	lower := strings.ToLower(target)
	return strings.Contains(lower, "physicswallah") ||
		strings.Contains(lower, "penpencil") ||
		lower == "pw"
}

func (e *PhysicsWallahExtractor) headers(token string) map[string]string {
	h := map[string]string{
		"client-id":      pwClientID,
		"client-version": "200",
		"User-Agent":     browserUA,
	}
	if token != "" {
		h["Authorization"] = "Bearer " + token
	}
	return h
}

// Login runs the two-step OTP flow. With an empty password it requests
// a code for the phone number and returns ErrOTPSent; called again with
// the code as password it exchanges it for an access token. A
// pre-issued token in the credentials skips both steps.
func (e *PhysicsWallahExtractor) Login(ctx context.Context, creds types.Credentials) (*types.Session, error) {
	if creds.Token != "" {
		return &types.Session{Platform: e.Name(), Token: creds.Token}, nil
	}

	if creds.Password == "" {
		payload := map[string]any{
			"username":       creds.Identifier,
			"countryCode":    pwCountryCode,
			"organizationId": pwClientID,
		}
		if err := e.client.PostJSON(ctx, pwAPI+"/v1/users/get-otp?smsType=0", e.headers(""), payload, nil); err != nil {
			return nil, fmt.Errorf("physicswallah get-otp: %w", err)
		}
		return nil, ErrOTPSent
	}

	payload := map[string]any{
		"username":       creds.Identifier,
		"otp":            creds.Password,
		"client_id":      pwOAuthID,
		"client_secret":  pwOAuthSecret,
		"grant_type":     "password",
		"organizationId": pwClientID,
		"latitude":       0,
		"longitude":      0,
	}
	var resp struct {
		Data struct {
			AccessToken string `json:"access_token"`
		} `json:"data"`
	}
	if err := e.client.PostJSON(ctx, pwAPI+"/v3/oauth/token", e.headers(""), payload, &resp); err != nil {
		return nil, fmt.Errorf("physicswallah token exchange: %w", err)
	}
	if resp.Data.AccessToken == "" {
		return nil, fmt.Errorf("physicswallah: empty access token")
	}
	return &types.Session{Platform: e.Name(), Token: resp.Data.AccessToken}, nil
}

type pwBatch struct {
	ID   string `json:"_id"`
	Name string `json:"name"`
}

// Courses lists purchased batches; a query in Extra searches instead.
func (e *PhysicsWallahExtractor) Courses(ctx context.Context, sess *types.Session) ([]types.Course, error) {
	h := e.headers(sess.Token)

	endpoint := pwAPI + "/v3/batches/all-purchased-batches?amount=paid&page=1"
	if q := sess.Extra["query"]; q != "" {
		endpoint = pwAPI + "/v3/batches/search?name=" + url.QueryEscape(q)
	}

	var resp struct {
		Data []pwBatch `json:"data"`
	}
	if err := e.client.GetJSON(ctx, endpoint, h, &resp); err != nil {
		return nil, fmt.Errorf("physicswallah batches: %w", err)
	}

	out := make([]types.Course, 0, len(resp.Data))
	for _, b := range resp.Data {
		out = append(out, types.Course{ID: b.ID, Name: b.Name})
	}
	return out, nil
}

type pwSubject struct {
	ID      string `json:"_id"`
	Subject string `json:"subject"`
	Slug    string `json:"slug"`
}

type pwChapter struct {
	ID   string `json:"_id"`
	Name string `json:"name"`
	Slug string `json:"slug"`
}

type pwContent struct {
	ID           string `json:"_id"`
	Topic        string `json:"topic"`
	URL          string `json:"url"`
	VideoDetails struct {
		Name string `json:"name"`
	} `json:"videoDetails"`
	Homeworks []struct {
		Topic       string `json:"topic"`
		Attachments []struct {
			BaseURL string `json:"baseUrl"`
			Key     string `json:"key"`
		} `json:"attachmentIds"`
	} `json:"homeworkIds"`
}

// Extract walks batch -> subject -> chapter -> content feeds.
func (e *PhysicsWallahExtractor) Extract(ctx context.Context, sess *types.Session, course types.Course, opts interfaces.ExtractOptions) (*manifest.Manifest, error) {
	h := e.headers(sess.Token)

	var details struct {
		Data struct {
			Subjects []pwSubject `json:"subjects"`
		} `json:"data"`
	}
	if err := e.withRetry(ctx, func() error {
		return e.client.GetJSON(ctx, fmt.Sprintf("%s/v3/batches/%s/details", pwAPI, course.ID), h, &details)
	}); err != nil {
		return nil, fmt.Errorf("physicswallah batch details: %w", err)
	}

	m := manifest.New(course.Name)
	for _, subject := range details.Data.Subjects {
		chapters, err := e.chapters(ctx, course.ID, subject, h)
		if err != nil {
			e.log.WithError(err).Warn("subject skipped", "subject", subject.Subject)
			continue
		}

		results := make([]*manifest.Manifest, len(chapters))
		err = forEachLimit(ctx, len(chapters), workers(opts), func(ctx context.Context, i int) error {
			results[i] = e.chapterManifest(ctx, course.ID, subject, chapters[i], h, opts)
			return nil
		})
		if err != nil {
			return nil, err
		}
		for _, part := range results {
			m.Append(part)
		}
	}
	return m, nil
}

func (e *PhysicsWallahExtractor) chapters(ctx context.Context, batchID string, subject pwSubject, h map[string]string) ([]pwChapter, error) {
	var all []pwChapter
	for page := 1; ; page++ {
		var resp struct {
			Data []pwChapter `json:"data"`
		}
		topicURL := fmt.Sprintf("%s/v2/batches/%s/subject/%s/topics?page=%d", pwAPI, batchID, subject.Slug, page)
		if err := e.withRetry(ctx, func() error {
			return e.client.GetJSON(ctx, topicURL, h, &resp)
		}); err != nil {
			return nil, err
		}
		if len(resp.Data) == 0 {
			return all, nil
		}
		all = append(all, resp.Data...)
	}
}

// chapterManifest collects every content feed of one chapter. Errors
// drop the affected feed, never the batch.
func (e *PhysicsWallahExtractor) chapterManifest(ctx context.Context, batchID string, subject pwSubject, chapter pwChapter, h map[string]string, opts interfaces.ExtractOptions) *manifest.Manifest {
	part := manifest.New(chapter.Name)

	for _, contentType := range pwContentTypes {
		for page := 1; ; page++ {
			var resp struct {
				Data []pwContent `json:"data"`
			}
			contentURL := fmt.Sprintf("%s/v2/batches/%s/subject/%s/contents?page=%d&contentType=%s&tag=%s",
				pwAPI, batchID, subject.Slug, page, contentType, url.QueryEscape(chapter.Slug))
			if err := e.withRetry(ctx, func() error {
				return e.client.GetJSON(ctx, contentURL, h, &resp)
			}); err != nil {
				e.log.WithError(err).Warn("content feed skipped",
					"chapter", chapter.Name, "type", contentType)
				break
			}
			if len(resp.Data) == 0 {
				break
			}

			grow(opts, len(resp.Data))
			for _, item := range resp.Data {
				e.resolveContent(ctx, batchID, subject, item, contentType, part, h)
				step(opts)
			}
		}
	}
	return part
}

func (e *PhysicsWallahExtractor) resolveContent(ctx context.Context, batchID string, subject pwSubject, item pwContent, contentType string, m *manifest.Manifest, h map[string]string) {
	title := item.Topic
	if title == "" {
		title = item.VideoDetails.Name
	}

	switch contentType {
	case "videos", "DppVideos":
		if u := e.scheduleVideoURL(ctx, batchID, subject.ID, item.ID, h); u != "" {
			m.Add(title, u)
		}
	default:
		if item.URL != "" {
			m.Add(title, item.URL)
		}
		for _, hw := range item.Homeworks {
			for _, att := range hw.Attachments {
				m.Add(hw.Topic, att.BaseURL+att.Key)
			}
		}
	}
}

// scheduleVideoURL resolves a schedule item to its stream or embed URL.
func (e *PhysicsWallahExtractor) scheduleVideoURL(ctx context.Context, batchID, subjectID, scheduleID string, h map[string]string) string {
	var resp struct {
		Data struct {
			VideoDetails struct {
				VideoURL  string `json:"videoUrl"`
				EmbedCode string `json:"embedCode"`
			} `json:"videoDetails"`
			URL string `json:"url"`
		} `json:"data"`
	}
	detailURL := fmt.Sprintf("%s/v1/batches/%s/subject/%s/schedule/%s/schedule-details",
		pwAPI, batchID, subjectID, scheduleID)
	if err := e.client.GetJSON(ctx, detailURL, h, &resp); err != nil {
		e.log.WithError(err).Debug("schedule details failed", "schedule", scheduleID)
		return ""
	}
	if u := resp.Data.VideoDetails.VideoURL; u != "" {
		return u
	}
	if u := resp.Data.URL; u != "" {
		return u
	}
	return resp.Data.VideoDetails.EmbedCode
}

var _ interfaces.Extractor = (*PhysicsWallahExtractor)(nil)
