package extractors

import (
	"context"
	"fmt"
	"strings"

	"github.com/nat-king-15/Master-Extractor-Bot/pkg/httpclient"
	"github.com/nat-king-15/Master-Extractor-Bot/pkg/interfaces"
	"github.com/nat-king-15/Master-Extractor-Bot/pkg/logging"
	"github.com/nat-king-15/Master-Extractor-Bot/pkg/manifest"
	"github.com/nat-king-15/Master-Extractor-Bot/pkg/types"
)

const (
	studyIQWeb     = "https://www.studyiq.net/api/web"
	studyIQBackend = "https://backend.studyiq.net/app-content-ws"
)

// StudyIQExtractor handles the Study IQ content backend. Login is a
// two-step mobile/OTP exchange; an existing bearer token can be passed
// through Credentials.Token instead.
type StudyIQExtractor struct {
	*BaseExtractor
	log *logging.Logger
}

// NewStudyIQExtractor creates a new Study IQ extractor.
func NewStudyIQExtractor(client *httpclient.Client, log *logging.Logger) *StudyIQExtractor {
	return &StudyIQExtractor{
		BaseExtractor: NewBaseExtractor(client, log),
		log:           log.WithComponent("studyiq-extractor"),
	}
}

// Name returns the extractor name.
func (e *StudyIQExtractor) Name() string {
	return "studyiq"
}

// CanHandle returns true for the Study IQ keyword or hosts.
func (e *StudyIQExtractor) CanHandle(target string) bool {
	lower := strings.ToLower(target)
	return strings.Contains(lower, "studyiq")
}

func (e *StudyIQExtractor) authHeaders(token string) map[string]string {
	return map[string]string{
		"Authorization": "Bearer " + token,
		"User-Agent":    browserUA,
	}
}

// Login requests an OTP for the mobile number, then exchanges it for a
// bearer token. The first call returns an OTPPendingError carrying the
// pending user id; the caller retries with the OTP in
// Credentials.Password and that user id in Credentials.UserID. A
// ready-made token in Credentials.Token skips the exchange entirely.
func (e *StudyIQExtractor) Login(ctx context.Context, creds types.Credentials) (*types.Session, error) {
	if creds.Token != "" {
		return &types.Session{Platform: e.Name(), Token: creds.Token}, nil
	}

	if creds.UserID == "" {
		var resp struct {
			Data struct {
				UserID int64 `json:"user_id"`
			} `json:"data"`
			Message string `json:"message"`
		}
		payload := map[string]string{"mobile": creds.Identifier}
		if err := e.client.PostJSON(ctx, studyIQWeb+"/userlogin", nil, payload, &resp); err != nil {
			return nil, fmt.Errorf("studyiq otp request: %w", err)
		}
		if resp.Data.UserID == 0 {
			return nil, fmt.Errorf("studyiq login failed: %s", resp.Message)
		}
		return nil, &OTPPendingError{UserID: fmt.Sprint(resp.Data.UserID)}
	}

	var resp struct {
		Data struct {
			APIToken string `json:"api_token"`
		} `json:"data"`
		Message string `json:"message"`
	}
	payload := map[string]string{"user_id": creds.UserID, "otp": creds.Password}
	if err := e.client.PostJSON(ctx, studyIQWeb+"/web_user_login", nil, payload, &resp); err != nil {
		return nil, fmt.Errorf("studyiq otp verify: %w", err)
	}
	if resp.Data.APIToken == "" {
		return nil, fmt.Errorf("studyiq login failed: %s", resp.Message)
	}
	return &types.Session{Platform: e.Name(), Token: resp.Data.APIToken}, nil
}

// Courses lists the purchased batches.
func (e *StudyIQExtractor) Courses(ctx context.Context, sess *types.Session) ([]types.Course, error) {
	var resp struct {
		Data []struct {
			CourseID    int64  `json:"courseId"`
			CourseTitle string `json:"courseTitle"`
		} `json:"data"`
	}
	if err := e.withRetry(ctx, func() error {
		return e.client.GetJSON(ctx, studyIQBackend+"/api/v1/getAllPurchasedCourses?source=WEB",
			e.authHeaders(sess.Token), &resp)
	}); err != nil {
		return nil, fmt.Errorf("studyiq courses: %w", err)
	}

	out := make([]types.Course, 0, len(resp.Data))
	for _, c := range resp.Data {
		out = append(out, types.Course{ID: fmt.Sprint(c.CourseID), Name: c.CourseTitle})
	}
	return out, nil
}

type iqDetails struct {
	CourseTitle string   `json:"courseTitle"`
	Data        []iqItem `json:"data"`
}

type iqItem struct {
	ContentID        int64  `json:"contentId"`
	Name             string `json:"name"`
	VideoURL         string `json:"videoUrl"`
	SubFolderOrderID *int64 `json:"subFolderOrderId"`
}

func (e *StudyIQExtractor) details(ctx context.Context, token, courseID, parentID string) (*iqDetails, error) {
	u := studyIQBackend + "/v1/course/getDetails?courseId=" + courseID + "&languageId="
	if parentID != "" {
		u += "&parentId=" + parentID
	}
	var resp iqDetails
	if err := e.withRetry(ctx, func() error {
		return e.client.GetJSON(ctx, u, e.authHeaders(token), &resp)
	}); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Extract walks the course folder tree. A folder whose items all lack
// subFolderOrderId is a leaf folder of lessons; otherwise it recurses
// one level down via parentId={topic}/{folder}.
func (e *StudyIQExtractor) Extract(ctx context.Context, sess *types.Session, course types.Course, opts interfaces.ExtractOptions) (*manifest.Manifest, error) {
	root, err := e.details(ctx, sess.Token, course.ID, "")
	if err != nil {
		return nil, fmt.Errorf("studyiq course details: %w", err)
	}
	name := strings.ReplaceAll(strings.ReplaceAll(root.CourseTitle, " || ", ""), "|", "")
	if name == "" {
		name = course.Name
	}

	m := manifest.New(name)
	grow(opts, len(root.Data))

	results := make([]*manifest.Manifest, len(root.Data))
	err = forEachLimit(ctx, len(root.Data), workers(opts), func(ctx context.Context, i int) error {
		results[i] = e.topicManifest(ctx, sess.Token, course.ID, root.Data[i])
		step(opts)
		return nil
	})
	if err != nil {
		return nil, err
	}
	for _, part := range results {
		m.Append(part)
	}
	return m, nil
}

func (e *StudyIQExtractor) topicManifest(ctx context.Context, token, courseID string, topic iqItem) *manifest.Manifest {
	part := manifest.New(topic.Name)
	topicID := fmt.Sprint(topic.ContentID)

	folder, err := e.details(ctx, token, courseID, topicID)
	if err != nil {
		e.log.WithError(err).Warn("topic skipped", "topic", topic.Name)
		return part
	}

	if leafFolder(folder.Data) {
		e.collectLessons(ctx, token, courseID, topic.Name, folder.Data, part)
		return part
	}

	for _, sub := range folder.Data {
		if ctx.Err() != nil {
			return part
		}
		inner, err := e.details(ctx, token, courseID, topicID+"/"+fmt.Sprint(sub.ContentID))
		if err != nil {
			e.log.WithError(err).Warn("folder skipped", "folder", sub.Name)
			continue
		}
		e.collectLessons(ctx, token, courseID, sub.Name, inner.Data, part)
	}
	return part
}

// leafFolder reports whether every item is a plain lesson.
func leafFolder(items []iqItem) bool {
	for _, it := range items {
		if it.SubFolderOrderID != nil {
			return false
		}
	}
	return true
}

func (e *StudyIQExtractor) collectLessons(ctx context.Context, token, courseID, label string, items []iqItem, m *manifest.Manifest) {
	for _, it := range items {
		if it.VideoURL != "" {
			m.Add(fmt.Sprintf("[%s]-%s", label, it.Name), it.VideoURL)
		}
		e.collectAttachments(ctx, token, courseID, it.ContentID, m)
	}
}

// collectAttachments pulls notes and other files attached to a lesson.
// Attachment failures are ignored; the lesson video already made it in.
func (e *StudyIQExtractor) collectAttachments(ctx context.Context, token, courseID string, lessonID int64, m *manifest.Manifest) {
	var resp struct {
		Options []struct {
			URLs []struct {
				Name string `json:"name"`
				URL  string `json:"url"`
			} `json:"urls"`
		} `json:"options"`
	}
	u := fmt.Sprintf("%s/api/lesson/data?lesson_id=%d&courseId=%s", studyIQBackend, lessonID, courseID)
	if err := e.client.GetJSON(ctx, u, e.authHeaders(token), &resp); err != nil {
		return
	}
	for _, opt := range resp.Options {
		for _, f := range opt.URLs {
			if f.Name == "" || f.URL == "" {
				continue
			}
			m.Add("[Notes] - "+f.Name, f.URL)
		}
	}
}

var _ interfaces.Extractor = (*StudyIQExtractor)(nil)
