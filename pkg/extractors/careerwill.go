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
	careerWillAPI = "https://elearn.crwilladmin.com/api/v9"
	careerWillKey = "+HwN3zs4tPU0p8BpOG5ZlXIU6MaWQmnMHXMJLLFcJ5m4kWqLXGLpsp8+2ydtILXy"

	// brightcoveAccount serves CareerWill's recorded classes; the login
	// token doubles as the playback auth.
	brightcoveAccount  = "6206459123001"
	brightcovePlayback = "https://edge.api.brightcove.com/playback/v1/accounts/" + brightcoveAccount + "/videos/"
)

// CareerWillExtractor handles the CareerWill e-learning API.
type CareerWillExtractor struct {
	*BaseExtractor
	log *logging.Logger
}

// NewCareerWillExtractor creates a new CareerWill extractor.
func NewCareerWillExtractor(client *httpclient.Client, log *logging.Logger) *CareerWillExtractor {
	return &CareerWillExtractor{
		BaseExtractor: NewBaseExtractor(client, log),
		log:           log.WithComponent("careerwill-extractor"),
	}
}

// Name returns the extractor name.
func (e *CareerWillExtractor) Name() string {
	return "careerwill"
}

// CanHandle returns true for the CareerWill keyword or hosts.
func (e *CareerWillExtractor) CanHandle(target string) bool {
	lower := strings.ToLower(target)
	return strings.Contains(lower, "careerwill") || strings.Contains(lower, "crwilladmin")
}

// headers mimics the Android app; the API rejects anything else.
func (e *CareerWillExtractor) headers(token string) map[string]string {
	h := map[string]string{
		"Host":            "elearn.crwilladmin.com",
		"appver":          "107",
		"apptype":         "android",
		"cwkey":           careerWillKey,
		"accept-encoding": "gzip",
		"user-agent":      "okhttp/5.0.0-alpha.2",
	}
	if token != "" {
		h["usertype"] = "2"
		h["token"] = token
	}
	return h
}

// Login exchanges email and password for an API token. A ready-made
// token in Credentials.Token is used directly.
func (e *CareerWillExtractor) Login(ctx context.Context, creds types.Credentials) (*types.Session, error) {
	if creds.Token != "" {
		return &types.Session{Platform: e.Name(), Token: creds.Token}, nil
	}

	payload := map[string]string{
		"deviceType":    "android",
		"password":      creds.Password,
		"deviceModel":   "Xiaomi M2007J20CI",
		"deviceVersion": "Q(Android 10.0)",
		"email":         creds.Identifier,
		"deviceIMEI":    "d57adbd8a7b8u9i9",
		"deviceToken":   "fake_device_token",
	}
	var resp struct {
		Data struct {
			Token string `json:"token"`
		} `json:"data"`
		Message string `json:"message"`
	}
	if err := e.client.PostJSON(ctx, careerWillAPI+"/login-other", e.headers(""), payload, &resp); err != nil {
		return nil, fmt.Errorf("careerwill login: %w", err)
	}
	if resp.Data.Token == "" {
		return nil, fmt.Errorf("careerwill login failed: %s", resp.Message)
	}
	return &types.Session{Platform: e.Name(), Token: resp.Data.Token}, nil
}

// Courses lists the account's batches.
func (e *CareerWillExtractor) Courses(ctx context.Context, sess *types.Session) ([]types.Course, error) {
	var resp struct {
		Data struct {
			BatchData []struct {
				ID        int64  `json:"id"`
				BatchName string `json:"batchName"`
			} `json:"batchData"`
		} `json:"data"`
	}
	if err := e.withRetry(ctx, func() error {
		return e.client.GetJSON(ctx, careerWillAPI+"/my-batch", e.headers(sess.Token), &resp)
	}); err != nil {
		return nil, fmt.Errorf("careerwill my-batch: %w", err)
	}

	out := make([]types.Course, 0, len(resp.Data.BatchData))
	for _, b := range resp.Data.BatchData {
		out = append(out, types.Course{ID: fmt.Sprint(b.ID), Name: b.BatchName})
	}
	return out, nil
}

type cwTopicList struct {
	Data struct {
		BatchTopic []struct {
			ID        int64  `json:"id"`
			TopicName string `json:"topicName"`
		} `json:"batch_topic"`
		BatchDetail struct {
			Name string `json:"name"`
		} `json:"batch_detail"`
	} `json:"data"`
}

// Extract walks every class topic of the batch, resolving each lesson
// to its Brightcove or YouTube link, then appends the notes topics.
func (e *CareerWillExtractor) Extract(ctx context.Context, sess *types.Session, course types.Course, opts interfaces.ExtractOptions) (*manifest.Manifest, error) {
	headers := e.headers(sess.Token)

	var topics cwTopicList
	if err := e.withRetry(ctx, func() error {
		return e.client.GetJSON(ctx, careerWillAPI+"/batch-topic/"+course.ID+"?type=class", headers, &topics)
	}); err != nil {
		return nil, fmt.Errorf("careerwill batch-topic: %w", err)
	}

	name := topics.Data.BatchDetail.Name
	if name == "" {
		name = course.Name
	}
	m := manifest.New(name)
	grow(opts, len(topics.Data.BatchTopic))

	parts := make([]*manifest.Manifest, len(topics.Data.BatchTopic))
	err := forEachLimit(ctx, len(topics.Data.BatchTopic), workers(opts), func(ctx context.Context, i int) error {
		t := topics.Data.BatchTopic[i]
		parts[i] = e.topicManifest(ctx, sess.Token, course.ID, fmt.Sprint(t.ID), t.TopicName)
		step(opts)
		return nil
	})
	if err != nil {
		return nil, err
	}
	for _, part := range parts {
		m.Append(part)
	}

	e.collectNotes(ctx, sess.Token, course.ID, m)
	return m, nil
}

func (e *CareerWillExtractor) topicManifest(ctx context.Context, token, batchID, topicID, topicName string) *manifest.Manifest {
	part := manifest.New(topicName)
	headers := e.headers(token)

	var detail struct {
		Data struct {
			ClassList struct {
				Classes []struct {
					ID         int64  `json:"id"`
					LessonName string `json:"lessonName"`
					LessonExt  string `json:"lessonExt"`
				} `json:"classes"`
			} `json:"class_list"`
		} `json:"data"`
	}
	if err := e.client.GetJSON(ctx, careerWillAPI+"/batch-detail/"+batchID+"?topicId="+topicID, headers, &detail); err != nil {
		e.log.WithError(err).Warn("topic skipped", "topic", topicName)
		return part
	}

	// Classes arrive newest first; reverse into course order.
	classes := detail.Data.ClassList.Classes
	for i := len(classes) - 1; i >= 0; i-- {
		c := classes[i]
		if ctx.Err() != nil {
			return part
		}
		if c.LessonExt != "brightcove" && c.LessonExt != "youtube" {
			continue
		}

		var lesson struct {
			Data struct {
				ClassDetail struct {
					LessonURL string `json:"lessonUrl"`
				} `json:"class_detail"`
			} `json:"data"`
		}
		if err := e.client.GetJSON(ctx, fmt.Sprintf("%s/class-detail/%d", careerWillAPI, c.ID), headers, &lesson); err != nil {
			e.log.WithError(err).Warn("lesson skipped", "lesson", c.LessonName)
			continue
		}
		lessonURL := lesson.Data.ClassDetail.LessonURL
		if lessonURL == "" {
			continue
		}

		switch c.LessonExt {
		case "brightcove":
			part.Add(c.LessonName, brightcovePlayback+lessonURL+"/master.m3u8?bcov_auth="+token)
		case "youtube":
			part.Add(c.LessonName, "https://www.youtube.com/embed/"+lessonURL)
		}
	}
	return part
}

// collectNotes appends every notes topic of the batch. Duplicate
// documents across topics collapse through the manifest's URL dedupe.
func (e *CareerWillExtractor) collectNotes(ctx context.Context, token, batchID string, m *manifest.Manifest) {
	headers := e.headers(token)

	var topics cwTopicList
	if err := e.client.GetJSON(ctx, careerWillAPI+"/batch-topic/"+batchID+"?type=notes", headers, &topics); err != nil {
		e.log.WithError(err).Warn("notes topics skipped", "batch", batchID)
		return
	}

	for _, t := range topics.Data.BatchTopic {
		if ctx.Err() != nil {
			return
		}
		var notes struct {
			Data struct {
				NotesDetails []struct {
					DocTitle string `json:"docTitle"`
					DocURL   string `json:"docUrl"`
				} `json:"notesDetails"`
			} `json:"data"`
		}
		if err := e.client.GetJSON(ctx, fmt.Sprintf("%s/batch-notes/%s?topicId=%d", careerWillAPI, batchID, t.ID), headers, &notes); err != nil {
			e.log.WithError(err).Warn("notes topic skipped", "topic", t.TopicName)
			continue
		}
		details := notes.Data.NotesDetails
		for i := len(details) - 1; i >= 0; i-- {
			n := details[i]
			if n.DocURL == "" {
				continue
			}
			m.Add(n.DocTitle, strings.ReplaceAll(n.DocURL, " ", "%20"))
		}
	}
}

var _ interfaces.Extractor = (*CareerWillExtractor)(nil)
