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
	pathshalaAuthAPI    = "https://usvc.my-pathshala.com/api"
	pathshalaContentAPI = "https://csvc.my-pathshala.com/api"

	pathshalaClientID     = "2702"
	pathshalaClientSecret = "cCZxFzu57FrejvFVvEDmytSfDVaVTjC1EA5e1E34"

	// pathshalaDocsCDN hosts assignment documents.
	pathshalaDocsCDN = "https://mps.sgp1.digitaloceanspaces.com/prod/docs/courses/"
)

// MyPathshalaExtractor handles the My Pathshala course API. The enroll
// listing already embeds every video and assignment, so extraction
// needs no further traversal.
type MyPathshalaExtractor struct {
	*BaseExtractor
	log *logging.Logger
}

// NewMyPathshalaExtractor creates a new My Pathshala extractor.
func NewMyPathshalaExtractor(client *httpclient.Client, log *logging.Logger) *MyPathshalaExtractor {
	return &MyPathshalaExtractor{
		BaseExtractor: NewBaseExtractor(client, log),
		log:           log.WithComponent("mypathshala-extractor"),
	}
}

// Name returns the extractor name.
func (e *MyPathshalaExtractor) Name() string {
	return "mypathshala"
}

// CanHandle returns true for the My Pathshala keyword or hosts.
func (e *MyPathshalaExtractor) CanHandle(target string) bool {
	lower := strings.ToLower(target)
	return strings.Contains(lower, "pathshala")
}

func (e *MyPathshalaExtractor) contentHeaders(token string) map[string]string {
	return map[string]string{
		"Authorization": "Bearer " + token,
		"ClientId":      pathshalaClientID,
		"EduStore":      "false",
		"Platform":      "android",
		"User-Agent":    "okhttp/4.8.0",
	}
}

// Login exchanges username and password for a bearer token. A
// ready-made token in Credentials.Token is used directly.
func (e *MyPathshalaExtractor) Login(ctx context.Context, creds types.Credentials) (*types.Session, error) {
	if creds.Token != "" {
		return &types.Session{Platform: e.Name(), Token: creds.Token}, nil
	}

	headers := map[string]string{
		"Host":       "usvc.my-pathshala.com",
		"Filter":     "1",
		"Clientid":   pathshalaClientID,
		"Edustore":   "false",
		"Platform":   "android",
		"User-Agent": "okhttp/4.8.0",
	}
	payload := map[string]any{
		"client_id":     2702,
		"client_secret": pathshalaClientSecret,
		"password":      creds.Password,
		"username":      creds.Identifier,
	}
	var resp struct {
		AccessToken string `json:"access_token"`
		Message     string `json:"message"`
	}
	if err := e.client.PostJSON(ctx, pathshalaAuthAPI+"/signin", headers, payload, &resp); err != nil {
		return nil, fmt.Errorf("mypathshala signin: %w", err)
	}
	if resp.AccessToken == "" {
		return nil, fmt.Errorf("mypathshala login failed: %s", resp.Message)
	}
	return &types.Session{Platform: e.Name(), Token: resp.AccessToken}, nil
}

type pathshalaCourse struct {
	Course struct {
		ID         int64  `json:"id"`
		CourseName string `json:"course_name"`
		Videos     []struct {
			Title string `json:"title"`
			Video string `json:"video"`
		} `json:"videos"`
		Assignments []struct {
			AssignmentName string `json:"assignment_name"`
			Document       string `json:"document"`
		} `json:"assignments"`
	} `json:"course"`
}

// enrollments pages through the enroll listing until a short page.
func (e *MyPathshalaExtractor) enrollments(ctx context.Context, token string) ([]pathshalaCourse, error) {
	const perPage = 10
	var all []pathshalaCourse
	for page := 1; ; page++ {
		var resp struct {
			Response struct {
				Data []pathshalaCourse `json:"data"`
			} `json:"response"`
		}
		u := fmt.Sprintf("%s/enroll/course?page=%d&perPageCount=%d", pathshalaContentAPI, page, perPage)
		if err := e.withRetry(ctx, func() error {
			return e.client.GetJSON(ctx, u, e.contentHeaders(token), &resp)
		}); err != nil {
			return nil, err
		}
		all = append(all, resp.Response.Data...)
		if len(resp.Response.Data) < perPage {
			return all, nil
		}
	}
}

// Courses lists the enrolled courses.
func (e *MyPathshalaExtractor) Courses(ctx context.Context, sess *types.Session) ([]types.Course, error) {
	enrolled, err := e.enrollments(ctx, sess.Token)
	if err != nil {
		return nil, fmt.Errorf("mypathshala enrollments: %w", err)
	}

	out := make([]types.Course, 0, len(enrolled))
	for _, c := range enrolled {
		out = append(out, types.Course{ID: fmt.Sprint(c.Course.ID), Name: c.Course.CourseName})
	}
	return out, nil
}

// Extract emits the course's embedded videos as YouTube links and its
// assignments as document CDN links.
func (e *MyPathshalaExtractor) Extract(ctx context.Context, sess *types.Session, course types.Course, opts interfaces.ExtractOptions) (*manifest.Manifest, error) {
	enrolled, err := e.enrollments(ctx, sess.Token)
	if err != nil {
		return nil, fmt.Errorf("mypathshala enrollments: %w", err)
	}

	for _, c := range enrolled {
		if fmt.Sprint(c.Course.ID) != course.ID {
			continue
		}

		m := manifest.New(c.Course.CourseName)
		grow(opts, len(c.Course.Videos)+len(c.Course.Assignments))
		for _, v := range c.Course.Videos {
			m.Add(v.Title, "https://www.youtube.com/watch?v="+v.Video)
			step(opts)
		}
		for _, a := range c.Course.Assignments {
			m.Add(a.AssignmentName, pathshalaDocsCDN+a.Document)
			step(opts)
		}
		return m, nil
	}
	return nil, fmt.Errorf("mypathshala: course %s not found in enrollments", course.ID)
}

var _ interfaces.Extractor = (*MyPathshalaExtractor)(nil)
