package extractors

import (
	"context"
	"fmt"
	"html"
	"net/url"
	"regexp"
	"strings"

	"github.com/nat-king-15/Master-Extractor-Bot/pkg/httpclient"
	"github.com/nat-king-15/Master-Extractor-Bot/pkg/interfaces"
	"github.com/nat-king-15/Master-Extractor-Bot/pkg/logging"
	"github.com/nat-king-15/Master-Extractor-Bot/pkg/manifest"
	"github.com/nat-king-15/Master-Extractor-Bot/pkg/types"
	"github.com/nat-king-15/Master-Extractor-Bot/pkg/urlutil"
)

const (
	visionBase    = "https://www.visionias.in"
	visionStudent = visionBase + "/student/pt/video_student"
)

var (
	visionCourseRe  = regexp.MustCompile(`(?s)<h4[^>]*>(.*?)</h4>.*?ldg-sectionAvailableCourses_classes[^>]*>\s*\(([^)]*)\)`)
	visionVidRe     = regexp.MustCompile(`vid=(\d+)`)
	visionSubmenuRe = regexp.MustCompile(`(?s)<ul[^>]*class="[^"]*gw-submenu[^"]*"[^>]*>(.*?)</ul>`)
	visionAnchorRe  = regexp.MustCompile(`(?s)<a[^>]+href="([^"]+)"[^>]*>(.*?)</a>`)
	visionHandoutRe = regexp.MustCompile(`(?s)<li[^>]*id="card_type".*?card-body_custom[^>]*>(.*?)</div>.*?<a[^>]+href="([^"]+)"`)
	tagRe           = regexp.MustCompile(`<[^>]+>`)
)

// stripTags flattens an HTML fragment to its trimmed text content.
func stripTags(s string) string {
	return strings.TrimSpace(html.UnescapeString(tagRe.ReplaceAllString(s, "")))
}

// VisionIASExtractor scrapes the Vision IAS student portal. The portal
// has no JSON API; courses and videos are pulled out of dashboard HTML.
type VisionIASExtractor struct {
	*BaseExtractor
	log *logging.Logger
}

// NewVisionIASExtractor creates a new Vision IAS extractor.
func NewVisionIASExtractor(client *httpclient.Client, log *logging.Logger) *VisionIASExtractor {
	return &VisionIASExtractor{
		BaseExtractor: NewBaseExtractor(client, log),
		log:           log.WithComponent("visionias-extractor"),
	}
}

// Name returns the extractor name.
func (e *VisionIASExtractor) Name() string {
	return "visionias"
}

// CanHandle returns true for the Vision IAS keyword or hosts.
func (e *VisionIASExtractor) CanHandle(target string) bool {
	lower := strings.ToLower(target)
	return strings.Contains(lower, "vision") || strings.Contains(lower, "visionias.in")
}

func (e *VisionIASExtractor) headers(cookie string) map[string]string {
	h := map[string]string{
		"User-Agent":      browserUA,
		"Accept":          "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8",
		"Accept-Language": "en-US,en;q=0.9",
	}
	if cookie != "" {
		h["Cookie"] = cookie
	}
	return h
}

// Login posts the portal login form and captures the session cookies
// into Session.Extra, so later requests can replay them as a header.
func (e *VisionIASExtractor) Login(ctx context.Context, creds types.Credentials) (*types.Session, error) {
	cs := e.client.NewCookieSession(visionBase)

	form := url.Values{
		"login":     {creds.Identifier},
		"password":  {creds.Password},
		"returnUrl": {"student"},
	}
	headers := e.headers("")
	headers["X-Requested-With"] = "XMLHttpRequest"
	headers["Origin"] = visionBase
	headers["Referer"] = visionBase + "/student/module/login.php"

	body, err := cs.PostForm(ctx, visionBase+"/student/module/login-exec2test.php", headers, form)
	if err != nil {
		return nil, fmt.Errorf("visionias login: %w", err)
	}
	if strings.Contains(string(body), "Invalid") {
		return nil, fmt.Errorf("visionias login failed: invalid credentials")
	}

	var pairs []string
	for _, c := range cs.Cookies(visionBase) {
		pairs = append(pairs, c.Name+"="+c.Value)
	}
	if len(pairs) == 0 {
		return nil, fmt.Errorf("visionias login: no session cookies issued")
	}

	return &types.Session{
		Platform: e.Name(),
		Extra:    map[string]string{"cookie": strings.Join(pairs, "; ")},
	}, nil
}

// Courses scrapes the live class dashboard for enrolled packages.
func (e *VisionIASExtractor) Courses(ctx context.Context, sess *types.Session) ([]types.Course, error) {
	var body []byte
	err := e.withRetry(ctx, func() error {
		var err error
		body, err = e.client.Get(ctx, visionStudent+"/live_class_dashboard.php", e.headers(sess.Extra["cookie"]))
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("visionias dashboard: %w", err)
	}

	var out []types.Course
	for _, match := range visionCourseRe.FindAllStringSubmatch(string(body), -1) {
		out = append(out, types.Course{
			ID:   strings.TrimSpace(match[2]),
			Name: stripTags(match[1]),
		})
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("visionias: no packages found")
	}
	return out, nil
}

// Extract scrapes the video dashboard for section ids, then walks each
// section's timeline for class links, and finally the handout page for
// PDFs.
func (e *VisionIASExtractor) Extract(ctx context.Context, sess *types.Session, course types.Course, opts interfaces.ExtractOptions) (*manifest.Manifest, error) {
	cookie := sess.Extra["cookie"]

	body, err := e.client.Get(ctx,
		visionStudent+"/video_student_dashboard.php?package_id="+url.QueryEscape(course.ID),
		e.headers(cookie))
	if err != nil {
		return nil, fmt.Errorf("visionias video dashboard: %w", err)
	}

	// Section ids repeat across the dashboard markup; keep the first
	// occurrence of each so section order is stable.
	var vids []string
	seen := map[string]struct{}{}
	for _, match := range visionVidRe.FindAllStringSubmatch(string(body), -1) {
		if _, ok := seen[match[1]]; ok {
			continue
		}
		seen[match[1]] = struct{}{}
		vids = append(vids, match[1])
	}

	m := manifest.New(course.Name)
	grow(opts, len(vids))

	results := make([]*manifest.Manifest, len(vids))
	err = forEachLimit(ctx, len(vids), workers(opts), func(ctx context.Context, i int) error {
		results[i] = e.sectionManifest(ctx, cookie, course.ID, vids[i])
		step(opts)
		return nil
	})
	if err != nil {
		return nil, err
	}
	for _, part := range results {
		m.Append(part)
	}

	e.collectHandouts(ctx, cookie, course.ID, m)
	return m, nil
}

func (e *VisionIASExtractor) sectionManifest(ctx context.Context, cookie, packageID, vid string) *manifest.Manifest {
	part := manifest.New("")

	u := fmt.Sprintf("%s/video_class_timeline_dashboard.php?vid=%s&package_id=%s",
		visionStudent, vid, url.QueryEscape(packageID))
	body, err := e.client.Get(ctx, u, e.headers(cookie))
	if err != nil {
		e.log.WithError(err).Warn("section skipped", "vid", vid)
		return part
	}

	for _, menu := range visionSubmenuRe.FindAllStringSubmatch(string(body), -1) {
		for _, a := range visionAnchorRe.FindAllStringSubmatch(menu[1], -1) {
			href := strings.TrimSpace(a[1])
			name := stripTags(a[2])
			if href == "" || name == "" {
				continue
			}
			part.Add(name, urlutil.ResolveURL(href, visionStudent+"/"))
		}
	}
	return part
}

// collectHandouts appends the package's handout PDFs. Failures are
// logged and skipped; handouts are supplementary to the class links.
func (e *VisionIASExtractor) collectHandouts(ctx context.Context, cookie, packageID string, m *manifest.Manifest) {
	body, err := e.client.Get(ctx,
		visionStudent+"/all_handout.php?package_id="+url.QueryEscape(packageID),
		e.headers(cookie))
	if err != nil {
		e.log.WithError(err).Warn("handouts skipped", "package", packageID)
		return
	}

	for _, match := range visionHandoutRe.FindAllStringSubmatch(string(body), -1) {
		title := stripTags(match[1])
		href := strings.TrimSpace(match[2])
		if title == "" || href == "" {
			continue
		}
		m.Add(title, urlutil.ResolveURL(href, visionStudent+"/"))
	}
}

var _ interfaces.Extractor = (*VisionIASExtractor)(nil)
