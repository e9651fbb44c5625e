package extractors

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/nat-king-15/Master-Extractor-Bot/pkg/cipher"
	"github.com/nat-king-15/Master-Extractor-Bot/pkg/httpclient"
	"github.com/nat-king-15/Master-Extractor-Bot/pkg/interfaces"
	"github.com/nat-king-15/Master-Extractor-Bot/pkg/logging"
	"github.com/nat-king-15/Master-Extractor-Bot/pkg/manifest"
	"github.com/nat-king-15/Master-Extractor-Bot/pkg/types"
)

// pdfSentinelKey marks PDFs that are flagged encrypted but shipped plain.
const pdfSentinelKey = "abcdefg"

// AppxExtractor handles the APPX white-label platform family. Hundreds
// of branded apps share one API surface; the concrete host comes from
// the credentials or the stored API directory.
type AppxExtractor struct {
	*BaseExtractor
	log   *logging.Logger
	store interfaces.Store
}

// NewAppxExtractor creates a new APPX extractor. The store is optional
// and only used to resolve app names to API hosts.
func NewAppxExtractor(client *httpclient.Client, log *logging.Logger, store interfaces.Store) *AppxExtractor {
	return &AppxExtractor{
		BaseExtractor: NewBaseExtractor(client, log),
		log:           log.WithComponent("appx-extractor"),
		store:         store,
	}
}

// Name returns the extractor name.
func (e *AppxExtractor) Name() string {
	return "appx"
}

// CanHandle returns true for the appx keyword or a known app name.
func (e *AppxExtractor) CanHandle(target string) bool {
	lower := strings.ToLower(target)
	if strings.Contains(lower, "appx") {
		return true
	}
	if e.store != nil {
		if _, err := e.store.GetAppxAPI(context.Background(), target); err == nil {
			return true
		}
	}
	return false
}

func (e *AppxExtractor) resolveHost(ctx context.Context, creds types.Credentials) (string, error) {
	host := strings.TrimSuffix(creds.Host, "/")
	if host == "" && e.store != nil && creds.Identifier != "" {
		if api, err := e.store.GetAppxAPI(ctx, creds.Identifier); err == nil {
			host = strings.TrimSuffix(api, "/")
		}
	}
	if host == "" {
		return "", fmt.Errorf("appx: no API host for target")
	}
	if !strings.HasPrefix(host, "http") {
		host = "https://" + host
	}
	return host, nil
}

func (e *AppxExtractor) authHeaders(sess *types.Session) map[string]string {
	h := map[string]string{
		"Client-Service": "Appx",
		"Auth-Key":       "appxapi",
		"source":         "website",
		"User-Agent":     "okhttp/4.9.1",
	}
	if sess.Token != "" {
		h["Authorization"] = sess.Token
	}
	if sess.UserID != "" {
		h["User-ID"] = sess.UserID
	}
	return h
}

// Login authenticates against the app's userLogin endpoint. Apps that
// answer 203 require the website login variant with a source field.
func (e *AppxExtractor) Login(ctx context.Context, creds types.Credentials) (*types.Session, error) {
	host, err := e.resolveHost(ctx, creds)
	if err != nil {
		return nil, err
	}

	if creds.Token != "" {
		return &types.Session{
			Platform: e.Name(),
			Host:     host,
			Token:    creds.Token,
			UserID:   creds.UserID,
		}, nil
	}

	headers := map[string]string{
		"Client-Service": "Appx",
		"Auth-Key":       "appxapi",
		"User-Id":        "-2",
		"User-Agent":     "okhttp/4.9.1",
	}
	form := url.Values{
		"email":    {creds.Identifier},
		"password": {creds.Password},
	}

	var resp struct {
		Status int `json:"status"`
		Data   struct {
			Token  string      `json:"token"`
			UserID json.Number `json:"userid"`
		} `json:"data"`
	}
	if err := e.client.PostForm(ctx, host+"/post/userLogin", headers, form, &resp); err != nil {
		return nil, fmt.Errorf("appx login: %w", err)
	}

	if resp.Status == 203 {
		// App refuses API logins; retry as a website client.
		headers["source"] = "website"
		form.Set("source", "website")
		resp.Data.Token = ""
		if err := e.client.PostForm(ctx, host+"/post/userLogin", headers, form, &resp); err != nil {
			return nil, fmt.Errorf("appx website login: %w", err)
		}
	}
	if resp.Data.Token == "" {
		return nil, fmt.Errorf("appx login: no token in response (status %d)", resp.Status)
	}

	return &types.Session{
		Platform: e.Name(),
		Host:     host,
		Token:    resp.Data.Token,
		UserID:   resp.Data.UserID.String(),
	}, nil
}

type appxCourse struct {
	ID         json.Number `json:"id"`
	CourseName string      `json:"course_name"`
	FolderWise json.Number `json:"folder_wise_course"`
}

// Courses lists purchased courses, falling back to the public catalog
// when the account owns nothing.
func (e *AppxExtractor) Courses(ctx context.Context, sess *types.Session) ([]types.Course, error) {
	headers := e.authHeaders(sess)

	var purchased struct {
		Data []appxCourse `json:"data"`
	}
	if err := e.client.GetJSON(ctx, sess.Host+"/get/mycoursev2?userid="+url.QueryEscape(sess.UserID), headers, &purchased); err != nil {
		return nil, fmt.Errorf("appx purchased courses: %w", err)
	}
	if len(purchased.Data) > 0 {
		return appxCourses(purchased.Data), nil
	}

	var all []appxCourse
	for _, path := range []string{"/get/courselist", "/get/courselistnewv2"} {
		var catalog struct {
			Data []appxCourse `json:"data"`
		}
		if err := e.client.GetJSON(ctx, sess.Host+path+"?start=0", headers, &catalog); err != nil {
			e.log.WithError(err).Warn("catalog listing failed", "path", path)
			continue
		}
		all = append(all, catalog.Data...)
	}
	return appxCourses(all), nil
}

func appxCourses(in []appxCourse) []types.Course {
	out := make([]types.Course, 0, len(in))
	for _, c := range in {
		out = append(out, types.Course{
			ID:   c.ID.String(),
			Name: c.CourseName,
			Extra: map[string]string{
				"folder_wise": c.FolderWise.String(),
			},
		})
	}
	return out
}

type appxItem struct {
	ID              json.Number `json:"id"`
	Title           string      `json:"Title"`
	MaterialType    string      `json:"material_type"`
	VideoID         string      `json:"video_id"`
	DownloadLink    string      `json:"download_link"`
	PDFLink         string      `json:"pdf_link"`
	PDFLink2        string      `json:"pdf_link2"`
	IsPDFEncrypted  any         `json:"is_pdf_encrypted"`
	PDFKey          string      `json:"pdf_encryption_key"`
	IsPDF2Encrypted any         `json:"is_pdf2_encrypted"`
	PDFKey2         string      `json:"pdf2_encryption_key"`
	Thumbnail       string      `json:"thumbnail"`
	EncryptedLinks  []struct {
		Path string `json:"path"`
		Key  string `json:"key"`
	} `json:"encrypted_links"`
}

// Extract walks one course. The folder_wise flag picks the hierarchy
// style; when it is unknown both walks run and their results merge.
func (e *AppxExtractor) Extract(ctx context.Context, sess *types.Session, course types.Course, opts interfaces.ExtractOptions) (*manifest.Manifest, error) {
	m := manifest.New(course.Name)

	mode, err := ask(ctx, opts, "Folder-wise course? (0/1)", course.Extra["folder_wise"])
	if err != nil {
		return nil, err
	}

	switch mode {
	case "1":
		err = e.walkFolder(ctx, sess, course, "-1", m, opts)
	case "0":
		err = e.walkSubjects(ctx, sess, course, m, opts)
	default:
		// Unknown flag: run both walks and concatenate.
		if err = e.walkSubjects(ctx, sess, course, m, opts); err != nil {
			return nil, err
		}
		err = e.walkFolder(ctx, sess, course, "-1", m, opts)
	}
	if err != nil {
		return nil, err
	}
	return m, nil
}

// walkSubjects traverses subject -> topic -> lecture for classic courses.
func (e *AppxExtractor) walkSubjects(ctx context.Context, sess *types.Session, course types.Course, m *manifest.Manifest, opts interfaces.ExtractOptions) error {
	headers := e.authHeaders(sess)

	var subjects struct {
		Data []struct {
			SubjectID   json.Number `json:"subjectid"`
			SubjectName string      `json:"subject_name"`
		} `json:"data"`
	}
	subjectURL := fmt.Sprintf("%s/get/allsubjectfrmlivecourseclass?courseid=%s&start=-1", sess.Host, course.ID)
	if err := e.withRetry(ctx, func() error {
		return e.client.GetJSON(ctx, subjectURL, headers, &subjects)
	}); err != nil {
		return fmt.Errorf("appx subjects: %w", err)
	}

	type topicRef struct {
		subjectID, subjectName string
		topicID, topicName     string
	}
	var topics []topicRef
	for _, s := range subjects.Data {
		var resp struct {
			Data []struct {
				TopicID   json.Number `json:"topicid"`
				TopicName string      `json:"topic_name"`
			} `json:"data"`
		}
		topicURL := fmt.Sprintf("%s/get/alltopicfrmlivecourseclass?courseid=%s&subjectid=%s&start=-1",
			sess.Host, course.ID, s.SubjectID)
		if err := e.withRetry(ctx, func() error {
			return e.client.GetJSON(ctx, topicURL, headers, &resp)
		}); err != nil {
			e.log.WithError(err).Warn("subject skipped", "subject", s.SubjectName)
			continue
		}
		for _, t := range resp.Data {
			topics = append(topics, topicRef{
				subjectID: s.SubjectID.String(), subjectName: s.SubjectName,
				topicID: t.TopicID.String(), topicName: t.TopicName,
			})
		}
	}

	results := make([]*manifest.Manifest, len(topics))
	err := forEachLimit(ctx, len(topics), workers(opts), func(ctx context.Context, i int) error {
		t := topics[i]
		var resp struct {
			Data []appxItem `json:"data"`
		}
		leafURL := fmt.Sprintf("%s/get/livecourseclassbycoursesubtopconceptapiv3?courseid=%s&subjectid=%s&topicid=%s&conceptid=&start=-1",
			sess.Host, course.ID, t.subjectID, t.topicID)
		if err := e.withRetry(ctx, func() error {
			return e.client.GetJSON(ctx, leafURL, headers, &resp)
		}); err != nil {
			e.log.WithError(err).Warn("topic skipped", "topic", t.topicName)
			return nil
		}

		grow(opts, len(resp.Data))
		part := manifest.New(course.Name)
		for _, item := range resp.Data {
			e.resolveItem(ctx, sess, course, item, "0", part)
			step(opts)
		}
		results[i] = part
		return nil
	})
	if err != nil {
		return err
	}
	for _, part := range results {
		m.Append(part)
	}
	return nil
}

// walkFolder traverses folder-wise courses from the given parent node.
func (e *AppxExtractor) walkFolder(ctx context.Context, sess *types.Session, course types.Course, parentID string, m *manifest.Manifest, opts interfaces.ExtractOptions) error {
	headers := e.authHeaders(sess)

	var resp struct {
		Data []appxItem `json:"data"`
	}
	folderURL := fmt.Sprintf("%s/get/folder_contentsv2?course_id=%s&parent_id=%s", sess.Host, course.ID, parentID)
	if err := e.withRetry(ctx, func() error {
		return e.client.GetJSON(ctx, folderURL, headers, &resp)
	}); err != nil {
		// Failed subtree contributes nothing; the batch carries on.
		e.log.WithError(err).Warn("folder skipped", "parent", parentID)
		return nil
	}

	grow(opts, len(resp.Data))
	for _, item := range resp.Data {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if strings.EqualFold(item.MaterialType, "FOLDER") {
			if err := e.walkFolder(ctx, sess, course, item.ID.String(), m, opts); err != nil {
				return err
			}
		} else {
			e.resolveItem(ctx, sess, course, item, "1", m)
		}
		step(opts)
	}
	return nil
}

// resolveItem turns one content item into manifest entries. Decryption
// failures read as empty fields, so resolution simply moves down the
// fallback chain.
func (e *AppxExtractor) resolveItem(ctx context.Context, sess *types.Session, course types.Course, item appxItem, folderWise string, m *manifest.Manifest) {
	switch strings.ToUpper(item.MaterialType) {
	case "TEST":
		return
	case "IMAGE":
		if item.Thumbnail != "" {
			m.Add(item.Title, item.Thumbnail)
		}
		return
	case "PDF":
		e.resolvePDF(item, m)
		return
	}

	// VIDEO, or untyped items from the subject walk. A YouTube id and a
	// direct link can both be present; both get emitted.
	emitted := false
	if id := cipher.DecryptAppx(item.VideoID); id != "" {
		m.Add(item.Title, "https://youtu.be/"+id)
		emitted = true
	}

	if dl := cipher.DecryptAppx(item.DownloadLink); dl != "" && !strings.Contains(dl, ".pdf") {
		m.Add(item.Title, dl)
		emitted = true
	} else if len(item.EncryptedLinks) > 0 {
		path := cipher.DecryptAppx(item.EncryptedLinks[0].Path)
		key := decodeLinkKey(item.EncryptedLinks[0].Key)
		if path != "" {
			if key != "" {
				m.Add(item.Title, path+"*"+key)
			} else {
				m.Add(item.Title, path)
			}
			emitted = true
		}
	}

	if !emitted {
		if u := e.mpdLink(ctx, sess, course, item, folderWise); u != "" {
			m.Add(item.Title, u)
		}
	}
	e.resolvePDF(item, m)
}

// decodeLinkKey decrypts a link key and decodes its base64 payload.
func decodeLinkKey(enc string) string {
	plain := cipher.DecryptAppx(enc)
	if plain == "" {
		return ""
	}
	raw, err := base64.StdEncoding.DecodeString(plain)
	if err != nil {
		return ""
	}
	return string(raw)
}

// resolvePDF emits the item's PDF attachments. Only links that still
// end in .pdf after decryption are kept; the sentinel key means the
// flagged file is actually plain.
func (e *AppxExtractor) resolvePDF(item appxItem, m *manifest.Manifest) {
	attachments := []struct {
		link    string
		key     string
		flagged any
	}{
		{item.PDFLink, item.PDFKey, item.IsPDFEncrypted},
		{item.PDFLink2, item.PDFKey2, item.IsPDF2Encrypted},
	}
	for _, a := range attachments {
		link := cipher.DecryptAppx(a.link)
		if link == "" || !strings.HasSuffix(strings.ToLower(link), ".pdf") {
			continue
		}
		if truthy(a.flagged) && a.key != "" {
			// The sentinel only shows after decryption.
			if key := cipher.DecryptAppx(a.key); key != "" && key != pdfSentinelKey {
				m.Add(item.Title, link+"*"+key)
				continue
			}
		}
		m.Add(item.Title, link)
	}
}

// mpdLink is the last resort for videos: ask the DRM endpoint for the
// stream path and key.
func (e *AppxExtractor) mpdLink(ctx context.Context, sess *types.Session, course types.Course, item appxItem, folderWise string) string {
	headers := e.authHeaders(sess)

	detailURL := fmt.Sprintf("%s/get/fetchVideoDetailsById?course_id=%s&folder_wise_course=%s&ytflag=0&video_id=%s",
		sess.Host, course.ID, folderWise, item.ID)
	var detail struct {
		Data appxItem `json:"data"`
	}
	if err := e.client.GetJSON(ctx, detailURL, headers, &detail); err == nil {
		if len(detail.Data.EncryptedLinks) > 0 {
			path := cipher.DecryptAppx(detail.Data.EncryptedLinks[0].Path)
			key := decodeLinkKey(detail.Data.EncryptedLinks[0].Key)
			if path != "" && key != "" {
				return path + "*" + key
			}
			if path != "" {
				return path
			}
		}
	}

	var drm struct {
		Data []struct {
			Path string `json:"path"`
			Key  string `json:"key"`
		} `json:"data"`
	}
	drmURL := fmt.Sprintf("%s/get/get_mpd_drm_links?videoid=%s", sess.Host, item.ID)
	if err := e.client.GetJSON(ctx, drmURL, headers, &drm); err != nil || len(drm.Data) == 0 {
		return ""
	}
	path := cipher.DecryptAppx(drm.Data[0].Path)
	key := decodeLinkKey(drm.Data[0].Key)
	if path == "" {
		return ""
	}
	if key != "" {
		return path + "*" + key
	}
	return path
}

// truthy interprets the platform's loosely typed boolean fields.
func truthy(v any) bool {
	switch x := v.(type) {
	case bool:
		return x
	case string:
		return x == "1" || strings.EqualFold(x, "true")
	case float64:
		return x != 0
	case json.Number:
		return x.String() != "0" && x.String() != ""
	default:
		return false
	}
}

var _ interfaces.Extractor = (*AppxExtractor)(nil)
