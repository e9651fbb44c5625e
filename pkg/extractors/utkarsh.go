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

const (
	utkarshBase = "https://online.utkarsh.com"

	// utkarshPlainS3 rebuilds truncated video IDs into their plain MP4
	// location.
	utkarshPlainS3 = "https://apps-s3-jw-prod.utkarshapp.com/admin_v1/file_library/videos/enc_plain_mp4/%s/plain/720x1280.mp4"
)

// UtkarshExtractor handles the Utkarsh tile API, whose request and
// response payloads are AES-encrypted.
type UtkarshExtractor struct {
	*BaseExtractor
	log *logging.Logger
}

// NewUtkarshExtractor creates a new Utkarsh extractor.
func NewUtkarshExtractor(client *httpclient.Client, log *logging.Logger) *UtkarshExtractor {
	return &UtkarshExtractor{
		BaseExtractor: NewBaseExtractor(client, log),
		log:           log.WithComponent("utkarsh-extractor"),
	}
}

// Name returns the extractor name.
func (e *UtkarshExtractor) Name() string {
	return "utkarsh"
}

// CanHandle returns true for the Utkarsh keyword or hosts.
func (e *UtkarshExtractor) CanHandle(target string) bool {
	lower := strings.ToLower(target)
	return strings.Contains(lower, "utkarsh")
}

func (e *UtkarshExtractor) headers(csrf string) map[string]string {
	return map[string]string{
		"accept":           "application/json, text/javascript, */*; q=0.01",
		"x-requested-with": "XMLHttpRequest",
		"User-Agent":       browserUA,
		"origin":           utkarshBase,
		"Cookie":           "csrf_name=" + csrf + "; ci_session=tb0uld02neaa4ujs1g4idb6l8bmql8jh",
	}
}

// call posts a form and unwraps the mangled, encrypted response
// envelope into out.
func (e *UtkarshExtractor) call(ctx context.Context, path string, csrf string, form url.Values, out any) error {
	var env struct {
		Response string `json:"response"`
	}
	if err := e.client.PostForm(ctx, utkarshBase+path, e.headers(csrf), form, &env); err != nil {
		return err
	}
	plain := cipher.DecryptUtkarsh(cipher.NormalizeUtkarshPayload(env.Response))
	if plain == "" {
		return fmt.Errorf("utkarsh: undecryptable response from %s", path)
	}
	return json.Unmarshal([]byte(plain), out)
}

// Login fetches a csrf token and posts the login form. The identifier
// is the registered mobile number.
func (e *UtkarshExtractor) Login(ctx context.Context, creds types.Credentials) (*types.Session, error) {
	var state struct {
		Token string `json:"token"`
	}
	if err := e.withRetry(ctx, func() error {
		return e.client.GetJSON(ctx, utkarshBase+"/web/home/get_states", nil, &state)
	}); err != nil {
		return nil, fmt.Errorf("utkarsh get_states: %w", err)
	}
	if state.Token == "" {
		return nil, fmt.Errorf("utkarsh: no csrf token")
	}

	form := url.Values{
		"csrf_name":    {state.Token},
		"mobile":       {creds.Identifier},
		"url":          {"0"},
		"password":     {creds.Password},
		"submit":       {"LogIn"},
		"device_token": {"null"},
	}
	var resp struct {
		Status  bool   `json:"status"`
		Message string `json:"message"`
	}
	if err := e.call(ctx, "/web/Auth/login", state.Token, form, &resp); err != nil {
		return nil, fmt.Errorf("utkarsh login: %w", err)
	}
	if !resp.Status {
		return nil, fmt.Errorf("utkarsh login failed: %s", resp.Message)
	}

	return &types.Session{Platform: e.Name(), Token: state.Token}, nil
}

type utkTile struct {
	ID    flexID `json:"id"`
	Title string `json:"title"`
}

// Courses lists the account's purchased batches.
func (e *UtkarshExtractor) Courses(ctx context.Context, sess *types.Session) ([]types.Course, error) {
	form := url.Values{
		"type":      {"Batch"},
		"csrf_name": {sess.Token},
		"sort":      {"0"},
	}
	var resp struct {
		Data []utkTile `json:"data"`
	}
	if err := e.call(ctx, "/web/Profile/my_course", sess.Token, form, &resp); err != nil {
		return nil, fmt.Errorf("utkarsh my_course: %w", err)
	}

	out := make([]types.Course, 0, len(resp.Data))
	for _, c := range resp.Data {
		out = append(out, types.Course{ID: c.ID.String(), Name: c.Title})
	}
	return out, nil
}

// tiles posts an encrypted tile_input payload and returns the listed tiles.
func (e *UtkarshExtractor) tiles(ctx context.Context, csrf, tileInput string) ([]utkTile, error) {
	enc := cipher.EncryptUtkarsh(tileInput)
	if enc == "" {
		return nil, fmt.Errorf("utkarsh: tile payload encryption failed")
	}
	form := url.Values{
		"tile_input": {enc},
		"csrf_name":  {csrf},
	}

	// Layer responses nest the tiles under data or data.list depending
	// on depth; try both shapes.
	var nested struct {
		Data struct {
			List []utkTile `json:"list"`
		} `json:"data"`
	}
	var flat struct {
		Data []utkTile `json:"data"`
	}
	var raw struct {
		Data json.RawMessage `json:"data"`
	}
	if err := e.call(ctx, "/web/Course/tiles_data", csrf, form, &raw); err != nil {
		return nil, err
	}
	if len(raw.Data) == 0 {
		return nil, nil
	}
	if err := json.Unmarshal(raw.Data, &flat.Data); err == nil {
		return flat.Data, nil
	}
	if err := json.Unmarshal(raw.Data, &nested.Data); err == nil {
		return nested.Data.List, nil
	}
	return nil, nil
}

type utkLeaf struct {
	Title       string `json:"title"`
	FileURL     string `json:"file_url"`
	BitrateURLs []struct {
		Title string `json:"title"`
		Name  string `json:"name"`
		URL   string `json:"url"`
		Link  string `json:"link"`
	} `json:"bitrate_urls"`
}

// Extract walks batch -> subject -> topic -> leaves. The deepest layer
// uses the base64-only endpoint; the upper layers are encrypted.
func (e *UtkarshExtractor) Extract(ctx context.Context, sess *types.Session, course types.Course, opts interfaces.ExtractOptions) (*manifest.Manifest, error) {
	subjects, err := e.tiles(ctx, sess.Token, fmt.Sprintf(
		`{"course_id": %s,"revert_api":"1#0#0#1","parent_id":0,"tile_id":"0","layer":1,"type":"course_combo"}`,
		course.ID))
	if err != nil {
		return nil, fmt.Errorf("utkarsh subjects: %w", err)
	}

	m := manifest.New(course.Name)
	results := make([]*manifest.Manifest, len(subjects))
	err = forEachLimit(ctx, len(subjects), workers(opts), func(ctx context.Context, i int) error {
		results[i] = e.subjectManifest(ctx, sess.Token, course.ID, subjects[i], opts)
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

func (e *UtkarshExtractor) subjectManifest(ctx context.Context, csrf, batchID string, subject utkTile, opts interfaces.ExtractOptions) *manifest.Manifest {
	part := manifest.New(subject.Title)

	topics, err := e.tiles(ctx, csrf, fmt.Sprintf(
		`{"course_id":%s,"layer":1,"page":1,"parent_id":%s,"revert_api":"1#0#0#1","tile_id":"0","type":"content"}`,
		subject.ID, batchID))
	if err != nil {
		e.log.WithError(err).Warn("subject skipped", "subject", subject.Title)
		return part
	}

	for _, topic := range topics {
		if ctx.Err() != nil {
			return part
		}
		subtopics, err := e.tiles(ctx, csrf, fmt.Sprintf(
			`{"course_id":%s,"layer":1,"page":1,"parent_id":%s,"revert_api":"1#0#0#1","tile_id":"0","type":"content"}`,
			topic.ID, batchID))
		if err != nil {
			e.log.WithError(err).Warn("topic skipped", "topic", topic.Title)
			continue
		}

		grow(opts, len(subtopics))
		for _, st := range subtopics {
			e.collectLeaves(ctx, csrf, subject.ID.String(), batchID, topic.ID.String(), st.ID.String(), part)
			step(opts)
		}
	}
	return part
}

// collectLeaves fetches the deepest layer for one subtopic and emits
// its video links.
func (e *UtkarshExtractor) collectLeaves(ctx context.Context, csrf, subjectID, batchID, topicID, subtopicID string, m *manifest.Manifest) {
	payload := fmt.Sprintf(
		`{"course_id":%s,"parent_id":%s,"layer":3,"page":1,"revert_api":"1#0#0#1","subject_id":%s,"tile_id":0,"topic_id":%s,"type":"content"}`,
		subjectID, batchID, topicID, subtopicID)
	form := url.Values{
		"layer_two_input_data": {base64.StdEncoding.EncodeToString([]byte(payload))},
		"content":              {"content"},
		"csrf_name":            {csrf},
	}

	var resp struct {
		Data struct {
			List []utkLeaf `json:"list"`
		} `json:"data"`
	}
	if err := e.call(ctx, "/web/Course/get_layer_two_data", csrf, form, &resp); err != nil {
		e.log.WithError(err).Warn("subtopic skipped", "subtopic", subtopicID)
		return
	}

	for _, leaf := range resp.Data.List {
		title := strings.NewReplacer("||", "-", ":", "-").Replace(leaf.Title)
		if u := resolveUtkarshLeaf(leaf); u != "" {
			m.Add(title, u)
		}
	}
}

// resolveUtkarshLeaf picks the playable URL for one leaf: the 720p
// bitrate when offered, the plain MP4 variant of the 720x1280 rendition,
// then the raw file URL. Stub IDs rebuild into the S3 location and
// bare IDs become YouTube links.
func resolveUtkarshLeaf(leaf utkLeaf) string {
	var u string
	for _, b := range leaf.BitrateURLs {
		if b.Title == "720p" {
			u = b.URL
			break
		}
		if b.Name == "720x1280.mp4" {
			u = strings.ReplaceAll(b.Link+".mp4", "/enc/", "/plain/")
		}
	}
	if u == "" {
		u = leaf.FileURL
	}
	if u == "" || strings.HasSuffix(u, ".ws") {
		return ""
	}

	if strings.HasSuffix(u, "_0_0") || strings.HasSuffix(u, "_0") {
		return fmt.Sprintf(utkarshPlainS3, strings.SplitN(u, "_", 2)[0])
	}
	if !strings.HasPrefix(u, "http://") && !strings.HasPrefix(u, "https://") {
		return "https://youtu.be/" + u
	}
	return u
}

var _ interfaces.Extractor = (*UtkarshExtractor)(nil)
