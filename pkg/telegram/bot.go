package telegram

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/nat-king-15/Master-Extractor-Bot/pkg/config"
	"github.com/nat-king-15/Master-Extractor-Bot/pkg/extractors"
	"github.com/nat-king-15/Master-Extractor-Bot/pkg/interfaces"
	"github.com/nat-king-15/Master-Extractor-Bot/pkg/logging"
	"github.com/nat-king-15/Master-Extractor-Bot/pkg/manifest"
	"github.com/nat-king-15/Master-Extractor-Bot/pkg/publisher"
	"github.com/nat-king-15/Master-Extractor-Bot/pkg/registry"
	"github.com/nat-king-15/Master-Extractor-Bot/pkg/session"
	"github.com/nat-king-15/Master-Extractor-Bot/pkg/types"
)

const pollTimeoutSec = 30

// Bot runs the command loop. It is also the progress and input
// boundary for interactive runs: progress edits a pinned status
// message, prompts wait on the user's next plain message.
type Bot struct {
	cfg   *config.Config
	api   *API
	log   *logging.Logger
	store interfaces.Store
	reg   *registry.ExtractorRegistry
	runs  *session.Manager
	pub   *publisher.Publisher

	mu      sync.Mutex
	pending map[int64]chan string
}

// New wires the bot against its collaborators.
func New(cfg *config.Config, api *API, store interfaces.Store, reg *registry.ExtractorRegistry, runs *session.Manager, pub *publisher.Publisher, log *logging.Logger) *Bot {
	return &Bot{
		cfg:     cfg,
		api:     api,
		log:     log.WithComponent("bot"),
		store:   store,
		reg:     reg,
		runs:    runs,
		pub:     pub,
		pending: make(map[int64]chan string),
	}
}

// Run long-polls for updates until the context is cancelled.
func (b *Bot) Run(ctx context.Context) error {
	b.log.Info("bot loop started")
	var offset int64
	for {
		updates, next, err := b.api.GetUpdates(ctx, offset, pollTimeoutSec)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			b.log.WithError(err).Warn("getUpdates failed, retrying")
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(3 * time.Second):
			}
			continue
		}
		offset = next
		for _, u := range updates {
			b.dispatch(ctx, u)
		}
	}
}

func (b *Bot) dispatch(ctx context.Context, u types.Update) {
	if !strings.HasPrefix(u.Text, "/") {
		if b.deliverAnswer(u.UserID, u.Text) {
			return
		}
		return
	}

	fields := strings.Fields(u.Text)
	cmd := strings.ToLower(fields[0])
	// Group chats address commands as /cmd@BotName.
	if i := strings.Index(cmd, "@"); i >= 0 {
		cmd = cmd[:i]
	}
	args := fields[1:]

	switch cmd {
	case "/start":
		b.handleStart(ctx, u)
	case "/extract":
		b.handleExtract(ctx, u, args)
	case "/cancel":
		b.handleCancel(ctx, u)
	case "/backup":
		b.handleBackup(ctx, u)
	case "/restore":
		b.handleRestore(ctx, u, args)
	case "/addpremium":
		b.handleAddPremium(ctx, u, args)
	case "/addapi":
		b.handleAddAPI(ctx, u, args)
	case "/stats":
		b.handleStats(ctx, u)
	default:
		b.reply(ctx, u.ChatID, "Unknown command. Try /start.")
	}
}

func (b *Bot) reply(ctx context.Context, chatID int64, text string) {
	if _, err := b.api.SendMessage(ctx, chatID, text); err != nil {
		b.log.WithError(err).Warn("send failed", "chat_id", chatID)
	}
}

// deliverAnswer routes a plain message to a pending prompt, if any.
func (b *Bot) deliverAnswer(userID int64, text string) bool {
	b.mu.Lock()
	ch, ok := b.pending[userID]
	b.mu.Unlock()
	if !ok {
		return false
	}
	select {
	case ch <- text:
	default:
	}
	return true
}

func (b *Bot) handleStart(ctx context.Context, u types.Update) {
	if err := b.store.AddSubscriber(ctx, u.UserID); err != nil {
		b.log.WithError(err).WithUser(u.UserID).Warn("subscriber add failed")
	}
	lines := []string{
		b.cfg.BotText,
		"",
		"/extract <platform> - start an extraction",
		"/backup - list your saved manifests",
		"/restore <name> - resend a saved manifest",
		"/cancel - stop a running extraction",
	}
	if b.cfg.ChannelURL != "" {
		lines = append(lines, "", "Updates: "+b.cfg.ChannelURL)
	}
	b.reply(ctx, u.ChatID, strings.Join(lines, "\n"))
}

func (b *Bot) allowed(ctx context.Context, userID int64) bool {
	if b.cfg.IsAdmin(userID) {
		return true
	}
	ok, err := b.store.IsPremium(ctx, userID)
	if err != nil {
		b.log.WithError(err).WithUser(userID).Warn("premium check failed")
		return false
	}
	return ok
}

func (b *Bot) handleExtract(ctx context.Context, u types.Update, args []string) {
	if !b.allowed(ctx, u.UserID) {
		b.reply(ctx, u.ChatID, "This command needs a premium subscription. Contact the owner.")
		return
	}
	if len(args) == 0 {
		names := make([]string, 0)
		for _, e := range b.reg.All() {
			names = append(names, e.Name())
		}
		sort.Strings(names)
		b.reply(ctx, u.ChatID, "Usage: /extract <platform>\nPlatforms: "+strings.Join(names, ", "))
		return
	}
	target := args[0]

	sink := &progressSink{api: b.api, log: b.log, chatID: u.ChatID}
	tracker := session.NewTracker(sink, b.cfg.ProgressInterval)
	input := session.TimeoutInput{
		Inner:   &chatInput{bot: b, chatID: u.ChatID, userID: u.UserID},
		Timeout: b.cfg.InputTimeout,
	}

	run, err := b.runs.Start(ctx, u.UserID, tracker, input)
	if err != nil {
		if errors.Is(err, session.ErrRunActive) {
			b.reply(ctx, u.ChatID, "You already have an extraction running. Use /cancel first.")
			return
		}
		b.reply(ctx, u.ChatID, "Could not start: "+err.Error())
		return
	}

	// The poll loop must keep consuming updates so prompts can be
	// answered; the run gets its own goroutine.
	go func() {
		defer b.runs.Finish(run)
		b.runExtraction(run, u, target, sink)
	}()
}

func (b *Bot) runExtraction(run *session.Run, u types.Update, target string, sink *progressSink) {
	ctx := run.Ctx
	log := b.log.WithRun(run.ID).WithUser(u.UserID).WithPlatform(target)

	ext := b.reg.Get(target)
	if ext == nil {
		b.reply(ctx, u.ChatID, "No extractor recognizes "+target+".")
		return
	}
	log.Info("extraction started", "extractor", ext.Name())

	sess, err := b.login(ctx, run, u, ext, target)
	if err != nil {
		if ctx.Err() == nil {
			b.reply(ctx, u.ChatID, "Login failed: "+err.Error())
		}
		log.WithError(err).Warn("login failed")
		return
	}

	courses, err := ext.Courses(ctx, sess)
	if err != nil {
		b.reply(ctx, u.ChatID, "Could not list courses: "+err.Error())
		return
	}
	if len(courses) == 0 {
		b.reply(ctx, u.ChatID, "No purchased courses found on this account.")
		return
	}

	var list strings.Builder
	list.WriteString("Your courses:\n")
	for i, c := range courses {
		fmt.Fprintf(&list, "%d. %s\n", i+1, c.Name)
	}
	b.reply(ctx, u.ChatID, list.String())

	answer, err := run.Input.Ask(ctx, "Reply with the course number to extract", "1")
	if err != nil {
		return
	}
	idx, err := strconv.Atoi(strings.TrimSpace(answer))
	if err != nil || idx < 1 || idx > len(courses) {
		b.reply(ctx, u.ChatID, "Not a valid course number.")
		return
	}
	course := courses[idx-1]

	statusID, err := b.api.SendMessage(ctx, u.ChatID, "Extracting "+course.Name+" ...")
	if err == nil {
		sink.setMessage(statusID)
	}

	start := time.Now()
	m, err := ext.Extract(ctx, sess, course, interfaces.ExtractOptions{
		Progress: run.Tracker,
		Input:    run.Input,
		Workers:  b.cfg.TraversalWorkers,
	})
	if err != nil {
		if ctx.Err() == nil {
			b.reply(ctx, u.ChatID, "Extraction failed: "+err.Error())
		}
		log.WithError(err).Warn("extraction failed")
		return
	}
	run.Tracker.Flush()

	videos, drm, pdfs := m.Counts()
	summary := fmt.Sprintf("%s\nLinks: %d (videos %d, drm %d, pdfs %d)\nTook %s",
		m.BatchName, m.Len(), videos, drm, pdfs, time.Since(start).Round(time.Second))
	log.WithDuration(time.Since(start)).Info("extraction finished", "links", m.Len())

	doc := types.Document{
		Name:    manifestFileName(m.BatchName),
		Caption: summary,
		Data:    []byte(m.Serialize()),
	}
	if err := b.api.SendDocument(ctx, u.ChatID, doc); err != nil {
		b.reply(ctx, u.ChatID, "Could not upload the manifest: "+err.Error())
		return
	}

	if err := b.store.SaveBackup(ctx, u.UserID, m.BatchName, m); err != nil {
		log.WithError(err).Warn("backup save failed")
	}

	answer, err = run.Input.Ask(ctx, "Upload the files too? (yes/no)", "no")
	if err == nil && strings.HasPrefix(strings.ToLower(strings.TrimSpace(answer)), "y") {
		b.publishFiles(ctx, u.ChatID, m)
	}
}

// login walks the credential prompts and authenticates, handling the
// OTP round trip for platforms that need one.
func (b *Bot) login(ctx context.Context, run *session.Run, u types.Update, ext interfaces.Extractor, target string) (*types.Session, error) {
	id, err := run.Input.Ask(ctx, "Send your login ID (email / phone / org code)", "")
	if err != nil {
		return nil, err
	}
	password, err := run.Input.Ask(ctx, "Send your password (or access token)", "")
	if err != nil {
		return nil, err
	}

	creds := types.Credentials{Identifier: strings.TrimSpace(id), Password: strings.TrimSpace(password)}
	if strings.Contains(target, ".") {
		creds.Host = target
	}

	sess, err := ext.Login(ctx, creds)
	if err == nil {
		return sess, nil
	}
	if !errors.Is(err, extractors.ErrOTPSent) {
		return nil, err
	}

	var pending *extractors.OTPPendingError
	if errors.As(err, &pending) {
		creds.UserID = pending.UserID
	}
	otp, err := run.Input.Ask(ctx, "An OTP was sent. Reply with the code", "")
	if err != nil {
		return nil, err
	}
	creds.Password = strings.TrimSpace(otp)
	return ext.Login(ctx, creds)
}

// publishFiles downloads the manifest's assets and forwards each file
// to the chat.
func (b *Bot) publishFiles(ctx context.Context, chatID int64, m *manifest.Manifest) {
	b.reply(ctx, chatID, fmt.Sprintf("Downloading %d files, this can take a while.", m.Len()))
	err := b.pub.Publish(ctx, m, func(ctx context.Context, entry manifest.Entry, path string) error {
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		return b.api.SendDocument(ctx, chatID, types.Document{
			Name:    filepath.Base(path),
			Caption: entry.Title,
			Data:    data,
		})
	})
	if err != nil {
		if ctx.Err() == nil {
			b.reply(ctx, chatID, "File upload stopped: "+err.Error())
		}
		return
	}
	b.reply(ctx, chatID, "All files delivered.")
}

func (b *Bot) handleCancel(ctx context.Context, u types.Update) {
	if b.runs.Cancel(u.UserID) {
		b.reply(ctx, u.ChatID, "Extraction cancelled.")
		return
	}
	b.reply(ctx, u.ChatID, "Nothing is running.")
}

func (b *Bot) handleBackup(ctx context.Context, u types.Update) {
	names, err := b.store.ListBackups(ctx, u.UserID)
	if err != nil {
		b.reply(ctx, u.ChatID, "Could not list backups: "+err.Error())
		return
	}
	if len(names) == 0 {
		b.reply(ctx, u.ChatID, "No saved manifests yet. Run /extract first.")
		return
	}
	sort.Strings(names)
	b.reply(ctx, u.ChatID, "Saved manifests:\n"+strings.Join(names, "\n")+"\n\nUse /restore <name>.")
}

func (b *Bot) handleRestore(ctx context.Context, u types.Update, args []string) {
	if len(args) == 0 {
		b.reply(ctx, u.ChatID, "Usage: /restore <name>")
		return
	}
	name := strings.Join(args, " ")
	m, err := b.store.GetBackup(ctx, u.UserID, name)
	if err != nil {
		b.reply(ctx, u.ChatID, "No saved manifest named "+name+".")
		return
	}
	doc := types.Document{
		Name:    manifestFileName(m.BatchName),
		Caption: fmt.Sprintf("%s (%d links)", m.BatchName, m.Len()),
		Data:    []byte(m.Serialize()),
	}
	if err := b.api.SendDocument(ctx, u.ChatID, doc); err != nil {
		b.reply(ctx, u.ChatID, "Could not upload the manifest: "+err.Error())
	}
}

func (b *Bot) handleAddPremium(ctx context.Context, u types.Update, args []string) {
	if !b.cfg.IsAdmin(u.UserID) {
		b.reply(ctx, u.ChatID, "Admins only.")
		return
	}
	if len(args) < 2 {
		b.reply(ctx, u.ChatID, "Usage: /addpremium <user_id> <days>\n/addpremium remove <user_id>")
		return
	}
	if strings.EqualFold(args[0], "remove") {
		userID, err := strconv.ParseInt(args[1], 10, 64)
		if err != nil {
			b.reply(ctx, u.ChatID, "Usage: /addpremium remove <user_id>")
			return
		}
		if err := b.store.RemovePremium(ctx, userID); err != nil {
			b.reply(ctx, u.ChatID, "Could not remove premium: "+err.Error())
			return
		}
		b.reply(ctx, u.ChatID, fmt.Sprintf("Premium revoked for user %d.", userID))
		return
	}
	userID, err1 := strconv.ParseInt(args[0], 10, 64)
	days, err2 := strconv.Atoi(args[1])
	if err1 != nil || err2 != nil || days <= 0 {
		b.reply(ctx, u.ChatID, "Usage: /addpremium <user_id> <days>")
		return
	}
	until := time.Now().AddDate(0, 0, days)
	if err := b.store.SetPremium(ctx, userID, until); err != nil {
		b.reply(ctx, u.ChatID, "Could not set premium: "+err.Error())
		return
	}
	b.reply(ctx, u.ChatID, fmt.Sprintf("User %d is premium until %s.", userID, until.Format("2006-01-02")))
}

func (b *Bot) handleAddAPI(ctx context.Context, u types.Update, args []string) {
	if !b.cfg.IsAdmin(u.UserID) {
		b.reply(ctx, u.ChatID, "Admins only.")
		return
	}
	switch len(args) {
	case 0:
		apis, err := b.store.ListAppxAPIs(ctx)
		if err != nil {
			b.reply(ctx, u.ChatID, "Could not list APIs: "+err.Error())
			return
		}
		if len(apis) == 0 {
			b.reply(ctx, u.ChatID, "No APIs registered. Usage: /addapi <name> <url>")
			return
		}
		names := make([]string, 0, len(apis))
		for name := range apis {
			names = append(names, name)
		}
		sort.Strings(names)
		var list strings.Builder
		for _, name := range names {
			fmt.Fprintf(&list, "%s - %s\n", name, apis[name])
		}
		b.reply(ctx, u.ChatID, list.String())
	case 2:
		if strings.EqualFold(args[0], "remove") {
			if err := b.store.DeleteAppxAPI(ctx, args[1]); err != nil {
				b.reply(ctx, u.ChatID, "Could not remove: "+err.Error())
				return
			}
			b.reply(ctx, u.ChatID, "Removed "+args[1]+".")
			return
		}
		if err := b.store.SetAppxAPI(ctx, args[0], args[1]); err != nil {
			b.reply(ctx, u.ChatID, "Could not save: "+err.Error())
			return
		}
		b.reply(ctx, u.ChatID, "Registered "+args[0]+".")
	default:
		b.reply(ctx, u.ChatID, "Usage: /addapi <name> <url>\n/addapi remove <name>")
	}
}

func (b *Bot) handleStats(ctx context.Context, u types.Update) {
	if !b.cfg.IsAdmin(u.UserID) {
		b.reply(ctx, u.ChatID, "Admins only.")
		return
	}
	subs, err := b.store.Subscribers(ctx)
	if err != nil {
		b.reply(ctx, u.ChatID, "Could not read stats: "+err.Error())
		return
	}
	apis, _ := b.store.ListAppxAPIs(ctx)
	b.reply(ctx, u.ChatID, fmt.Sprintf("Subscribers: %d\nRegistered APIs: %d\nExtractors: %d",
		len(subs), len(apis), len(b.reg.All())))
}

// manifestFileName turns a batch name into a safe .txt file name.
func manifestFileName(batchName string) string {
	name := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '-' || r == '_' || r == '.':
			return r
		case r == ' ':
			return '_'
		}
		return -1
	}, batchName)
	if name == "" {
		name = "manifest"
	}
	return name + ".txt"
}
